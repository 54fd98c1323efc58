package qconfig

import (
	"fmt"
	"strings"

	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/quant"
)

// Validation error codes (E200-E299)
const (
	ErrRuleNameEmpty       = "E200" // rule name is required
	ErrDuplicateRuleName   = "E201" // duplicate rule name
	ErrInvalidMatchOp      = "E202" // match.op is not a known operation kind
	ErrRuleWithoutSpecs    = "E203" // rule assigns nothing
	ErrInvalidDType        = "E204" // unknown dtype
	ErrInvalidQScheme      = "E205" // unknown qscheme
	ErrInvalidObserver     = "E206" // unknown observer kind
	ErrInvalidQuantRange   = "E207" // quant_min > quant_max
	ErrShareAndReuse       = "E208" // share_observers and reuse_input together
	ErrReuseWithoutOutput  = "E209" // reuse/share flags without an output spec
)

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled config against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	names := make(map[string]bool)

	for i, rule := range cfg.Rules {
		field := fmt.Sprintf("rules[%d]", i)

		if strings.TrimSpace(rule.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: "rule name is required and must be non-empty",
				Code:    ErrRuleNameEmpty,
			})
		}
		if names[rule.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate rule name: %q", rule.Name),
				Code:    ErrDuplicateRuleName,
			})
		}
		names[rule.Name] = true

		if rule.Match.Op != "" && !graph.ValidOps[graph.Op(rule.Match.Op)] {
			errs = append(errs, ValidationError{
				Field:   field + ".match.op",
				Message: fmt.Sprintf("unknown operation kind %q", rule.Match.Op),
				Code:    ErrInvalidMatchOp,
			})
		}

		if rule.Input == nil && rule.Output == nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("rule %q assigns neither an input nor an output spec", rule.Name),
				Code:    ErrRuleWithoutSpecs,
			})
		}

		if rule.Input != nil {
			errs = append(errs, validateSpec(rule.Input, field+".input")...)
		}
		if rule.Output != nil {
			errs = append(errs, validateSpec(rule.Output, field+".output")...)
		}

		if rule.ShareObservers && rule.ReuseInput {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "share_observers and reuse_input are mutually exclusive",
				Code:    ErrShareAndReuse,
			})
		}
		if (rule.ShareObservers || rule.ReuseInput) && rule.Output == nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "share_observers / reuse_input require an output spec to act on",
				Code:    ErrReuseWithoutOutput,
			})
		}
	}

	return errs
}

// validateSpec checks one spec block's enumerated fields.
func validateSpec(s *SpecConfig, fieldPath string) []ValidationError {
	var errs []ValidationError

	if !quant.ValidDTypes[quant.DType(s.DType)] {
		errs = append(errs, ValidationError{
			Field:   fieldPath + ".dtype",
			Message: fmt.Sprintf("unknown dtype %q", s.DType),
			Code:    ErrInvalidDType,
		})
	}
	if s.QScheme != "" && !quant.ValidQSchemes[quant.QScheme(s.QScheme)] {
		errs = append(errs, ValidationError{
			Field:   fieldPath + ".qscheme",
			Message: fmt.Sprintf("unknown qscheme %q", s.QScheme),
			Code:    ErrInvalidQScheme,
		})
	}
	if s.Observer != "" && !quant.ValidObserverKinds[quant.ObserverKind(s.Observer)] {
		errs = append(errs, ValidationError{
			Field:   fieldPath + ".observer",
			Message: fmt.Sprintf("unknown observer kind %q", s.Observer),
			Code:    ErrInvalidObserver,
		})
	}
	if s.QuantMin > s.QuantMax {
		errs = append(errs, ValidationError{
			Field:   fieldPath,
			Message: fmt.Sprintf("quant_min %d exceeds quant_max %d", s.QuantMin, s.QuantMax),
			Code:    ErrInvalidQuantRange,
		})
	}

	return errs
}
