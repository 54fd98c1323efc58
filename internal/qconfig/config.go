package qconfig

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// SpecConfig is the requirement one rule assigns to an edge or output,
// exactly as written in the config. Conversion into pass-level specs
// happens in the annotator after validation.
type SpecConfig struct {
	DType     string
	IsDynamic bool
	QScheme   string
	Observer  string
	QuantMin  int
	QuantMax  int
}

// Match selects the nodes a rule applies to. Empty fields match anything,
// but at least one of the two must be set.
type Match struct {
	Op     string
	Target string
}

// Rule assigns quantization requirements to every node it matches.
type Rule struct {
	Name           string
	Match          Match
	Input          *SpecConfig // requirement on every tensor input edge
	Output         *SpecConfig // requirement on the node's output
	ShareObservers bool        // merge input/output observers within a region
	ReuseInput     bool        // output reuses the input observer verbatim
}

// Config is a compiled quantization config: an ordered rule list.
// The first matching rule wins.
type Config struct {
	Rules []Rule
}

// CompileConfig parses a CUE value into a Config.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the quantize struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`quantize: rules: [ ... ]`)
//	cfg, err := CompileConfig(v.LookupPath(cue.ParsePath("quantize")))
func CompileConfig(v cue.Value) (*Config, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, &CompileError{
			Field:   "rules",
			Message: "rules list is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := rulesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	cfg := &Config{}
	idx := 0
	for iter.Next() {
		rule, err := compileRule(iter.Value(), idx)
		if err != nil {
			return nil, err
		}
		cfg.Rules = append(cfg.Rules, rule)
		idx++
	}

	if len(cfg.Rules) == 0 {
		return nil, &CompileError{
			Field:   "rules",
			Message: "at least one rule is required",
			Pos:     rulesVal.Pos(),
		}
	}

	return cfg, nil
}

func compileRule(v cue.Value, idx int) (Rule, error) {
	var rule Rule

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return rule, &CompileError{
			Field:   fmt.Sprintf("rules[%d].name", idx),
			Message: "rule name is required",
			Pos:     v.Pos(),
		}
	}
	name, err := nameVal.String()
	if err != nil {
		return rule, formatCUEError(err)
	}
	rule.Name = name

	matchVal := v.LookupPath(cue.ParsePath("match"))
	if !matchVal.Exists() {
		return rule, &CompileError{
			Field:   fmt.Sprintf("rules[%d].match", idx),
			Message: "match block is required",
			Pos:     v.Pos(),
		}
	}
	rule.Match, err = compileMatch(matchVal)
	if err != nil {
		return rule, err
	}

	inputVal := v.LookupPath(cue.ParsePath("input"))
	if inputVal.Exists() {
		spec, err := compileSpec(inputVal)
		if err != nil {
			return rule, err
		}
		rule.Input = spec
	}

	outputVal := v.LookupPath(cue.ParsePath("output"))
	if outputVal.Exists() {
		spec, err := compileSpec(outputVal)
		if err != nil {
			return rule, err
		}
		rule.Output = spec
	}

	shareVal := v.LookupPath(cue.ParsePath("share_observers"))
	if shareVal.Exists() {
		share, err := shareVal.Bool()
		if err != nil {
			return rule, formatCUEError(err)
		}
		rule.ShareObservers = share
	}

	reuseVal := v.LookupPath(cue.ParsePath("reuse_input"))
	if reuseVal.Exists() {
		reuse, err := reuseVal.Bool()
		if err != nil {
			return rule, formatCUEError(err)
		}
		rule.ReuseInput = reuse
	}

	return rule, nil
}

func compileMatch(v cue.Value) (Match, error) {
	var m Match

	opVal := v.LookupPath(cue.ParsePath("op"))
	if opVal.Exists() {
		op, err := opVal.String()
		if err != nil {
			return m, formatCUEError(err)
		}
		m.Op = op
	}

	targetVal := v.LookupPath(cue.ParsePath("target"))
	if targetVal.Exists() {
		target, err := targetVal.String()
		if err != nil {
			return m, formatCUEError(err)
		}
		m.Target = target
	}

	if m.Op == "" && m.Target == "" {
		return m, &CompileError{
			Field:   "match",
			Message: "match must set op, target, or both",
			Pos:     v.Pos(),
		}
	}
	return m, nil
}

func compileSpec(v cue.Value) (*SpecConfig, error) {
	spec := &SpecConfig{}

	dtypeVal := v.LookupPath(cue.ParsePath("dtype"))
	if !dtypeVal.Exists() {
		return nil, &CompileError{
			Field:   "dtype",
			Message: "spec dtype is required",
			Pos:     v.Pos(),
		}
	}
	dtype, err := dtypeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.DType = dtype

	dynVal := v.LookupPath(cue.ParsePath("is_dynamic"))
	if dynVal.Exists() {
		dyn, err := dynVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.IsDynamic = dyn
	}

	for _, field := range []struct {
		path string
		dst  *string
	}{
		{"qscheme", &spec.QScheme},
		{"observer", &spec.Observer},
	} {
		fv := v.LookupPath(cue.ParsePath(field.path))
		if !fv.Exists() {
			continue
		}
		s, err := fv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		*field.dst = s
	}

	for _, field := range []struct {
		path string
		dst  *int
	}{
		{"quant_min", &spec.QuantMin},
		{"quant_max", &spec.QuantMax},
	} {
		fv := v.LookupPath(cue.ParsePath(field.path))
		if !fv.Exists() {
			continue
		}
		n, err := fv.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		*field.dst = int(n)
	}

	return spec, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
