package qconfig

import (
	"log/slog"

	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/quant"
)

// Annotate applies a compiled config to every node of the module, attaching
// quantization annotations where a rule matches. Rules are tried in config
// order and the first match wins. Returns the number of nodes annotated.
//
// Annotation must run before observer insertion: input specs are keyed by
// producer node name as the graph stands now.
func Annotate(m *graph.Module, cfg *Config) int {
	annotated := 0
	for _, n := range m.Graph().Nodes() {
		rule, ok := matchRule(cfg, n)
		if !ok {
			continue
		}
		n.Meta().Annotation = buildAnnotation(rule, n)
		annotated++
		slog.Debug("node annotated",
			"node", n.Name(),
			"rule", rule.Name,
		)
	}
	return annotated
}

// matchRule returns the first rule matching n, in config order.
func matchRule(cfg *Config, n *graph.Node) (Rule, bool) {
	for _, rule := range cfg.Rules {
		if rule.Match.Op != "" && graph.Op(rule.Match.Op) != n.Op() {
			continue
		}
		if rule.Match.Target != "" && rule.Match.Target != n.Target() {
			continue
		}
		return rule, true
	}
	return Rule{}, false
}

// buildAnnotation materializes the annotation a rule assigns to n. The input
// spec, if any, is placed on every tensor-valued producer edge; producers
// traced as non-tensor values carry no requirement.
func buildAnnotation(rule Rule, n *graph.Node) *quant.Annotation {
	ann := &quant.Annotation{
		InputOutputShareObservers: rule.ShareObservers,
		ReuseInputObsOrFq:         rule.ReuseInput,
	}
	if rule.Output != nil {
		ann.OutputSpec = toSpec(rule.Output)
	}
	if rule.Input == nil {
		return ann
	}

	ann.InputSpecs = make(map[string]*quant.Spec)
	for _, a := range n.Args() {
		collectInputSpecs(a, rule.Input, ann.InputSpecs)
	}
	return ann
}

func collectInputSpecs(a graph.Arg, in *SpecConfig, dst map[string]*quant.Spec) {
	switch v := a.(type) {
	case graph.NodeArg:
		if v.Node == nil {
			return
		}
		if val := v.Node.Meta().Val; val != nil && !val.IsTensor() {
			return
		}
		if _, exists := dst[v.Node.Name()]; !exists {
			dst[v.Node.Name()] = toSpec(in)
		}
	case graph.ListArg:
		for _, inner := range v {
			collectInputSpecs(inner, in, dst)
		}
	case graph.TupleArg:
		for _, inner := range v {
			collectInputSpecs(inner, in, dst)
		}
	}
}

// toSpec converts a validated config spec into a pass-level requirement.
// Each call returns a fresh instance so annotations stay independent.
func toSpec(sc *SpecConfig) *quant.Spec {
	return &quant.Spec{
		DType:     quant.DType(sc.DType),
		IsDynamic: sc.IsDynamic,
		QScheme:   quant.QScheme(sc.QScheme),
		Observer:  quant.ObserverKind(sc.Observer),
		QuantMin:  sc.QuantMin,
		QuantMax:  sc.QuantMax,
	}
}
