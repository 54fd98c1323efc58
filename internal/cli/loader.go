package cli

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/quant"
)

// graphFile is the on-disk YAML form of a traced graph.
type graphFile struct {
	Graph string     `yaml:"graph"`
	Nodes []nodeSpec `yaml:"nodes"`
}

type nodeSpec struct {
	Name   string               `yaml:"name"`
	Op     string               `yaml:"op"`
	Target string               `yaml:"target,omitempty"`
	Args   []yaml.Node          `yaml:"args,omitempty"`
	Kwargs map[string]yaml.Node `yaml:"kwargs,omitempty"`
	Scope  string               `yaml:"scope,omitempty"`
	Val    *valSpec             `yaml:"val,omitempty"`
}

type valSpec struct {
	Kind  string  `yaml:"kind"`
	DType string  `yaml:"dtype,omitempty"`
	Shape []int64 `yaml:"shape,omitempty"`
}

// LoadGraph reads a traced graph from a YAML file and returns the module
// plus the node-scope map. Unknown YAML fields are rejected so typos in
// graph files fail loudly instead of silently dropping data.
//
// Argument encoding: "%name" strings are node references, plain sequences
// are lists, and a single-key {tuple: [...]} mapping is a tuple. Scalars
// map to their literal argument kinds.
func LoadGraph(path string) (*graph.Module, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open graph file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var gf graphFile
	if err := dec.Decode(&gf); err != nil {
		return nil, nil, fmt.Errorf("decode graph file %s: %w", path, err)
	}
	if gf.Graph == "" {
		return nil, nil, fmt.Errorf("graph file %s: graph name is required", path)
	}
	if len(gf.Nodes) == 0 {
		return nil, nil, fmt.Errorf("graph file %s: at least one node is required", path)
	}

	g := graph.New(gf.Graph)
	m := graph.NewModule(g)
	scope := make(map[string]string)

	for _, ns := range gf.Nodes {
		args := make([]graph.Arg, 0, len(ns.Args))
		for i, raw := range ns.Args {
			a, err := decodeArg(&raw, g)
			if err != nil {
				return nil, nil, fmt.Errorf("node %s: args[%d]: %w", ns.Name, i, err)
			}
			args = append(args, a)
		}

		n, err := g.AddNode(graph.Op(ns.Op), ns.Name, ns.Target, args)
		if err != nil {
			return nil, nil, fmt.Errorf("graph file %s: %w", path, err)
		}

		for key, raw := range ns.Kwargs {
			a, err := decodeArg(&raw, g)
			if err != nil {
				return nil, nil, fmt.Errorf("node %s: kwargs[%s]: %w", ns.Name, key, err)
			}
			n.SetKwarg(key, a)
		}

		if ns.Scope != "" {
			scope[ns.Name] = ns.Scope
		}
		if ns.Val != nil {
			n.Meta().Val = &quant.ValueInfo{
				Kind:  quant.ValueKind(ns.Val.Kind),
				DType: quant.DType(ns.Val.DType),
				Shape: ns.Val.Shape,
			}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, nil, fmt.Errorf("graph file %s: %w", path, err)
	}
	return m, scope, nil
}

func decodeArg(n *yaml.Node, g *graph.Graph) (graph.Arg, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return decodeScalarArg(n, g)
	case yaml.SequenceNode:
		out := make(graph.ListArg, 0, len(n.Content))
		for _, inner := range n.Content {
			a, err := decodeArg(inner, g)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		return out, nil
	case yaml.MappingNode:
		if len(n.Content) != 2 || n.Content[0].Value != "tuple" {
			return nil, fmt.Errorf("mapping argument must be a single {tuple: [...]} entry")
		}
		seq := n.Content[1]
		if seq.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("tuple argument must hold a sequence")
		}
		out := make(graph.TupleArg, 0, len(seq.Content))
		for _, inner := range seq.Content {
			a, err := decodeArg(inner, g)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported argument node kind %d", n.Kind)
	}
}

func decodeScalarArg(n *yaml.Node, g *graph.Graph) (graph.Arg, error) {
	switch n.Tag {
	case "!!null":
		return graph.NoneArg{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return graph.BoolArg(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, err
		}
		return graph.IntArg(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return graph.FloatArg(f), nil
	case "!!str":
		if strings.HasPrefix(n.Value, "%") {
			name := strings.TrimPrefix(n.Value, "%")
			ref := g.Node(name)
			if ref == nil {
				return nil, fmt.Errorf("reference to unknown node %q", name)
			}
			return graph.NodeArg{Node: ref}, nil
		}
		return graph.StringArg(n.Value), nil
	default:
		return nil, fmt.Errorf("unsupported scalar tag %s", n.Tag)
	}
}
