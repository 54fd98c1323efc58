package testutil

import (
	"testing"

	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/quant"
)

// GraphBuilder constructs small traced modules for tests, failing the test
// on construction errors so call sites stay linear.
type GraphBuilder struct {
	t *testing.T
	m *graph.Module
}

// NewGraphBuilder creates a builder around an empty module named name.
func NewGraphBuilder(t *testing.T, name string) *GraphBuilder {
	t.Helper()
	return &GraphBuilder{
		t: t,
		m: graph.NewModule(graph.New(name)),
	}
}

// Module returns the module under construction.
func (b *GraphBuilder) Module() *graph.Module { return b.m }

// Placeholder adds a graph input marked as a float32 tensor value.
func (b *GraphBuilder) Placeholder(name string) *graph.Node {
	b.t.Helper()
	n := b.node(graph.OpPlaceholder, name, "", nil)
	n.Meta().Val = &quant.ValueInfo{Kind: quant.KindTensor, DType: quant.DTypeFloat32}
	return n
}

// Call adds a call_function node with the given target and arguments,
// marked as a float32 tensor value.
func (b *GraphBuilder) Call(name, target string, args ...graph.Arg) *graph.Node {
	b.t.Helper()
	n := b.node(graph.OpCallFunction, name, target, args)
	n.Meta().Val = &quant.ValueInfo{Kind: quant.KindTensor, DType: quant.DTypeFloat32}
	return n
}

// Output adds the graph output node returning the given arguments.
func (b *GraphBuilder) Output(args ...graph.Arg) *graph.Node {
	b.t.Helper()
	return b.node(graph.OpOutput, "output", "", args)
}

// Annotate attaches a quantization annotation to a node and returns it so
// tests can adjust flags in place.
func (b *GraphBuilder) Annotate(n *graph.Node, ann *quant.Annotation) *quant.Annotation {
	b.t.Helper()
	n.Meta().Annotation = ann
	return ann
}

func (b *GraphBuilder) node(op graph.Op, name, target string, args []graph.Arg) *graph.Node {
	b.t.Helper()
	n, err := b.m.Graph().AddNode(op, name, target, args)
	if err != nil {
		b.t.Fatalf("add node %s: %v", name, err)
	}
	return n
}

// Ref wraps a node as a positional argument.
func Ref(n *graph.Node) graph.Arg { return graph.NodeArg{Node: n} }

// Int8Static returns a static int8 requirement spec.
func Int8Static() *quant.Spec {
	return &quant.Spec{DType: quant.DTypeInt8}
}

// Int8Dynamic returns a dynamic int8 requirement spec.
func Int8Dynamic() *quant.Spec {
	return &quant.Spec{DType: quant.DTypeInt8, IsDynamic: true}
}
