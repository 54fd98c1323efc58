package prepare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/quant"
)

func registryNodes(t *testing.T) (*graph.Node, *graph.Node) {
	t.Helper()
	g := graph.New("registry")
	a, err := g.AddNode(graph.OpCallFunction, "a", "aten.relu", nil)
	require.NoError(t, err)
	b, err := g.AddNode(graph.OpCallFunction, "b", "aten.linear", []graph.Arg{graph.NodeArg{Node: a}})
	require.NoError(t, err)
	return a, b
}

func TestRegistryBindAndLookup(t *testing.T) {
	a, b := registryNodes(t)
	r := NewRegistry()
	d := quant.NewDescriptor(&quant.Spec{DType: quant.DTypeInt8}, false)

	require.NoError(t, r.Bind(NodeKey(a), d))
	require.NoError(t, r.Bind(EdgeKey(a, b), d))

	got, ok := r.Lookup(NodeKey(a))
	require.True(t, ok)
	assert.Same(t, d, got)

	got, ok = r.Lookup(EdgeKey(a, b))
	require.True(t, ok)
	assert.Same(t, d, got)

	assert.Equal(t, 2, r.Len())
}

func TestRegistryRebindSameDescriptorIsNoOp(t *testing.T) {
	a, _ := registryNodes(t)
	r := NewRegistry()
	d := quant.NewDescriptor(&quant.Spec{DType: quant.DTypeInt8}, false)

	require.NoError(t, r.Bind(NodeKey(a), d))
	require.NoError(t, r.Bind(NodeKey(a), d))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRebindDifferentDescriptorFails(t *testing.T) {
	a, _ := registryNodes(t)
	r := NewRegistry()
	d1 := quant.NewDescriptor(&quant.Spec{DType: quant.DTypeInt8}, false)
	d2 := quant.NewDescriptor(&quant.Spec{DType: quant.DTypeInt8}, false)

	require.NoError(t, r.Bind(NodeKey(a), d1))
	err := r.Bind(NodeKey(a), d2)
	require.Error(t, err)
	require.True(t, IsInvariantError(err))

	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrCodeRegistryConflict, ie.Code)
}

func TestRegistryEntriesInInsertionOrder(t *testing.T) {
	a, b := registryNodes(t)
	r := NewRegistry()
	d := quant.NewDescriptor(&quant.Spec{DType: quant.DTypeInt8}, false)

	require.NoError(t, r.Bind(NodeKey(a), d))
	require.NoError(t, r.Bind(EdgeKey(a, b), d))

	var keys []string
	r.Entries(func(key EdgeOrNode, _ *quant.Descriptor) {
		keys = append(keys, key.String())
	})
	assert.Equal(t, []string{"a", "a->b"}, keys)
}

func TestEdgeOrNodeString(t *testing.T) {
	a, b := registryNodes(t)
	assert.Equal(t, "a", NodeKey(a).String())
	assert.Equal(t, "a->b", EdgeKey(a, b).String())
}
