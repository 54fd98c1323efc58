package prepare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfx/quantfx/internal/graph"
	"github.com/quantfx/quantfx/internal/quant"
	"github.com/quantfx/quantfx/internal/testutil"
)

func TestPrepareDefaultRequirementLeavesArgUntouched(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "default")
	x := b.Placeholder("x")
	a := b.Call("a", "aten.relu", testutil.Ref(x))
	lin := b.Call("lin", "aten.linear", testutil.Ref(a))
	b.Annotate(lin, &quant.Annotation{})
	b.Output(testutil.Ref(lin))
	m := b.Module()
	before := m.Graph().Len()

	m, trace, err := PrepareTraced(m, nil, false)
	require.NoError(t, err)

	assert.Equal(t, before, m.Graph().Len())
	assert.Equal(t, 0, m.NumObservers())
	require.Len(t, lin.Args(), 1)
	ref, ok := lin.Args()[0].(graph.NodeArg)
	require.True(t, ok)
	assert.Same(t, a, ref.Node)
	assert.Empty(t, trace.Edges)
}

func TestPrepareInsertsObserverBetweenProducerAndConsumer(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "insert")
	x := b.Placeholder("x")
	a := b.Call("a", "aten.conv2d", testutil.Ref(x))
	lin := b.Call("lin", "aten.linear", testutil.Ref(a))
	b.Annotate(lin, &quant.Annotation{
		InputSpecs: map[string]*quant.Spec{"a": testutil.Int8Static()},
	})
	b.Output(testutil.Ref(lin))
	m := b.Module()

	m, trace, err := PrepareTraced(m, nil, false)
	require.NoError(t, err)

	// Exactly one new node, consumed by lin and consuming a.
	require.Equal(t, 1, m.NumObservers())
	obsName := m.ObserverNames()[0]
	assert.Equal(t, "activation_post_process_0", obsName)

	obs := m.Graph().Node(obsName)
	require.NotNil(t, obs)
	ref, ok := lin.Args()[0].(graph.NodeArg)
	require.True(t, ok)
	assert.Same(t, obs, ref.Node)

	inner, ok := obs.Args()[0].(graph.NodeArg)
	require.True(t, ok)
	assert.Same(t, a, inner.Node)

	// a's only remaining user is the observer.
	require.Equal(t, 1, a.NumUsers())
	assert.Same(t, obs, a.Users()[0])

	require.Len(t, trace.Edges, 1)
	assert.Equal(t, EdgeRecord{Producer: "a", Consumer: "lin", DType: quant.DTypeInt8}, trace.Edges[0])
}

func TestPrepareSharedObserverAcrossConsumers(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "shared")
	x := b.Placeholder("x")
	a := b.Call("a", "aten.conv2d", testutil.Ref(x))
	b.Annotate(a, &quant.Annotation{OutputSpec: testutil.Int8Static()})
	left := b.Call("left", "aten.relu", testutil.Ref(a))
	b.Annotate(left, &quant.Annotation{
		InputSpecs: map[string]*quant.Spec{"a": testutil.Int8Static()},
	})
	right := b.Call("right", "aten.sigmoid", testutil.Ref(a))
	b.Annotate(right, &quant.Annotation{
		InputSpecs: map[string]*quant.Spec{"a": testutil.Int8Static()},
	})
	b.Output(graph.TupleArg{testutil.Ref(left), testutil.Ref(right)})
	m := b.Module()

	m, trace, err := PrepareTraced(m, nil, false)
	require.NoError(t, err)

	// One observer on a's output; both consumers piggyback on it.
	require.Equal(t, 1, m.NumObservers())
	obs := m.Graph().Node(m.ObserverNames()[0])
	require.NotNil(t, obs)

	leftRef := left.Args()[0].(graph.NodeArg)
	rightRef := right.Args()[0].(graph.NodeArg)
	assert.Same(t, obs, leftRef.Node)
	assert.Same(t, obs, rightRef.Node)

	// Registry: node-form entry for a, then both piggybacked edges, all
	// aliasing one descriptor.
	require.Len(t, trace.Edges, 3)
	assert.Equal(t, "a", trace.Edges[0].Producer)
	assert.Equal(t, "", trace.Edges[0].Consumer)
	assert.Equal(t, "left", trace.Edges[1].Consumer)
	assert.Equal(t, "right", trace.Edges[2].Consumer)
}

func TestPrepareSequenceArgumentPreservesKindAndOrder(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "sequence")
	x := b.Placeholder("x")
	y := b.Placeholder("y")
	cat := b.Call("cat", "aten.cat", graph.ListArg{testutil.Ref(x), testutil.Ref(y)}, graph.IntArg(0))
	b.Annotate(cat, &quant.Annotation{
		InputSpecs: map[string]*quant.Spec{
			"x": testutil.Int8Static(),
			"y": testutil.Int8Static(),
		},
	})
	b.Output(testutil.Ref(cat))
	m := b.Module()

	m, _, err := PrepareTraced(m, nil, false)
	require.NoError(t, err)

	require.Equal(t, 2, m.NumObservers())
	require.Len(t, cat.Args(), 2)

	seq, ok := cat.Args()[0].(graph.ListArg)
	require.True(t, ok, "sequence argument must stay a list")
	require.Len(t, seq, 2)

	first := seq[0].(graph.NodeArg)
	second := seq[1].(graph.NodeArg)
	assert.True(t, m.IsObserverNode(first.Node))
	assert.True(t, m.IsObserverNode(second.Node))
	// Order preserved: first observes x, second observes y.
	assert.Same(t, x, first.Node.Args()[0].(graph.NodeArg).Node)
	assert.Same(t, y, second.Node.Args()[0].(graph.NodeArg).Node)

	assert.Equal(t, graph.IntArg(0), cat.Args()[1])
}

func TestPrepareRedirectsConsumersToOutputObserver(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "redirect")
	x := b.Placeholder("x")
	a := b.Call("a", "aten.conv2d", testutil.Ref(x))
	b.Annotate(a, &quant.Annotation{OutputSpec: testutil.Int8Static()})
	next := b.Call("next", "aten.relu", testutil.Ref(a))
	b.Output(testutil.Ref(next))
	m := b.Module()

	m, _, err := PrepareTraced(m, nil, false)
	require.NoError(t, err)

	require.Equal(t, 1, m.NumObservers())
	obs := m.Graph().Node(m.ObserverNames()[0])
	require.NotNil(t, obs)

	// Every original consumer was redirected; the observer's own sole
	// input stayed the original node (no self-loop).
	require.Equal(t, 1, a.NumUsers())
	assert.Same(t, obs, a.Users()[0])
	assert.Same(t, obs, next.Args()[0].(graph.NodeArg).Node)
	assert.Same(t, a, obs.Args()[0].(graph.NodeArg).Node)
}

func TestPrepareUnannotatedGraphUnchanged(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "untouched")
	x := b.Placeholder("x")
	a := b.Call("a", "aten.relu", testutil.Ref(x))
	b.Output(testutil.Ref(a))
	m := b.Module()
	before := m.Graph().Len()

	m, trace, err := PrepareTraced(m, nil, false)
	require.NoError(t, err)

	assert.Equal(t, before, m.Graph().Len())
	assert.Equal(t, 0, m.NumObservers())
	assert.Same(t, x, a.Args()[0].(graph.NodeArg).Node)
	assert.Empty(t, trace.Observers)
}

func TestPrepareObserverBeforeGraphOutput(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "boundary")
	x := b.Placeholder("x")
	d := b.Call("d", "aten.linear", testutil.Ref(x))
	out := b.Output(testutil.Ref(d))
	b.Annotate(out, &quant.Annotation{
		InputSpecs: map[string]*quant.Spec{"d": testutil.Int8Dynamic()},
	})
	m := b.Module()

	m, trace, err := PrepareTraced(m, nil, false)
	require.NoError(t, err)

	// The boundary observer sits between d and the output; the internal
	// x -> d edge is untouched.
	require.Equal(t, 1, m.NumObservers())
	obs := m.Graph().Node(m.ObserverNames()[0])
	require.NotNil(t, obs)
	assert.Same(t, obs, out.Args()[0].(graph.NodeArg).Node)
	assert.Same(t, d, obs.Args()[0].(graph.NodeArg).Node)
	assert.Same(t, x, d.Args()[0].(graph.NodeArg).Node)

	require.Len(t, trace.Edges, 1)
	assert.Equal(t, EdgeRecord{Producer: "d", Consumer: "output", DType: quant.DTypeInt8, Dynamic: true}, trace.Edges[0])
}

func TestPrepareMergesInputOutputObservers(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "merge")
	x := b.Placeholder("x")
	a := b.Call("a", "aten.conv2d", testutil.Ref(x))
	b.Annotate(a, &quant.Annotation{OutputSpec: testutil.Int8Static()})
	reshape := b.Call("reshape", "aten.reshape", testutil.Ref(a))
	b.Annotate(reshape, &quant.Annotation{
		InputSpecs:                map[string]*quant.Spec{"a": testutil.Int8Static()},
		OutputSpec:                testutil.Int8Static(),
		InputOutputShareObservers: true,
	})
	b.Output(testutil.Ref(reshape))
	m := b.Module()

	m, _, err := PrepareTraced(m, nil, false)
	require.NoError(t, err)

	// Two observer attributes remain, but both resolve to the same
	// descriptor instance: input and output share statistics.
	names := m.ObserverNames()
	require.Len(t, names, 2)
	inDesc, ok := m.Observer(names[0])
	require.True(t, ok)
	outDesc, ok := m.Observer(names[1])
	require.True(t, ok)
	assert.Same(t, inDesc, outDesc)
}

func TestPrepareShareNotApplicableRemovesOutputObserver(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "fallback")
	x := b.Placeholder("x")
	r := b.Call("r", "aten.flatten", testutil.Ref(x))
	b.Annotate(r, &quant.Annotation{
		OutputSpec:        testutil.Int8Static(),
		ReuseInputObsOrFq: true,
	})
	out := b.Output(testutil.Ref(r))
	m := b.Module()
	before := m.Graph().Len()

	m, _, err := PrepareTraced(m, nil, false)
	require.NoError(t, err)

	// Reuse was requested but r has no observed input: the just-created
	// output observer is removed again and the raw output flows through.
	assert.Equal(t, before, m.Graph().Len())
	assert.Equal(t, 0, m.NumObservers())
	assert.Same(t, r, out.Args()[0].(graph.NodeArg).Node)
}

func TestPrepareKwargsPresentIsFatal(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "kwargs")
	x := b.Placeholder("x")
	lin := b.Call("lin", "aten.linear", testutil.Ref(x))
	lin.SetKwarg("bias", graph.NoneArg{})
	b.Annotate(lin, &quant.Annotation{})
	b.Output(testutil.Ref(lin))

	_, _, err := PrepareTraced(b.Module(), nil, false)
	require.Error(t, err)
	require.True(t, IsInvariantError(err))

	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrCodeKwargsPresent, ie.Code)
	assert.Equal(t, "lin", ie.Node)
}

func TestPrepareUnboundProducerIsFatal(t *testing.T) {
	// An observer node whose observed producer was never bound in the
	// registry signals the traversal-order assumption was violated.
	b := testutil.NewGraphBuilder(t, "unbound")
	x := b.Placeholder("x")
	a := b.Call("a", "aten.conv2d", testutil.Ref(x))
	m := b.Module()

	desc := quant.NewDescriptor(testutil.Int8Static(), false)
	obsName := m.RegisterObserver(desc)
	obs, err := m.Graph().AddNode(graph.OpCallModule, obsName, obsName, []graph.Arg{testutil.Ref(a)})
	require.NoError(t, err)

	lin, err := m.Graph().AddNode(graph.OpCallFunction, "lin", "aten.linear", []graph.Arg{testutil.Ref(obs)})
	require.NoError(t, err)
	lin.Meta().Val = &quant.ValueInfo{Kind: quant.KindTensor, DType: quant.DTypeFloat32}
	lin.Meta().Annotation = &quant.Annotation{
		InputSpecs: map[string]*quant.Spec{"a": testutil.Int8Static()},
	}
	_, err = m.Graph().AddNode(graph.OpOutput, "output", "", []graph.Arg{testutil.Ref(lin)})
	require.NoError(t, err)

	_, _, prepErr := PrepareTraced(m, nil, false)
	require.Error(t, prepErr)

	var ie *InvariantError
	require.ErrorAs(t, prepErr, &ie)
	assert.Equal(t, ErrCodeUnboundProducer, ie.Code)
}

func TestPrepareQATPromotesObserversToFakeQuantize(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "qat")
	x := b.Placeholder("x")
	a := b.Call("a", "aten.conv2d", testutil.Ref(x))
	lin := b.Call("lin", "aten.linear", testutil.Ref(a))
	b.Annotate(lin, &quant.Annotation{
		InputSpecs: map[string]*quant.Spec{"a": testutil.Int8Static()},
	})
	b.Output(testutil.Ref(lin))

	m, _, err := PrepareTraced(b.Module(), nil, true)
	require.NoError(t, err)

	require.Equal(t, 1, m.NumObservers())
	d, ok := m.Observer(m.ObserverNames()[0])
	require.True(t, ok)
	assert.Equal(t, quant.FakeQuantize, d.Kind)

	require.NotNil(t, m.State())
	assert.True(t, m.State().IsQAT)
}

func TestPrepareNonTensorOutputSkipsOutputPhase(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "scalar")
	x := b.Placeholder("x")
	size := b.Call("size", "aten.size", testutil.Ref(x))
	size.Meta().Val = &quant.ValueInfo{Kind: quant.KindScalar}
	b.Annotate(size, &quant.Annotation{OutputSpec: testutil.Int8Static()})
	b.Output(testutil.Ref(size))

	m, _, err := PrepareTraced(b.Module(), nil, false)
	require.NoError(t, err)

	// Annotation promises an output spec, but the traced value is a
	// scalar: the output phase is skipped entirely.
	assert.Equal(t, 0, m.NumObservers())
}

func TestPrepareSavesState(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "state")
	x := b.Placeholder("x")
	a := b.Call("a", "aten.relu", testutil.Ref(x))
	b.Output(testutil.Ref(a))
	scope := map[string]string{"a": "features.0"}

	m, err := Prepare(b.Module(), scope, false)
	require.NoError(t, err)

	st := m.State()
	require.NotNil(t, st)
	assert.Equal(t, scope, st.NodeScope)
	assert.False(t, st.IsQAT)
	assert.Empty(t, st.NodeQConfig)
	assert.Empty(t, st.ObservedNodeNames)
}
