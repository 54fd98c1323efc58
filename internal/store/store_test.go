package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfx/quantfx/internal/prepare"
	"github.com/quantfx/quantfx/internal/quant"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTrace() *prepare.Trace {
	return &prepare.Trace{
		GraphName:   "sample",
		IsQAT:       false,
		NodesBefore: 4,
		NodesAfter:  5,
		Observers: []prepare.ObserverRecord{{
			Name:     "activation_post_process_0",
			Observes: "a",
			Kind:     quant.ObserverMinMax,
			DType:    quant.DTypeInt8,
		}},
		Edges: []prepare.EdgeRecord{
			{Producer: "a", Consumer: "", DType: quant.DTypeInt8},
			{Producer: "a", Consumer: "lin", DType: quant.DTypeInt8},
		},
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestWriteAndReadRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.WriteRun(ctx, NewFixedGenerator("run-1"), sampleTrace())
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "sample", run.Trace.GraphName)
	assert.False(t, run.Trace.IsQAT)
	assert.Equal(t, 4, run.Trace.NodesBefore)
	assert.Equal(t, 5, run.Trace.NodesAfter)
	assert.NotEmpty(t, run.CreatedAt)

	require.Len(t, run.Trace.Observers, 1)
	assert.Equal(t, "activation_post_process_0", run.Trace.Observers[0].Name)
	assert.Equal(t, quant.ObserverMinMax, run.Trace.Observers[0].Kind)

	require.Len(t, run.Trace.Edges, 2)
	assert.Equal(t, "", run.Trace.Edges[0].Consumer)
	assert.Equal(t, "lin", run.Trace.Edges[1].Consumer)
}

func TestReadRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	gen := NewFixedGenerator("run-1", "run-2")

	_, err := s.WriteRun(ctx, gen, sampleTrace())
	require.NoError(t, err)
	qat := sampleTrace()
	qat.IsQAT = true
	_, err = s.WriteRun(ctx, gen, qat)
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.True(t, runs[0].IsQAT)
	assert.Equal(t, "run-1", runs[1].ID)
}

func TestUUIDv7GeneratorProducesSortableIDs(t *testing.T) {
	gen := UUIDv7Generator{}
	a := gen.Generate()
	b := gen.Generate()

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, a, b)
}

func TestFixedGeneratorPanicsWhenExhausted(t *testing.T) {
	gen := NewFixedGenerator("only")
	assert.Equal(t, "only", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}
