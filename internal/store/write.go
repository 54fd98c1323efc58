package store

import (
	"context"
	"fmt"

	"github.com/quantfx/quantfx/internal/prepare"
)

// WriteRun persists one pass trace atomically and returns the assigned
// run id. Observer and edge rows keep insertion order through seq.
func (s *Store) WriteRun(ctx context.Context, gen TokenGenerator, trace *prepare.Trace) (string, error) {
	runID := gen.Generate()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin trace write: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pass_runs (run_id, graph_name, is_qat, nodes_before, nodes_after)
		VALUES (?, ?, ?, ?, ?)`,
		runID, trace.GraphName, boolToInt(trace.IsQAT), trace.NodesBefore, trace.NodesAfter,
	)
	if err != nil {
		return "", fmt.Errorf("insert pass run %s: %w", runID, err)
	}

	for i, obs := range trace.Observers {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO observers (run_id, seq, name, observes, kind, dtype, is_dynamic)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, i, obs.Name, obs.Observes, string(obs.Kind), string(obs.DType), boolToInt(obs.IsDynamic),
		)
		if err != nil {
			return "", fmt.Errorf("insert observer %s: %w", obs.Name, err)
		}
	}

	for i, edge := range trace.Edges {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO edges (run_id, seq, producer, consumer, dtype, is_dynamic)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, i, edge.Producer, edge.Consumer, string(edge.DType), boolToInt(edge.Dynamic),
		)
		if err != nil {
			return "", fmt.Errorf("insert edge %s->%s: %w", edge.Producer, edge.Consumer, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit trace write: %w", err)
	}
	return runID, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
