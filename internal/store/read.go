package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quantfx/quantfx/internal/prepare"
	"github.com/quantfx/quantfx/internal/quant"
)

// ErrRunNotFound is returned when the requested run id has no row.
var ErrRunNotFound = errors.New("store: run not found")

// Run is one persisted pass trace.
type Run struct {
	ID        string
	CreatedAt string
	Trace     prepare.Trace
}

// RunSummary is the listing form of a run, without observers and edges.
type RunSummary struct {
	ID          string
	GraphName   string
	IsQAT       bool
	NodesBefore int
	NodesAfter  int
	CreatedAt   string
}

// ReadRun loads one pass trace with its observers and edges in insertion
// order.
func (s *Store) ReadRun(ctx context.Context, runID string) (*Run, error) {
	run := &Run{ID: runID}
	var isQAT int
	err := s.db.QueryRowContext(ctx, `
		SELECT graph_name, is_qat, nodes_before, nodes_after, created_at
		FROM pass_runs WHERE run_id = ?`, runID,
	).Scan(&run.Trace.GraphName, &isQAT, &run.Trace.NodesBefore, &run.Trace.NodesAfter, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("read pass run %s: %w", runID, err)
	}
	run.Trace.IsQAT = isQAT != 0

	if err := s.readObservers(ctx, run); err != nil {
		return nil, err
	}
	if err := s.readEdges(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) readObservers(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, observes, kind, dtype, is_dynamic
		FROM observers WHERE run_id = ? ORDER BY seq`, run.ID)
	if err != nil {
		return fmt.Errorf("read observers for %s: %w", run.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec prepare.ObserverRecord
		var kind, dtype string
		var dyn int
		if err := rows.Scan(&rec.Name, &rec.Observes, &kind, &dtype, &dyn); err != nil {
			return fmt.Errorf("scan observer row: %w", err)
		}
		rec.Kind = quant.ObserverKind(kind)
		rec.DType = quant.DType(dtype)
		rec.IsDynamic = dyn != 0
		run.Trace.Observers = append(run.Trace.Observers, rec)
	}
	return rows.Err()
}

func (s *Store) readEdges(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT producer, consumer, dtype, is_dynamic
		FROM edges WHERE run_id = ? ORDER BY seq`, run.ID)
	if err != nil {
		return fmt.Errorf("read edges for %s: %w", run.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec prepare.EdgeRecord
		var dtype string
		var dyn int
		if err := rows.Scan(&rec.Producer, &rec.Consumer, &dtype, &dyn); err != nil {
			return fmt.Errorf("scan edge row: %w", err)
		}
		rec.DType = quant.DType(dtype)
		rec.Dynamic = dyn != 0
		run.Trace.Edges = append(run.Trace.Edges, rec)
	}
	return rows.Err()
}

// ListRuns returns run summaries, newest first. UUIDv7 run ids sort
// chronologically, so ordering by id matches creation order.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, graph_name, is_qat, nodes_before, nodes_after, created_at
		FROM pass_runs ORDER BY run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var isQAT int
		if err := rows.Scan(&s.ID, &s.GraphName, &isQAT, &s.NodesBefore, &s.NodesAfter, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		s.IsQAT = isQAT != 0
		out = append(out, s)
	}
	return out, rows.Err()
}
