package cellscope

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// AnalyzeFiles analyzes notebooks in two phases:
//
//	Phase A (parallel): one independent analysis per notebook on a worker
//	                    pool of runtime.NumCPU() goroutines.
//	Phase B (serial):   persist the captures when a store is configured.
//
// Captures are returned in input order; notebooks that failed are omitted.
// Per-notebook errors are collected and summarized; a cancelled context
// aborts the whole batch.
func (e *Engine) AnalyzeFiles(ctx context.Context, paths []string) ([]*Capture, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	type result struct {
		capture *Capture
		err     error
	}
	results := make([]result, len(paths))

	// ---- Phase A: Parallel analysis ----
	numWorkers := min(runtime.NumCPU(), len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)
	for i, path := range paths {
		g.Go(func() error {
			c, err := e.AnalyzeFile(gctx, path)
			if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return err
			}
			results[i] = result{capture: c, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cellscope: analyze files: %w", err)
	}

	// ---- Phase B: Serial commit ----
	var (
		captures []*Capture
		errs     []error
	)
	for i, res := range results {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("analyze %s: %w", paths[i], res.err))
			continue
		}
		if e.store != nil {
			if err := e.Save(res.capture); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		captures = append(captures, res.capture)
	}

	if len(errs) > 0 {
		return captures, fmt.Errorf("analysis had %d error(s): %w", len(errs), errs[0])
	}
	return captures, nil
}
