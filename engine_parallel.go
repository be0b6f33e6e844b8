package thingpad

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/jward/thingpad/internal/store"
)

// workItem holds everything a parallel build worker needs.
type workItem struct {
	buildItem
	batch *store.BatchedStore
}

// buildParallel builds documents using a three-phase pipeline:
//
//	Phase A (serial):   Hash check, output path.
//	Phase B (parallel): Parse, attach and render via worker pool (each
//	                    page owns its widgets and interpreters).
//	Phase C (serial):   Commit build records to SQLite.
func (e *Engine) buildParallel(ctx context.Context, root string, paths []string, outDir string) (*BuildResult, error) {
	res := &BuildResult{}

	// ---- Phase A: Serial preparation ----
	var items []workItem
	for _, path := range paths {
		item, skip, err := e.prepareFile(root, path, outDir)
		if err != nil {
			return res, fmt.Errorf("prepare %s: %w", path, err)
		}
		if skip {
			res.Skipped++
			continue
		}
		items = append(items, workItem{buildItem: item, batch: store.NewBatchedStore(e.store)})
	}

	if len(items) == 0 {
		return res, nil
	}

	// ---- Phase B: Parallel rendering ----
	numWorkers := min(runtime.NumCPU(), len(items))
	if numWorkers < 1 {
		numWorkers = 1
	}

	workCh := make(chan int, len(items))
	for i := range items {
		workCh <- i
	}
	close(workCh)

	type result struct {
		index int
		err   error
	}
	resultCh := make(chan result, len(items))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				_, err := e.renderFile(ctx, items[i].buildItem, items[i].batch)
				resultCh <- result{index: i, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	failed := make(map[int]error)
	for r := range resultCh {
		if r.err != nil {
			failed[r.index] = r.err
		}
	}

	// ---- Phase C: Serial commit, in input order ----
	var errs []error
	for i, item := range items {
		if err := failed[i]; err != nil {
			errs = append(errs, fmt.Errorf("build %s: %w", item.path, err))
			continue
		}
		if err := e.store.CommitBatch(item.batch); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", item.path, err))
			continue
		}
		for j := range item.batch.Documents {
			res.add(&item.batch.Documents[j])
		}
	}

	if len(errs) > 0 {
		return res, fmt.Errorf("parallel build had %d error(s): %w", len(errs), errs[0])
	}
	return res, nil
}
