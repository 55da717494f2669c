// Package parallel provides the chunked fan-out helpers used by ensemble
// training, where the work items (base estimators) are independent.
package parallel

import (
	"runtime"
	"sync"
)

// Parallelize divides items across workers bounded by the number of CPU
// cores and executes fn for each range (start, end).
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items // No need for more workers than items
	}

	// Number of items each worker handles (ceiling division).
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}

// ParallelizeWithThreshold parallelizes only when items exceeds the
// threshold; below it the work runs sequentially on the calling goroutine.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ForEachWithError runs fn for every index in [0, items) across workers
// bounded by the number of CPU cores and collects per-index errors.
//
// All items are attempted even when some fail; the caller decides whether
// the first error is fatal (fail-fast) or failures are tolerated
// (lenient). The returned slice has length items, with nil entries for
// successful indexes.
func ForEachWithError(items int, fn func(i int) error) []error {
	errs := make([]error, items)
	if items == 0 {
		return errs
	}

	Parallelize(items, func(start, end int) {
		for i := start; i < end; i++ {
			errs[i] = fn(i)
		}
	})

	return errs
}

// FirstError returns the first non-nil error and its index, or (-1, nil).
func FirstError(errs []error) (int, error) {
	for i, err := range errs {
		if err != nil {
			return i, err
		}
	}
	return -1, nil
}
