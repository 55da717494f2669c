package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/grove-ml/grove/pkg/errors"
)

func TestParallelizeCoversAllItems(t *testing.T) {
	const items = 1000
	var covered [items]int32

	Parallelize(items, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&covered[i], 1)
		}
	})

	for i, c := range covered {
		if c != 1 {
			t.Fatalf("Item %d covered %d times, want exactly once", i, c)
		}
	}
}

func TestParallelizeZeroItems(t *testing.T) {
	called := false
	Parallelize(0, func(start, end int) {
		called = true
	})
	if called {
		t.Error("fn should not be called for zero items")
	}
}

func TestParallelizeWithThreshold(t *testing.T) {
	var calls int32
	ParallelizeWithThreshold(5, 10, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		if start != 0 || end != 5 {
			t.Errorf("Sequential path should see the full range, got (%d, %d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("Below threshold fn should run once, ran %d times", calls)
	}
}

func TestForEachWithError(t *testing.T) {
	errs := ForEachWithError(10, func(i int) error {
		if i == 3 || i == 7 {
			return errors.Newf("item %d failed", i)
		}
		return nil
	})

	if len(errs) != 10 {
		t.Fatalf("len(errs) = %d, want 10", len(errs))
	}

	idx, err := FirstError(errs)
	if idx != 3 || err == nil {
		t.Errorf("FirstError = (%d, %v), want index 3", idx, err)
	}

	var failures int
	for _, e := range errs {
		if e != nil {
			failures++
		}
	}
	if failures != 2 {
		t.Errorf("failures = %d, want 2", failures)
	}
}

func TestFirstErrorAllNil(t *testing.T) {
	idx, err := FirstError(make([]error, 5))
	if idx != -1 || err != nil {
		t.Errorf("FirstError = (%d, %v), want (-1, nil)", idx, err)
	}
}
