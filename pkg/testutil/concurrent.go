package testutil

import (
	"sync"
	"sync/atomic"

	dErrors "warden/pkg/domain-errors"
)

// ConcurrentResult counts outcomes of a RunConcurrent batch.
type ConcurrentResult struct {
	Successes int32
	Conflicts int32
	Denied    int32
	Errors    int32
}

// RunConcurrent starts n goroutines, releases them together and classifies
// each result: CAS conflicts, denials (rate limited or locked) and other
// errors are counted separately.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var successes, conflicts, denied, errs atomic.Int32
	race(n, func(i int) {
		err := fn(i)
		switch {
		case err == nil:
			successes.Add(1)
		case dErrors.HasCode(err, dErrors.CodeConflict):
			conflicts.Add(1)
		case dErrors.HasCode(err, dErrors.CodeRateLimited), dErrors.HasCode(err, dErrors.CodeAccountLocked):
			denied.Add(1)
		default:
			errs.Add(1)
		}
	})
	return &ConcurrentResult{
		Successes: successes.Load(),
		Conflicts: conflicts.Load(),
		Denied:    denied.Load(),
		Errors:    errs.Load(),
	}
}

// RunConcurrentCollect is RunConcurrent that keeps the errors themselves.
func RunConcurrentCollect(n int, fn func(idx int) error) (successes int32, errs []error) {
	var mu sync.Mutex
	var ok atomic.Int32
	race(n, func(i int) {
		if err := fn(i); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			return
		}
		ok.Add(1)
	})
	return ok.Load(), errs
}

// race runs fn n times in parallel, holding every goroutine at a barrier
// until all have started.
func race(n int, fn func(i int)) {
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			fn(i)
		}()
	}
	close(start)
	wg.Wait()
}
