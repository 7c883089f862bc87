package jobs

import (
	"context"
	"log/slog"
	"sync"
)

// Runner runs background work detached from the request that started it.
// Shutdown waits for the work and cancels it when the wait runs out.
type Runner struct {
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func NewRunner(logger *slog.Logger) *Runner {
	base, cancel := context.WithCancel(context.Background())
	return &Runner{base: base, cancel: cancel, logger: logger}
}

// Go starts fn with a context derived from the runner's base context,
// decorated by prepare when it is non-nil. It reports false once Shutdown
// has begun.
func (r *Runner) Go(prepare func(context.Context) context.Context, fn func(context.Context)) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	ctx := r.base
	if prepare != nil {
		ctx = prepare(ctx)
	}

	go func() {
		defer r.wg.Done()
		fn(ctx)
	}()
	return true
}

// Shutdown stops accepting work and waits for running work. When ctx ends
// first, running work is cancelled and Shutdown still waits for it to
// return, then reports ctx's error.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.logger.Warn("cancelling background jobs", slog.String("reason", ctx.Err().Error()))
		r.cancel()
		<-done
		return ctx.Err()
	}
}
