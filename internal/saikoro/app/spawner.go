package app

import (
	"context"
	"sync"
	"time"

	"github.com/bdobrica/Saikoro/common/trace"
)

// Spawner runs roll sessions on goroutines tied to the application rather
// than to the event that started them. Cancelling the root context aborts
// every running session.
type Spawner struct {
	root context.Context
	wg   sync.WaitGroup
}

// NewSpawner returns a Spawner whose sessions stop when root is done.
func NewSpawner(root context.Context) *Spawner {
	return &Spawner{root: root}
}

// Spawn runs fn under the root context, carrying over the trace ID of ctx.
func (s *Spawner) Spawn(ctx context.Context, fn func(ctx context.Context)) {
	runCtx := s.root
	if id := trace.FromContext(ctx); id != "" {
		runCtx = trace.WithTraceID(runCtx, id)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(runCtx)
	}()
}

// Wait blocks until every spawned function returned or timeout elapsed. It
// reports whether all of them finished.
func (s *Spawner) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
