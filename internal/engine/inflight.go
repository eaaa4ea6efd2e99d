package engine

import (
	"context"
	"sync"
)

// inflightGuard tracks running invocations so Shutdown can wait for them.
// Each invocation ID may be registered once at a time.
type inflightGuard struct {
	mu      sync.Mutex
	running map[string]string // invocation ID -> script name
	wg      sync.WaitGroup
}

// TryEnter registers id as running. Returns false if id is already running.
func (g *inflightGuard) TryEnter(id, script string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]string)
	}
	if _, ok := g.running[id]; ok {
		return false
	}
	g.running[id] = script
	g.wg.Add(1)
	return true
}

// Leave marks id as finished. Must be called after TryEnter returns true.
func (g *inflightGuard) Leave(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, id)
	g.wg.Done()
}

// Count returns the number of running invocations.
func (g *inflightGuard) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.running)
}

// WaitAll blocks until every running invocation completes or ctx is done.
func (g *inflightGuard) WaitAll(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
