package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"nyql/internal/domain"
)

// executor bounds how many invocations run at once. Waiters are served in
// arrival order.
type executor struct {
	sema *semaphore.Weighted
	max  int
}

func newExecutor(max int) *executor {
	return &executor{sema: semaphore.NewWeighted(int64(max)), max: max}
}

func (x *executor) do(ctx context.Context, fn func() error) error {
	if err := x.sema.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for executor: %w", err)
	}
	defer x.sema.Release(1)
	return fn()
}

// buildExecutors creates one executor per spec. With none configured a single
// executor is sized to the connection pool, or to one without pooling.
func buildExecutors(specs []domain.ExecutorSpec, poolSize int, pooled bool) []*executor {
	if len(specs) == 0 {
		n := 1
		if pooled {
			n = poolSize
		}
		return []*executor{newExecutor(n)}
	}
	out := make([]*executor, len(specs))
	for i, s := range specs {
		out[i] = newExecutor(s.MaxConcurrency)
	}
	return out
}
