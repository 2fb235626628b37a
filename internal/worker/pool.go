package worker

import (
	"context"
	"sync"
)

// Pool fans out queue consumption over a fixed number of workers.
type Pool struct {
	workers []*Worker
}

// NewPool creates a Pool.
func NewPool(workers []*Worker) *Pool {
	return &Pool{workers: workers}
}

// Run starts all workers and blocks until every worker has stopped.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}
