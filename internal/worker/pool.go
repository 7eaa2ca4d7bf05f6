package worker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Pool runs several workers against the same queue.
type Pool struct {
	workers []*Worker
}

// NewPool groups workers.
func NewPool(workers ...*Worker) *Pool {
	return &Pool{workers: workers}
}

// Run starts every worker and blocks until all have stopped.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("worker %d: %w", w.id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// CheckReadiness is ready once any worker has reached the queue.
func (p *Pool) CheckReadiness(ctx context.Context) error {
	var err error
	for _, w := range p.workers {
		if err = w.CheckReadiness(ctx); err == nil {
			return nil
		}
	}
	if err == nil {
		return errors.New("no workers configured")
	}
	return err
}
