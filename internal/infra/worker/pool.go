package worker

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// Loop is a long-lived worker body. slot identifies the loop inside the pool.
type Loop func(ctx context.Context, slot int)

// Pool runs a fixed number of independent loops until their context ends.
type Pool struct {
	wg  sync.WaitGroup
	n   int
	log *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	return &Pool{n: workers, log: &l}
}

// Size is the number of loops Start launches.
func (p *Pool) Size() int { return p.n }

func (p *Pool) Start(ctx context.Context, loop Loop) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(slot int) {
			defer p.wg.Done()
			p.log.Debug().Int("slot", slot).Msg("worker loop started")
			loop(ctx, slot)
			p.log.Debug().Int("slot", slot).Msg("worker loop stopped")
		}(i)
	}
}

// Wait blocks until every loop has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
