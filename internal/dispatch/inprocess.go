package dispatch

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/spigell/jobboard/internal/logger"
)

const defaultWorkers = 4

// Pool runs handlers on goroutines, at most workers at a time.
type Pool struct {
	handler Handler
	logger  *zap.Logger
	sem     *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ Dispatcher = (*Pool)(nil)

func NewPool(workers int, handler Handler, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler: handler,
		logger:  log,
		sem:     semaphore.NewWeighted(int64(workers)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch returns immediately. The run is detached from ctx so a finished
// HTTP request does not cancel its evaluation.
func (p *Pool) Dispatch(_ context.Context, applicationID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.wg.Add(1)
	go p.run(applicationID)
	return nil
}

func (p *Pool) run(applicationID int64) {
	defer p.wg.Done()

	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		p.logger.Warn("evaluation dropped on shutdown", zap.Int64(logger.FieldApplication, applicationID))
		return
	}
	defer p.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("evaluation panicked",
				zap.Int64(logger.FieldApplication, applicationID),
				zap.Any("panic", r),
			)
		}
	}()

	if err := p.handler(p.ctx, applicationID); err != nil {
		p.logger.Error("evaluation failed",
			zap.Int64(logger.FieldApplication, applicationID),
			zap.Error(err),
		)
	}
}

// Shutdown stops accepting work and waits for running handlers. When ctx
// expires first the handlers are cancelled and Shutdown waits for them to return.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return errors.Wrap(ctx.Err(), "drain evaluations")
	}
}
