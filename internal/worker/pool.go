// Package worker implements a bounded worker pool that runs processing passes
// over stored media records.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mtiwari1/gophermedia/internal/media"
)

var (
	ErrPoolClosed = errors.New("worker: pool is shut down")
	ErrInFlight   = errors.New("worker: media is already queued or processing")
)

// Handler runs one processing pass for a stored record.
// *orchestrator.Orchestrator satisfies it.
type Handler interface {
	ProcessByID(ctx context.Context, id string) (*media.Record, error)
}

// Job represents a processing request.
// Contains a context.Context for cancellation and deadline propagation.
type Job struct {
	Ctx     context.Context
	MediaID string
}

// Result holds the outcome of processing a single job.
type Result struct {
	MediaID string
	Status  media.Status
	Latency time.Duration
	Err     error
}

// Pool manages a fixed set of worker goroutines that process Jobs from a channel
// and emit Results to another channel. A media ID is accepted at most once
// until its pass finishes.
type Pool struct {
	workers int
	handler Handler
	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger

	mu       sync.Mutex
	closed   bool
	inflight map[string]struct{}

	// sendMu keeps Shutdown from closing jobs under a blocked Submit.
	sendMu sync.RWMutex
}

// NewPool creates a pool with the given number of workers.
// Call Start() to launch the goroutines.
func NewPool(workers int, handler Handler, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:  workers,
		handler:  handler,
		jobs:     make(chan Job, workers*2),
		results:  make(chan Result, workers*2),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches worker goroutines. Each reads from the jobs channel until it is
// closed or the pool is cancelled.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a job. It blocks while the jobs buffer is full.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if _, ok := p.inflight[job.MediaID]; ok {
		p.mu.Unlock()
		return fmt.Errorf("submit %s: %w", job.MediaID, ErrInFlight)
	}
	p.inflight[job.MediaID] = struct{}{}
	p.mu.Unlock()

	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		p.release(job.MediaID)
		return ErrPoolClosed
	}
}

// Claim marks id as in flight for a pass run outside the pool, so queued work
// and inline work never overlap. The returned release must be called when
// the pass ends.
func (p *Pool) Claim(id string) (release func(), err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if _, ok := p.inflight[id]; ok {
		return nil, fmt.Errorf("claim %s: %w", id, ErrInFlight)
	}
	p.inflight[id] = struct{}{}
	var once sync.Once
	return func() { once.Do(func() { p.release(id) }) }, nil
}

// InFlight reports whether id is queued or being processed.
func (p *Pool) InFlight(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[id]
	return ok
}

// Results returns the read-only results channel for the consumer.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown stops intake, lets workers drain queued jobs, then closes the
// results channel. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.sendMu.Lock()
	close(p.jobs)
	p.sendMu.Unlock()
	p.wg.Wait()
	p.cancel()
	close(p.results)
}

// Abort cancels in-progress passes and drops queued jobs, then waits like Shutdown.
func (p *Pool) Abort() {
	p.cancel()
	p.Shutdown()
}

func (p *Pool) release(id string) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				p.logger.Info("worker exiting", slog.Int("worker_id", id))
				return
			}
			res := p.process(id, job)
			p.release(job.MediaID)
			p.results <- res

		case <-p.ctx.Done():
			p.logger.Info("worker cancelled", slog.Int("worker_id", id))
			return
		}
	}
}

// process runs one job. The caller releases the ID before publishing the
// result, so a consumer may resubmit as soon as it sees it.
func (p *Pool) process(workerID int, job Job) Result {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := mergeCancel(ctx, p.ctx)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return Result{MediaID: job.MediaID, Err: fmt.Errorf("job cancelled before processing: %w", err)}
	}

	start := time.Now()
	p.logger.Info("processing started",
		slog.Int("worker_id", workerID),
		slog.String("media_id", job.MediaID),
	)

	rec, err := p.handler.ProcessByID(ctx, job.MediaID)
	latency := time.Since(start)

	if err != nil {
		p.logger.Error("processing pass aborted",
			slog.Int("worker_id", workerID),
			slog.String("media_id", job.MediaID),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		return Result{MediaID: job.MediaID, Latency: latency, Err: err}
	}

	p.logger.Info("processing finished",
		slog.Int("worker_id", workerID),
		slog.String("media_id", job.MediaID),
		slog.String("status", string(rec.Status)),
		slog.Duration("latency", latency),
	)
	return Result{MediaID: job.MediaID, Status: rec.Status, Latency: latency}
}

// mergeCancel returns a context derived from ctx that is also cancelled when
// stop is done.
func mergeCancel(ctx, stop context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	unregister := context.AfterFunc(stop, cancel)
	return ctx, func() {
		unregister()
		cancel()
	}
}
