package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/manvelegoyan072/bord-application/internal/config"
	"github.com/manvelegoyan072/bord-application/internal/model"
)

// ReceivedLister polls for tenders awaiting processing.
type ReceivedLister interface {
	ListReceivedTenders(ctx context.Context, limit int) ([]model.Tender, error)
}

// Runner is responsible for polling the tenders table and dispatching
// freshly received tenders to the processor. It encapsulates concurrency
// limits and polling intervals; the tenders table itself is the queue,
// so work survives restarts.
type Runner struct {
	cfg       *config.Config
	store     ReceivedLister
	processor *Processor
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewRunner(cfg *config.Config, store ReceivedLister, processor *Processor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:       cfg,
		store:     store,
		processor: processor,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
	}
}

// Start launches the worker loop in the current goroutine. Callers
// typically run this in its own goroutine and keep the process alive.
func (r *Runner) Start(ctx context.Context) {
	pollInterval := time.Duration(r.cfg.Worker.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	maxTenders := r.cfg.Worker.MaxConcurrentTenders
	if maxTenders <= 0 {
		maxTenders = 4
	}

	sem := make(chan struct{}, maxTenders)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		capacity := maxTenders - len(sem)
		if capacity <= 0 {
			continue
		}

		tenders, err := r.store.ListReceivedTenders(ctx, capacity)
		if err != nil {
			r.logger.Error("failed to list received tenders", "error", err)
			continue
		}

		for _, tender := range tenders {
			id := tender.ExternalID
			if !r.claim(id) {
				continue
			}
			sem <- struct{}{}
			go func() {
				defer func() {
					<-sem
					r.release(id)
				}()
				if err := r.processor.Process(ctx, id); err != nil {
					r.logger.Error("tender processing failed", "tender_id", id, "error", err)
				}
			}()
		}
	}
}

// claim marks a tender as dispatched so a later poll cannot start it
// again before its first persisted transition.
func (r *Runner) claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[id]; busy {
		return false
	}
	r.inFlight[id] = struct{}{}
	return true
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, id)
}
