package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"meal-photo-backend/internal/database"
	"meal-photo-backend/internal/models"
)

type PoolConfig struct {
	Workers      int
	Lease        time.Duration
	PollInterval time.Duration
}

// Pool runs workers that claim tasks from the recognition_tasks queue.
// Delivery is at-least-once: a task whose worker dies is redelivered after
// its lease expires.
type Pool struct {
	db        *database.Client
	processor *Processor
	logger    *slog.Logger
	cfg       PoolConfig
	wake      chan struct{}
}

func NewPool(db *database.Client, processor *Processor, logger *slog.Logger, cfg PoolConfig) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Pool{
		db:        db,
		processor: processor,
		logger:    logger,
		cfg:       cfg,
		wake:      make(chan struct{}, 1),
	}
}

// Notify wakes an idle worker. It never blocks.
func (p *Pool) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "worker pool started", "workers", p.cfg.Workers, "lease", p.cfg.Lease)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			p.loop(ctx, id)
			return nil
		})
	}
	err := g.Wait()

	p.logger.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, id int) {
	logger := p.logger.With("worker", id)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		task, err := p.ClaimOne(ctx)
		if err != nil && ctx.Err() == nil {
			logger.ErrorContext(ctx, "failed to claim task", "error", err)
		}
		if task != nil {
			if err := p.processor.Process(ctx, task); err != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "task processing failed, will be redelivered",
					"task_id", task.ID, "photo_id", task.PhotoID, "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-ticker.C:
		}
	}
}

// ClaimOne leases the next deliverable task, or returns nil.
func (p *Pool) ClaimOne(ctx context.Context) (*models.RecognitionTask, error) {
	return p.db.ClaimTask(ctx, time.Now().UTC(), p.cfg.Lease)
}
