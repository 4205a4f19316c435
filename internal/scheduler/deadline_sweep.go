package scheduler

import (
	"context"
	"time"

	visasrepo "visa_broker_backend/internal/visas/repository"
	"visa_broker_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSweepInterval  = 5 * time.Minute
	defaultSweepBatchSize = 200
	enqueueParallelism    = 8
)

// DeadlineSweep periodically finds visas whose cancellation deadline has
// passed and queues a cancellation task for each. The sweep only selects
// candidates; the worker re-validates before cancelling.
type DeadlineSweep struct {
	repo      *visasrepo.Repository
	client    *Client
	log       *logger.Logger
	interval  time.Duration
	batchSize int
}

func NewDeadlineSweep(pool *pgxpool.Pool, client *Client, log *logger.Logger, interval time.Duration, batchSize int) *DeadlineSweep {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}

	return &DeadlineSweep{
		repo:      visasrepo.New(pool),
		client:    client,
		log:       log,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (s *DeadlineSweep) Run(ctx context.Context) {
	if s == nil || s.repo == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *DeadlineSweep) sweep(ctx context.Context) {
	candidates, err := s.repo.ListDeadlineCandidates(ctx, time.Now(), s.batchSize)
	if err != nil {
		s.log.Warn("deadline sweep query failed", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enqueueParallelism)

	for _, candidate := range candidates {
		c := candidate
		g.Go(func() error {
			if err := s.client.EnqueueDeadlineCancel(gctx, VisaDeadlineCancelPayload{
				VisaID: c.VisaID.String(),
			}); err != nil {
				s.log.SweepError(c.VisaID.String(), err)
			}
			return nil
		})
	}

	_ = g.Wait()
	s.log.Info("deadline sweep enqueued candidates", "count", len(candidates))
}
