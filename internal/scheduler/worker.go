package scheduler

import (
	"context"
	"fmt"

	visasvc "visa_broker_backend/internal/visas/service"
	"visa_broker_backend/platform/config"
	"visa_broker_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	visas  *visasvc.Service
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, visas *visasvc.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		visas:  visas,
		log:    log,
	}

	mux.HandleFunc(TaskVisaDeadlineCancel, w.handleVisaDeadlineCancel)

	return w, nil
}

func (w *Worker) handleVisaDeadlineCancel(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseVisaDeadlineCancelPayload(task)
	if err != nil {
		return err
	}

	visaID, err := uuid.Parse(payload.VisaID)
	if err != nil {
		return err
	}

	// CancelBySweep re-checks the deadline and the status; a visa resolved
	// between enqueue and execution is left alone.
	if err := w.visas.CancelBySweep(ctx, visaID); err != nil {
		w.log.SweepError(payload.VisaID, err)
		return err
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
