package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/lingopair/backend/internal/config"
	"github.com/lingopair/backend/pkg/logger"
)

// TimerWorker consumes the durable timer queue and dispatches to the
// dispute engine. Only runs when Redis is enabled; with in-process timers
// the LocalScheduler calls the handler directly.
type TimerWorker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler TimerHandler
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewTimerWorker(cfg *config.RedisConfig) *TimerWorker {
	if !cfg.Enabled {
		return nil
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"timers": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warnf("[TimerWorker] error processing %s: %v", task.Type(), err)
			}),
		},
	)

	return &TimerWorker{
		server: server,
		mux:    asynq.NewServeMux(),
	}
}

// SetHandler sets the dispute engine that executes timer checks.
func (w *TimerWorker) SetHandler(handler TimerHandler) {
	w.handler = handler
}

// Start begins consuming timer tasks.
func (w *TimerWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeClaimExpiry, w.handleClaimExpiry)
	w.mux.HandleFunc(TaskTypeSLAExpiry, w.handleSLAExpiry)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Infof("[TimerWorker] starting...")
		if err := w.server.Run(w.mux); err != nil {
			logger.Errorf("[TimerWorker] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the worker.
func (w *TimerWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	logger.Infof("[TimerWorker] shutting down...")
	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Infof("[TimerWorker] shutdown complete")
}

func (w *TimerWorker) handleClaimExpiry(ctx context.Context, t *asynq.Task) error {
	var task TimerTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		logger.Warnf("[TimerWorker] bad claim-expiry payload: %v", err)
		return err
	}
	if w.handler == nil {
		return nil
	}
	return w.handler.CheckClaimExpiry(ctx, task.RequestID, time.UnixMilli(task.ExpectedClaimedAt))
}

func (w *TimerWorker) handleSLAExpiry(ctx context.Context, t *asynq.Task) error {
	var task TimerTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		logger.Warnf("[TimerWorker] bad sla-expiry payload: %v", err)
		return err
	}
	if w.handler == nil {
		return nil
	}
	return w.handler.CheckSLAExpiry(ctx, task.RequestID)
}
