package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/lingopair/backend/internal/config"
	"github.com/lingopair/backend/pkg/logger"
)

const (
	TaskTypeClaimExpiry = "review:claim_expiry"
	TaskTypeSLAExpiry   = "review:sla_expiry"
)

// TimerTask is the payload for both deferred check kinds. ExpectedClaimedAt
// (unix milliseconds) lets the claim-expiry check detect a superseding claim
// and no-op instead of releasing it.
type TimerTask struct {
	RequestID         uint  `json:"request_id"`
	ExpectedClaimedAt int64 `json:"expected_claimed_at,omitempty"`
}

// TimerHandler executes the deferred checks. Implemented by the dispute
// engine; both checks are idempotent, so redundant delivery is harmless.
type TimerHandler interface {
	CheckClaimExpiry(ctx context.Context, requestID uint, expectedClaimedAt time.Time) error
	CheckSLAExpiry(ctx context.Context, requestID uint) error
}

// ReviewScheduler schedules a one-shot callback at an absolute deadline.
// The durable implementation survives restarts; the sweeps in ClaimNext
// provide the same guarantees either way, so the timer is an optimization,
// not the sole correctness mechanism.
type ReviewScheduler interface {
	ScheduleClaimExpiry(requestID uint, claimedAt, at time.Time) error
	ScheduleSLAExpiry(requestID uint, at time.Time) error
	Close() error
}

// Global scheduler instance
var (
	globalScheduler ReviewScheduler
	schedulerOnce   sync.Once
)

// InitScheduler initializes the global review scheduler based on config.
// With Redis enabled timers are durable asynq tasks; otherwise they are
// in-process and lost on restart (the sweeps recover).
func InitScheduler(cfg *config.Config, handler TimerHandler) ReviewScheduler {
	schedulerOnce.Do(func() {
		if cfg.Redis.Enabled {
			sched, err := NewAsynqScheduler(&cfg.Redis)
			if err != nil {
				logger.Warnf("[Scheduler] Redis unavailable, falling back to in-process timers: %v", err)
				globalScheduler = NewLocalScheduler(handler)
			} else {
				logger.Infof("[Scheduler] Durable timers via Redis at %s", cfg.Redis.Addr)
				globalScheduler = sched
			}
		} else {
			logger.Infof("[Scheduler] In-process timers (Redis disabled)")
			globalScheduler = NewLocalScheduler(handler)
		}
	})
	return globalScheduler
}

// GetScheduler returns the global scheduler instance.
func GetScheduler() ReviewScheduler {
	return globalScheduler
}

// AsynqScheduler enqueues timer tasks with an absolute process-at time.
type AsynqScheduler struct {
	client *asynq.Client
}

func NewAsynqScheduler(cfg *config.RedisConfig) (*AsynqScheduler, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	// Verify the connection before trusting it with timers.
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsynqScheduler{client: client}, nil
}

func (s *AsynqScheduler) enqueue(taskType string, payload TimerTask, taskID string, at time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	info, err := s.client.Enqueue(asynq.NewTask(taskType, data),
		asynq.Queue("timers"),
		asynq.TaskID(taskID),
		asynq.ProcessAt(at),
		asynq.MaxRetry(5),
	)
	if err != nil {
		// A duplicate task ID means this exact timer is already scheduled.
		if err == asynq.ErrTaskIDConflict {
			return nil
		}
		return err
	}

	logger.Debug().
		Str("task", taskType).
		Uint("request_id", payload.RequestID).
		Time("at", at).
		Str("id", info.ID).
		Msg("timer scheduled")
	return nil
}

func (s *AsynqScheduler) ScheduleClaimExpiry(requestID uint, claimedAt, at time.Time) error {
	id := fmt.Sprintf("claim-expiry:%d:%d", requestID, claimedAt.UnixMilli())
	return s.enqueue(TaskTypeClaimExpiry, TimerTask{
		RequestID:         requestID,
		ExpectedClaimedAt: claimedAt.UnixMilli(),
	}, id, at)
}

func (s *AsynqScheduler) ScheduleSLAExpiry(requestID uint, at time.Time) error {
	id := fmt.Sprintf("sla-expiry:%d", requestID)
	return s.enqueue(TaskTypeSLAExpiry, TimerTask{RequestID: requestID}, id, at)
}

func (s *AsynqScheduler) Close() error {
	return s.client.Close()
}

// LocalScheduler runs timers with time.AfterFunc in the current process.
// Not durable: a restart loses pending timers and the ClaimNext sweeps pick
// up the slack.
type LocalScheduler struct {
	handler TimerHandler

	mu     sync.Mutex
	timers []*time.Timer
	closed bool
}

func NewLocalScheduler(handler TimerHandler) *LocalScheduler {
	return &LocalScheduler{handler: handler}
}

// SetHandler replaces the timer handler. Used when the dispute engine is
// constructed after the scheduler.
func (s *LocalScheduler) SetHandler(handler TimerHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *LocalScheduler) after(at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.timers = append(s.timers, time.AfterFunc(delay, fn))
}

func (s *LocalScheduler) ScheduleClaimExpiry(requestID uint, claimedAt, at time.Time) error {
	s.after(at, func() {
		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h == nil {
			return
		}
		if err := h.CheckClaimExpiry(context.Background(), requestID, claimedAt); err != nil {
			logger.Warnf("[Scheduler] claim expiry check failed for request %d: %v", requestID, err)
		}
	})
	return nil
}

func (s *LocalScheduler) ScheduleSLAExpiry(requestID uint, at time.Time) error {
	s.after(at, func() {
		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h == nil {
			return
		}
		if err := h.CheckSLAExpiry(context.Background(), requestID); err != nil {
			logger.Warnf("[Scheduler] SLA expiry check failed for request %d: %v", requestID, err)
		}
	})
	return nil
}

func (s *LocalScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	return nil
}
