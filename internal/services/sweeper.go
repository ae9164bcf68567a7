package services

import (
	"github.com/lingopair/backend/internal/clock"
	"github.com/lingopair/backend/internal/config"
	"github.com/lingopair/backend/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Sweeper periodically runs the expiry sweeps across all languages so claim
// timeouts and SLA breaches are enforced even when no verifier is polling
// and no timer fires.
type Sweeper struct {
	db     *gorm.DB
	clk    clock.Clock
	engine *DisputeEngine
	spec   string
	cron   *cron.Cron
}

func NewSweeper(db *gorm.DB, clk clock.Clock, engine *DisputeEngine, cfg config.QueueConfig) *Sweeper {
	return &Sweeper{
		db:     db,
		clk:    clk,
		engine: engine,
		spec:   cfg.SweepInterval,
	}
}

// Start registers the sweep job and starts the cron runner.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()
	logger.Infof("[Sweeper] started, interval %s", s.spec)
	return nil
}

// Stop halts the cron runner. Safe to call before Start.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logger.Info().Msg("[Sweeper] stopped")
	}
}

// RunOnce executes one sweep pass over every language. Exported so the
// runner and tests share the same entry point.
func (s *Sweeper) RunOnce() {
	now := s.clk.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.engine.reclaimExpiredClaims(tx, "", now); err != nil {
			return err
		}
		return s.engine.escalateExpiredSLA(tx, "", now)
	})
	if err != nil {
		logger.Errorf("[Sweeper] sweep failed: %v", err)
	}
}
