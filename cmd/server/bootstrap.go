package main

import (
	"github.com/lingopair/backend/internal/clock"
	"github.com/lingopair/backend/internal/config"
	"github.com/lingopair/backend/internal/handlers"
	"github.com/lingopair/backend/internal/models"
	"github.com/lingopair/backend/internal/services"
	"github.com/lingopair/backend/internal/utils"
	"github.com/lingopair/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	scheduler   services.ReviewScheduler
	timerWorker *services.TimerWorker
	sweeper     *services.Sweeper

	authHandler        *handlers.AuthHandler
	queueHandler       *handlers.QueueHandler
	learnerHandler     *handlers.LearnerHandler
	verifierHandler    *handlers.VerifierHandler
	calibrationHandler *handlers.CalibrationHandler
	auditHandler       *handlers.AuditHandler
	healthHandler      *handlers.HealthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	db := models.GetDB()
	clk := clock.System()

	engine := services.NewDisputeEngine(db, clk, cfg.Queue)

	// Timer backend: asynq over Redis when enabled, in-process timers
	// otherwise. The sweeps cover any timer the local fallback loses.
	scheduler := services.InitScheduler(cfg, engine)

	var timerWorker *services.TimerWorker
	if cfg.Redis.Enabled {
		timerWorker = services.NewTimerWorker(&cfg.Redis)
		timerWorker.SetHandler(engine)
		if err := timerWorker.Start(); err != nil {
			logger.Fatalf("Failed to start timer worker: %v", err)
		}
	}

	sweeper := services.NewSweeper(db, clk, engine, cfg.Queue)
	if err := sweeper.Start(); err != nil {
		logger.Fatalf("Failed to start sweeper: %v", err)
	}

	audio := services.NewAudioService(db, cfg.Storage, clk)
	notifier := services.NewWebhookNotifier(cfg.Notify)
	calibration := services.NewCalibrationService(db)
	queue := services.NewQueueService(db, clk, cfg.Queue, engine, scheduler, audio, notifier)
	submit := services.NewSubmissionService(db, clk, cfg.Queue, audio, calibration, notifier)
	verifier := services.NewVerifierService(db, clk)
	audit := services.NewAuditService(db)

	authHandler := handlers.NewAuthHandler(db, cfg)
	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		scheduler:   scheduler,
		timerWorker: timerWorker,
		sweeper:     sweeper,

		authHandler:        authHandler,
		queueHandler:       handlers.NewQueueHandler(queue, submit),
		learnerHandler:     handlers.NewLearnerHandler(queue, submit, audio),
		verifierHandler:    handlers.NewVerifierHandler(verifier),
		calibrationHandler: handlers.NewCalibrationHandler(calibration),
		auditHandler:       handlers.NewAuditHandler(audit),
		healthHandler:      handlers.NewHealthHandler(),
	}
}

// shutdown gracefully stops all background services.
func (s *appServices) shutdown() {
	s.sweeper.Stop()
	if s.timerWorker != nil {
		s.timerWorker.Stop()
	}
	if s.scheduler != nil {
		if err := s.scheduler.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close scheduler")
		}
	}
	logger.Info().Msg("All background services stopped")
}
