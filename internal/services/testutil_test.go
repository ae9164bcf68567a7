package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lingopair/backend/internal/clock"
	"github.com/lingopair/backend/internal/config"
	"github.com/lingopair/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// recordingScheduler captures timer registrations so tests can assert what
// was scheduled without running real timers.
type recordingScheduler struct {
	claimExpiries []uint
	slaExpiries   []uint
}

func (r *recordingScheduler) ScheduleClaimExpiry(requestID uint, claimedAt, at time.Time) error {
	r.claimExpiries = append(r.claimExpiries, requestID)
	return nil
}

func (r *recordingScheduler) ScheduleSLAExpiry(requestID uint, at time.Time) error {
	r.slaExpiries = append(r.slaExpiries, requestID)
	return nil
}

func (r *recordingScheduler) Close() error { return nil }

type queueEnv struct {
	db     *gorm.DB
	clk    *clock.Fixed
	cfg    config.QueueConfig
	sched  *recordingScheduler
	engine *DisputeEngine
	queue  *QueueService
	submit *SubmissionService
	audio  *AudioService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	// A second connection would see a different :memory: database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.VerifierProfile{},
		&models.VerifierLanguageMembership{},
		&models.Phrase{},
		&models.Attempt{},
		&models.AudioAsset{},
		&models.AIFeedback{},
		&models.ReviewRequest{},
		&models.Review{},
		&models.ReviewFlag{},
		&models.AICalibration{},
		&models.QueueEvent{},
	); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	return db
}

func newQueueEnv(t *testing.T) *queueEnv {
	t.Helper()

	db := newTestDB(t)
	clk := &clock.Fixed{Current: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
	cfg := config.QueueConfig{
		ClaimTimeout: 5 * time.Minute,
		SLAWindow:    24 * time.Hour,
		SweepLimit:   25,
	}

	sched := &recordingScheduler{}
	engine := NewDisputeEngine(db, clk, cfg)
	audio := NewAudioService(db, config.StorageConfig{BaseURL: "https://audio.test"}, clk)
	calibration := NewCalibrationService(db)
	queue := NewQueueService(db, clk, cfg, engine, sched, audio, nil)
	submit := NewSubmissionService(db, clk, cfg, audio, calibration, nil)

	return &queueEnv{
		db:     db,
		clk:    clk,
		cfg:    cfg,
		sched:  sched,
		engine: engine,
		queue:  queue,
		submit: submit,
		audio:  audio,
	}
}

// seedVerifier creates a verifier user with an active profile and active
// memberships for the given languages.
func (e *queueEnv) seedVerifier(t *testing.T, name string, langs ...string) uint {
	t.Helper()

	user := models.User{
		Username: name,
		Role:     models.RoleVerifier,
		AuthType: "local",
		IsActive: true,
	}
	if err := e.db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create verifier user: %v", err)
	}

	profile := models.VerifierProfile{UserID: user.ID, FirstName: name, Active: true}
	if err := e.db.Create(&profile).Error; err != nil {
		t.Fatalf("failed to create verifier profile: %v", err)
	}

	for _, lang := range langs {
		m := models.VerifierLanguageMembership{UserID: user.ID, LanguageCode: lang, Active: true}
		if err := e.db.Create(&m).Error; err != nil {
			t.Fatalf("failed to create membership: %v", err)
		}
	}
	return user.ID
}

// seedAttempt creates a learner, phrase and attempt for one language and
// returns the attempt and learner IDs.
func (e *queueEnv) seedAttempt(t *testing.T, lang string) (attemptID, learnerID uint) {
	t.Helper()

	learner := models.User{
		Username: fmt.Sprintf("learner-%d", time.Now().UnixNano()),
		Role:     models.RoleLearner,
		AuthType: "local",
		IsActive: true,
	}
	if err := e.db.Create(&learner).Error; err != nil {
		t.Fatalf("failed to create learner: %v", err)
	}

	phrase := models.Phrase{English: "good morning", Translation: "buenos dias", LanguageCode: lang}
	if err := e.db.Create(&phrase).Error; err != nil {
		t.Fatalf("failed to create phrase: %v", err)
	}

	asset := models.AudioAsset{UserID: learner.ID, StorageKey: fmt.Sprintf("key-%d-%d", learner.ID, phrase.ID)}
	if err := e.db.Create(&asset).Error; err != nil {
		t.Fatalf("failed to create audio asset: %v", err)
	}

	attempt := models.Attempt{
		LearnerUserID: learner.ID,
		PhraseID:      phrase.ID,
		AudioAssetID:  &asset.ID,
		CreatedAt:     e.clk.Now(),
	}
	if err := e.db.Create(&attempt).Error; err != nil {
		t.Fatalf("failed to create attempt: %v", err)
	}
	return attempt.ID, learner.ID
}

// seedExemplar creates an audio asset owned by the verifier, as required for
// review submission.
func (e *queueEnv) seedExemplar(t *testing.T, verifierID uint) uint {
	t.Helper()

	asset := models.AudioAsset{UserID: verifierID, StorageKey: fmt.Sprintf("exemplar-%d-%d", verifierID, time.Now().UnixNano())}
	if err := e.db.Create(&asset).Error; err != nil {
		t.Fatalf("failed to create exemplar asset: %v", err)
	}
	return asset.ID
}

// admit pushes an attempt into the queue on behalf of its learner and
// returns the request ID.
func (e *queueEnv) admit(t *testing.T, attemptID uint) uint {
	t.Helper()

	var attempt models.Attempt
	if err := e.db.First(&attempt, attemptID).Error; err != nil {
		t.Fatalf("failed to load attempt %d: %v", attemptID, err)
	}
	requestID, err := e.queue.AdmitForReview(context.Background(), attempt.LearnerUserID, attemptID)
	if err != nil {
		t.Fatalf("AdmitForReview failed: %v", err)
	}
	return requestID
}

// claim claims the next request for lang and fails the test when the queue
// is empty.
func (e *queueEnv) claim(t *testing.T, verifierID uint, lang string) *AssignmentView {
	t.Helper()

	assignment, err := e.queue.ClaimNext(context.Background(), verifierID, lang)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if assignment == nil {
		t.Fatal("ClaimNext returned no assignment")
	}
	return assignment
}

// submitScores submits a review on behalf of the verifier with fresh
// exemplar audio.
func (e *queueEnv) submitScores(t *testing.T, verifierID, requestID uint, scores Scores) *SubmitOutcome {
	t.Helper()

	outcome, err := e.submit.SubmitReview(context.Background(), verifierID, requestID, SubmitInput{
		Scores:               scores,
		ExemplarAudioAssetID: e.seedExemplar(t, verifierID),
	})
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	return outcome
}

// sweep runs one expiry pass over all languages, like the cron sweeper.
func (e *queueEnv) sweep(t *testing.T) {
	t.Helper()

	now := e.clk.Now()
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := e.engine.reclaimExpiredClaims(tx, "", now); err != nil {
			return err
		}
		return e.engine.escalateExpiredSLA(tx, "", now)
	})
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
}

func (e *queueEnv) request(t *testing.T, requestID uint) *models.ReviewRequest {
	t.Helper()

	var req models.ReviewRequest
	if err := e.db.First(&req, requestID).Error; err != nil {
		t.Fatalf("failed to load request %d: %v", requestID, err)
	}
	return &req
}
