package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lingopair/backend/internal/clock"
	"github.com/lingopair/backend/internal/config"
	"github.com/lingopair/backend/internal/languages"
	"github.com/lingopair/backend/internal/models"
	"github.com/lingopair/backend/pkg/logger"
	"gorm.io/gorm"
)

// candidateScanLimit bounds how many pending requests the selection step
// inspects per ClaimNext call. Dispute-phase conflicts can force skipping,
// so the scan looks a little past the head of the queue.
const candidateScanLimit = 20

// QueueService is the claim manager: it admits attempts into the queue,
// hands out exclusive time-boxed claims and releases them. Claim fields on
// ReviewRequest are mutated here and nowhere else.
type QueueService struct {
	db        *gorm.DB
	clk       clock.Clock
	cfg       config.QueueConfig
	engine    *DisputeEngine
	scheduler ReviewScheduler
	audio     *AudioService
	notifier  Notifier
}

func NewQueueService(
	db *gorm.DB,
	clk clock.Clock,
	cfg config.QueueConfig,
	engine *DisputeEngine,
	scheduler ReviewScheduler,
	audio *AudioService,
	notifier Notifier,
) *QueueService {
	return &QueueService{
		db:        db,
		clk:       clk,
		cfg:       cfg,
		engine:    engine,
		scheduler: scheduler,
		audio:     audio,
		notifier:  notifier,
	}
}

// AdmitForReview creates the pending ReviewRequest for an attempt whose
// audio is attached and whose learner qualifies for human review. Only the
// attempt's own learner may admit it. Idempotent per attempt; this is the
// sole creation path for requests.
func (s *QueueService) AdmitForReview(ctx context.Context, learnerUserID, attemptID uint) (uint, error) {
	now := s.clk.Now()
	var requestID uint
	var languageCode string
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ReviewRequest
		err := tx.Where("attempt_id = ?", attemptID).First(&existing).Error
		if err == nil {
			if existing.LearnerUserID != learnerUserID {
				return ErrNotAuthorized
			}
			requestID = existing.ID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var attempt models.Attempt
		if err := tx.First(&attempt, attemptID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if attempt.LearnerUserID != learnerUserID {
			return ErrNotAuthorized
		}

		var phrase models.Phrase
		if err := tx.First(&phrase, attempt.PhraseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("phrase not found for attempt %d", attemptID)
			}
			return err
		}

		lang := languages.Normalize(phrase.LanguageCode)
		if lang == nil {
			return ErrUnsupportedLanguage
		}

		req := models.ReviewRequest{
			AttemptID:     attemptID,
			PhraseID:      phrase.ID,
			LearnerUserID: attempt.LearnerUserID,
			LanguageCode:  lang.BCP47,
			Phase:         models.PhaseInitial,
			Status:        models.StatusPending,
			PriorityAt:    now.UnixMilli(),
			SLADueAt:      now.Add(s.cfg.SLAWindow),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&req).Error; err != nil {
			return err
		}

		recordEvent(tx, &req, "", nil, "admitted for human review", now)
		requestID = req.ID
		languageCode = req.LanguageCode
		created = true
		return nil
	})
	if err != nil {
		return 0, err
	}

	if created {
		if err := s.scheduler.ScheduleSLAExpiry(requestID, now.Add(s.cfg.SLAWindow)); err != nil {
			// The sweeps still enforce the SLA; losing the timer only delays it.
			logger.Warnf("[Queue] failed to schedule SLA timer for request %d: %v", requestID, err)
		}
		if s.notifier != nil {
			s.notifier.NewWorkAvailable(languageCode)
		}
	}

	return requestID, nil
}

// ClaimNext assigns the oldest eligible pending request for the language to
// the calling verifier. Returns (nil, nil) when no work is available.
//
// Order of operations inside one transaction: expired-claim sweep, SLA
// sweep, idempotent re-claim, stale-claim release, then selection. The
// sweeps run first so breached or abandoned work is never handed out.
func (s *QueueService) ClaimNext(ctx context.Context, verifierUserID uint, languageCode string) (*AssignmentView, error) {
	lang := languages.Normalize(languageCode)
	if lang == nil {
		return nil, ErrUnsupportedLanguage
	}
	now := s.clk.Now()

	var view *AssignmentView
	var claimedID uint

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := assertLanguageAccess(tx, verifierUserID, lang.BCP47); err != nil {
			return err
		}

		if err := s.engine.reclaimExpiredClaims(tx, lang.BCP47, now); err != nil {
			return err
		}
		if err := s.engine.escalateExpiredSLA(tx, lang.BCP47, now); err != nil {
			return err
		}

		// Idempotent re-claim: an unexpired claim already held by the caller
		// is returned as-is rather than claiming a second request.
		var mine []models.ReviewRequest
		if err := forUpdate(tx).
			Where("claimed_by_verifier_user_id = ? AND status = ? AND language_code = ?",
				verifierUserID, models.StatusClaimed, lang.BCP47).
			Find(&mine).Error; err != nil {
			return err
		}

		for i := range mine {
			if !mine[i].ClaimExpired(now) {
				v, err := s.buildAssignment(tx, &mine[i], now)
				if err != nil {
					return err
				}
				view = v
				return nil
			}
		}

		// Stale claims held by the caller (rare after the sweep, but the
		// sweep is bounded): release them all before taking new work.
		for i := range mine {
			req := &mine[i]
			from := req.Status
			req.Status = models.StatusPending
			req.ClearClaim()
			req.PriorityAt = 0
			req.UpdatedAt = now
			if err := tx.Save(req).Error; err != nil {
				return err
			}
			recordEvent(tx, req, from, &verifierUserID, "stale claim released", now)
		}

		next, err := s.selectCandidate(tx, verifierUserID, lang.BCP47)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		deadline := now.Add(s.cfg.ClaimTimeout)
		from := next.Status
		next.Status = models.StatusClaimed
		next.ClaimedByVerifierUserID = &verifierUserID
		next.ClaimedAt = &now
		next.ClaimDeadlineAt = &deadline
		next.UpdatedAt = now
		if err := tx.Save(next).Error; err != nil {
			return err
		}
		recordEvent(tx, next, from, &verifierUserID, "claimed", now)

		claimedID = next.ID
		v, err := s.buildAssignment(tx, next, now)
		if err != nil {
			return err
		}
		view = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	if claimedID != 0 {
		if err := s.scheduler.ScheduleClaimExpiry(claimedID, now, now.Add(s.cfg.ClaimTimeout)); err != nil {
			logger.Warnf("[Queue] failed to schedule claim-expiry timer for request %d: %v", claimedID, err)
		}
	}

	return view, nil
}

// selectCandidate scans pending requests in priority order and returns the
// first one the verifier may take. Initial-phase work is always eligible;
// dispute-phase work is skipped when the caller already reviewed it.
func (s *QueueService) selectCandidate(tx *gorm.DB, verifierUserID uint, languageCode string) (*models.ReviewRequest, error) {
	var pending []models.ReviewRequest
	if err := forUpdate(tx).
		Where("language_code = ? AND status = ?", languageCode, models.StatusPending).
		Order("priority_at asc, id asc").
		Limit(candidateScanLimit).
		Find(&pending).Error; err != nil {
		return nil, err
	}

	for i := range pending {
		candidate := &pending[i]
		if candidate.Phase != models.PhaseDispute {
			return candidate, nil
		}

		var count int64
		if err := tx.Model(&models.Review{}).
			Where("request_id = ? AND verifier_user_id = ?", candidate.ID, verifierUserID).
			Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return nil, nil
}

// ReleaseClaim returns a claim to the queue. Only the current holder may
// release; released work re-enters pending at priority zero so it is picked
// up before new arrivals.
func (s *QueueService) ReleaseClaim(ctx context.Context, verifierUserID, requestID uint) error {
	now := s.clk.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.ReviewRequest
		if err := forUpdate(tx).First(&req, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if !req.HeldBy(verifierUserID) {
			return ErrNotClaimHolder
		}

		from := req.Status
		req.Status = models.StatusPending
		req.ClearClaim()
		req.PriorityAt = 0
		req.UpdatedAt = now
		if err := tx.Save(&req).Error; err != nil {
			return err
		}
		recordEvent(tx, &req, from, &verifierUserID, "released by verifier", now)
		return nil
	})
}

// CurrentClaim returns the caller's active claim, optionally filtered by
// language, or nil when none is held.
func (s *QueueService) CurrentClaim(ctx context.Context, verifierUserID uint, languageCode string) (*AssignmentView, error) {
	now := s.clk.Now()
	db := s.db.WithContext(ctx)

	q := db.Where("claimed_by_verifier_user_id = ? AND status = ?", verifierUserID, models.StatusClaimed)
	if languageCode != "" {
		lang := languages.Normalize(languageCode)
		if lang == nil {
			return nil, ErrUnsupportedLanguage
		}
		q = q.Where("language_code = ?", lang.BCP47)
	}

	var claimed []models.ReviewRequest
	if err := q.Find(&claimed).Error; err != nil {
		return nil, err
	}

	for i := range claimed {
		if !claimed[i].ClaimExpired(now) {
			return s.buildAssignment(db, &claimed[i], now)
		}
	}
	return nil, nil
}

// QueueSignal summarizes pending work for a language.
type QueueSignal struct {
	LanguageCode    string `json:"language_code"`
	PendingCount    int    `json:"pending_count"`
	OldestPendingID *uint  `json:"oldest_pending_id"`
}

// Signal reports how much pending work a language has (bounded count).
func (s *QueueService) Signal(ctx context.Context, verifierUserID uint, languageCode string) (*QueueSignal, error) {
	lang := languages.Normalize(languageCode)
	if lang == nil {
		return nil, ErrUnsupportedLanguage
	}

	db := s.db.WithContext(ctx)
	if err := assertLanguageAccess(db, verifierUserID, lang.BCP47); err != nil {
		return nil, err
	}

	var pending []models.ReviewRequest
	if err := db.
		Where("language_code = ? AND status = ?", lang.BCP47, models.StatusPending).
		Order("priority_at asc, id asc").
		Limit(s.cfg.SweepLimit).
		Find(&pending).Error; err != nil {
		return nil, err
	}

	signal := &QueueSignal{LanguageCode: lang.BCP47, PendingCount: len(pending)}
	if len(pending) > 0 {
		signal.OldestPendingID = &pending[0].ID
	}
	return signal, nil
}

// PendingItem is one row of the pending-work listing.
type PendingItem struct {
	RequestID  uint               `json:"request_id"`
	AttemptID  uint               `json:"attempt_id"`
	PhraseID   uint               `json:"phrase_id"`
	Phase      models.ReviewPhase `json:"phase"`
	PriorityAt int64              `json:"priority_at"`
	SLADueAt   time.Time          `json:"sla_due_at"`
	CreatedAt  time.Time          `json:"created_at"`
	Phrase     *PhraseView        `json:"phrase"`
}

// ListPending returns up to 50 pending requests for a language in queue
// order, with phrase text for display.
func (s *QueueService) ListPending(ctx context.Context, verifierUserID uint, languageCode string) ([]PendingItem, error) {
	lang := languages.Normalize(languageCode)
	if lang == nil {
		return nil, ErrUnsupportedLanguage
	}

	db := s.db.WithContext(ctx)
	if err := assertLanguageAccess(db, verifierUserID, lang.BCP47); err != nil {
		return nil, err
	}

	var pending []models.ReviewRequest
	if err := db.
		Where("language_code = ? AND status = ?", lang.BCP47, models.StatusPending).
		Order("priority_at asc, id asc").
		Limit(50).
		Find(&pending).Error; err != nil {
		return nil, err
	}

	items := make([]PendingItem, 0, len(pending))
	for _, req := range pending {
		item := PendingItem{
			RequestID:  req.ID,
			AttemptID:  req.AttemptID,
			PhraseID:   req.PhraseID,
			Phase:      req.Phase,
			PriorityAt: req.PriorityAt,
			SLADueAt:   req.SLADueAt,
			CreatedAt:  req.CreatedAt,
		}
		var phrase models.Phrase
		if err := db.First(&phrase, req.PhraseID).Error; err == nil {
			item.Phrase = &PhraseView{English: phrase.English, Translation: phrase.Translation}
		}
		items = append(items, item)
	}
	return items, nil
}

// EscalatedItem is one row of the escalation dashboard.
type EscalatedItem struct {
	RequestID       uint               `json:"request_id"`
	AttemptID       uint               `json:"attempt_id"`
	Phase           models.ReviewPhase `json:"phase"`
	LanguageCode    string             `json:"language_code"`
	EscalatedAt     *time.Time         `json:"escalated_at"`
	EscalatedReason string             `json:"escalated_reason"`
}

// ListEscalated returns escalated requests, optionally filtered by
// language. Requires an active verifier profile.
func (s *QueueService) ListEscalated(ctx context.Context, verifierUserID uint, languageCode string) ([]EscalatedItem, error) {
	db := s.db.WithContext(ctx)

	var profile models.VerifierProfile
	if err := db.Where("user_id = ?", verifierUserID).First(&profile).Error; err != nil || !profile.Active {
		return nil, ErrNotAuthorized
	}

	q := db.Where("status = ?", models.StatusEscalated)
	if languageCode != "" {
		lang := languages.Normalize(languageCode)
		if lang == nil {
			return nil, ErrUnsupportedLanguage
		}
		q = q.Where("language_code = ?", lang.BCP47)
	}

	var escalated []models.ReviewRequest
	if err := q.Order("escalated_at asc").Find(&escalated).Error; err != nil {
		return nil, err
	}

	items := make([]EscalatedItem, 0, len(escalated))
	for _, req := range escalated {
		reason := req.EscalatedReason
		if reason == "" {
			reason = "Escalated"
		}
		items = append(items, EscalatedItem{
			RequestID:       req.ID,
			AttemptID:       req.AttemptID,
			Phase:           req.Phase,
			LanguageCode:    req.LanguageCode,
			EscalatedAt:     req.EscalatedAt,
			EscalatedReason: reason,
		})
	}
	return items, nil
}
