package services

import (
	"context"
	"errors"
	"time"

	"github.com/lingopair/backend/internal/clock"
	"github.com/lingopair/backend/internal/config"
	"github.com/lingopair/backend/internal/models"
	"github.com/lingopair/backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	// AgreementTolerance is the maximum per-dimension score delta for a
	// dispute review to count as agreeing with the original.
	AgreementTolerance = 1

	// DisputeRoundsRequired is how many independent dispute reviews settle a
	// flagged request.
	DisputeRoundsRequired = 2
)

// Escalation reasons, surfaced to the escalation dashboard verbatim.
const (
	ReasonSLAPending       = "SLA exceeded while pending"
	ReasonSLAClaimed       = "SLA exceeded while claimed"
	ReasonDisputeDisagreed = "Dispute reviewers did not agree with original review"
)

// Scores is one verifier's three-dimension judgment.
type Scores struct {
	SoundAccuracy    int `json:"sound_accuracy"`
	RhythmIntonation int `json:"rhythm_intonation"`
	PhraseAccuracy   int `json:"phrase_accuracy"`
}

// Valid reports whether every dimension is an integer in [1,5].
func (s Scores) Valid() bool {
	for _, v := range []int{s.SoundAccuracy, s.RhythmIntonation, s.PhraseAccuracy} {
		if v < 1 || v > 5 {
			return false
		}
	}
	return true
}

// DisputeEngine owns the agreement rule, the expiry sweeps and the deferred
// timer checks. It is the sole mutator of phase, dispute counters and the
// terminal transitions driven by dispute math.
type DisputeEngine struct {
	db  *gorm.DB
	clk clock.Clock
	cfg config.QueueConfig
}

func NewDisputeEngine(db *gorm.DB, clk clock.Clock, cfg config.QueueConfig) *DisputeEngine {
	return &DisputeEngine{db: db, clk: clk, cfg: cfg}
}

// Agrees applies the tolerance rule: every dimension delta must be at most
// AgreementTolerance in absolute value.
func Agrees(original, next Scores) bool {
	return absDelta(original.SoundAccuracy, next.SoundAccuracy) <= AgreementTolerance &&
		absDelta(original.RhythmIntonation, next.RhythmIntonation) <= AgreementTolerance &&
		absDelta(original.PhraseAccuracy, next.PhraseAccuracy) <= AgreementTolerance
}

func absDelta(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// reclaimExpiredClaims returns timed-out claims to pending with priority
// zero. Bounded scan; compensates for missed or cancelled timers. Runs
// inside the caller's transaction so sweep-before-select holds.
func (e *DisputeEngine) reclaimExpiredClaims(tx *gorm.DB, languageCode string, now time.Time) error {
	var expired []models.ReviewRequest
	q := forUpdate(tx).
		Where("status = ? AND claim_deadline_at <= ?", models.StatusClaimed, now)
	if languageCode != "" {
		q = q.Where("language_code = ?", languageCode)
	}
	if err := q.Order("claim_deadline_at asc").Limit(e.cfg.SweepLimit).Find(&expired).Error; err != nil {
		return err
	}

	for i := range expired {
		req := &expired[i]
		from := req.Status
		req.Status = models.StatusPending
		req.ClearClaim()
		req.PriorityAt = 0
		req.UpdatedAt = now
		if err := tx.Save(req).Error; err != nil {
			return err
		}
		recordEvent(tx, req, from, nil, "claim expired, reclaimed by sweep", now)
	}
	return nil
}

// escalateExpiredSLA escalates pending and claimed requests whose SLA
// deadline has passed. Bounded per status bucket. Runs before selection so
// breached work is never handed out.
func (e *DisputeEngine) escalateExpiredSLA(tx *gorm.DB, languageCode string, now time.Time) error {
	for _, status := range []models.RequestStatus{models.StatusPending, models.StatusClaimed} {
		var breached []models.ReviewRequest
		q := forUpdate(tx).
			Where("status = ? AND sla_due_at <= ?", status, now)
		if languageCode != "" {
			q = q.Where("language_code = ?", languageCode)
		}
		if err := q.Order("sla_due_at asc").Limit(e.cfg.SweepLimit).Find(&breached).Error; err != nil {
			return err
		}

		reason := ReasonSLAPending
		if status == models.StatusClaimed {
			reason = ReasonSLAClaimed
		}

		for i := range breached {
			req := &breached[i]
			from := req.Status
			req.Status = models.StatusEscalated
			req.EscalatedAt = &now
			req.EscalatedReason = reason
			req.ClearClaim()
			req.UpdatedAt = now
			if err := tx.Save(req).Error; err != nil {
				return err
			}
			recordEvent(tx, req, from, nil, reason, now)
			logger.Warn().
				Uint("request_id", req.ID).
				Str("language", req.LanguageCode).
				Str("reason", reason).
				Msg("review request escalated")
		}
	}
	return nil
}

// CheckClaimExpiry is the deferred check scheduled at claim time. It no-ops
// unless the same claim (matched by claimed-at) is still held and expired,
// so a timer racing a newer claim cannot release it.
func (e *DisputeEngine) CheckClaimExpiry(ctx context.Context, requestID uint, expectedClaimedAt time.Time) error {
	now := e.clk.Now()
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.ReviewRequest
		if err := forUpdate(tx).First(&req, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if req.Status != models.StatusClaimed {
			return nil
		}
		if req.ClaimedAt == nil || req.ClaimedAt.UnixMilli() != expectedClaimedAt.UnixMilli() {
			return nil
		}
		if !req.ClaimExpired(now) {
			return nil
		}

		from := req.Status
		req.Status = models.StatusPending
		req.ClearClaim()
		req.PriorityAt = 0
		req.UpdatedAt = now
		if err := tx.Save(&req).Error; err != nil {
			return err
		}
		recordEvent(tx, &req, from, nil, "claim expired, released by timer", now)
		return nil
	})
}

// CheckSLAExpiry is the deferred check scheduled once at request creation.
// No-ops if the request already left pending/claimed or the SLA has not in
// fact passed.
func (e *DisputeEngine) CheckSLAExpiry(ctx context.Context, requestID uint) error {
	now := e.clk.Now()
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.ReviewRequest
		if err := forUpdate(tx).First(&req, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if req.Status != models.StatusPending && req.Status != models.StatusClaimed {
			return nil
		}
		if now.Before(req.SLADueAt) {
			return nil
		}

		reason := ReasonSLAPending
		if req.Status == models.StatusClaimed {
			reason = ReasonSLAClaimed
		}

		from := req.Status
		req.Status = models.StatusEscalated
		req.EscalatedAt = &now
		req.EscalatedReason = reason
		req.ClearClaim()
		req.UpdatedAt = now
		if err := tx.Save(&req).Error; err != nil {
			return err
		}
		recordEvent(tx, &req, from, nil, reason, now)
		logger.Warn().
			Uint("request_id", req.ID).
			Str("reason", reason).
			Msg("review request escalated by timer")
		return nil
	})
}
