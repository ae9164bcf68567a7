package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/lingopair/backend/internal/clock"
	"github.com/lingopair/backend/internal/config"
	"github.com/lingopair/backend/internal/models"
	"github.com/lingopair/backend/pkg/logger"
	"gorm.io/gorm"
)

// SubmitInput is everything a verifier sends when scoring an attempt.
type SubmitInput struct {
	Scores               Scores `json:"scores"`
	AIAnalysisCorrect    *bool  `json:"ai_analysis_correct"`
	ExemplarAudioAssetID uint   `json:"exemplar_audio_asset_id"`
}

// SubmitOutcome tells the verifier what their submission did to the request.
type SubmitOutcome struct {
	RequestID uint                 `json:"request_id"`
	ReviewID  uint                 `json:"review_id"`
	Status    models.RequestStatus `json:"status"`
	Phase     models.ReviewPhase   `json:"phase"`

	// Dispute-phase fields, zero otherwise.
	AgreesWithOriginal *bool `json:"agrees_with_original,omitempty"`
	RoundsCompleted    int   `json:"rounds_completed,omitempty"`
	RoundsRequired     int   `json:"rounds_required,omitempty"`
}

// SubmissionService accepts verifier reviews and learner flags, and serves
// the learner-facing read side of completed reviews.
type SubmissionService struct {
	db          *gorm.DB
	clk         clock.Clock
	cfg         config.QueueConfig
	audio       *AudioService
	calibration *CalibrationService
	notifier    Notifier
}

func NewSubmissionService(
	db *gorm.DB,
	clk clock.Clock,
	cfg config.QueueConfig,
	audio *AudioService,
	calibration *CalibrationService,
	notifier Notifier,
) *SubmissionService {
	return &SubmissionService{
		db:          db,
		clk:         clk,
		cfg:         cfg,
		audio:       audio,
		calibration: calibration,
		notifier:    notifier,
	}
}

// SubmitReview records the caller's scores for a claimed request and applies
// the resulting transition: initial-phase submissions complete the request,
// dispute-phase submissions advance the agreement protocol and may resolve
// or escalate it.
//
// Submitting on an expired claim returns the request to the queue and fails
// with ErrClaimExpired so late work is never silently accepted.
func (s *SubmissionService) SubmitReview(ctx context.Context, verifierUserID, requestID uint, input SubmitInput) (*SubmitOutcome, error) {
	now := s.clk.Now()
	var outcome *SubmitOutcome
	expired := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
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

		if req.ClaimExpired(now) {
			// Returning an error here would roll the release back. Flag it
			// and surface ErrClaimExpired after the transaction commits.
			expired = true
			from := req.Status
			req.Status = models.StatusPending
			req.ClearClaim()
			req.PriorityAt = 0
			req.UpdatedAt = now
			if err := tx.Save(&req).Error; err != nil {
				return err
			}
			recordEvent(tx, &req, from, &verifierUserID, "claim expired at submission", now)
			return nil
		}

		if !input.Scores.Valid() {
			return ErrInvalidScore
		}

		if _, err := s.audio.OwnedAsset(tx, input.ExemplarAudioAssetID, verifierUserID); err != nil {
			return err
		}

		firstName, avatarURL := profileSnapshot(tx, verifierUserID)

		review := models.Review{
			RequestID:            req.ID,
			AttemptID:            req.AttemptID,
			LearnerUserID:        req.LearnerUserID,
			VerifierUserID:       verifierUserID,
			SoundAccuracy:        input.Scores.SoundAccuracy,
			RhythmIntonation:     input.Scores.RhythmIntonation,
			PhraseAccuracy:       input.Scores.PhraseAccuracy,
			AIAnalysisCorrect:    input.AIAnalysisCorrect,
			ExemplarAudioAssetID: input.ExemplarAudioAssetID,
			VerifierFirstName:    firstName,
			VerifierAvatarURL:    avatarURL,
			CreatedAt:            now,
		}

		var err error
		switch req.Phase {
		case models.PhaseDispute:
			outcome, err = s.submitDispute(tx, &req, &review, verifierUserID, now)
		default:
			outcome, err = s.submitInitial(tx, &req, &review, verifierUserID, now)
		}
		if err != nil {
			return err
		}

		s.recordCalibration(tx, &req, input.Scores, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrClaimExpired
	}
	return outcome, nil
}

// priorReviewExists reports whether the verifier already has a review row
// for this request. Backed by the unique (request_id, verifier_user_id)
// index either way.
func priorReviewExists(tx *gorm.DB, requestID, verifierUserID uint) (bool, error) {
	var count int64
	err := tx.Model(&models.Review{}).
		Where("request_id = ? AND verifier_user_id = ?", requestID, verifierUserID).
		Count(&count).Error
	return count > 0, err
}

// submitInitial completes the first-pass review.
func (s *SubmissionService) submitInitial(tx *gorm.DB, req *models.ReviewRequest, review *models.Review, verifierUserID uint, now time.Time) (*SubmitOutcome, error) {
	if dup, err := priorReviewExists(tx, req.ID, verifierUserID); err != nil {
		return nil, err
	} else if dup {
		return nil, ErrDuplicateReview
	}

	review.Kind = models.ReviewKindInitial
	review.Sequence = 1
	if err := tx.Create(review).Error; err != nil {
		return nil, err
	}

	from := req.Status
	req.Status = models.StatusCompleted
	req.InitialReviewID = &review.ID
	req.ResolvedAt = &now
	req.ClearClaim()
	req.UpdatedAt = now
	if err := tx.Save(req).Error; err != nil {
		return nil, err
	}
	recordEvent(tx, req, from, &verifierUserID, "initial review submitted", now)

	return &SubmitOutcome{
		RequestID: req.ID,
		ReviewID:  review.ID,
		Status:    req.Status,
		Phase:     req.Phase,
	}, nil
}

// submitDispute records one dispute round and, once DisputeRoundsRequired
// rounds exist, settles the flag: unanimous agreement resolves the request,
// anything else escalates it.
func (s *SubmissionService) submitDispute(tx *gorm.DB, req *models.ReviewRequest, review *models.Review, verifierUserID uint, now time.Time) (*SubmitOutcome, error) {
	if req.InitialReviewID == nil {
		return nil, ErrMissingInitialReview
	}

	var initial models.Review
	if err := tx.First(&initial, *req.InitialReviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMissingInitialReview
		}
		return nil, err
	}

	// Checked before the duplicate guard; the initial review row would
	// otherwise shadow this as ErrDuplicateReview.
	if initial.VerifierUserID == verifierUserID {
		return nil, ErrSelfDispute
	}

	if dup, err := priorReviewExists(tx, req.ID, verifierUserID); err != nil {
		return nil, err
	} else if dup {
		return nil, ErrDuplicateReview
	}

	agrees := Agrees(
		Scores{
			SoundAccuracy:    initial.SoundAccuracy,
			RhythmIntonation: initial.RhythmIntonation,
			PhraseAccuracy:   initial.PhraseAccuracy,
		},
		Scores{
			SoundAccuracy:    review.SoundAccuracy,
			RhythmIntonation: review.RhythmIntonation,
			PhraseAccuracy:   review.PhraseAccuracy,
		},
	)

	// Sequence continues across dispute cycles: the round counters reset on
	// each flag, but reviews from earlier cycles keep their rows.
	var priorDisputes int64
	if err := tx.Model(&models.Review{}).
		Where("request_id = ? AND kind = ?", req.ID, models.ReviewKindDispute).
		Count(&priorDisputes).Error; err != nil {
		return nil, err
	}

	review.Kind = models.ReviewKindDispute
	review.Sequence = 2 + int(priorDisputes)
	review.AgreesWithOriginal = &agrees
	if err := tx.Create(review).Error; err != nil {
		return nil, err
	}

	req.DisputeReviewCount++
	if agrees {
		req.DisputeAgreementCount++
	}

	from := req.Status
	outcome := &SubmitOutcome{
		RequestID:          req.ID,
		ReviewID:           review.ID,
		AgreesWithOriginal: &agrees,
		RoundsCompleted:    req.DisputeReviewCount,
		RoundsRequired:     DisputeRoundsRequired,
	}

	switch {
	case req.DisputeReviewCount < DisputeRoundsRequired:
		// More rounds needed: back to pending at the head of the queue. The
		// next claimer is guaranteed to be a different verifier because
		// selection skips requests the caller already reviewed.
		req.Status = models.StatusPending
		req.ClearClaim()
		req.PriorityAt = 0
		req.UpdatedAt = now
		if err := tx.Save(req).Error; err != nil {
			return nil, err
		}
		recordEvent(tx, req, from, &verifierUserID, "dispute review submitted, awaiting next round", now)

	case req.DisputeAgreementCount == DisputeRoundsRequired:
		req.Status = models.StatusDisputeResolved
		req.ResolvedAt = &now
		req.ClearClaim()
		req.UpdatedAt = now
		if err := tx.Save(req).Error; err != nil {
			return nil, err
		}
		recordEvent(tx, req, from, &verifierUserID, "dispute resolved, original review upheld", now)
		if err := s.closeOpenFlags(tx, req.ID, models.FlagResolved, &verifierUserID, now); err != nil {
			return nil, err
		}

	default:
		req.Status = models.StatusEscalated
		req.EscalatedAt = &now
		req.EscalatedReason = ReasonDisputeDisagreed
		req.ClearClaim()
		req.UpdatedAt = now
		if err := tx.Save(req).Error; err != nil {
			return nil, err
		}
		recordEvent(tx, req, from, &verifierUserID, ReasonDisputeDisagreed, now)
		if err := s.closeOpenFlags(tx, req.ID, models.FlagEscalated, &verifierUserID, now); err != nil {
			return nil, err
		}
	}

	outcome.Status = req.Status
	outcome.Phase = req.Phase
	return outcome, nil
}

func (s *SubmissionService) closeOpenFlags(tx *gorm.DB, requestID uint, to models.FlagStatus, resolvedBy *uint, now time.Time) error {
	return tx.Model(&models.ReviewFlag{}).
		Where("request_id = ? AND status = ?", requestID, models.FlagOpen).
		Updates(map[string]interface{}{
			"status":                       to,
			"resolved_at":                  now,
			"resolved_by_verifier_user_id": resolvedBy,
		}).Error
}

// recordCalibration feeds the AI-vs-human delta into the calibration table
// when the attempt has a complete set of AI scores. Best effort; a failure
// never rolls back the review.
func (s *SubmissionService) recordCalibration(tx *gorm.DB, req *models.ReviewRequest, human Scores, now time.Time) {
	var ai models.AIFeedback
	if err := tx.Where("attempt_id = ?", req.AttemptID).First(&ai).Error; err != nil {
		return
	}
	if ai.SoundAccuracy == nil || ai.RhythmIntonation == nil || ai.PhraseAccuracy == nil {
		return
	}

	aiScores := Scores{
		SoundAccuracy:    *ai.SoundAccuracy,
		RhythmIntonation: *ai.RhythmIntonation,
		PhraseAccuracy:   *ai.PhraseAccuracy,
	}
	if err := s.calibration.recordComparison(tx, req.PhraseID, aiScores, human, now); err != nil {
		logger.Warnf("[Submit] calibration update failed for phrase %d: %v", req.PhraseID, err)
	}
}

// FlagAttemptReview opens a learner dispute on a finished review. The
// request re-enters the queue in the dispute phase with fresh counters and
// priority zero.
func (s *SubmissionService) FlagAttemptReview(ctx context.Context, learnerUserID, attemptID uint, reason string) error {
	now := s.clk.Now()
	var languageCode string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.ReviewRequest
		if err := forUpdate(tx).Where("attempt_id = ?", attemptID).First(&req).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if req.LearnerUserID != learnerUserID {
			return ErrNotAuthorized
		}
		if !req.Status.Flaggable() {
			return ErrNotFlaggable
		}

		flag := models.ReviewFlag{
			RequestID:     req.ID,
			AttemptID:     req.AttemptID,
			LearnerUserID: learnerUserID,
			Reason:        reason,
			Status:        models.FlagOpen,
			CreatedAt:     now,
		}
		if err := tx.Create(&flag).Error; err != nil {
			return err
		}

		from := req.Status
		req.Phase = models.PhaseDispute
		req.Status = models.StatusPending
		req.DisputeReviewCount = 0
		req.DisputeAgreementCount = 0
		req.FlaggedAt = &now
		req.FlaggedByLearnerUserID = &learnerUserID
		req.PriorityAt = 0
		req.ResolvedAt = nil
		req.UpdatedAt = now
		if err := tx.Save(&req).Error; err != nil {
			return err
		}
		recordEvent(tx, &req, from, &learnerUserID, "flagged by learner", now)
		languageCode = req.LanguageCode
		return nil
	})
	if err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.NewWorkAvailable(languageCode)
	}
	return nil
}

// ReviewScoresView is one scored review as shown to the learner.
type ReviewScoresView struct {
	Kind               models.ReviewKind `json:"kind"`
	Sequence           int               `json:"sequence"`
	SoundAccuracy      int               `json:"sound_accuracy"`
	RhythmIntonation   int               `json:"rhythm_intonation"`
	PhraseAccuracy     int               `json:"phrase_accuracy"`
	AgreesWithOriginal *bool             `json:"agrees_with_original,omitempty"`
	VerifierFirstName  string            `json:"verifier_first_name"`
	VerifierAvatarURL  *string           `json:"verifier_avatar_url"`
	ExemplarAudioURL   *string           `json:"exemplar_audio_url"`
	CreatedAt          time.Time         `json:"created_at"`
}

// AttemptReviewView is the learner-facing record of an attempt's human
// review: every submitted review plus median final scores and the request's
// lifecycle state.
type AttemptReviewView struct {
	RequestID       uint                 `json:"request_id"`
	AttemptID       uint                 `json:"attempt_id"`
	Status          models.RequestStatus `json:"status"`
	Phase           models.ReviewPhase   `json:"phase"`
	Flaggable       bool                 `json:"flaggable"`
	EscalatedReason string               `json:"escalated_reason,omitempty"`
	ResolvedAt      *time.Time           `json:"resolved_at"`
	Reviews         []ReviewScoresView   `json:"reviews"`
	FinalScores     *Scores              `json:"final_scores"`
}

// AttemptReview returns the learner's view of their attempt's review state.
// Final scores are the per-dimension medians across all submitted reviews,
// present as soon as the initial review exists.
func (s *SubmissionService) AttemptReview(ctx context.Context, learnerUserID, attemptID uint) (*AttemptReviewView, error) {
	db := s.db.WithContext(ctx)

	var req models.ReviewRequest
	if err := db.Where("attempt_id = ?", attemptID).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if req.LearnerUserID != learnerUserID {
		return nil, ErrNotAuthorized
	}

	var reviews []models.Review
	if err := db.Where("request_id = ?", req.ID).Order("created_at asc, id asc").Find(&reviews).Error; err != nil {
		return nil, err
	}

	view := &AttemptReviewView{
		RequestID:       req.ID,
		AttemptID:       req.AttemptID,
		Status:          req.Status,
		Phase:           req.Phase,
		Flaggable:       req.Status.Flaggable(),
		EscalatedReason: req.EscalatedReason,
		ResolvedAt:      req.ResolvedAt,
		Reviews:         make([]ReviewScoresView, 0, len(reviews)),
	}

	for i := range reviews {
		r := &reviews[i]
		rv := ReviewScoresView{
			Kind:               r.Kind,
			Sequence:           r.Sequence,
			SoundAccuracy:      r.SoundAccuracy,
			RhythmIntonation:   r.RhythmIntonation,
			PhraseAccuracy:     r.PhraseAccuracy,
			AgreesWithOriginal: r.AgreesWithOriginal,
			VerifierFirstName:  r.VerifierFirstName,
			ExemplarAudioURL:   s.audio.URLForID(db, r.ExemplarAudioAssetID),
			CreatedAt:          r.CreatedAt,
		}
		if r.VerifierAvatarURL != "" {
			rv.VerifierAvatarURL = &r.VerifierAvatarURL
		}
		view.Reviews = append(view.Reviews, rv)
	}

	if len(reviews) > 0 && req.InitialReviewID != nil {
		var sound, rhythm, phrase []int
		for i := range reviews {
			sound = append(sound, reviews[i].SoundAccuracy)
			rhythm = append(rhythm, reviews[i].RhythmIntonation)
			phrase = append(phrase, reviews[i].PhraseAccuracy)
		}
		view.FinalScores = &Scores{
			SoundAccuracy:    medianOf(sound),
			RhythmIntonation: medianOf(rhythm),
			PhraseAccuracy:   medianOf(phrase),
		}
	}

	return view, nil
}

// medianOf returns the median of a non-empty slice, taking the upper
// midpoint of an even-length slice.
func medianOf(values []int) int {
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}

// UnseenFeedbackItem is one finished review the learner has not viewed yet.
type UnseenFeedbackItem struct {
	RequestID         uint                 `json:"request_id"`
	AttemptID         uint                 `json:"attempt_id"`
	PracticeSessionID *uint                `json:"practice_session_id"`
	Status            models.RequestStatus `json:"status"`
	ResolvedAt        *time.Time           `json:"resolved_at"`
}

// UnseenFeedback lists the learner's finished reviews whose feedback has not
// been marked seen.
func (s *SubmissionService) UnseenFeedback(ctx context.Context, learnerUserID uint) ([]UnseenFeedbackItem, error) {
	db := s.db.WithContext(ctx)

	var reqs []models.ReviewRequest
	if err := db.
		Where("learner_user_id = ? AND status IN ? AND feedback_seen_at IS NULL",
			learnerUserID, []models.RequestStatus{models.StatusCompleted, models.StatusDisputeResolved}).
		Order("resolved_at asc").
		Find(&reqs).Error; err != nil {
		return nil, err
	}

	items := make([]UnseenFeedbackItem, 0, len(reqs))
	for _, req := range reqs {
		item := UnseenFeedbackItem{
			RequestID:  req.ID,
			AttemptID:  req.AttemptID,
			Status:     req.Status,
			ResolvedAt: req.ResolvedAt,
		}
		var attempt models.Attempt
		if err := db.First(&attempt, req.AttemptID).Error; err == nil {
			item.PracticeSessionID = attempt.PracticeSessionID
		}
		items = append(items, item)
	}
	return items, nil
}

// MarkFeedbackSeen marks all of the learner's finished reviews in a practice
// session as seen. Returns how many rows it touched.
func (s *SubmissionService) MarkFeedbackSeen(ctx context.Context, learnerUserID, practiceSessionID uint) (int, error) {
	now := s.clk.Now()
	db := s.db.WithContext(ctx)

	var attemptIDs []uint
	if err := db.Model(&models.Attempt{}).
		Where("learner_user_id = ? AND practice_session_id = ?", learnerUserID, practiceSessionID).
		Pluck("id", &attemptIDs).Error; err != nil {
		return 0, err
	}
	if len(attemptIDs) == 0 {
		return 0, nil
	}

	result := db.Model(&models.ReviewRequest{}).
		Where("learner_user_id = ? AND attempt_id IN ? AND status IN ? AND feedback_seen_at IS NULL",
			learnerUserID, attemptIDs,
			[]models.RequestStatus{models.StatusCompleted, models.StatusDisputeResolved}).
		Update("feedback_seen_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}
