package services

import (
	"time"

	"github.com/lingopair/backend/internal/models"
	"gorm.io/gorm"
)

// AssignmentView is everything a verifier needs to review one attempt:
// the phrase, the learner's recording, the AI feedback snapshot and, in
// dispute phase, the original review's scores.
type AssignmentView struct {
	RequestID       uint                 `json:"request_id"`
	AttemptID       uint                 `json:"attempt_id"`
	PhraseID        uint                 `json:"phrase_id"`
	LanguageCode    string               `json:"language_code"`
	Phase           models.ReviewPhase   `json:"phase"`
	Status          models.RequestStatus `json:"status"`
	ClaimDeadlineAt *time.Time           `json:"claim_deadline_at"`
	RemainingMs     *int64               `json:"remaining_ms"`
	LearnerUserID   uint                 `json:"learner_user_id"`

	Phrase          *PhraseView          `json:"phrase"`
	LearnerAttempt  AttemptAudioView     `json:"learner_attempt"`
	OriginalReview  *ReviewScoreView     `json:"original_review"`
	AIFeedback      *AIFeedbackView      `json:"ai_feedback"`
	DisputeProgress *DisputeProgressView `json:"dispute_progress"`
}

type PhraseView struct {
	English     string `json:"english"`
	Translation string `json:"translation"`
}

type AttemptAudioView struct {
	DurationMs *int    `json:"duration_ms"`
	AudioURL   *string `json:"audio_url"`
}

// ReviewScoreView is a review's scores plus the verifier's snapshot
// identity, shown to dispute reviewers and learners.
type ReviewScoreView struct {
	ReviewID           uint    `json:"review_id,omitempty"`
	VerifierFirstName  string  `json:"verifier_first_name"`
	VerifierAvatarURL  *string `json:"verifier_avatar_url"`
	SoundAccuracy      int     `json:"sound_accuracy"`
	RhythmIntonation   int     `json:"rhythm_intonation"`
	PhraseAccuracy     int     `json:"phrase_accuracy"`
	AgreesWithOriginal *bool   `json:"agrees_with_original,omitempty"`
	AudioURL           *string `json:"audio_url,omitempty"`
}

type AIFeedbackView struct {
	Transcript       string   `json:"transcript"`
	Confidence       *float64 `json:"confidence"`
	SoundAccuracy    *int     `json:"sound_accuracy"`
	RhythmIntonation *int     `json:"rhythm_intonation"`
	PhraseAccuracy   *int     `json:"phrase_accuracy"`
	FeedbackText     string   `json:"feedback_text"`
	ErrorTags        string   `json:"error_tags"`
}

type DisputeProgressView struct {
	Completed int `json:"completed"`
	Required  int `json:"required"`
}

func reviewScoreView(review *models.Review, audioURL *string) *ReviewScoreView {
	var avatar *string
	if review.VerifierAvatarURL != "" {
		avatar = &review.VerifierAvatarURL
	}
	return &ReviewScoreView{
		ReviewID:           review.ID,
		VerifierFirstName:  review.VerifierFirstName,
		VerifierAvatarURL:  avatar,
		SoundAccuracy:      review.SoundAccuracy,
		RhythmIntonation:   review.RhythmIntonation,
		PhraseAccuracy:     review.PhraseAccuracy,
		AgreesWithOriginal: review.AgreesWithOriginal,
		AudioURL:           audioURL,
	}
}

// buildAssignment assembles the full view for a claimed (or active) request.
// Returns nil when the underlying attempt row is gone.
func (s *QueueService) buildAssignment(tx *gorm.DB, req *models.ReviewRequest, now time.Time) (*AssignmentView, error) {
	var attempt models.Attempt
	if err := tx.First(&attempt, req.AttemptID).Error; err != nil {
		return nil, nil
	}

	view := &AssignmentView{
		RequestID:       req.ID,
		AttemptID:       req.AttemptID,
		PhraseID:        req.PhraseID,
		LanguageCode:    req.LanguageCode,
		Phase:           req.Phase,
		Status:          req.Status,
		ClaimDeadlineAt: req.ClaimDeadlineAt,
		LearnerUserID:   req.LearnerUserID,
	}

	if req.ClaimDeadlineAt != nil {
		remaining := req.ClaimDeadlineAt.Sub(now).Milliseconds()
		if remaining < 0 {
			remaining = 0
		}
		view.RemainingMs = &remaining
	}

	var phrase models.Phrase
	if err := tx.First(&phrase, req.PhraseID).Error; err == nil {
		view.Phrase = &PhraseView{English: phrase.English, Translation: phrase.Translation}
	}

	view.LearnerAttempt = AttemptAudioView{DurationMs: attempt.DurationMs}
	if attempt.AudioAssetID != nil {
		view.LearnerAttempt.AudioURL = s.audio.URLForID(tx, *attempt.AudioAssetID)
	}

	if req.InitialReviewID != nil {
		var initial models.Review
		if err := tx.First(&initial, *req.InitialReviewID).Error; err == nil {
			view.OriginalReview = reviewScoreView(&initial, nil)
			view.OriginalReview.ReviewID = 0 // verifiers see scores, not review identity
		}
	}

	var ai models.AIFeedback
	if err := tx.Where("attempt_id = ?", req.AttemptID).First(&ai).Error; err == nil {
		view.AIFeedback = &AIFeedbackView{
			Transcript:       ai.Transcript,
			Confidence:       ai.Confidence,
			SoundAccuracy:    ai.SoundAccuracy,
			RhythmIntonation: ai.RhythmIntonation,
			PhraseAccuracy:   ai.PhraseAccuracy,
			FeedbackText:     ai.FeedbackText,
			ErrorTags:        ai.ErrorTags,
		}
	}

	if req.Phase == models.PhaseDispute {
		view.DisputeProgress = &DisputeProgressView{
			Completed: req.DisputeReviewCount,
			Required:  DisputeRoundsRequired,
		}
	}

	return view, nil
}
