package models

import "time"

// ReviewKind mirrors the request phase a review was submitted under.
type ReviewKind string

const (
	ReviewKindInitial ReviewKind = "initial"
	ReviewKindDispute ReviewKind = "dispute"
)

// Review is one verifier's scored judgment of a learner attempt. Rows are
// insert-only; there is no update or delete path. The unique
// (request_id, verifier_user_id) index backs the no-double-review rule at
// the store level as well as in the submission handler.
//
// VerifierFirstName and VerifierAvatarURL are snapshots taken at submission
// time so historical reviews render correctly even if the verifier's profile
// changes later.
type Review struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	RequestID      uint       `gorm:"not null;uniqueIndex:idx_reviews_request_verifier,priority:1;index:idx_reviews_request_created,priority:1" json:"request_id"`
	AttemptID      uint       `gorm:"index;not null" json:"attempt_id"`
	LearnerUserID  uint       `gorm:"not null" json:"learner_user_id"`
	VerifierUserID uint       `gorm:"not null;uniqueIndex:idx_reviews_request_verifier,priority:2" json:"verifier_user_id"`
	Kind           ReviewKind `gorm:"size:16;not null" json:"kind"`
	Sequence       int        `gorm:"not null" json:"sequence"` // 1 initial, 2 and 3 for dispute rounds

	SoundAccuracy    int `gorm:"not null" json:"sound_accuracy"`
	RhythmIntonation int `gorm:"not null" json:"rhythm_intonation"`
	PhraseAccuracy   int `gorm:"not null" json:"phrase_accuracy"`

	// Set only on dispute-kind reviews, against the initial review's scores.
	AgreesWithOriginal *bool `json:"agrees_with_original"`

	// Optional verifier verdict on the AI feedback shown alongside the attempt.
	AIAnalysisCorrect *bool `json:"ai_analysis_correct"`

	ExemplarAudioAssetID uint   `gorm:"not null" json:"exemplar_audio_asset_id"`
	VerifierFirstName    string `gorm:"size:100;not null" json:"verifier_first_name"`
	VerifierAvatarURL    string `gorm:"size:500" json:"verifier_avatar_url"`

	CreatedAt time.Time `gorm:"index:idx_reviews_request_created,priority:2" json:"created_at"`
}

func (Review) TableName() string { return "reviews" }

// FlagStatus is the lifecycle of a learner flag record.
type FlagStatus string

const (
	FlagOpen      FlagStatus = "open"
	FlagResolved  FlagStatus = "resolved"
	FlagEscalated FlagStatus = "escalated"
)

// ReviewFlag records a learner contesting a completed review. Opening a flag
// moves the request into the dispute phase; the dispute outcome closes it.
type ReviewFlag struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	RequestID     uint       `gorm:"index;not null" json:"request_id"`
	AttemptID     uint       `gorm:"index;not null" json:"attempt_id"`
	LearnerUserID uint       `gorm:"not null" json:"learner_user_id"`
	Reason        string     `gorm:"size:1000" json:"reason"`
	Status        FlagStatus `gorm:"size:16;not null;default:open" json:"status"`

	ResolvedAt               *time.Time `json:"resolved_at"`
	ResolvedByVerifierUserID *uint      `json:"resolved_by_verifier_user_id"`

	CreatedAt time.Time `json:"created_at"`
}

func (ReviewFlag) TableName() string { return "review_flags" }
