package models

import "time"

// Phrase is the text a learner practices. Owned by the phrase-library CRUD;
// the review queue only reads it when building assignment views.
type Phrase struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	English      string    `gorm:"size:500;not null" json:"english"`
	Translation  string    `gorm:"size:500;not null" json:"translation"`
	LanguageCode string    `gorm:"size:16;not null;index" json:"language_code"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Phrase) TableName() string { return "phrases" }

// Attempt is a learner's single recorded pronunciation of a phrase.
// Written by the ingestion pipeline, read-only here.
type Attempt struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	LearnerUserID     uint      `gorm:"index;not null" json:"learner_user_id"`
	PhraseID          uint      `gorm:"index;not null" json:"phrase_id"`
	PracticeSessionID *uint     `gorm:"index:idx_attempts_practice_session" json:"practice_session_id"`
	AudioAssetID      *uint     `json:"audio_asset_id"`
	DurationMs        *int      `json:"duration_ms"`
	CreatedAt         time.Time `json:"created_at"`
}

func (Attempt) TableName() string { return "attempts" }

// AudioAsset is a stored recording (learner attempt or verifier exemplar).
// StorageKey locates the object in the external audio store.
type AudioAsset struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	StorageKey string    `gorm:"size:100;uniqueIndex;not null" json:"storage_key"`
	MimeType   string    `gorm:"size:100" json:"mime_type"`
	CreatedAt  time.Time `json:"created_at"`
}

func (AudioAsset) TableName() string { return "audio_assets" }

// AIFeedback holds the AI pipeline's scores for an attempt. Written by the
// external scoring pipeline; the queue reads it for assignment views and
// calibration. Score fields are nullable because transcription can succeed
// while scoring fails.
type AIFeedback struct {
	ID               uint     `gorm:"primaryKey" json:"id"`
	AttemptID        uint     `gorm:"uniqueIndex;not null" json:"attempt_id"`
	Transcript       string   `gorm:"size:2000" json:"transcript"`
	Confidence       *float64 `json:"confidence"`
	SoundAccuracy    *int     `json:"sound_accuracy"`
	RhythmIntonation *int     `json:"rhythm_intonation"`
	PhraseAccuracy   *int     `json:"phrase_accuracy"`
	FeedbackText     string   `gorm:"size:2000" json:"feedback_text"`
	ErrorTags        string   `gorm:"size:1000" json:"error_tags"` // JSON array of tag strings

	CreatedAt time.Time `json:"created_at"`
}

func (AIFeedback) TableName() string { return "ai_feedback" }
