package models

import "time"

// AICalibration accumulates AI-vs-human score deltas per phrase. Signed sums
// expose systematic bias, absolute sums expose spread; both divide by
// ComparisonCount for means. Analytics only, never consulted by the state
// machine.
type AICalibration struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	PhraseID uint `gorm:"uniqueIndex;not null" json:"phrase_id"`

	ComparisonCount int `gorm:"not null;default:0" json:"comparison_count"`

	SumDeltaSoundAccuracy    int `gorm:"not null;default:0" json:"sum_delta_sound_accuracy"`
	SumDeltaRhythmIntonation int `gorm:"not null;default:0" json:"sum_delta_rhythm_intonation"`
	SumDeltaPhraseAccuracy   int `gorm:"not null;default:0" json:"sum_delta_phrase_accuracy"`

	SumAbsDeltaSoundAccuracy    int `gorm:"not null;default:0" json:"sum_abs_delta_sound_accuracy"`
	SumAbsDeltaRhythmIntonation int `gorm:"not null;default:0" json:"sum_abs_delta_rhythm_intonation"`
	SumAbsDeltaPhraseAccuracy   int `gorm:"not null;default:0" json:"sum_abs_delta_phrase_accuracy"`

	LastUpdatedAt time.Time `json:"last_updated_at"`
}

func (AICalibration) TableName() string { return "ai_calibrations" }

// QueueEvent is an insert-only audit row recording one request transition.
type QueueEvent struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	RequestID   uint          `gorm:"index;not null" json:"request_id"`
	FromStatus  RequestStatus `gorm:"size:32" json:"from_status"`
	ToStatus    RequestStatus `gorm:"size:32;not null" json:"to_status"`
	Phase       ReviewPhase   `gorm:"size:16" json:"phase"`
	ActorUserID *uint         `json:"actor_user_id"` // nil for timer/sweep transitions
	Reason      string        `gorm:"size:255" json:"reason"`
	CreatedAt   time.Time     `gorm:"index" json:"created_at"`
}

func (QueueEvent) TableName() string { return "queue_events" }
