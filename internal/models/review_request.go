package models

import "time"

// ReviewPhase distinguishes the first-pass review from the learner-triggered
// dispute round.
type ReviewPhase string

const (
	PhaseInitial ReviewPhase = "initial"
	PhaseDispute ReviewPhase = "dispute"
)

// RequestStatus is the lifecycle state of a ReviewRequest.
type RequestStatus string

const (
	StatusPending         RequestStatus = "pending"
	StatusClaimed         RequestStatus = "claimed"
	StatusCompleted       RequestStatus = "completed"
	StatusDisputeResolved RequestStatus = "dispute_resolved"
	StatusEscalated       RequestStatus = "escalated"
)

// Valid reports whether s is one of the five known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusClaimed, StatusCompleted, StatusDisputeResolved, StatusEscalated:
		return true
	}
	return false
}

// Terminal reports whether s ends a review cycle. completed and
// dispute_resolved are soft-terminal: a learner flag can reopen them.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDisputeResolved, StatusEscalated:
		return true
	}
	return false
}

// Flaggable reports whether a learner may flag a request in this status.
func (s RequestStatus) Flaggable() bool {
	return s == StatusCompleted || s == StatusDisputeResolved
}

// ReviewRequest is one unit of human-review work, created once per admitted
// learner attempt and retained forever for audit.
//
// PriorityAt orders pending work: creation time in epoch milliseconds for new
// requests, reset to 0 whenever a request re-enters pending so re-queued work
// is served before fresh arrivals. Claim fields are non-null iff the request
// is claimed; LanguageCode never changes after creation.
type ReviewRequest struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	AttemptID     uint          `gorm:"uniqueIndex;not null" json:"attempt_id"`
	PhraseID      uint          `gorm:"index;not null" json:"phrase_id"`
	LearnerUserID uint          `gorm:"index:idx_requests_learner;not null" json:"learner_user_id"`
	LanguageCode  string        `gorm:"size:16;not null;index:idx_requests_lang_status_priority,priority:1" json:"language_code"`
	Phase         ReviewPhase   `gorm:"size:16;not null;default:initial" json:"phase"`
	Status        RequestStatus `gorm:"size:32;not null;index:idx_requests_lang_status_priority,priority:2;index:idx_requests_status_sla,priority:1;index:idx_requests_status_deadline,priority:1" json:"status"`

	PriorityAt int64     `gorm:"not null;index:idx_requests_lang_status_priority,priority:3" json:"priority_at"`
	SLADueAt   time.Time `gorm:"index:idx_requests_status_sla,priority:2;not null" json:"sla_due_at"`

	ClaimedByVerifierUserID *uint      `gorm:"index:idx_requests_claimed_status,priority:1" json:"claimed_by_verifier_user_id"`
	ClaimedAt               *time.Time `json:"claimed_at"`
	ClaimDeadlineAt         *time.Time `gorm:"index:idx_requests_status_deadline,priority:2" json:"claim_deadline_at"`

	InitialReviewID       *uint `json:"initial_review_id"`
	DisputeReviewCount    int   `gorm:"not null;default:0" json:"dispute_review_count"`
	DisputeAgreementCount int   `gorm:"not null;default:0" json:"dispute_agreement_count"`

	FlaggedAt              *time.Time `json:"flagged_at"`
	FlaggedByLearnerUserID *uint      `json:"flagged_by_learner_user_id"`
	EscalatedAt            *time.Time `json:"escalated_at"`
	EscalatedReason        string     `gorm:"size:255" json:"escalated_reason"`
	ResolvedAt             *time.Time `json:"resolved_at"`
	FeedbackSeenAt         *time.Time `json:"feedback_seen_at"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ReviewRequest) TableName() string { return "review_requests" }

// ClearClaim nulls all claim fields. Every path that moves a request out of
// claimed must call this so "claimed iff holder set" stays true.
func (r *ReviewRequest) ClearClaim() {
	r.ClaimedByVerifierUserID = nil
	r.ClaimedAt = nil
	r.ClaimDeadlineAt = nil
}

// HeldBy reports whether verifierUserID currently holds the claim.
func (r *ReviewRequest) HeldBy(verifierUserID uint) bool {
	return r.Status == StatusClaimed &&
		r.ClaimedByVerifierUserID != nil &&
		*r.ClaimedByVerifierUserID == verifierUserID
}

// ClaimExpired reports whether the claim deadline has passed at now.
func (r *ReviewRequest) ClaimExpired(now time.Time) bool {
	return r.ClaimDeadlineAt != nil && !r.ClaimDeadlineAt.After(now)
}
