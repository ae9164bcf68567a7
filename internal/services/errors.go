package services

import "errors"

// Sentinel errors for the review queue state machine. Handlers map these to
// HTTP statuses; everything else propagates as a retryable server error.
var (
	// ErrNotFound is returned when the referenced request, attempt or asset
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotAuthorized is returned when the caller lacks language membership
	// or does not own the referenced resource. No state change.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotClaimHolder is returned when the caller tried to submit or
	// release a claim held by someone else, or not held at all.
	ErrNotClaimHolder = errors.New("you do not hold this claim")

	// ErrClaimExpired is returned when a submission arrives after the claim
	// window. As a side effect the request has been returned to pending.
	ErrClaimExpired = errors.New("claim timed out and returned to queue")

	// ErrInvalidScore is returned for scores outside the 1 to 5 range.
	ErrInvalidScore = errors.New("scores must be integers from 1 to 5")

	// ErrDuplicateReview is returned when this verifier already reviewed
	// this request.
	ErrDuplicateReview = errors.New("you already reviewed this request")

	// ErrMissingInitialReview is returned for a dispute review submitted
	// against a request with no initial review on record.
	ErrMissingInitialReview = errors.New("dispute review requires an initial review")

	// ErrSelfDispute is returned when the original verifier attempts to
	// verify their own review.
	ErrSelfDispute = errors.New("original verifier cannot submit dispute verification")

	// ErrNotFlaggable is returned unless the request is completed or
	// dispute_resolved and owned by the caller.
	ErrNotFlaggable = errors.New("review cannot be flagged in its current state")

	// ErrUnsupportedLanguage is returned when the language code does not
	// resolve to a supported review language.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)
