package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lingopair/backend/internal/models"
)

func TestAdmitForReview_CreatesPendingRequest(t *testing.T) {
	env := newQueueEnv(t)
	attemptID, learnerID := env.seedAttempt(t, "es-ES")

	requestID := env.admit(t, attemptID)

	req := env.request(t, requestID)
	if req.Status != models.StatusPending {
		t.Errorf("status = %q, expected pending", req.Status)
	}
	if req.Phase != models.PhaseInitial {
		t.Errorf("phase = %q, expected initial", req.Phase)
	}
	if req.LearnerUserID != learnerID {
		t.Errorf("learner = %d, expected %d", req.LearnerUserID, learnerID)
	}
	if req.PriorityAt != env.clk.Now().UnixMilli() {
		t.Errorf("priorityAt = %d, expected %d", req.PriorityAt, env.clk.Now().UnixMilli())
	}
	if !req.SLADueAt.Equal(env.clk.Now().Add(24 * time.Hour)) {
		t.Errorf("slaDueAt = %v, expected creation + 24h", req.SLADueAt)
	}
	if len(env.sched.slaExpiries) != 1 || env.sched.slaExpiries[0] != requestID {
		t.Errorf("expected one SLA timer for request %d, got %v", requestID, env.sched.slaExpiries)
	}
}

func TestAdmitForReview_IdempotentPerAttempt(t *testing.T) {
	env := newQueueEnv(t)
	attemptID, _ := env.seedAttempt(t, "es-ES")

	first := env.admit(t, attemptID)
	second := env.admit(t, attemptID)

	if first != second {
		t.Errorf("re-admit created a new request: %d then %d", first, second)
	}

	var count int64
	env.db.Model(&models.ReviewRequest{}).Count(&count)
	if count != 1 {
		t.Errorf("request count = %d, expected 1", count)
	}
	if len(env.sched.slaExpiries) != 1 {
		t.Errorf("expected one SLA timer, got %d", len(env.sched.slaExpiries))
	}
}

func TestAdmitForReview_UnknownAttempt(t *testing.T) {
	env := newQueueEnv(t)

	_, err := env.queue.AdmitForReview(context.Background(), 1, 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAdmitForReview_OnlyAttemptOwner(t *testing.T) {
	env := newQueueEnv(t)
	attemptID, learnerID := env.seedAttempt(t, "es-ES")

	_, err := env.queue.AdmitForReview(context.Background(), learnerID+1, attemptID)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized for foreign learner, got %v", err)
	}

	var count int64
	env.db.Model(&models.ReviewRequest{}).Count(&count)
	if count != 0 {
		t.Errorf("request count = %d, expected 0", count)
	}

	// Same guard on the idempotent path once a request exists.
	requestID := env.admit(t, attemptID)
	if _, err := env.queue.AdmitForReview(context.Background(), learnerID+1, attemptID); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized on re-admit, got %v", err)
	}
	if again, err := env.queue.AdmitForReview(context.Background(), learnerID, attemptID); err != nil || again != requestID {
		t.Errorf("owner re-admit = (%d, %v), expected (%d, nil)", again, err, requestID)
	}
}

func TestClaimNext_AssignsOldestFirst(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES")

	firstAttempt, _ := env.seedAttempt(t, "es-ES")
	firstReq := env.admit(t, firstAttempt)
	env.clk.Advance(time.Minute)
	secondAttempt, _ := env.seedAttempt(t, "es-ES")
	env.admit(t, secondAttempt)

	assignment := env.claim(t, verifier, "es-ES")
	if assignment.RequestID != firstReq {
		t.Errorf("claimed request %d, expected oldest %d", assignment.RequestID, firstReq)
	}

	req := env.request(t, firstReq)
	if req.Status != models.StatusClaimed {
		t.Errorf("status = %q, expected claimed", req.Status)
	}
	if req.ClaimedByVerifierUserID == nil || *req.ClaimedByVerifierUserID != verifier {
		t.Error("claim holder not recorded")
	}
	if req.ClaimDeadlineAt == nil || !req.ClaimDeadlineAt.Equal(env.clk.Now().Add(5*time.Minute)) {
		t.Error("claim deadline not set to now + claim timeout")
	}
	if len(env.sched.claimExpiries) != 1 || env.sched.claimExpiries[0] != firstReq {
		t.Errorf("expected claim-expiry timer for %d, got %v", firstReq, env.sched.claimExpiries)
	}
}

func TestClaimNext_NormalizesLanguageAliases(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES")
	attemptID, _ := env.seedAttempt(t, "es-ES")
	requestID := env.admit(t, attemptID)

	assignment := env.claim(t, verifier, "spanish")
	if assignment.RequestID != requestID {
		t.Errorf("claimed %d, expected %d", assignment.RequestID, requestID)
	}
}

func TestClaimNext_UnsupportedLanguage(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES")

	_, err := env.queue.ClaimNext(context.Background(), verifier, "klingon")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestClaimNext_RequiresActiveMembership(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "fr-FR")
	attemptID, _ := env.seedAttempt(t, "es-ES")
	env.admit(t, attemptID)

	_, err := env.queue.ClaimNext(context.Background(), verifier, "es-ES")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestClaimNext_ExclusiveAcrossVerifiers(t *testing.T) {
	env := newQueueEnv(t)
	vera := env.seedVerifier(t, "vera", "es-ES")
	victor := env.seedVerifier(t, "victor", "es-ES")
	attemptID, _ := env.seedAttempt(t, "es-ES")
	env.admit(t, attemptID)

	env.claim(t, vera, "es-ES")

	assignment, err := env.queue.ClaimNext(context.Background(), victor, "es-ES")
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if assignment != nil {
		t.Errorf("second verifier received claimed work: request %d", assignment.RequestID)
	}
}

func TestClaimNext_ReturnsActiveClaimUnchanged(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES")
	for i := 0; i < 2; i++ {
		attemptID, _ := env.seedAttempt(t, "es-ES")
		env.admit(t, attemptID)
		env.clk.Advance(time.Second)
	}

	first := env.claim(t, verifier, "es-ES")
	env.clk.Advance(time.Minute)
	second := env.claim(t, verifier, "es-ES")

	if second.RequestID != first.RequestID {
		t.Errorf("re-claim handed out a second request: %d then %d", first.RequestID, second.RequestID)
	}

	req := env.request(t, first.RequestID)
	// Deadline must not move on re-claim.
	if first.ClaimDeadlineAt == nil || req.ClaimDeadlineAt == nil || !req.ClaimDeadlineAt.Equal(*first.ClaimDeadlineAt) {
		t.Errorf("re-claim moved the deadline from %v to %v", first.ClaimDeadlineAt, req.ClaimDeadlineAt)
	}

	var claimed int64
	env.db.Model(&models.ReviewRequest{}).Where("status = ?", models.StatusClaimed).Count(&claimed)
	if claimed != 1 {
		t.Errorf("claimed count = %d, expected 1", claimed)
	}
}

func TestClaimNext_ReclaimsExpiredClaims(t *testing.T) {
	env := newQueueEnv(t)
	vera := env.seedVerifier(t, "vera", "es-ES")
	victor := env.seedVerifier(t, "victor", "es-ES")
	attemptID, _ := env.seedAttempt(t, "es-ES")
	requestID := env.admit(t, attemptID)

	env.claim(t, vera, "es-ES")
	env.clk.Advance(5*time.Minute + time.Second)

	assignment := env.claim(t, victor, "es-ES")
	if assignment.RequestID != requestID {
		t.Errorf("expected expired claim %d to be handed to next verifier, got %d", requestID, assignment.RequestID)
	}

	req := env.request(t, requestID)
	if req.ClaimedByVerifierUserID == nil || *req.ClaimedByVerifierUserID != victor {
		t.Error("claim not transferred to second verifier")
	}
}

func TestClaimNext_ExpiredWorkKeepsSeniority(t *testing.T) {
	env := newQueueEnv(t)
	vera := env.seedVerifier(t, "vera", "es-ES")
	victor := env.seedVerifier(t, "victor", "es-ES")

	oldAttempt, _ := env.seedAttempt(t, "es-ES")
	oldReq := env.admit(t, oldAttempt)
	env.clk.Advance(time.Minute)
	newAttempt, _ := env.seedAttempt(t, "es-ES")
	env.admit(t, newAttempt)

	env.claim(t, vera, "es-ES")
	env.clk.Advance(6 * time.Minute)

	// The reclaimed request has priority zero and must outrank newer work.
	assignment := env.claim(t, victor, "es-ES")
	if assignment.RequestID != oldReq {
		t.Errorf("reclaimed request lost its place: got %d, expected %d", assignment.RequestID, oldReq)
	}
}

func TestClaimNext_EscalatesSLABreachedWork(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES")
	attemptID, _ := env.seedAttempt(t, "es-ES")
	requestID := env.admit(t, attemptID)

	env.clk.Advance(24*time.Hour + time.Minute)

	assignment, err := env.queue.ClaimNext(context.Background(), verifier, "es-ES")
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if assignment != nil {
		t.Errorf("SLA-breached work was handed out: request %d", assignment.RequestID)
	}

	req := env.request(t, requestID)
	if req.Status != models.StatusEscalated {
		t.Errorf("status = %q, expected escalated", req.Status)
	}
	if req.EscalatedReason != ReasonSLAPending {
		t.Errorf("reason = %q, expected %q", req.EscalatedReason, ReasonSLAPending)
	}
}

func TestClaimNext_EmptyQueue(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES")

	assignment, err := env.queue.ClaimNext(context.Background(), verifier, "es-ES")
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if assignment != nil {
		t.Error("expected nil assignment on empty queue")
	}
}

func TestClaimNext_LanguageIsolation(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES", "fr-FR")
	attemptID, _ := env.seedAttempt(t, "fr-FR")
	env.admit(t, attemptID)

	assignment, err := env.queue.ClaimNext(context.Background(), verifier, "es-ES")
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if assignment != nil {
		t.Error("claim crossed language boundaries")
	}
}

func TestReleaseClaim_ReturnsToQueueHead(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES")
	attemptID, _ := env.seedAttempt(t, "es-ES")
	requestID := env.admit(t, attemptID)

	env.claim(t, verifier, "es-ES")
	if err := env.queue.ReleaseClaim(context.Background(), verifier, requestID); err != nil {
		t.Fatalf("ReleaseClaim failed: %v", err)
	}

	req := env.request(t, requestID)
	if req.Status != models.StatusPending {
		t.Errorf("status = %q, expected pending", req.Status)
	}
	if req.PriorityAt != 0 {
		t.Errorf("priorityAt = %d, expected 0 after release", req.PriorityAt)
	}
	if req.ClaimedByVerifierUserID != nil || req.ClaimedAt != nil || req.ClaimDeadlineAt != nil {
		t.Error("claim fields not cleared on release")
	}
}

func TestReleaseClaim_OnlyHolderMayRelease(t *testing.T) {
	env := newQueueEnv(t)
	vera := env.seedVerifier(t, "vera", "es-ES")
	victor := env.seedVerifier(t, "victor", "es-ES")
	attemptID, _ := env.seedAttempt(t, "es-ES")
	requestID := env.admit(t, attemptID)

	env.claim(t, vera, "es-ES")

	err := env.queue.ReleaseClaim(context.Background(), victor, requestID)
	if !errors.Is(err, ErrNotClaimHolder) {
		t.Errorf("expected ErrNotClaimHolder, got %v", err)
	}

	req := env.request(t, requestID)
	if req.Status != models.StatusClaimed {
		t.Error("foreign release changed request state")
	}
}

func TestReleaseClaim_UnknownRequest(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES")

	err := env.queue.ReleaseClaim(context.Background(), verifier, 404)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCurrentClaim(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES")
	attemptID, _ := env.seedAttempt(t, "es-ES")
	requestID := env.admit(t, attemptID)

	got, err := env.queue.CurrentClaim(context.Background(), verifier, "")
	if err != nil {
		t.Fatalf("CurrentClaim failed: %v", err)
	}
	if got != nil {
		t.Error("expected no current claim before claiming")
	}

	env.claim(t, verifier, "es-ES")
	got, err = env.queue.CurrentClaim(context.Background(), verifier, "")
	if err != nil {
		t.Fatalf("CurrentClaim failed: %v", err)
	}
	if got == nil || got.RequestID != requestID {
		t.Errorf("CurrentClaim = %+v, expected request %d", got, requestID)
	}

	// An expired claim is no longer reported.
	env.clk.Advance(6 * time.Minute)
	got, err = env.queue.CurrentClaim(context.Background(), verifier, "")
	if err != nil {
		t.Fatalf("CurrentClaim failed: %v", err)
	}
	if got != nil {
		t.Error("expired claim still reported as current")
	}
}

func TestSignal_CountsPendingWork(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES")

	signal, err := env.queue.Signal(context.Background(), verifier, "es-ES")
	if err != nil {
		t.Fatalf("Signal failed: %v", err)
	}
	if signal.PendingCount != 0 || signal.OldestPendingID != nil {
		t.Errorf("empty queue signal = %+v", signal)
	}

	attemptID, _ := env.seedAttempt(t, "es-ES")
	requestID := env.admit(t, attemptID)

	signal, err = env.queue.Signal(context.Background(), verifier, "es-ES")
	if err != nil {
		t.Fatalf("Signal failed: %v", err)
	}
	if signal.PendingCount != 1 {
		t.Errorf("pending count = %d, expected 1", signal.PendingCount)
	}
	if signal.OldestPendingID == nil || *signal.OldestPendingID != requestID {
		t.Errorf("oldest pending = %v, expected %d", signal.OldestPendingID, requestID)
	}
}

func TestListEscalated(t *testing.T) {
	env := newQueueEnv(t)
	verifier := env.seedVerifier(t, "vera", "es-ES")
	attemptID, _ := env.seedAttempt(t, "es-ES")
	requestID := env.admit(t, attemptID)

	env.clk.Advance(25 * time.Hour)
	env.sweep(t)

	items, err := env.queue.ListEscalated(context.Background(), verifier, "es-ES")
	if err != nil {
		t.Fatalf("ListEscalated failed: %v", err)
	}
	if len(items) != 1 || items[0].RequestID != requestID {
		t.Fatalf("escalated items = %+v, expected request %d", items, requestID)
	}
	if items[0].EscalatedReason != ReasonSLAPending {
		t.Errorf("reason = %q, expected %q", items[0].EscalatedReason, ReasonSLAPending)
	}
}
