package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lingopair/backend/internal/middleware"
	"github.com/lingopair/backend/internal/services"
	"github.com/lingopair/backend/pkg/response"
)

// QueueHandler exposes the verifier-facing review queue endpoints.
type QueueHandler struct {
	queue  *services.QueueService
	submit *services.SubmissionService
}

func NewQueueHandler(queue *services.QueueService, submit *services.SubmissionService) *QueueHandler {
	return &QueueHandler{queue: queue, submit: submit}
}

type claimNextRequest struct {
	LanguageCode string `json:"language_code" binding:"required"`
}

// ClaimNext assigns the next eligible request to the caller.
// POST /api/review-queue/claim-next
func (h *QueueHandler) ClaimNext(c *gin.Context) {
	var req claimNextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	assignment, err := h.queue.ClaimNext(c.Request.Context(), middleware.GetUserID(c), req.LanguageCode)
	if err != nil {
		fail(c, err)
		return
	}

	if assignment == nil {
		response.Success(c, gin.H{"assignment": nil})
		return
	}
	response.Success(c, gin.H{"assignment": assignment})
}

// Release returns a held claim to the queue.
// POST /api/review-queue/:id/release
func (h *QueueHandler) Release(c *gin.Context) {
	requestID, err := pathID(c)
	if err != nil {
		response.BadRequest(c, "invalid request id")
		return
	}

	if err := h.queue.ReleaseClaim(c.Request.Context(), middleware.GetUserID(c), requestID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"released": true})
}

// Submit records the caller's review for a claimed request.
// POST /api/review-queue/:id/submit
func (h *QueueHandler) Submit(c *gin.Context) {
	requestID, err := pathID(c)
	if err != nil {
		response.BadRequest(c, "invalid request id")
		return
	}

	var input services.SubmitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	outcome, err := h.submit.SubmitReview(c.Request.Context(), middleware.GetUserID(c), requestID, input)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, outcome)
}

// CurrentClaim returns the caller's active claim, if any.
// GET /api/review-queue/current-claim
func (h *QueueHandler) CurrentClaim(c *gin.Context) {
	assignment, err := h.queue.CurrentClaim(c.Request.Context(), middleware.GetUserID(c), c.Query("language_code"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"assignment": assignment})
}

// Signal summarizes pending work for a language.
// GET /api/review-queue/signal
func (h *QueueHandler) Signal(c *gin.Context) {
	signal, err := h.queue.Signal(c.Request.Context(), middleware.GetUserID(c), c.Query("language_code"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, signal)
}

// Pending lists queued work for a language.
// GET /api/review-queue/pending
func (h *QueueHandler) Pending(c *gin.Context) {
	items, err := h.queue.ListPending(c.Request.Context(), middleware.GetUserID(c), c.Query("language_code"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

// Escalated lists escalated requests for the dashboard.
// GET /api/review-queue/escalated
func (h *QueueHandler) Escalated(c *gin.Context) {
	items, err := h.queue.ListEscalated(c.Request.Context(), middleware.GetUserID(c), c.Query("language_code"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

func pathID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
