package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/lingopair/backend/internal/middleware"
	"github.com/lingopair/backend/internal/services"
	"github.com/lingopair/backend/pkg/response"
)

// LearnerHandler exposes the learner-facing endpoints: admitting attempts,
// reading finished reviews, flagging and the unseen-feedback badge.
type LearnerHandler struct {
	queue  *services.QueueService
	submit *services.SubmissionService
	audio  *services.AudioService
}

func NewLearnerHandler(queue *services.QueueService, submit *services.SubmissionService, audio *services.AudioService) *LearnerHandler {
	return &LearnerHandler{queue: queue, submit: submit, audio: audio}
}

// Admit queues the caller's own attempt for human review.
// POST /api/attempts/:id/admit
func (h *LearnerHandler) Admit(c *gin.Context) {
	attemptID, err := pathID(c)
	if err != nil {
		response.BadRequest(c, "invalid attempt id")
		return
	}

	requestID, err := h.queue.AdmitForReview(c.Request.Context(), middleware.GetUserID(c), attemptID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, gin.H{"request_id": requestID})
}

type flagRequest struct {
	Reason string `json:"reason"`
}

// Flag opens a dispute on a finished review.
// POST /api/attempts/:id/flag
func (h *LearnerHandler) Flag(c *gin.Context) {
	attemptID, err := pathID(c)
	if err != nil {
		response.BadRequest(c, "invalid attempt id")
		return
	}

	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.submit.FlagAttemptReview(c.Request.Context(), middleware.GetUserID(c), attemptID, req.Reason); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"flagged": true})
}

// Review returns the learner's view of an attempt's review state.
// GET /api/attempts/:id/review
func (h *LearnerHandler) Review(c *gin.Context) {
	attemptID, err := pathID(c)
	if err != nil {
		response.BadRequest(c, "invalid attempt id")
		return
	}

	view, err := h.submit.AttemptReview(c.Request.Context(), middleware.GetUserID(c), attemptID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, view)
}

// UnseenFeedback lists finished reviews the learner has not viewed.
// GET /api/feedback/unseen
func (h *LearnerHandler) UnseenFeedback(c *gin.Context) {
	items, err := h.submit.UnseenFeedback(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

type markSeenRequest struct {
	PracticeSessionID uint `json:"practice_session_id" binding:"required"`
}

// MarkFeedbackSeen marks a practice session's feedback as viewed.
// POST /api/feedback/seen
func (h *LearnerHandler) MarkFeedbackSeen(c *gin.Context) {
	var req markSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	count, err := h.submit.MarkFeedbackSeen(c.Request.Context(), middleware.GetUserID(c), req.PracticeSessionID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"marked": count})
}

type registerAudioRequest struct {
	MimeType string `json:"mime_type"`
}

// RegisterAudio allocates a storage key for an upcoming audio upload.
// POST /api/audio-assets
func (h *LearnerHandler) RegisterAudio(c *gin.Context) {
	var req registerAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	asset, err := h.audio.Register(c.Request.Context(), middleware.GetUserID(c), req.MimeType)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, gin.H{
		"asset_id":    asset.ID,
		"storage_key": asset.StorageKey,
		"url":         h.audio.URL(asset),
	})
}
