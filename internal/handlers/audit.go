package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/lingopair/backend/internal/services"
	"github.com/lingopair/backend/pkg/response"
)

// AuditHandler serves the per-request transition history.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// History lists every recorded transition for one request.
// GET /api/review-queue/:id/history
func (h *AuditHandler) History(c *gin.Context) {
	requestID, err := pathID(c)
	if err != nil {
		response.BadRequest(c, "invalid request id")
		return
	}

	events, err := h.audit.History(requestID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"events": events})
}
