package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/lingopair/backend/internal/middleware"
	"github.com/lingopair/backend/internal/services"
	"github.com/lingopair/backend/pkg/response"
)

// VerifierHandler exposes verifier profile and language membership
// management.
type VerifierHandler struct {
	verifier *services.VerifierService
}

func NewVerifierHandler(verifier *services.VerifierService) *VerifierHandler {
	return &VerifierHandler{verifier: verifier}
}

type upsertProfileRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	AvatarURL string `json:"avatar_url"`
}

// UpsertProfile creates or updates the caller's verifier profile.
// PUT /api/verifier/profile
func (h *VerifierHandler) UpsertProfile(c *gin.Context) {
	var req upsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.verifier.UpsertProfile(c.Request.Context(), middleware.GetUserID(c), req.FirstName, req.AvatarURL); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"updated": true})
}

type setLanguageRequest struct {
	Active bool `json:"active"`
}

// SetLanguage activates or deactivates the caller for one language.
// PUT /api/verifier/languages/:code
func (h *VerifierHandler) SetLanguage(c *gin.Context) {
	var req setLanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.verifier.SetLanguageActive(c.Request.Context(), middleware.GetUserID(c), c.Param("code"), req.Active); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"updated": true})
}

// State returns the caller's profile and language memberships.
// GET /api/verifier/state
func (h *VerifierHandler) State(c *gin.Context) {
	state, err := h.verifier.State(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, state)
}
