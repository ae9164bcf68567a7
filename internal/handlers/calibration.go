package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lingopair/backend/internal/services"
	"github.com/lingopair/backend/pkg/response"
)

// CalibrationHandler serves the AI-vs-human calibration report.
type CalibrationHandler struct {
	calibration *services.CalibrationService
}

func NewCalibrationHandler(calibration *services.CalibrationService) *CalibrationHandler {
	return &CalibrationHandler{calibration: calibration}
}

// Report returns per-phrase calibration stats.
// GET /api/calibration
func (h *CalibrationHandler) Report(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	report, err := h.calibration.Report(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"phrases": report})
}
