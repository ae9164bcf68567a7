package services

import (
	"time"

	"github.com/lingopair/backend/internal/models"
	"github.com/lingopair/backend/pkg/logger"
	"gorm.io/gorm"
)

// recordEvent appends an audit row for a request transition using the same
// transaction handle as the transition itself, so the trail never disagrees
// with the state it describes.
func recordEvent(tx *gorm.DB, req *models.ReviewRequest, from models.RequestStatus, actor *uint, reason string, at time.Time) {
	event := &models.QueueEvent{
		RequestID:   req.ID,
		FromStatus:  from,
		ToStatus:    req.Status,
		Phase:       req.Phase,
		ActorUserID: actor,
		Reason:      reason,
		CreatedAt:   at,
	}
	if err := tx.Create(event).Error; err != nil {
		// The audit trail must never fail a state transition.
		logger.Warnf("[Audit] failed to record event for request %d: %v", req.ID, err)
	}
}

// AuditService exposes the transition trail for a request.
type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// History returns the transition events for one request, oldest first.
func (s *AuditService) History(requestID uint) ([]models.QueueEvent, error) {
	var events []models.QueueEvent
	err := s.db.
		Where("request_id = ?", requestID).
		Order("id asc").
		Find(&events).Error
	return events, err
}
