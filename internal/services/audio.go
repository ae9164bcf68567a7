package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lingopair/backend/internal/clock"
	"github.com/lingopair/backend/internal/config"
	"github.com/lingopair/backend/internal/models"
	"gorm.io/gorm"
)

// AudioService registers audio assets and resolves their public URLs. The
// object store itself is external; this service only tracks storage keys.
type AudioService struct {
	db  *gorm.DB
	cfg config.StorageConfig
	clk clock.Clock
}

func NewAudioService(db *gorm.DB, cfg config.StorageConfig, clk clock.Clock) *AudioService {
	return &AudioService{db: db, cfg: cfg, clk: clk}
}

// Register creates an asset row with a fresh storage key. The client uploads
// the object against the returned key out of band.
func (s *AudioService) Register(ctx context.Context, userID uint, mimeType string) (*models.AudioAsset, error) {
	asset := &models.AudioAsset{
		UserID:     userID,
		StorageKey: uuid.NewString(),
		MimeType:   mimeType,
		CreatedAt:  s.clk.Now(),
	}
	if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, fmt.Errorf("failed to register audio asset: %w", err)
	}
	return asset, nil
}

// URL returns the public URL for an asset, or nil when the asset is absent.
func (s *AudioService) URL(asset *models.AudioAsset) *string {
	if asset == nil || asset.StorageKey == "" {
		return nil
	}
	u := strings.TrimSuffix(s.cfg.BaseURL, "/") + "/" + asset.StorageKey
	return &u
}

// URLForID resolves an asset ID to its public URL; nil when missing.
func (s *AudioService) URLForID(tx *gorm.DB, id uint) *string {
	var asset models.AudioAsset
	if err := tx.First(&asset, id).Error; err != nil {
		return nil
	}
	return s.URL(&asset)
}

// OwnedAsset loads an asset and verifies ownership.
func (s *AudioService) OwnedAsset(tx *gorm.DB, id, userID uint) (*models.AudioAsset, error) {
	var asset models.AudioAsset
	if err := tx.First(&asset, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if asset.UserID != userID {
		return nil, ErrNotAuthorized
	}
	return &asset, nil
}
