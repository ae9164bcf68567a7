package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lingopair/backend/internal/clock"
	"github.com/lingopair/backend/internal/languages"
	"github.com/lingopair/backend/internal/models"
	"gorm.io/gorm"
)

// VerifierService manages verifier display profiles and per-language
// membership, and answers the authorization question ClaimNext asks.
type VerifierService struct {
	db  *gorm.DB
	clk clock.Clock
}

func NewVerifierService(db *gorm.DB, clk clock.Clock) *VerifierService {
	return &VerifierService{db: db, clk: clk}
}

// UpsertProfile creates or refreshes the caller's display identity.
func (s *VerifierService) UpsertProfile(ctx context.Context, userID uint, firstName, avatarURL string) error {
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		return fmt.Errorf("first name is required")
	}
	now := s.clk.Now()

	var profile models.VerifierProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = models.VerifierProfile{
			UserID:    userID,
			FirstName: firstName,
			AvatarURL: avatarURL,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.db.WithContext(ctx).Create(&profile).Error
	}
	if err != nil {
		return err
	}

	profile.FirstName = firstName
	profile.AvatarURL = avatarURL
	profile.Active = true
	profile.UpdatedAt = now
	return s.db.WithContext(ctx).Save(&profile).Error
}

// SetLanguageActive toggles the caller's membership for one language.
func (s *VerifierService) SetLanguageActive(ctx context.Context, userID uint, languageCode string, active bool) error {
	lang := languages.Normalize(languageCode)
	if lang == nil {
		return ErrUnsupportedLanguage
	}
	now := s.clk.Now()

	var membership models.VerifierLanguageMembership
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND language_code = ?", userID, lang.BCP47).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		membership = models.VerifierLanguageMembership{
			UserID:       userID,
			LanguageCode: lang.BCP47,
			Active:       active,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return s.db.WithContext(ctx).Create(&membership).Error
	}
	if err != nil {
		return err
	}

	membership.Active = active
	membership.UpdatedAt = now
	return s.db.WithContext(ctx).Save(&membership).Error
}

// VerifierState is the caller's profile plus language memberships.
type VerifierState struct {
	Profile   *VerifierProfileView    `json:"profile"`
	Languages []VerifierLanguageState `json:"languages"`
}

type VerifierProfileView struct {
	FirstName string `json:"first_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Active    bool   `json:"active"`
}

type VerifierLanguageState struct {
	LanguageCode string `json:"language_code"`
	Active       bool   `json:"active"`
}

// State returns the caller's verifier profile and memberships.
func (s *VerifierService) State(ctx context.Context, userID uint) (*VerifierState, error) {
	state := &VerifierState{Languages: []VerifierLanguageState{}}

	var profile models.VerifierProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err == nil {
		state.Profile = &VerifierProfileView{
			FirstName: profile.FirstName,
			AvatarURL: profile.AvatarURL,
			Active:    profile.Active,
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var memberships []models.VerifierLanguageMembership
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, err
	}
	for _, m := range memberships {
		state.Languages = append(state.Languages, VerifierLanguageState{
			LanguageCode: m.LanguageCode,
			Active:       m.Active,
		})
	}
	return state, nil
}

// assertLanguageAccess returns ErrNotAuthorized unless userID holds an
// active membership for languageCode (already normalized).
func assertLanguageAccess(tx *gorm.DB, userID uint, languageCode string) error {
	var membership models.VerifierLanguageMembership
	err := tx.Where("user_id = ? AND language_code = ?", userID, languageCode).First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotAuthorized
	}
	if err != nil {
		return err
	}
	if !membership.Active {
		return ErrNotAuthorized
	}
	return nil
}

// profileSnapshot returns the display identity to denormalize onto a
// Review. Falls back to a generic name when no profile exists.
func profileSnapshot(tx *gorm.DB, userID uint) (firstName, avatarURL string) {
	var profile models.VerifierProfile
	if err := tx.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return "Verifier", ""
	}
	return profile.FirstName, profile.AvatarURL
}
