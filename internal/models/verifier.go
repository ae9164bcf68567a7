package models

import "time"

// VerifierProfile is the display identity a verifier publishes to learners.
type VerifierProfile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	FirstName string    `gorm:"size:100;not null" json:"first_name"`
	AvatarURL string    `gorm:"size:500" json:"avatar_url"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (VerifierProfile) TableName() string { return "verifier_profiles" }

// VerifierLanguageMembership authorizes one verifier for one language.
// ClaimNext requires an active membership for the requested language.
type VerifierLanguageMembership struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex:idx_memberships_user_lang,priority:1;not null" json:"user_id"`
	LanguageCode string    `gorm:"size:16;uniqueIndex:idx_memberships_user_lang,priority:2;not null" json:"language_code"`
	Active       bool      `gorm:"default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (VerifierLanguageMembership) TableName() string { return "verifier_language_memberships" }
