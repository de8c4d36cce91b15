// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Provider identifies a social login provider.
type Provider string

const (
	ProviderKakao  Provider = "kakao"
	ProviderNaver  Provider = "naver"
	ProviderGoogle Provider = "google"
	ProviderApple  Provider = "apple"
)

// Providers lists every supported provider in a stable order.
var Providers = []Provider{ProviderKakao, ProviderNaver, ProviderGoogle, ProviderApple}

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderKakao, ProviderNaver, ProviderGoogle, ProviderApple:
		return true
	}
	return false
}

func (p Provider) String() string { return string(p) }

// User represents a platform member. Accounts are created exclusively through
// social login; one row per distinct (provider, provider_user_id) pair.
type User struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	Provider        string            `gorm:"column:provider;type:text;not null;uniqueIndex:ux_users_provider_identity"`
	ProviderUserID  string            `gorm:"column:provider_user_id;type:text;not null;uniqueIndex:ux_users_provider_identity"`
	Email           *string           `gorm:"column:email;index"`
	DisplayName     *string           `gorm:"column:display_name;type:text"`
	AvatarURL       *string           `gorm:"column:avatar_url;type:text"`
	IsAdmin         bool              `gorm:"column:is_admin;not null;default:false"`
	RefreshTokenEnc *string           `gorm:"column:refresh_token_enc;type:text"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt       time.Time         `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Session represents a persisted login session. The ID is the opaque random
// token carried (signed) in the session cookie; ids are never reused and rows
// are never hard-deleted, only revoked.
type Session struct {
	ID            string       `gorm:"primaryKey;type:text"`
	UserID        snowflake.ID `gorm:"column:user_id;not null;index"`
	UAFingerprint string       `gorm:"column:ua_fingerprint;type:text"`
	ExpiresAt     time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt     *time.Time   `gorm:"column:revoked_at"`
	CreatedAt     time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	LastSeenAt    time.Time    `gorm:"column:last_seen_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// Active reports whether the session is usable at the given instant.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// SocialIdentity is the normalized shape every provider profile is mapped
// into before reaching the identity upserter.
type SocialIdentity struct {
	Provider       Provider
	ProviderUserID string
	Email          *string
	DisplayName    *string
	AvatarURL      *string
	RefreshToken   string
	RawClaims      map[string]any
}
