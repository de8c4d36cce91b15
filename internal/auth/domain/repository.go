package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	FindByProviderIdentity(ctx context.Context, provider Provider, providerUserID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	UpdateLastSeen(ctx context.Context, id string, lastSeen time.Time) error
	RevokeSession(ctx context.Context, id string, revokedAt time.Time) error
}
