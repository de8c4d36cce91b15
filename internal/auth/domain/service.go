package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DefaultSessionTTL is the default lifetime of a freshly issued session.
const DefaultSessionTTL = 30 * 24 * time.Hour

// DefaultExtension is the default sliding-expiration window.
const DefaultExtension = 24 * time.Hour

// Service manages persisted login sessions. It is cookie-agnostic: callers
// hand it raw session ids recovered from the signed cookie.
type Service interface {
	// IssueSession creates a session row with a fresh random id and returns it.
	IssueSession(ctx context.Context, req IssueSessionRequest) (*Session, error)

	// Authenticate resolves a raw session id to an active session. Unknown,
	// expired and revoked ids all fail; it also touches last_seen_at.
	Authenticate(ctx context.Context, sessionID string) (*Session, error)

	// SessionUser composes Authenticate with a user lookup.
	SessionUser(ctx context.Context, sessionID string) (*User, error)

	// ExtendSession moves the expiry of an active session to now+d.
	ExtendSession(ctx context.Context, sessionID string, d time.Duration) (*Session, error)

	// RevokeSession marks the session revoked. Unknown or already revoked
	// ids are not an error.
	RevokeSession(ctx context.Context, sessionID string) error
}

type IssueSessionRequest struct {
	UserID        snowflake.ID
	TTL           time.Duration // DefaultSessionTTL when zero
	UAFingerprint string
}

// Upserter is the identity-persistence collaborator: given a normalized
// social identity it creates or updates the matching user.
type Upserter interface {
	UpsertFromSocial(ctx context.Context, identity SocialIdentity) (*User, error)
}
