package domain

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionRevoked  = errors.New("session revoked")
	ErrInvalidSession  = errors.New("invalid session")

	ErrProviderNotFound = errors.New("oauth provider not found")
	ErrProviderDisabled = errors.New("oauth provider disabled")
	ErrStateMismatch    = errors.New("oauth state mismatch")
	ErrTokenExchange    = errors.New("oauth token exchange failed")
	ErrIdentityFetch    = errors.New("oauth identity fetch failed")
	ErrUserUpsertFailed = errors.New("user upsert failed")
	ErrInvalidRequest   = errors.New("invalid request")
)
