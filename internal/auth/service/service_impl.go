package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/dodamlabs/dodam/internal/auth/domain"
	"github.com/dodamlabs/dodam/internal/clock"
	"go.uber.org/zap"
)

const sessionIDBytes = 16

type Service struct {
	log      *zap.Logger
	users    domain.UserRepository
	sessions domain.SessionRepository
	clock    clock.Clock
}

func New(log *zap.Logger, users domain.UserRepository, sessions domain.SessionRepository, clk clock.Clock) domain.Service {
	return &Service{
		log:      log.Named("auth.service"),
		users:    users,
		sessions: sessions,
		clock:    clk,
	}
}

func (s *Service) IssueSession(ctx context.Context, req domain.IssueSessionRequest) (*domain.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:            id,
		UserID:        req.UserID,
		UAFingerprint: strings.TrimSpace(req.UAFingerprint),
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
		LastSeenAt:    now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.log.Debug("session issued",
		zap.String("user_id", req.UserID.String()),
		zap.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

func (s *Service) Authenticate(ctx context.Context, sessionID string) (*domain.Session, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	if err := s.sessions.UpdateLastSeen(ctx, session.ID, now); err != nil {
		return nil, err
	}
	session.LastSeenAt = now

	return session, nil
}

func (s *Service) SessionUser(ctx context.Context, sessionID string) (*domain.User, error) {
	session, err := s.Authenticate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) ExtendSession(ctx context.Context, sessionID string, d time.Duration) (*domain.Session, error) {
	session, err := s.Authenticate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if d <= 0 {
		d = domain.DefaultExtension
	}

	expiresAt := s.clock.Now().Add(d)
	if err := s.sessions.UpdateExpiry(ctx, session.ID, expiresAt); err != nil {
		return nil, err
	}
	session.ExpiresAt = expiresAt
	return session, nil
}

func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil
	}

	err := s.sessions.RevokeSession(ctx, id, s.clock.Now())
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	return nil
}

func newSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
