package server

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	authdomain "github.com/dodamlabs/dodam/internal/auth/domain"
	authoauth "github.com/dodamlabs/dodam/internal/auth/oauth"
	"github.com/dodamlabs/dodam/internal/auth/session"
)

const oauthErrorRedirectTo = "/login?error=oauth_login"

// OAuthLogin serves both halves of the login flow on one route: a request
// without a code starts a fresh authorization, a request with one is the
// provider callback.
func (s *Server) OAuthLogin(c *gin.Context) {
	provider := authdomain.Provider(strings.ToLower(strings.TrimSpace(c.Param("provider"))))
	if !provider.Valid() {
		AbortWithError(c, ErrNotFound)
		return
	}

	if strings.TrimSpace(c.Query("error")) != "" {
		s.logProviderError(c, provider)
		s.sessions.TakeFlow(c)
		redirectToOAuthError(c)
		return
	}

	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		if err := s.startOAuthLogin(c, provider); err != nil {
			s.handleOAuthError(c, provider, err)
		}
		return
	}

	if err := s.handleOAuthCallback(c, provider, code); err != nil {
		s.handleOAuthError(c, provider, err)
	}
}

func (s *Server) startOAuthLogin(c *gin.Context, provider authdomain.Provider) error {
	result, err := s.oauthsvc.AuthStartURL(c.Request.Context(), provider)
	if err != nil {
		return err
	}

	flow := session.FlowState{
		Provider:     provider,
		State:        result.State,
		CodeVerifier: result.CodeVerifier,
		RedirectTo:   sanitizeRedirectPath(firstNonEmpty(c.Query("redirectTo"), c.Query("redirect_to"))),
		IssuedAt:     s.clock.Now().Unix(),
	}
	if err := s.sessions.SetFlow(c, flow); err != nil {
		return err
	}

	s.obsMetrics.RecordLoginStart(c.Request.Context(), provider.String())
	c.Redirect(http.StatusFound, result.URL)
	return nil
}

func (s *Server) handleOAuthCallback(c *gin.Context, provider authdomain.Provider, code string) error {
	// The flow cookie is read-once: a replayed callback finds nothing and
	// fails state validation.
	flow, _ := s.sessions.TakeFlow(c)

	result, err := s.oauthsvc.Exchange(c.Request.Context(), provider, authoauth.ExchangeRequest{
		Code:           code,
		State:          strings.TrimSpace(c.Query("state")),
		StoredProvider: flow.Provider,
		StoredState:    flow.State,
		CodeVerifier:   flow.CodeVerifier,
	})
	if err != nil {
		s.obsMetrics.RecordTokenExchange(c.Request.Context(), provider.String(), "failure")
		return err
	}
	s.obsMetrics.RecordTokenExchange(c.Request.Context(), provider.String(), "success")

	identity := result.Identity
	identity.RefreshToken = result.RefreshToken

	user, err := s.upserter.UpsertFromSocial(c.Request.Context(), identity)
	if err != nil {
		return err
	}
	if user == nil {
		return authdomain.ErrUserUpsertFailed
	}

	sess, err := s.authsvc.IssueSession(c.Request.Context(), authdomain.IssueSessionRequest{
		UserID:        user.ID,
		UAFingerprint: uaFingerprint(c.Request.UserAgent()),
	})
	if err != nil {
		return err
	}

	s.sessions.SetSession(c, sess.ID, sess.ExpiresAt)
	s.obsMetrics.RecordSessionIssued(c.Request.Context(), provider.String())
	s.obsMetrics.RecordLoginResult(c.Request.Context(), provider.String(), "success")

	redirectTarget := sanitizeRedirectPath(flow.RedirectTo)
	if redirectTarget == "" {
		redirectTarget = "/"
	}
	c.Redirect(http.StatusFound, redirectTarget)
	return nil
}

func (s *Server) handleOAuthError(c *gin.Context, provider authdomain.Provider, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, authdomain.ErrProviderNotFound),
		errors.Is(err, authdomain.ErrProviderDisabled):
		AbortWithError(c, ErrNotFound)
	default:
		s.log.Warn("oauth login failed",
			zap.String("provider", provider.String()),
			zap.Error(err),
		)
		s.obsMetrics.RecordLoginResult(c.Request.Context(), provider.String(), "failure")
		redirectToOAuthError(c)
	}
}

// logProviderError records the error the provider sent back with the
// callback. The description is logged, never echoed to the browser.
func (s *Server) logProviderError(c *gin.Context, provider authdomain.Provider) {
	s.log.Warn("oauth provider returned error",
		zap.String("provider", provider.String()),
		zap.String("error", strings.TrimSpace(c.Query("error"))),
		zap.String("description", strings.TrimSpace(c.Query("error_description"))),
		zap.String("uri", strings.TrimSpace(c.Query("error_uri"))),
	)
	s.obsMetrics.RecordLoginResult(c.Request.Context(), provider.String(), "provider_error")
}

func redirectToOAuthError(c *gin.Context) {
	c.Redirect(http.StatusFound, oauthErrorRedirectTo)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// sanitizeRedirectPath keeps post-login redirects on-site: only rooted
// relative paths survive.
func sanitizeRedirectPath(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "//") || strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return ""
	}
	if !strings.HasPrefix(value, "/") {
		return ""
	}
	return value
}

// uaFingerprint stores a stable digest of the user agent with the session.
// It is diagnostic only; requests are not rejected on mismatch.
func uaFingerprint(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:8])
}
