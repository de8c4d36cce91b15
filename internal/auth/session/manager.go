// Package session manages the signed auth cookies: the long-lived session
// cookie and the short-lived one-shot OAuth flow cookie.
package session

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dodamlabs/dodam/internal/auth/domain"
	"github.com/dodamlabs/dodam/internal/auth/signer"
	"github.com/dodamlabs/dodam/internal/config"
)

const (
	DefaultCookieName = "_sid"
	FlowCookieName    = "_oauth_flow"

	// FlowTTL bounds one authorization attempt.
	FlowTTL = 10 * time.Minute
)

// FlowState is the transient OAuth attempt state round-tripped through the
// signed flow cookie instead of a server-side store.
type FlowState struct {
	Provider     domain.Provider `json:"provider"`
	State        string          `json:"state"`
	CodeVerifier string          `json:"code_verifier"`
	RedirectTo   string          `json:"redirect_to,omitempty"`
	IssuedAt     int64           `json:"issued_at"`
}

// Manager signs, sets and reads the auth cookies.
type Manager struct {
	cookieName string
	signer     *signer.Signer
	secure     bool
	domain     string
}

func NewManager(cfg config.Config) *Manager {
	return &Manager{
		cookieName: DefaultCookieName,
		signer:     signer.New(cfg.SessionSecret),
		secure:     cfg.CookieSecure,
		domain:     cfg.CookieDomain,
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// ReadSessionID returns the verified session id from the cookie, if any.
// Missing, empty and tampered cookies are indistinguishable to the caller.
func (m *Manager) ReadSessionID(c *gin.Context) (string, bool) {
	token, err := c.Cookie(m.cookieName)
	if err != nil || strings.TrimSpace(token) == "" {
		return "", false
	}
	return m.signer.Unsign(token)
}

// SetSession writes the signed session id cookie with the given expiry.
func (m *Manager) SetSession(c *gin.Context, sessionID string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	m.set(c, m.cookieName, m.signer.Sign(sessionID), maxAge)
}

// ClearSession expires the session cookie. Safe to call without a session.
func (m *Manager) ClearSession(c *gin.Context) {
	m.set(c, m.cookieName, "", -1)
}

// SetFlow replaces any in-flight OAuth attempt with the given state. At most
// one flow is in flight per browser.
func (m *Manager) SetFlow(c *gin.Context, flow FlowState) error {
	payload, err := json.Marshal(flow)
	if err != nil {
		return err
	}
	m.set(c, FlowCookieName, m.signer.Sign(string(payload)), int(FlowTTL.Seconds()))
	return nil
}

// TakeFlow reads the flow cookie and always clears it, whether or not the
// value verifies. A replayed callback therefore never sees the state twice.
func (m *Manager) TakeFlow(c *gin.Context) (FlowState, bool) {
	token, err := c.Cookie(FlowCookieName)
	m.set(c, FlowCookieName, "", -1)
	if err != nil || strings.TrimSpace(token) == "" {
		return FlowState{}, false
	}

	payload, ok := m.signer.Unsign(token)
	if !ok {
		return FlowState{}, false
	}

	var flow FlowState
	if err := json.Unmarshal([]byte(payload), &flow); err != nil {
		return FlowState{}, false
	}
	return flow, true
}

func (m *Manager) set(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", m.domain, m.secure, true)
}
