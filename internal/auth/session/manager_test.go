package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodamlabs/dodam/internal/auth/domain"
	"github.com/dodamlabs/dodam/internal/config"
)

func newTestManager() *Manager {
	return NewManager(config.Config{SessionSecret: "test-secret"})
}

func testContext(t *testing.T, cookies ...*http.Cookie) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range cookies {
		c.Request.AddCookie(cookie)
	}
	return c, w
}

func issuedCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestSessionCookieRoundTrip(t *testing.T) {
	m := newTestManager()

	c, w := testContext(t)
	m.SetSession(c, "abc123", time.Now().Add(time.Hour))
	cookie := issuedCookie(t, w, DefaultCookieName)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	c2, _ := testContext(t, cookie)
	id, ok := m.ReadSessionID(c2)
	require.True(t, ok)
	assert.Equal(t, "abc123", id)
}

func TestSessionCookieTamperRejected(t *testing.T) {
	m := newTestManager()

	c, w := testContext(t)
	m.SetSession(c, "abc123", time.Now().Add(time.Hour))
	cookie := issuedCookie(t, w, DefaultCookieName)
	cookie.Value = "zzz" + cookie.Value[3:]

	c2, _ := testContext(t, cookie)
	_, ok := m.ReadSessionID(c2)
	assert.False(t, ok)
}

func TestFlowCookieReadOnce(t *testing.T) {
	m := newTestManager()

	c, w := testContext(t)
	err := m.SetFlow(c, FlowState{
		Provider:     domain.ProviderKakao,
		State:        "state-1",
		CodeVerifier: "verifier-1",
		IssuedAt:     time.Now().Unix(),
	})
	require.NoError(t, err)
	cookie := issuedCookie(t, w, FlowCookieName)

	c2, w2 := testContext(t, cookie)
	flow, ok := m.TakeFlow(c2)
	require.True(t, ok)
	assert.Equal(t, domain.ProviderKakao, flow.Provider)
	assert.Equal(t, "state-1", flow.State)
	assert.Equal(t, "verifier-1", flow.CodeVerifier)

	// the cookie is cleared on read
	cleared := issuedCookie(t, w2, FlowCookieName)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestTakeFlowMissingCookieStillClears(t *testing.T) {
	m := newTestManager()

	c, w := testContext(t)
	_, ok := m.TakeFlow(c)
	assert.False(t, ok)
	cleared := issuedCookie(t, w, FlowCookieName)
	assert.Empty(t, cleared.Value)
}
