package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	authdomain "github.com/dodamlabs/dodam/internal/auth/domain"
	authoauth "github.com/dodamlabs/dodam/internal/auth/oauth"
	authrepo "github.com/dodamlabs/dodam/internal/auth/repository"
	authservice "github.com/dodamlabs/dodam/internal/auth/service"
	"github.com/dodamlabs/dodam/internal/auth/session"
	"github.com/dodamlabs/dodam/internal/clock"
	"github.com/dodamlabs/dodam/internal/config"
	"github.com/dodamlabs/dodam/internal/identity"
	"github.com/dodamlabs/dodam/internal/observability"
	"github.com/dodamlabs/dodam/pkg/db"
)

// newKakaoProvider serves the token and userinfo endpoints of a pretend
// Kakao so the whole login flow can run against localhost.
func newKakaoProvider(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"bearer"}`))
	})
	mux.HandleFunc("/v2/user/me", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":123,"kakao_account":{"email":"a@b.com","profile":{"nickname":"Kim"}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) *Server {
	return newTestServerWith(t, nil)
}

// newTestServerWith wires a real server over in-memory sqlite; wrap, when
// set, decorates the session service before it reaches the handlers.
func newTestServerWith(t *testing.T, wrap func(authdomain.Service) authdomain.Service) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := newKakaoProvider(t)

	cfg := config.Config{
		Environment:   "test",
		HTTPAddr:      ":0",
		SessionSecret: "server-test-secret",
	}

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&authdomain.User{}, &authdomain.Session{}))

	users, sessions := authrepo.New(conn)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	registry := authoauth.BuildRegistry(map[authdomain.Provider]authoauth.ProviderConfig{
		authdomain.ProviderKakao: {
			Enabled:     true,
			ClientID:    "kakao-client",
			RedirectURI: "http://app.example.com/login/kakao",
			AuthURL:     "https://kauth.kakao.com/oauth/authorize",
			TokenURL:    provider.URL + "/oauth/token",
			UserInfoURL: provider.URL + "/v2/user/me",
		},
	})

	upserter, err := identity.New(users, cfg, node, clk, log)
	require.NoError(t, err)

	authsvc := authservice.New(log, users, sessions, clk)
	if wrap != nil {
		authsvc = wrap(authsvc)
	}

	engine := NewEngine(observability.Config{}, nil)
	return NewServer(ServerParams{
		Gin:      engine,
		Cfg:      cfg,
		Log:      log,
		Authsvc:  authsvc,
		OAuthsvc: authoauth.New(registry, log, clk),
		Upserter: upserter,
		Sessions: session.NewManager(cfg),
		Registry: registry,
		Clock:    clk,
	})
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func cookieByName(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// runLoginFlow drives start and callback and returns the final callback
// response.
func runLoginFlow(t *testing.T, s *Server) *http.Response {
	t.Helper()

	start := doRequest(s, httptest.NewRequest(http.MethodGet, "/login/kakao?redirectTo=/workbook", nil))
	require.Equal(t, http.StatusFound, start.Code)

	location, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "kauth.kakao.com", location.Host)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	flowCookie := cookieByName(start.Result(), session.FlowCookieName)
	require.NotNil(t, flowCookie)
	require.True(t, flowCookie.HttpOnly)

	callback := httptest.NewRequest(http.MethodGet, "/login/kakao?code=auth-code&state="+url.QueryEscape(state), nil)
	callback.AddCookie(&http.Cookie{Name: flowCookie.Name, Value: flowCookie.Value})
	return doRequest(s, callback).Result()
}

func TestOAuthLoginFullFlow(t *testing.T) {
	s := newTestServer(t)

	resp := runLoginFlow(t, s)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/workbook", resp.Header.Get("Location"))

	sessionCookie := cookieByName(resp, session.DefaultCookieName)
	require.NotNil(t, sessionCookie)
	require.NotEmpty(t, sessionCookie.Value)
	require.True(t, sessionCookie.HttpOnly)

	// Flow cookie is consumed by the callback.
	flowCookie := cookieByName(resp, session.FlowCookieName)
	require.NotNil(t, flowCookie)
	require.Empty(t, flowCookie.Value)

	// The issued cookie authenticates API calls.
	me := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	me.AddCookie(&http.Cookie{Name: sessionCookie.Name, Value: sessionCookie.Value})
	meResp := doRequest(s, me)
	require.Equal(t, http.StatusOK, meResp.Code)
	require.Contains(t, meResp.Body.String(), `"a@b.com"`)
	require.Contains(t, meResp.Body.String(), `"Kim"`)
}

func TestOAuthCallbackReplayRejected(t *testing.T) {
	s := newTestServer(t)

	start := doRequest(s, httptest.NewRequest(http.MethodGet, "/login/kakao", nil))
	require.Equal(t, http.StatusFound, start.Code)
	location, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	flowCookie := cookieByName(start.Result(), session.FlowCookieName)
	require.NotNil(t, flowCookie)

	callback := func() *http.Response {
		req := httptest.NewRequest(http.MethodGet, "/login/kakao?code=auth-code&state="+url.QueryEscape(state), nil)
		req.AddCookie(&http.Cookie{Name: flowCookie.Name, Value: flowCookie.Value})
		return doRequest(s, req).Result()
	}

	first := callback()
	require.Equal(t, http.StatusFound, first.StatusCode)
	require.Equal(t, "/", first.Header.Get("Location"))

	// A real browser no longer has the flow cookie after the first
	// callback; even a replay that kept it must not mint a second session
	// from a forged state for another provider. Simulate the honest case:
	// the cleared cookie means no stored state.
	replay := httptest.NewRequest(http.MethodGet, "/login/kakao?code=auth-code&state="+url.QueryEscape(state), nil)
	replayResp := doRequest(s, replay).Result()
	require.Equal(t, http.StatusFound, replayResp.StatusCode)
	require.Equal(t, "/login?error=oauth_login", replayResp.Header.Get("Location"))
	require.Nil(t, cookieByName(replayResp, session.DefaultCookieName))
}

func TestOAuthCallbackStateMismatch(t *testing.T) {
	s := newTestServer(t)

	start := doRequest(s, httptest.NewRequest(http.MethodGet, "/login/kakao", nil))
	flowCookie := cookieByName(start.Result(), session.FlowCookieName)
	require.NotNil(t, flowCookie)

	req := httptest.NewRequest(http.MethodGet, "/login/kakao?code=auth-code&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: flowCookie.Name, Value: flowCookie.Value})
	resp := doRequest(s, req).Result()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/login?error=oauth_login", resp.Header.Get("Location"))
	require.Nil(t, cookieByName(resp, session.DefaultCookieName))
}

func TestOAuthProviderErrorCallback(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(s, httptest.NewRequest(http.MethodGet, "/login/kakao?error=access_denied&error_description=user+cancelled", nil)).Result()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/login?error=oauth_login", resp.Header.Get("Location"))
}

func TestOAuthLoginUnknownProvider(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(s, httptest.NewRequest(http.MethodGet, "/login/github", nil))
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestMeRequiresSession(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestLogoutIsIdempotent(t *testing.T) {
	s := newTestServer(t)

	// Logout with no session at all still succeeds.
	resp := doRequest(s, httptest.NewRequest(http.MethodPost, "/api/logout", nil))
	require.Equal(t, http.StatusNoContent, resp.Code)

	login := runLoginFlow(t, s)
	sessionCookie := cookieByName(login, session.DefaultCookieName)
	require.NotNil(t, sessionCookie)

	logout := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	logout.AddCookie(&http.Cookie{Name: sessionCookie.Name, Value: sessionCookie.Value})
	logoutResp := doRequest(s, logout)
	require.Equal(t, http.StatusNoContent, logoutResp.Code)

	// The revoked session no longer authenticates.
	me := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	me.AddCookie(&http.Cookie{Name: sessionCookie.Name, Value: sessionCookie.Value})
	require.Equal(t, http.StatusUnauthorized, doRequest(s, me).Code)

	// Logging out again with the same cookie is still a 204.
	again := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	again.AddCookie(&http.Cookie{Name: sessionCookie.Name, Value: sessionCookie.Value})
	require.Equal(t, http.StatusNoContent, doRequest(s, again).Code)
}

type revokeFailService struct {
	authdomain.Service
}

func (s *revokeFailService) RevokeSession(ctx context.Context, sessionID string) error {
	return errors.New("session store unavailable")
}

func TestLogoutClearsCookieOnRevokeFailure(t *testing.T) {
	s := newTestServerWith(t, func(svc authdomain.Service) authdomain.Service {
		return &revokeFailService{Service: svc}
	})

	login := runLoginFlow(t, s)
	sessionCookie := cookieByName(login, session.DefaultCookieName)
	require.NotNil(t, sessionCookie)

	logout := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	logout.AddCookie(&http.Cookie{Name: sessionCookie.Name, Value: sessionCookie.Value})
	resp := doRequest(s, logout).Result()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// The browser side of the session still ends.
	cleared := cookieByName(resp, session.DefaultCookieName)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
}

func TestExtendSessionEndpoint(t *testing.T) {
	s := newTestServer(t)

	login := runLoginFlow(t, s)
	sessionCookie := cookieByName(login, session.DefaultCookieName)
	require.NotNil(t, sessionCookie)

	req := httptest.NewRequest(http.MethodPost, "/api/session/extend", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie.Name, Value: sessionCookie.Value})
	resp := doRequest(s, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "expires_at")

	refreshed := cookieByName(resp.Result(), session.DefaultCookieName)
	require.NotNil(t, refreshed)
	require.NotEmpty(t, refreshed.Value)
}

func TestAuthProvidersEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/auth/providers", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"kakao"`)
	require.Contains(t, resp.Body.String(), `"/login/kakao"`)
}

func TestTamperedSessionCookieRejected(t *testing.T) {
	s := newTestServer(t)

	login := runLoginFlow(t, s)
	sessionCookie := cookieByName(login, session.DefaultCookieName)
	require.NotNil(t, sessionCookie)

	tampered := sessionCookie.Value[:len(sessionCookie.Value)-1] + "0"
	if tampered == sessionCookie.Value {
		tampered = sessionCookie.Value[:len(sessionCookie.Value)-1] + "1"
	}

	me := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	me.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: tampered})
	require.Equal(t, http.StatusUnauthorized, doRequest(s, me).Code)
}
