package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dodamlabs/dodam/internal/auth/domain"
	"github.com/dodamlabs/dodam/internal/clock"
)

func newTestService(t *testing.T, cfgs map[domain.Provider]ProviderConfig) Service {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return New(BuildRegistry(cfgs), zap.NewNop(), clk)
}

func kakaoTestConfig(tokenURL, userInfoURL string) ProviderConfig {
	return ProviderConfig{
		Enabled:     true,
		ClientID:    "kakao-client",
		RedirectURI: "https://app.example.com/login/kakao",
		AuthURL:     "https://kauth.kakao.com/oauth/authorize",
		TokenURL:    tokenURL,
		UserInfoURL: userInfoURL,
		Scopes:      []string{"profile_nickname", "account_email"},
	}
}

func TestAuthStartURLContainsPKCEParams(t *testing.T) {
	svc := newTestService(t, map[domain.Provider]ProviderConfig{
		domain.ProviderKakao: kakaoTestConfig("https://kauth.kakao.com/oauth/token", "https://kapi.kakao.com/v2/user/me"),
	})

	result, err := svc.AuthStartURL(context.Background(), domain.ProviderKakao)
	require.NoError(t, err)

	parsed, err := url.Parse(result.URL)
	require.NoError(t, err)
	query := parsed.Query()

	require.Equal(t, "code", query.Get("response_type"))
	require.Equal(t, "kakao-client", query.Get("client_id"))
	require.Equal(t, "https://app.example.com/login/kakao", query.Get("redirect_uri"))
	require.Equal(t, result.State, query.Get("state"))
	require.Equal(t, "S256", query.Get("code_challenge_method"))
	require.Contains(t, query.Get("scope"), "profile_nickname")

	sum := sha256.Sum256([]byte(result.CodeVerifier))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), query.Get("code_challenge"))
	require.Equal(t, result.CodeChallenge, query.Get("code_challenge"))

	// Entropy floors from RFC 7636.
	require.GreaterOrEqual(t, len(result.State), 16)
	require.GreaterOrEqual(t, len(result.CodeVerifier), 43)
}

func TestAuthStartURLIsUniquePerAttempt(t *testing.T) {
	svc := newTestService(t, map[domain.Provider]ProviderConfig{
		domain.ProviderKakao: kakaoTestConfig("https://kauth.kakao.com/oauth/token", "https://kapi.kakao.com/v2/user/me"),
	})

	first, err := svc.AuthStartURL(context.Background(), domain.ProviderKakao)
	require.NoError(t, err)
	second, err := svc.AuthStartURL(context.Background(), domain.ProviderKakao)
	require.NoError(t, err)

	require.NotEqual(t, first.State, second.State)
	require.NotEqual(t, first.CodeVerifier, second.CodeVerifier)
}

func TestAuthStartURLUnknownAndDisabledProvider(t *testing.T) {
	svc := newTestService(t, map[domain.Provider]ProviderConfig{
		domain.ProviderNaver: {Enabled: false, ClientID: "naver-client"},
	})

	_, err := svc.AuthStartURL(context.Background(), domain.ProviderKakao)
	require.ErrorIs(t, err, domain.ErrProviderNotFound)

	_, err = svc.AuthStartURL(context.Background(), domain.ProviderNaver)
	require.ErrorIs(t, err, domain.ErrProviderDisabled)

	_, err = svc.AuthStartURL(context.Background(), domain.Provider("github"))
	require.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestExchangeRejectsStateMismatch(t *testing.T) {
	cfgs := map[domain.Provider]ProviderConfig{
		domain.ProviderKakao: kakaoTestConfig("https://kauth.kakao.com/oauth/token", "https://kapi.kakao.com/v2/user/me"),
		domain.ProviderNaver: {
			Enabled:     true,
			ClientID:    "naver-client",
			RedirectURI: "https://app.example.com/login/naver",
			AuthURL:     "https://nid.naver.com/oauth2.0/authorize",
			TokenURL:    "https://nid.naver.com/oauth2.0/token",
			UserInfoURL: "https://openapi.naver.com/v1/nid/me",
		},
	}
	svc := newTestService(t, cfgs)

	// No stored flow at all.
	_, err := svc.Exchange(context.Background(), domain.ProviderKakao, ExchangeRequest{
		Code:  "code",
		State: "s1",
	})
	require.ErrorIs(t, err, domain.ErrStateMismatch)

	// Callback state differs from the stored one.
	_, err = svc.Exchange(context.Background(), domain.ProviderKakao, ExchangeRequest{
		Code:           "code",
		State:          "s1",
		StoredProvider: domain.ProviderKakao,
		StoredState:    "s2",
	})
	require.ErrorIs(t, err, domain.ErrStateMismatch)

	// State stolen from a flow started for another provider.
	_, err = svc.Exchange(context.Background(), domain.ProviderNaver, ExchangeRequest{
		Code:           "code",
		State:          "s1",
		StoredProvider: domain.ProviderKakao,
		StoredState:    "s1",
	})
	require.ErrorIs(t, err, domain.ErrStateMismatch)
}

func TestExchangeRejectsMissingCode(t *testing.T) {
	svc := newTestService(t, map[domain.Provider]ProviderConfig{
		domain.ProviderKakao: kakaoTestConfig("https://kauth.kakao.com/oauth/token", "https://kapi.kakao.com/v2/user/me"),
	})

	_, err := svc.Exchange(context.Background(), domain.ProviderKakao, ExchangeRequest{
		State:          "s1",
		StoredProvider: domain.ProviderKakao,
		StoredState:    "s1",
	})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestExchangeKakaoEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, "auth-code", r.PostForm.Get("code"))
		require.Equal(t, "verifier-123", r.PostForm.Get("code_verifier"))
		require.Equal(t, "kakao-client", r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","refresh_token":"rt-1","token_type":"bearer"}`))
	})
	mux.HandleFunc("/v2/user/me", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer abc", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":123,"kakao_account":{"email":"a@b.com","profile":{"nickname":"Kim"}}}`))
	})
	provider := httptest.NewServer(mux)
	defer provider.Close()

	svc := newTestService(t, map[domain.Provider]ProviderConfig{
		domain.ProviderKakao: kakaoTestConfig(provider.URL+"/oauth/token", provider.URL+"/v2/user/me"),
	})

	result, err := svc.Exchange(context.Background(), domain.ProviderKakao, ExchangeRequest{
		Code:           "auth-code",
		State:          "state-1",
		StoredProvider: domain.ProviderKakao,
		StoredState:    "state-1",
		CodeVerifier:   "verifier-123",
	})
	require.NoError(t, err)

	require.Equal(t, "abc", result.AccessToken)
	require.Equal(t, "rt-1", result.RefreshToken)

	identity := result.Identity
	require.Equal(t, domain.ProviderKakao, identity.Provider)
	require.Equal(t, "123", identity.ProviderUserID)
	require.NotNil(t, identity.Email)
	require.Equal(t, "a@b.com", *identity.Email)
	require.NotNil(t, identity.DisplayName)
	require.Equal(t, "Kim", *identity.DisplayName)
	require.Equal(t, "rt-1", identity.RefreshToken)
}

func TestExchangeTokenEndpointRejection(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer provider.Close()

	svc := newTestService(t, map[domain.Provider]ProviderConfig{
		domain.ProviderKakao: kakaoTestConfig(provider.URL, provider.URL),
	})

	_, err := svc.Exchange(context.Background(), domain.ProviderKakao, ExchangeRequest{
		Code:           "auth-code",
		State:          "s1",
		StoredProvider: domain.ProviderKakao,
		StoredState:    "s1",
	})
	require.ErrorIs(t, err, domain.ErrTokenExchange)
}

func TestExchangeUserInfoRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc"}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	provider := httptest.NewServer(mux)
	defer provider.Close()

	svc := newTestService(t, map[domain.Provider]ProviderConfig{
		domain.ProviderKakao: kakaoTestConfig(provider.URL+"/token", provider.URL+"/userinfo"),
	})

	_, err := svc.Exchange(context.Background(), domain.ProviderKakao, ExchangeRequest{
		Code:           "auth-code",
		State:          "s1",
		StoredProvider: domain.ProviderKakao,
		StoredState:    "s1",
	})
	require.ErrorIs(t, err, domain.ErrIdentityFetch)
}

func TestExchangeEmptyTokenResponse(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer provider.Close()

	svc := newTestService(t, map[domain.Provider]ProviderConfig{
		domain.ProviderKakao: kakaoTestConfig(provider.URL, provider.URL),
	})

	_, err := svc.Exchange(context.Background(), domain.ProviderKakao, ExchangeRequest{
		Code:           "auth-code",
		State:          "s1",
		StoredProvider: domain.ProviderKakao,
		StoredState:    "s1",
	})
	require.ErrorIs(t, err, domain.ErrTokenExchange)
}
