package oauth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dodamlabs/dodam/internal/auth/domain"
	"github.com/dodamlabs/dodam/internal/clock"
	obstracing "github.com/dodamlabs/dodam/internal/observability/tracing"
)

const (
	// RFC 7636: state and verifier entropy.
	stateTokenBytes   = 16
	codeVerifierBytes = 48

	// exchangeTimeout bounds every outbound call to a provider so a hung
	// endpoint cannot pin a request.
	exchangeTimeout = 15 * time.Second
)

type Service interface {
	// AuthStartURL builds the provider's authorization URL for a fresh
	// attempt. The caller persists State and CodeVerifier in the signed
	// flow cookie and redirects the browser to URL.
	AuthStartURL(ctx context.Context, provider domain.Provider) (*StartResult, error)

	// Exchange validates the callback against the stored flow state,
	// exchanges the code for tokens and returns the normalized identity.
	Exchange(ctx context.Context, provider domain.Provider, req ExchangeRequest) (*ExchangeResult, error)
}

type StartResult struct {
	URL           string
	State         string
	CodeVerifier  string
	CodeChallenge string
}

type ExchangeRequest struct {
	Code  string
	State string

	// Stored* come from the flow cookie, never from callback params.
	StoredProvider domain.Provider
	StoredState    string
	CodeVerifier   string
}

type ExchangeResult struct {
	Identity     domain.SocialIdentity
	AccessToken  string
	RefreshToken string
}

type service struct {
	registry   Registry
	log        *zap.Logger
	clock      clock.Clock
	httpClient *http.Client
}

func New(registry Registry, log *zap.Logger, clk clock.Clock) Service {
	return &service{
		registry:   registry,
		log:        log.Named("auth.oauth"),
		clock:      clk,
		httpClient: obstracing.WrapHTTPClient(&http.Client{Timeout: exchangeTimeout}),
	}
}

func (s *service) AuthStartURL(ctx context.Context, provider domain.Provider) (*StartResult, error) {
	_ = ctx

	cfg, err := s.registry.Lookup(provider)
	if err != nil {
		return nil, err
	}

	state, err := randomToken(stateTokenBytes)
	if err != nil {
		return nil, err
	}
	verifier, err := randomToken(codeVerifierBytes)
	if err != nil {
		return nil, err
	}
	challenge := pkceChallenge(verifier)

	authURL, err := buildAuthURL(cfg, state, challenge)
	if err != nil {
		return nil, err
	}

	return &StartResult{
		URL:           authURL,
		State:         state,
		CodeVerifier:  verifier,
		CodeChallenge: challenge,
	}, nil
}

func (s *service) Exchange(ctx context.Context, provider domain.Provider, req ExchangeRequest) (*ExchangeResult, error) {
	cfg, err := s.registry.Lookup(provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, domain.ErrInvalidRequest
	}

	// CSRF defense: the callback state must match the one stored in the
	// httpOnly flow cookie, for the same provider the flow was started for.
	if req.StoredState == "" || req.StoredProvider != provider || !constantEquals(req.State, req.StoredState) {
		return nil, domain.ErrStateMismatch
	}

	token, err := s.exchangeCode(ctx, cfg, req.Code, req.CodeVerifier)
	if err != nil {
		return nil, err
	}

	identity, err := s.fetchIdentity(ctx, cfg, token)
	if err != nil {
		return nil, err
	}
	identity.RefreshToken = token.RefreshToken

	return &ExchangeResult{
		Identity:     identity,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

func buildAuthURL(cfg ProviderConfig, state, challenge string) (string, error) {
	parsed, err := url.Parse(cfg.AuthURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("response_type", "code")
	query.Set("client_id", cfg.ClientID)
	query.Set("redirect_uri", cfg.RedirectURI)
	if len(cfg.Scopes) > 0 {
		query.Set("scope", strings.Join(cfg.Scopes, " "))
	}
	query.Set("state", state)
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", "S256")
	for key, values := range cfg.AuthExtras {
		for _, value := range values {
			query.Set(key, value)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (s *service) exchangeCode(ctx context.Context, cfg ProviderConfig, code, verifier string) (*tokenResponse, error) {
	clientSecret := cfg.ClientSecret
	if cfg.Provider == domain.ProviderApple {
		secret, err := BuildAppleClientSecret(*cfg.Apple, s.clock.Now())
		if err != nil {
			return nil, err
		}
		clientSecret = secret
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", cfg.RedirectURI)
	form.Set("client_id", cfg.ClientID)
	if clientSecret != "" {
		form.Set("client_secret", clientSecret)
	}
	form.Set("code_verifier", verifier)

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenExchange, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenExchange, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		s.log.Warn("token exchange rejected",
			zap.String("provider", cfg.Provider.String()),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, fmt.Errorf("%w: status=%d", domain.ErrTokenExchange, resp.StatusCode)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: malformed token response", domain.ErrTokenExchange)
	}
	if token.AccessToken == "" && token.IDToken == "" {
		return nil, fmt.Errorf("%w: empty token response", domain.ErrTokenExchange)
	}
	return &token, nil
}

func (s *service) fetchIdentity(ctx context.Context, cfg ProviderConfig, token *tokenResponse) (domain.SocialIdentity, error) {
	if cfg.Provider == domain.ProviderApple {
		return appleIdentity(token.IDToken)
	}

	if strings.TrimSpace(token.AccessToken) == "" {
		return domain.SocialIdentity{}, domain.ErrIdentityFetch
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.UserInfoURL, nil)
	if err != nil {
		return domain.SocialIdentity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.SocialIdentity{}, fmt.Errorf("%w: %v", domain.ErrIdentityFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.SocialIdentity{}, fmt.Errorf("%w: %v", domain.ErrIdentityFetch, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		s.log.Warn("userinfo rejected",
			zap.String("provider", cfg.Provider.String()),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return domain.SocialIdentity{}, fmt.Errorf("%w: status=%d", domain.ErrIdentityFetch, resp.StatusCode)
	}

	payload, err := decodeClaims(body)
	if err != nil {
		return domain.SocialIdentity{}, fmt.Errorf("%w: %v", domain.ErrIdentityFetch, err)
	}

	switch cfg.Provider {
	case domain.ProviderKakao:
		return kakaoIdentity(payload)
	case domain.ProviderNaver:
		return naverIdentity(payload)
	case domain.ProviderGoogle:
		return googleIdentity(payload)
	default:
		return domain.SocialIdentity{}, domain.ErrProviderNotFound
	}
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// pkceChallenge derives the S256 code challenge from a verifier.
func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func constantEquals(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
