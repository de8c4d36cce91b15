package oauth

import (
	"net/url"
	"os"
	"strings"

	"github.com/dodamlabs/dodam/internal/auth/domain"
)

// Vendor endpoints, per each provider's published OAuth/OIDC documentation.
const (
	kakaoAuthURL     = "https://kauth.kakao.com/oauth/authorize"
	kakaoTokenURL    = "https://kauth.kakao.com/oauth/token"
	kakaoUserInfoURL = "https://kapi.kakao.com/v2/user/me"

	naverAuthURL     = "https://nid.naver.com/oauth2.0/authorize"
	naverTokenURL    = "https://nid.naver.com/oauth2.0/token"
	naverUserInfoURL = "https://openapi.naver.com/v1/nid/me"

	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	appleAuthURL  = "https://appleid.apple.com/auth/authorize"
	appleTokenURL = "https://appleid.apple.com/auth/token"
)

type providerEnvSpec struct {
	provider      domain.Provider
	prefix        string
	authURL       string
	tokenURL      string
	userInfoURL   string
	defaultScopes []string
	authExtras    url.Values
}

var providerSpecs = []providerEnvSpec{
	{
		provider:      domain.ProviderKakao,
		prefix:        "AUTH_KAKAO_",
		authURL:       kakaoAuthURL,
		tokenURL:      kakaoTokenURL,
		userInfoURL:   kakaoUserInfoURL,
		defaultScopes: []string{"account_email", "profile_nickname", "profile_image"},
	},
	{
		provider:    domain.ProviderNaver,
		prefix:      "AUTH_NAVER_",
		authURL:     naverAuthURL,
		tokenURL:    naverTokenURL,
		userInfoURL: naverUserInfoURL,
	},
	{
		provider:      domain.ProviderGoogle,
		prefix:        "AUTH_GOOGLE_",
		authURL:       googleAuthURL,
		tokenURL:      googleTokenURL,
		userInfoURL:   googleUserInfoURL,
		defaultScopes: []string{"openid", "email", "profile"},
		authExtras: url.Values{
			"access_type":            {"offline"},
			"prompt":                 {"consent"},
			"include_granted_scopes": {"true"},
		},
	},
	{
		provider:      domain.ProviderApple,
		prefix:        "AUTH_APPLE_",
		authURL:       appleAuthURL,
		tokenURL:      appleTokenURL,
		defaultScopes: []string{"name", "email"},
		authExtras: url.Values{
			"response_mode": {"query"},
		},
	},
}

// ParseProvidersFromEnv reads provider configuration from environment
// variables. Endpoints default to each vendor's published URLs; credentials
// come from AUTH_<PROVIDER>_CLIENT_ID / CLIENT_SECRET / REDIRECT_URI, plus
// TEAM_ID / KEY_ID / PRIVATE_KEY for Apple.
func ParseProvidersFromEnv() map[domain.Provider]ProviderConfig {
	configs := make(map[domain.Provider]ProviderConfig, len(providerSpecs))
	for _, spec := range providerSpecs {
		cfg := ProviderConfig{
			Provider:     spec.provider,
			Enabled:      getenvBool(spec.prefix+"ENABLED", false),
			ClientID:     getenv(spec.prefix + "CLIENT_ID"),
			ClientSecret: getenv(spec.prefix + "CLIENT_SECRET"),
			RedirectURI:  getenv(spec.prefix + "REDIRECT_URI"),
			AuthURL:      spec.authURL,
			TokenURL:     spec.tokenURL,
			UserInfoURL:  spec.userInfoURL,
			Scopes:       spec.defaultScopes,
			AuthExtras:   spec.authExtras,
		}
		if scopes := parseScopes(getenv(spec.prefix + "SCOPES")); len(scopes) > 0 {
			cfg.Scopes = scopes
		}
		if spec.provider == domain.ProviderApple {
			cfg.Apple = &AppleConfig{
				TeamID:        getenv(spec.prefix + "TEAM_ID"),
				ClientID:      cfg.ClientID,
				KeyID:         getenv(spec.prefix + "KEY_ID"),
				PrivateKeyPEM: os.Getenv(spec.prefix + "PRIVATE_KEY"),
			}
		}
		configs[spec.provider] = cfg
	}
	return configs
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func getenvBool(key string, def bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func parseScopes(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(parts) == 0 {
		return nil
	}
	return parts
}
