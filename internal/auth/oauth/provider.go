// Package oauth implements the multi-provider OAuth 2.0 authorization-code
// flow with PKCE for Kakao, Naver, Google and Apple.
package oauth

import (
	"log"
	"net/url"

	"github.com/dodamlabs/dodam/internal/auth/domain"
)

// ProviderConfig carries one provider's endpoints, credentials and quirks.
// The registry is immutable process-wide state built once at startup.
type ProviderConfig struct {
	Provider     domain.Provider
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string

	// AuthExtras are provider-specific authorization parameters appended to
	// the start URL (Google offline access, Apple response_mode).
	AuthExtras url.Values

	// Apple exchanges a per-request ES256 JWT instead of a static secret.
	Apple *AppleConfig
}

// Registry maps each supported provider to its configuration.
type Registry struct {
	All    map[domain.Provider]ProviderConfig
	Active map[domain.Provider]ProviderConfig
}

// BuildRegistry filters the parsed configs down to usable providers.
func BuildRegistry(cfgs map[domain.Provider]ProviderConfig) Registry {
	registry := Registry{
		All:    make(map[domain.Provider]ProviderConfig, len(cfgs)),
		Active: make(map[domain.Provider]ProviderConfig),
	}

	for _, provider := range domain.Providers {
		cfg, ok := cfgs[provider]
		if !ok {
			continue
		}
		cfg.Provider = provider
		registry.All[provider] = cfg

		if !cfg.Enabled {
			log.Printf("[oauth] provider=%s enabled=false -> DISABLED", provider)
			continue
		}
		if !cfg.usable() {
			log.Printf("[oauth] provider=%s enabled=true credentials=missing -> IGNORED", provider)
			continue
		}
		registry.Active[provider] = cfg
		log.Printf("[oauth] provider=%s enabled=true -> ACTIVE", provider)
	}

	return registry
}

// Lookup returns the active config for a provider.
func (r Registry) Lookup(provider domain.Provider) (ProviderConfig, error) {
	if !provider.Valid() {
		return ProviderConfig{}, domain.ErrProviderNotFound
	}
	cfg, ok := r.Active[provider]
	if !ok {
		if _, known := r.All[provider]; known {
			return ProviderConfig{}, domain.ErrProviderDisabled
		}
		return ProviderConfig{}, domain.ErrProviderNotFound
	}
	return cfg, nil
}

func (c ProviderConfig) usable() bool {
	if c.ClientID == "" || c.AuthURL == "" || c.TokenURL == "" || c.RedirectURI == "" {
		return false
	}
	if c.Provider == domain.ProviderApple {
		return c.Apple != nil && c.Apple.TeamID != "" && c.Apple.KeyID != "" && c.Apple.PrivateKeyPEM != ""
	}
	return c.UserInfoURL != ""
}
