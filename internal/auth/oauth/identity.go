package oauth

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dodamlabs/dodam/internal/auth/domain"
)

// decodeClaims parses a JSON object preserving integer precision, so numeric
// provider ids (Kakao) survive the round trip intact.
func decodeClaims(body []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	payload := map[string]any{}
	if err := decoder.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// kakaoIdentity maps Kakao's userinfo shape:
// {id, kakao_account: {email, profile: {nickname, profile_image_url}}}.
func kakaoIdentity(payload map[string]any) (domain.SocialIdentity, error) {
	id := claimToString(payload["id"])
	if id == "" {
		return domain.SocialIdentity{}, domain.ErrIdentityFetch
	}

	account, _ := payload["kakao_account"].(map[string]any)
	profile, _ := account["profile"].(map[string]any)

	return domain.SocialIdentity{
		Provider:       domain.ProviderKakao,
		ProviderUserID: id,
		Email:          optClaim(account, "email"),
		DisplayName:    optClaim(profile, "nickname"),
		AvatarURL:      optClaim(profile, "profile_image_url"),
		RawClaims:      payload,
	}, nil
}

// naverIdentity maps Naver's userinfo shape:
// {resultcode, message, response: {id, email, nickname, name, profile_image}}.
func naverIdentity(payload map[string]any) (domain.SocialIdentity, error) {
	response, _ := payload["response"].(map[string]any)
	id := claimToString(response["id"])
	if id == "" {
		return domain.SocialIdentity{}, domain.ErrIdentityFetch
	}

	displayName := optClaim(response, "nickname")
	if displayName == nil {
		displayName = optClaim(response, "name")
	}

	return domain.SocialIdentity{
		Provider:       domain.ProviderNaver,
		ProviderUserID: id,
		Email:          optClaim(response, "email"),
		DisplayName:    displayName,
		AvatarURL:      optClaim(response, "profile_image"),
		RawClaims:      payload,
	}, nil
}

// googleIdentity maps the OIDC userinfo shape: {sub, email, name, picture}.
func googleIdentity(payload map[string]any) (domain.SocialIdentity, error) {
	id := claimToString(payload["sub"])
	if id == "" {
		return domain.SocialIdentity{}, domain.ErrIdentityFetch
	}

	return domain.SocialIdentity{
		Provider:       domain.ProviderGoogle,
		ProviderUserID: id,
		Email:          optClaim(payload, "email"),
		DisplayName:    optClaim(payload, "name"),
		AvatarURL:      optClaim(payload, "picture"),
		RawClaims:      payload,
	}, nil
}

// appleIdentity derives identity from the id_token payload; Apple exposes no
// userinfo endpoint. Email is absent unless the user consented to share it.
func appleIdentity(idToken string) (domain.SocialIdentity, error) {
	if strings.TrimSpace(idToken) == "" {
		return domain.SocialIdentity{}, domain.ErrIdentityFetch
	}
	claims, err := decodeAppleIDToken(idToken)
	if err != nil {
		return domain.SocialIdentity{}, domain.ErrIdentityFetch
	}

	id := claimToString(claims["sub"])
	if id == "" {
		return domain.SocialIdentity{}, domain.ErrIdentityFetch
	}

	payload := map[string]any(claims)
	return domain.SocialIdentity{
		Provider:       domain.ProviderApple,
		ProviderUserID: id,
		Email:          optClaim(payload, "email"),
		RawClaims:      payload,
	}, nil
}

func optClaim(payload map[string]any, key string) *string {
	if payload == nil {
		return nil
	}
	value := claimToString(payload[key])
	if value == "" {
		return nil
	}
	return &value
}

func claimToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		// jwt.MapClaims decodes numbers as float64.
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
