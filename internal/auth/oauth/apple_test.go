package oauth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newAppleTestKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	return key, string(pemBytes)
}

func TestBuildAppleClientSecret(t *testing.T) {
	key, pemStr := newAppleTestKey(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cfg := AppleConfig{
		TeamID:        "TEAM123456",
		ClientID:      "kr.dodam.app",
		KeyID:         "KEY1234567",
		PrivateKeyPEM: pemStr,
	}

	secret, err := BuildAppleClientSecret(cfg, now)
	require.NoError(t, err)

	parsed, err := jwt.Parse(secret, func(token *jwt.Token) (any, error) {
		require.IsType(t, &jwt.SigningMethodECDSA{}, token.Method)
		return &key.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	require.Equal(t, "TEAM123456", claims["iss"])
	require.Equal(t, "kr.dodam.app", claims["sub"])
	require.Equal(t, "https://appleid.apple.com", claims["aud"])
	require.Equal(t, "KEY1234567", parsed.Header["kid"])

	iat := int64(claims["iat"].(float64))
	exp := int64(claims["exp"].(float64))
	require.Equal(t, now.Unix(), iat)
	require.Equal(t, now.Add(24*time.Hour).Unix(), exp)
}

func TestBuildAppleClientSecretBadKey(t *testing.T) {
	cfg := AppleConfig{
		TeamID:        "TEAM123456",
		ClientID:      "kr.dodam.app",
		KeyID:         "KEY1234567",
		PrivateKeyPEM: "not a pem key",
	}

	_, err := BuildAppleClientSecret(cfg, time.Now())
	require.Error(t, err)
}

func TestAppleIdentityFromIDToken(t *testing.T) {
	key, _ := newAppleTestKey(t)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss":   "https://appleid.apple.com",
		"sub":   "001234.abcd5678",
		"email": "user@privaterelay.appleid.com",
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	identity, err := appleIdentity(signed)
	require.NoError(t, err)
	require.Equal(t, "001234.abcd5678", identity.ProviderUserID)
	require.NotNil(t, identity.Email)
	require.Equal(t, "user@privaterelay.appleid.com", *identity.Email)
}

func TestAppleIdentityMissingEmail(t *testing.T) {
	key, _ := newAppleTestKey(t)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"sub": "001234.abcd5678",
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	identity, err := appleIdentity(signed)
	require.NoError(t, err)
	require.Nil(t, identity.Email)
}

func TestAppleIdentityRejectsGarbage(t *testing.T) {
	_, err := appleIdentity("")
	require.Error(t, err)

	_, err = appleIdentity("not.a.jwt")
	require.Error(t, err)
}
