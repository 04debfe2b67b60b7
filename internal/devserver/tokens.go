package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const refreshTokenLength = 32 // bytes of entropy per refresh token

// TokenIssuer mints and validates the dev server's access tokens and
// generates opaque refresh tokens.
type TokenIssuer struct {
	secret    []byte
	accessTTL time.Duration

	// nowTime is injectable for tests.
	nowTime func() time.Time
}

// NewTokenIssuer creates an issuer signing with secret.
func NewTokenIssuer(secret string, accessTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		nowTime:   time.Now,
	}
}

// IssueAccessToken mints a short-lived JWT for the user.
func (t *TokenIssuer) IssueAccessToken(userID string) (string, error) {
	now := t.nowTime()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    "aranya-dev",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseUserID validates an access token and returns its subject.
func (t *TokenIssuer) ParseUserID(rawToken string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.nowTime))
	if err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("access token is not valid")
	}
	return claims.Subject, nil
}

// NewRefreshToken generates an opaque refresh token.
func NewRefreshToken() (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return hex.EncodeToString(tokenBytes), nil
}
