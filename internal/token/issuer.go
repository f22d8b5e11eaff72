package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Issuer mints HS256 tokens carrying the subject and groups, verifiable by HMACVerifier.
type Issuer struct {
	Secret      []byte
	Issuer      string
	Audience    string
	GroupsClaim string
	TTL         time.Duration
	Now         func() time.Time
}

func (i Issuer) Mint(subject string, groups []string) (string, error) {
	if len(i.Secret) == 0 {
		return "", errors.New("hmac secret not configured")
	}
	if subject == "" {
		return "", errors.New("subject required")
	}
	now := time.Now()
	if i.Now != nil {
		now = i.Now()
	}
	ttl := i.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if groups == nil {
		groups = []string{}
	}
	groupsClaim := i.GroupsClaim
	if groupsClaim == "" {
		groupsClaim = DefaultGroupsClaim
	}
	claims := jwt.MapClaims{
		"sub":       subject,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
		"token_use": "id",
		groupsClaim: groups,
	}
	if i.Issuer != "" {
		claims["iss"] = i.Issuer
	}
	if i.Audience != "" {
		claims["aud"] = i.Audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return signed, nil
}
