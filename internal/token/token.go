package token

import (
	"context"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// DefaultGroupsClaim is the claim Cognito uses for group membership.
const DefaultGroupsClaim = "cognito:groups"

// ErrInvalid wraps every verification failure.
var ErrInvalid = errors.New("token is invalid or expired")

// Claims is the verified subset of a bearer token.
type Claims struct {
	Subject string
	Groups  []string
}

// Verifier validates a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, raw string) (Claims, error)
}

// Options are the checks shared by every verifier.
type Options struct {
	GroupsClaim string
	Issuer      string
	Audience    string
	Leeway      time.Duration
}

func (o Options) parserOptions(methods ...string) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if o.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(o.Issuer))
	}
	if o.Audience != "" {
		opts = append(opts, jwt.WithAudience(o.Audience))
	}
	if o.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(o.Leeway))
	}
	return opts
}

func (o Options) groupsClaim() string {
	if o.GroupsClaim == "" {
		return DefaultGroupsClaim
	}
	return o.GroupsClaim
}

func (o Options) parse(raw string, keyFunc jwt.Keyfunc, methods ...string) (Claims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.NewParser(o.parserOptions(methods...)...).ParseWithClaims(raw, claims, keyFunc)
	if err != nil {
		return Claims{}, errors.Wrap(ErrInvalid, err.Error())
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalid
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return Claims{}, errors.Wrap(ErrInvalid, "subject claim required")
	}
	return Claims{Subject: sub, Groups: stringList(claims[o.groupsClaim()])}, nil
}

// stringList accepts a JSON array of strings or a single space separated string.
func stringList(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	case string:
		return strings.Fields(val)
	default:
		return nil
	}
}

// HMACVerifier checks HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	Secret []byte
	Options
}

func (v HMACVerifier) Verify(_ context.Context, raw string) (Claims, error) {
	if len(v.Secret) == 0 {
		return Claims{}, errors.New("hmac secret not configured")
	}
	return v.parse(raw, func(*jwt.Token) (any, error) { return v.Secret, nil }, jwt.SigningMethodHS256.Alg())
}

// JWKSVerifier checks RS256 tokens against a remote key set that is refreshed in the background.
type JWKSVerifier struct {
	keys keyfunc.Keyfunc
	Options
}

// NewJWKSVerifier fetches the key set at url. Background refreshes stop when ctx is cancelled.
func NewJWKSVerifier(ctx context.Context, url string, opts Options) (*JWKSVerifier, error) {
	k, err := keyfunc.NewDefaultCtx(ctx, []string{url})
	if err != nil {
		return nil, errors.Wrapf(err, "load jwks from %s", url)
	}
	return &JWKSVerifier{keys: k, Options: opts}, nil
}

func (v *JWKSVerifier) Verify(_ context.Context, raw string) (Claims, error) {
	return v.parse(raw, v.keys.Keyfunc, jwt.SigningMethodRS256.Alg())
}
