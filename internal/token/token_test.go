package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIssuerRoundTrip(t *testing.T) {
	iss := Issuer{Secret: []byte("s3cret"), TTL: time.Minute}
	raw, err := iss.Mint("user-1", []string{"admin", "dev"})
	require.NoError(t, err)

	claims, err := HMACVerifier{Secret: []byte("s3cret")}.Verify(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, []string{"admin", "dev"}, claims.Groups)
}

func TestHMACVerifierRejects(t *testing.T) {
	ctx := context.Background()
	good := Issuer{Secret: []byte("s3cret")}
	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }

	expired, err := Issuer{Secret: []byte("s3cret"), TTL: time.Minute, Now: past}.Mint("u", nil)
	require.NoError(t, err)
	forged, err := Issuer{Secret: []byte("other")}.Mint("u", nil)
	require.NoError(t, err)
	wrongIss, err := Issuer{Secret: []byte("s3cret"), Issuer: "elsewhere"}.Mint("u", nil)
	require.NoError(t, err)
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	v := HMACVerifier{Secret: []byte("s3cret"), Options: Options{Issuer: "taskline"}}
	for name, raw := range map[string]string{
		"expired":      expired,
		"forged":       forged,
		"wrong issuer": wrongIss,
		"no subject":   noSub,
		"no expiry":    noExp,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(ctx, raw)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err = HMACVerifier{}.Verify(ctx, "x")
	require.Error(t, err)
	_, err = good.Mint("", nil)
	require.Error(t, err)
}

func TestCustomGroupsClaim(t *testing.T) {
	raw, err := Issuer{Secret: []byte("k"), GroupsClaim: "roles"}.Mint("u", []string{"admin"})
	require.NoError(t, err)
	claims, err := HMACVerifier{Secret: []byte("k"), Options: Options{GroupsClaim: "roles"}}.Verify(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, []string{"admin"}, claims.Groups)

	claims, err = HMACVerifier{Secret: []byte("k")}.Verify(context.Background(), raw)
	require.NoError(t, err)
	require.Empty(t, claims.Groups)
}

func TestStringList(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, stringList([]any{"a", 3, "", "b"}))
	require.Equal(t, []string{"a", "b"}, stringList("a b"))
	require.Nil(t, stringList(42))
}

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	enc := base64.RawURLEncoding
	set := map[string]any{"keys": []map[string]string{{
		"kty": "RSA",
		"kid": kid,
		"use": "sig",
		"alg": "RS256",
		"n":   enc.EncodeToString(key.PublicKey.N.Bytes()),
		"e":   enc.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestJWKSVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newJWKSServer(t, key, "k1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v, err := NewJWKSVerifier(ctx, srv.URL, Options{Issuer: "https://issuer.example", Audience: "client-1"})
	require.NoError(t, err)

	exp := time.Now().Add(time.Hour).Unix()
	raw := signRS256(t, key, "k1", jwt.MapClaims{
		"sub":            "cognito-user",
		"iss":            "https://issuer.example",
		"aud":            "client-1",
		"exp":            exp,
		"cognito:groups": []string{"admin"},
	})
	claims, err := v.Verify(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, Claims{Subject: "cognito-user", Groups: []string{"admin"}}, claims)

	wrongAud := signRS256(t, key, "k1", jwt.MapClaims{"sub": "u", "iss": "https://issuer.example", "aud": "other", "exp": exp})
	_, err = v.Verify(ctx, wrongAud)
	require.ErrorIs(t, err, ErrInvalid)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := signRS256(t, other, "k1", jwt.MapClaims{"sub": "u", "iss": "https://issuer.example", "aud": "client-1", "exp": exp})
	_, err = v.Verify(ctx, forged)
	require.ErrorIs(t, err, ErrInvalid)

	hs, err := Issuer{Secret: []byte("k")}.Mint("u", nil)
	require.NoError(t, err)
	_, err = v.Verify(ctx, hs)
	require.ErrorIs(t, err, ErrInvalid)
}
