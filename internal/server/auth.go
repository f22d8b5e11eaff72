package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/engine/auth"
	"taskline/internal/token"
)

type identityKey struct{}

func withIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// callerIdentity returns the identity attached by the auth middleware.
func callerIdentity(ctx context.Context) (auth.Identity, huma.StatusError) {
	if id, ok := identityFromContext(ctx); ok {
		return id, nil
	}
	return auth.Identity{}, newAPIError(http.StatusUnauthorized, "Authorization token is missing", "")
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware guards every path under apiPrefix. A request without a bearer token gets
// 401; a token that fails verification, or carries no subject, gets 403.
func newAuthMiddleware(apiPrefix string, verifier token.Verifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path != apiPrefix && !strings.HasPrefix(req.URL.Path, apiPrefix+"/") {
				next.ServeHTTP(w, req)
				return
			}
			if req.Method == http.MethodOptions {
				next.ServeHTTP(w, req)
				return
			}
			raw, ok := bearerToken(req.Header.Get("Authorization"))
			if !ok || raw == "" {
				log.Warn("auth: missing bearer token", "path", req.URL.Path)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "Authorization token is missing", ""))
				return
			}
			claims, err := verifier.Verify(req.Context(), raw)
			if err != nil {
				log.Warn("auth: token rejected", "path", req.URL.Path, "error", err)
				respondStatusError(w, newAPIError(http.StatusForbidden, "Token is invalid or expired", ""))
				return
			}
			id, err := auth.FromClaims(claims.Subject, claims.Groups)
			if err != nil {
				log.Warn("auth: token rejected", "path", req.URL.Path, "error", err)
				respondStatusError(w, newAPIError(http.StatusForbidden, "Token is invalid or expired", ""))
				return
			}
			next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), id)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
