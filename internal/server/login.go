package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/identity"
	"taskline/internal/metrics"
)

func registerLogin(api huma.API, provider identity.Provider, log *slog.Logger) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a bearer token",
		Description: "When the account requires a new password, supply newPassword to complete the change and log in.",
		Errors:      []int{http.StatusBadRequest, http.StatusTooManyRequests},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body" required:"false"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "Login failed", "request body is required")
		}
		tok, err := provider.Login(ctx, identity.LoginRequest{
			Username:    input.Body.Username,
			Password:    input.Body.Password,
			NewPassword: input.Body.NewPassword,
		})
		if err != nil {
			metrics.Logins.WithLabelValues("failed").Inc()
			log.Warn("login failed", "username", input.Body.Username, "error", err)
			return nil, newAPIError(http.StatusBadRequest, "Login failed", err.Error())
		}
		metrics.Logins.WithLabelValues("ok").Inc()
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Message: "Login successful", Token: tok}}, nil
	})
}
