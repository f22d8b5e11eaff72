package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	sloghttp "github.com/samber/slog-http"

	"taskline/internal/engine"
	"taskline/internal/engine/auth"
	"taskline/internal/identity"
	"taskline/internal/ratelimit"
	"taskline/internal/token"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Verifier token.Verifier
	Login    identity.Provider
	// LoginLimiter throttles POST /auth/login per client; nil disables throttling.
	LoginLimiter      ratelimit.Limiter
	TrustProxyHeaders bool
	BasePath          string
	AllowedOrigins    []string
	Logger            *slog.Logger
}

const statusMessage = "Status not valid. only: 'todo', 'in-progress', 'done'"

// apiError is the error envelope: {message, error?}.
type apiError struct {
	status  int
	Message string `json:"message" example:"Project not found"`
	Detail  string `json:"error,omitempty" example:"sql: database is closed"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message, detail string) huma.StatusError {
	return &apiError{status: status, Message: message, Detail: detail}
}

// New returns an HTTP handler exposing the Taskline API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("server: token verifier is required")
	}
	if cfg.Login == nil {
		return nil, errors.New("server: login provider is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	humaDefaults.Do(setHumaDefaults)

	router := chi.NewRouter()
	router.Use(sloghttp.Recovery)
	router.Use(sloghttp.NewWithConfig(log, sloghttp.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	router.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler)
	router.Use(instrument)
	loginPath := path.Join("/", basePath, "auth/login")
	if cfg.LoginLimiter != nil {
		router.Use(onlyPath(http.MethodPost, loginPath,
			ratelimit.Middleware(cfg.LoginLimiter, cfg.TrustProxyHeaders)))
	}
	router.Use(onlyPath(http.MethodPost, loginPath, captureLoginBody))
	router.Use(newAuthMiddleware(path.Join("/", basePath, "api"), cfg.Verifier, log))

	hcfg := huma.DefaultConfig("Taskline API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	hcfg.SchemasPath = ""
	// No $schema links in bodies; responses keep the plain JSON shapes clients expect.
	hcfg.CreateHooks = nil
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerMetrics(router, basePath)
	registerHealth(group)
	registerLogin(group, cfg.Login, log)
	registerProjects(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

var humaDefaults sync.Once

// setHumaDefaults installs the error envelope. huma keeps these as package globals.
func setHumaDefaults() {
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg, joinErrors(errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Request validation failures are plain bad requests.
			status = http.StatusBadRequest
		}
		return newAPIError(status, msg, joinErrors(errs))
	}
}

func joinErrors(errs []error) string {
	var parts []string
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	return strings.Join(parts, "; ")
}

// handleError maps engine errors onto the envelope. entity names the resource ("project" or
// "task") for not-found and empty-list messages.
func handleError(err error, entity string) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	var ie engine.InvalidInputError
	var ce engine.InternalError
	switch {
	case errors.As(err, &fe):
		return newAPIError(http.StatusForbidden, "Access denied: Admins only", "")
	case errors.Is(err, engine.ErrEmptyPage):
		return newAPIError(http.StatusNotFound, fmt.Sprintf("No %ss found", entity), "")
	case errors.Is(err, engine.ErrProjectNotFound):
		return newAPIError(http.StatusNotFound, "Project not found", "")
	case errors.Is(err, engine.ErrNotFound):
		return newAPIError(http.StatusNotFound, capitalize(entity)+" not found", "")
	case errors.Is(err, engine.ErrInvalidStatus):
		return newAPIError(http.StatusBadRequest, statusMessage, "")
	case errors.As(err, &ie):
		return newAPIError(http.StatusBadRequest, ie.Error(), "")
	case errors.As(err, &ce):
		return newAPIError(http.StatusInternalServerError, "Error "+ce.Op, ce.Err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, "Internal server error", err.Error())
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join("/", basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerMetrics(r chi.Router, basePath string) {
	r.Handle(path.Join("/", basePath, "metrics"), promhttp.Handler())
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join("/", basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	if oas.Components != nil && oas.Components.Schemas != nil {
		oas.Components.Schemas.Map()["ApiError"] = &huma.Schema{
			Type:     huma.TypeObject,
			Required: []string{"message"},
			Properties: map[string]*huma.Schema{
				"message": {Type: huma.TypeString},
				"error":   {Type: huma.TypeString},
			},
		}
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

// applyAuthSecurity marks every /api operation as requiring a bearer token.
func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	apiPrefix := path.Join("/", basePath, "api")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete} {
			if op == nil {
				continue
			}
			if strings.HasPrefix(route, apiPrefix) {
				op.Security = security
			} else {
				op.Security = []map[string][]string{}
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	openapiURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Taskline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      POST /auth/login for a token, then authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, openapiURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}
