package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/engine"
	"taskline/internal/identity"
	"taskline/internal/migrate"
	"taskline/internal/ratelimit"
	"taskline/internal/repo"
	"taskline/internal/server"
	"taskline/internal/token"
	"taskline/internal/webhook"
)

const shutdownTimeout = 5 * time.Second

// App is a fully wired Taskline server.
type App struct {
	Config   *config.Config
	Log      *slog.Logger
	DB       *sql.DB
	Dialect  db.Dialect
	Engine   engine.Engine
	Handler  http.Handler
	Webhooks *webhook.Dispatcher

	stop    context.CancelFunc
	closers []func() error
}

// OpenStore opens the configured database without migrating it.
func OpenStore(cfg *config.Config) (*sql.DB, db.Dialect, error) {
	return db.Open(db.Config{
		Driver:    cfg.Database.Driver,
		DSN:       cfg.Database.DSN,
		Workspace: cfg.Database.Workspace,
	})
}

// LocalIdentity returns the built-in identity provider backed by conn.
func LocalIdentity(cfg *config.Config, conn *sql.DB, dialect db.Dialect, log *slog.Logger) identity.Local {
	return identity.Local{
		Repo:   repo.Repo{DB: conn, Dialect: dialect},
		Issuer: Issuer(cfg),
		Log:    log,
	}
}

// Issuer returns the HS256 token issuer for local mode.
func Issuer(cfg *config.Config) token.Issuer {
	return token.Issuer{
		Secret:      []byte(cfg.Auth.HMACSecret),
		Issuer:      cfg.Auth.Issuer,
		Audience:    cfg.Auth.Audience,
		GroupsClaim: cfg.Auth.GroupsClaim,
		TTL:         cfg.Auth.TokenTTL,
	}
}

// New opens and migrates the store, then builds the verifier, login provider, limiter,
// HTTP handler and webhook dispatcher described by cfg. Background work started here
// (JWKS refresh) stops on Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, dialect, err := OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	bg, stop := context.WithCancel(context.Background())
	a := &App{
		Config:  cfg,
		Log:     log,
		DB:      conn,
		Dialect: dialect,
		stop:    stop,
		closers: []func() error{conn.Close},
	}
	if err := a.build(ctx, bg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx, bg context.Context) error {
	cfg := a.Config
	if err := migrate.New(a.DB, a.Dialect, a.Log).Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.Engine = engine.New(a.DB, a.Dialect)

	opts := token.Options{
		GroupsClaim: cfg.Auth.GroupsClaim,
		Issuer:      cfg.Auth.Issuer,
		Audience:    cfg.Auth.Audience,
	}
	var (
		verifier token.Verifier
		login    identity.Provider
	)
	switch cfg.Auth.Mode {
	case config.ModeLocal:
		verifier = token.HMACVerifier{Secret: []byte(cfg.Auth.HMACSecret), Options: opts}
		login = LocalIdentity(cfg, a.DB, a.Dialect, a.Log)
	case config.ModeJWKS:
		if cfg.Auth.UserPoolID == "" || cfg.Auth.ClientID == "" {
			return errors.New("auth.user_pool_id and auth.client_id are required to serve logins in jwks mode")
		}
		v, err := token.NewJWKSVerifier(bg, cfg.Auth.JWKSURL, opts)
		if err != nil {
			return fmt.Errorf("jwks: %w", err)
		}
		verifier = v
		cognito, err := identity.NewCognito(ctx, cfg.Auth.AWSRegion, cfg.Auth.UserPoolID, cfg.Auth.ClientID, a.Log)
		if err != nil {
			return err
		}
		login = cognito
	default:
		return fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}

	limiter, err := a.loginLimiter(ctx)
	if err != nil {
		return err
	}
	handler, err := server.New(server.Config{
		Engine:         a.Engine,
		Verifier:       verifier,
		Login:          login,
		LoginLimiter:   limiter,
		BasePath:       cfg.BasePath,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         a.Log,
	})
	if err != nil {
		return err
	}
	a.Handler = handler
	a.Webhooks = webhook.New(a.Engine.Repo, cfg.Webhooks, webhook.WithLogger(a.Log))
	return nil
}

func (a *App) loginLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	rl := a.Config.RateLimit
	if rl.LoginBurst <= 0 || rl.LoginInterval <= 0 {
		return nil, nil
	}
	if rl.RedisAddr == "" {
		return ratelimit.NewMemory(rl.LoginInterval, rl.LoginBurst, 4096, time.Hour), nil
	}
	window := rl.LoginInterval * time.Duration(rl.LoginBurst)
	r, err := ratelimit.NewRedis(ctx, rl.RedisAddr, rl.RedisPassword, rl.RedisDB, rl.LoginBurst, window, a.Log)
	if err != nil {
		return nil, fmt.Errorf("redis rate limiter: %w", err)
	}
	a.closers = append(a.closers, r.Close)
	return r, nil
}

// Serve listens on ln until ctx is cancelled, then shuts down gracefully. The webhook
// dispatcher runs alongside when any hook is enabled.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: a.Handler, ReadHeaderTimeout: 10 * time.Second}
	hooksDone := make(chan struct{})
	hookCtx, stopHooks := context.WithCancel(ctx)
	defer stopHooks()
	if a.Webhooks != nil && a.Webhooks.Enabled() {
		go func() {
			defer close(hooksDone)
			a.Webhooks.Run(hookCtx)
		}()
	} else {
		close(hooksDone)
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Log.Error("shutdown failed", "error", err)
		}
	}()
	a.Log.Info("serving taskline api", "addr", ln.Addr().String(), "base_path", a.Config.BasePath)
	err := srv.Serve(ln)
	stopHooks()
	<-hooksDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (a *App) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Close stops background work and releases the store and limiter connections.
func (a *App) Close() error {
	if a.stop != nil {
		a.stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
