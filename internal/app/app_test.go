package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/config"
	"taskline/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Workspace = t.TempDir()
	cfg.Auth.HMACSecret = "app-test-secret"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestServeLocalMode(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	local := LocalIdentity(cfg, a.DB, a.Dialect, logger.Discard())
	_, err = local.CreateUser(context.Background(), "root", "pw", []string{"admin"}, false)
	require.NoError(t, err)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 5 * time.Second}
	defer client.CloseIdleConnections()
	base := "http://" + ln.Addr().String()

	body, _ := json.Marshal(map[string]string{"username": "root", "password": "pw"})
	res, err := client.Post(base+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var login struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&login))
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, login.Token)

	req, _ := http.NewRequest(http.MethodPost, base+"/api/projects", bytes.NewReader([]byte(`{"name":"Ops","description":"infra"}`)))
	req.Header.Set("Authorization", "Bearer "+login.Token)
	req.Header.Set("Content-Type", "application/json")
	res, err = client.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestJWKSModeNeedsUserPool(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Mode = config.ModeJWKS
	cfg.Auth.JWKSURL = "http://127.0.0.1:1/jwks.json"
	_, err := New(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}

func TestLoginLimiterSelection(t *testing.T) {
	cfg := testConfig(t)
	a := &App{Config: cfg, Log: logger.Discard()}

	l, err := a.loginLimiter(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, l)

	cfg.RateLimit.LoginBurst = 0
	l, err = a.loginLimiter(context.Background())
	require.NoError(t, err)
	assert.Nil(t, l)

	cfg.RateLimit.LoginBurst = 5
	cfg.RateLimit.RedisAddr = "127.0.0.1:1"
	_, err = a.loginLimiter(context.Background())
	assert.Error(t, err, "unreachable redis fails startup")
}
