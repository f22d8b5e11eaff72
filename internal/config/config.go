package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models taskline.yml.
type Config struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
	Database struct {
		Driver    string `yaml:"driver"`
		DSN       string `yaml:"dsn"`
		Workspace string `yaml:"workspace"`
	} `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AuthConfig selects how bearer tokens are verified and how logins are served.
type AuthConfig struct {
	// Mode is "local" (HS256 tokens issued by the built-in identity provider)
	// or "jwks" (RS256 tokens from a remote provider such as Cognito).
	Mode        string        `yaml:"mode"`
	HMACSecret  string        `yaml:"hmac_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	AWSRegion   string        `yaml:"aws_region"`
	UserPoolID  string        `yaml:"user_pool_id"`
	ClientID    string        `yaml:"client_id"`
	GroupsClaim string        `yaml:"groups_claim"`
}

type RateLimitConfig struct {
	LoginInterval time.Duration `yaml:"login_interval"`
	LoginBurst    int           `yaml:"login_burst"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

const (
	ModeLocal = "local"
	ModeJWKS  = "jwks"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("config.addr is required")
	}
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be 'sqlite' or 'postgres'")
	}
	switch c.Auth.Mode {
	case ModeLocal:
		if strings.TrimSpace(c.Auth.HMACSecret) == "" {
			return fmt.Errorf("config.auth.hmac_secret is required for mode local")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("config.auth.token_ttl must be positive")
		}
	case ModeJWKS:
		if c.Auth.JWKSURL == "" {
			return fmt.Errorf("config.auth.jwks_url or aws_region + user_pool_id is required for mode jwks")
		}
		if _, err := url.ParseRequestURI(c.Auth.JWKSURL); err != nil {
			return fmt.Errorf("config.auth.jwks_url is invalid: %w", err)
		}
	default:
		return fmt.Errorf("config.auth.mode must be 'local' or 'jwks'")
	}
	if c.Auth.GroupsClaim == "" {
		return fmt.Errorf("config.auth.groups_claim is required")
	}
	if c.RateLimit.LoginBurst < 0 {
		return fmt.Errorf("config.rate_limit.login_burst must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("webhook %d has empty event type", i)
			}
		}
	}
	return nil
}

// Finalize derives values that depend on other fields. It is idempotent.
func (c *Config) Finalize() {
	if c.Auth.JWKSURL == "" && c.Auth.AWSRegion != "" && c.Auth.UserPoolID != "" {
		c.Auth.JWKSURL = CognitoJWKSURL(c.Auth.AWSRegion, c.Auth.UserPoolID)
	}
	if c.Auth.Issuer == "" && c.Auth.Mode == ModeJWKS && c.Auth.AWSRegion != "" && c.Auth.UserPoolID != "" {
		c.Auth.Issuer = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Auth.AWSRegion, c.Auth.UserPoolID)
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		c.BasePath = "/" + c.BasePath
	}
	c.BasePath = strings.TrimRight(c.BasePath, "/")
}

// CognitoJWKSURL returns the published key set of a Cognito user pool.
func CognitoJWKSURL(region, poolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", region, poolID)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	cfg.Finalize()
	return &cfg
}

// FromYAML parses config from raw YAML bytes layered over the defaults, then validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.Finalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `addr: 127.0.0.1:8080
base_path: ""

database:
  driver: sqlite
  workspace: .

auth:
  mode: local
  hmac_secret: change-me
  token_ttl: 1h
  groups_claim: cognito:groups

rate_limit:
  login_interval: 6s
  login_burst: 10

cors:
  allowed_origins: []

log:
  level: info
  format: json

webhooks: []
`
