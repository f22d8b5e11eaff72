package identity

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"taskline/internal/domain"
	"taskline/internal/repo"
	"taskline/internal/token"
)

// Local serves logins from the users table and signs tokens with the shared HMAC secret.
type Local struct {
	Repo   repo.Repo
	Issuer token.Issuer
	Log    *slog.Logger
	Now    func() time.Time
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

func (l Local) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l Local) logger() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}
	return slog.Default()
}

func (l Local) hash(plain string) (string, error) {
	cost := l.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(b), nil
}

// Login checks the password, completes a pending forced password change, then mints a token.
func (l Local) Login(ctx context.Context, req LoginRequest) (string, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return "", errors.New("username and password are required")
	}
	u, err := l.Repo.GetUser(ctx, nil, req.Username)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", errors.Wrap(err, "load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		l.logger().Warn("login rejected", "username", req.Username)
		return "", ErrInvalidCredentials
	}
	if u.MustChangePassword {
		if req.NewPassword == "" {
			return "", ErrNewPasswordRequired
		}
		hash, err := l.hash(req.NewPassword)
		if err != nil {
			return "", err
		}
		if err := l.Repo.SetPassword(ctx, nil, u.Username, hash, false); err != nil {
			return "", errors.Wrap(err, "set new password")
		}
		l.logger().Info("password changed on first login", "username", u.Username)
	}
	return l.Issuer.Mint(u.UserID, u.Groups)
}

// CreateUser stores a new account. The generated user id becomes the token subject.
func (l Local) CreateUser(ctx context.Context, username, password string, groups []string, mustChange bool) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, errors.New("username is required")
	}
	if password == "" {
		return domain.User{}, errors.New("password is required")
	}
	hash, err := l.hash(password)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		Username:           username,
		UserID:             uuid.NewString(),
		PasswordHash:       hash,
		Groups:             groups,
		MustChangePassword: mustChange,
		CreatedAt:          l.now().UTC().Format(time.RFC3339),
	}
	if err := l.Repo.InsertUser(ctx, nil, u); err != nil {
		return domain.User{}, errors.Wrapf(err, "create user %s", username)
	}
	return u, nil
}

// ResetPassword sets a new password, optionally forcing a change at next login.
func (l Local) ResetPassword(ctx context.Context, username, password string, mustChange bool) error {
	if password == "" {
		return errors.New("password is required")
	}
	hash, err := l.hash(password)
	if err != nil {
		return err
	}
	return errors.Wrapf(l.Repo.SetPassword(ctx, nil, username, hash, mustChange), "reset password for %s", username)
}

// SeedFile is the YAML layout accepted by ImportUsers.
type SeedFile struct {
	Users []struct {
		Username           string   `yaml:"username"`
		Password           string   `yaml:"password"`
		Groups             []string `yaml:"groups"`
		MustChangePassword bool     `yaml:"must_change_password"`
	} `yaml:"users"`
}

// ImportUsers creates every account in the seed file, skipping usernames that already exist.
func (l Local) ImportUsers(ctx context.Context, path string) (created []domain.User, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, errors.Wrap(err, "invalid users yaml")
	}
	for _, su := range seed.Users {
		u, err := l.CreateUser(ctx, su.Username, su.Password, su.Groups, su.MustChangePassword)
		if errors.Is(err, repo.ErrUserExists) {
			l.logger().Info("user exists, skipping", "username", su.Username)
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, u)
	}
	return created, nil
}
