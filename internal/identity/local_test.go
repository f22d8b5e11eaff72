package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"taskline/internal/db"
	"taskline/internal/logger"
	"taskline/internal/migrate"
	"taskline/internal/repo"
	"taskline/internal/token"
)

func newLocal(t *testing.T) Local {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn, dialect))
	return Local{
		Repo:   repo.Repo{DB: conn, Dialect: dialect},
		Issuer: token.Issuer{Secret: []byte("secret")},
		Log:    logger.Discard(),
		Cost:   bcrypt.MinCost,
	}
}

func TestLocalLogin(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	u, err := l.CreateUser(ctx, "alice", "pw", []string{"admin"}, false)
	require.NoError(t, err)

	raw, err := l.Login(ctx, LoginRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	claims, err := token.HMACVerifier{Secret: []byte("secret")}.Verify(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, u.UserID, claims.Subject)
	require.Equal(t, []string{"admin"}, claims.Groups)

	_, err = l.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = l.Login(ctx, LoginRequest{Username: "nobody", Password: "pw"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = l.Login(ctx, LoginRequest{Username: "alice"})
	require.Error(t, err)

	_, err = l.CreateUser(ctx, "alice", "pw", nil, false)
	require.ErrorIs(t, err, repo.ErrUserExists)
}

func TestLocalForcedPasswordChange(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	_, err := l.CreateUser(ctx, "bob", "temp", nil, true)
	require.NoError(t, err)

	_, err = l.Login(ctx, LoginRequest{Username: "bob", Password: "temp"})
	require.ErrorIs(t, err, ErrNewPasswordRequired)

	_, err = l.Login(ctx, LoginRequest{Username: "bob", Password: "temp", NewPassword: "final"})
	require.NoError(t, err)

	_, err = l.Login(ctx, LoginRequest{Username: "bob", Password: "temp"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = l.Login(ctx, LoginRequest{Username: "bob", Password: "final"})
	require.NoError(t, err)

	require.NoError(t, l.ResetPassword(ctx, "bob", "again", true))
	_, err = l.Login(ctx, LoginRequest{Username: "bob", Password: "again"})
	require.ErrorIs(t, err, ErrNewPasswordRequired)
	require.ErrorIs(t, l.ResetPassword(ctx, "ghost", "x", false), repo.ErrNotFound)
}

func TestImportUsers(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	_, err := l.CreateUser(ctx, "existing", "pw", nil, false)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "users.yml")
	require.NoError(t, os.WriteFile(path, []byte(`users:
  - username: admin
    password: adminpw
    groups: [admin]
  - username: existing
    password: pw
  - username: dev
    password: devpw
    must_change_password: true
`), 0o600))

	created, err := l.ImportUsers(ctx, path)
	require.NoError(t, err)
	require.Len(t, created, 2)

	users, err := l.Repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	require.Equal(t, "admin", users[0].Username)
	require.Equal(t, []string{"admin"}, users[0].Groups)
	require.True(t, users[1].MustChangePassword)
}
