package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"taskline/internal/domain"
)

var ErrUserExists = errors.New("user already exists")

const userColumns = `username,user_id,password_hash,groups_json,must_change_password,created_at`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var groups string
	err := row.Scan(&u.Username, &u.UserID, &u.PasswordHash, &groups, &u.MustChangePassword, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if groups != "" {
		if err := json.Unmarshal([]byte(groups), &u.Groups); err != nil {
			return u, err
		}
	}
	return u, nil
}

// InsertUser stores a new local account; PasswordHash must already be hashed.
func (r Repo) InsertUser(ctx context.Context, x DBTX, u domain.User) error {
	if _, err := r.GetUser(ctx, x, u.Username); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	groups, err := json.Marshal(nonNil(u.Groups))
	if err != nil {
		return err
	}
	_, err = r.conn(x).ExecContext(ctx, r.q(`INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?)`),
		u.Username, u.UserID, u.PasswordHash, string(groups), u.MustChangePassword, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, x DBTX, username string) (domain.User, error) {
	return scanUser(r.conn(x).QueryRowContext(ctx, r.q(`SELECT `+userColumns+` FROM users WHERE username=?`), username))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// SetPassword replaces the hash and the forced-change flag.
func (r Repo) SetPassword(ctx context.Context, x DBTX, username, hash string, mustChange bool) error {
	res, err := r.conn(x).ExecContext(ctx, r.q(`UPDATE users SET password_hash=?, must_change_password=? WHERE username=?`), hash, mustChange, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
