package auth

import (
	"errors"
	"strings"
)

// AdminGroup is the group name that grants the administrative role.
const AdminGroup = "admin"

// ForbiddenError indicates the caller lacks the administrative role.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	if e.Action == "" {
		return "admin role required"
	}
	return "admin role required to " + e.Action
}

// Identity is the verified caller of a request. It is built once per request and passed explicitly.
type Identity struct {
	UserID  string
	Groups  []string
	IsAdmin bool
}

var ErrMissingSubject = errors.New("token subject is empty")

// FromClaims derives an Identity from verified token claims.
func FromClaims(subject string, groups []string) (Identity, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Identity{}, ErrMissingSubject
	}
	id := Identity{UserID: subject, Groups: groups}
	for _, g := range groups {
		if g == AdminGroup {
			id.IsAdmin = true
			break
		}
	}
	return id, nil
}

// RequireAdmin returns ForbiddenError unless the identity is an admin.
func (id Identity) RequireAdmin(action string) error {
	if !id.IsAdmin {
		return ForbiddenError{Action: action}
	}
	return nil
}
