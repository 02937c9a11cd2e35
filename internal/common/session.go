package common

import "errors"

// ErrUnauthorized is returned when the caller's session does not permit the
// requested mutation.
var ErrUnauthorized = errors.New("unauthorized")

// Session is the caller identity supplied by the external auth provider. The
// core trusts its contents and performs its own ownership and role checks.
type Session struct {
	UserID   int    `json:"user_id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Image    string `json:"image"`
	Role     string `json:"role"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var AnonymousSession = Session{}

func (s Session) IsAnonymous() bool {
	return s.UserID == 0
}

func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}
