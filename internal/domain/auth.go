package domain

import "time"

// Persistence is the sign-in "remember me" preference.
type Persistence string

const (
	// PersistencePersistent keeps the session across browser restarts.
	PersistencePersistent Persistence = "persistent"
	// PersistenceSession ends the session when the session marker is gone.
	PersistenceSession Persistence = "session"
)

// PersistenceFor maps the remember-me flag to a persistence preference.
func PersistenceFor(rememberMe bool) Persistence {
	if rememberMe {
		return PersistencePersistent
	}
	return PersistenceSession
}

// Identity is the authenticated caller as seen by services.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the identity may use admin operations.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Session is an issued access token and the identity it belongs to.
type Session struct {
	Token       string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Persistence Persistence `json:"persistence"`
	Identity    Identity    `json:"user"`
}
