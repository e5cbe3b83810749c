package domain

import (
	"errors"
	"time"
)

// Role separates end users from administrators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account is the identity provider's record. Creating one mirrors a User row
// through the mirror_account_to_users trigger.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Role         Role
	CreatedAt    time.Time
}

// User is the application-level profile mirror of an Account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrEmailTaken is returned when the email already has an account. The text
// is shown to administrators verbatim.
var ErrEmailTaken = errors.New("A user with this email address has already been registered")
