package auth

import (
	"strings"
	"time"
)

// Role is the coarse access level of an identity.
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleManager        Role = "MANAGER"
	RoleSalesExecutive Role = "SALES_EXECUTIVE"
)

// ParseRole normalizes raw. Blank or unknown values fall back to SALES_EXECUTIVE.
func ParseRole(raw string) Role {
	r := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if r.Valid() {
		return r
	}
	return RoleSalesExecutive
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleSalesExecutive:
		return true
	}
	return false
}

// Identity is an authenticated principal. Handlers receive it by value.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	CompanyID    *string   `json:"company_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsZero reports whether id carries no identity at all.
func (id Identity) IsZero() bool {
	return id.ID == ""
}

// Company returns the company id and whether one is set.
func (id Identity) Company() (string, bool) {
	if id.CompanyID == nil || *id.CompanyID == "" {
		return "", false
	}
	return *id.CompanyID, true
}

// Company scopes identities and their leads.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefreshToken is the persisted form of an issued refresh token; only the
// sha256 of the opaque value is kept.
type RefreshToken struct {
	ID         string
	IdentityID string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Session is the result of a successful login.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Identity         Identity
}
