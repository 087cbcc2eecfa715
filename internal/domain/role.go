package domain

// Role is asserted by the identity provider in the token's role claim.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Identity is the caller as resolved from a token or request parameters.
type Identity struct {
	UserID   string
	UserName string
	Role     Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
