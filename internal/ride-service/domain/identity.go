package domain

import "fmt"

// Role is the account type resolved by the identity verifier.
type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
	RoleAdmin     Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleDriver, RolePassenger, RoleAdmin:
		return true
	}
	return false
}

// Identity is a verified caller. The service trusts it as-is.
type Identity struct {
	ID       string
	Username string
	Role     Role
}

// DisplayName falls back to "<Kind> <id>" when no username is known.
func (i Identity) DisplayName(kind string) string {
	if i.Username != "" {
		return i.Username
	}
	return fmt.Sprintf("%s %s", kind, i.ID)
}
