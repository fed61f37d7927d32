package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the closed set of account roles.
type Role int

const (
	RoleUnknown Role = iota
	RoleCustomer
	RoleVendor
	RoleAdmin
)

// ErrUnknownRole is returned by ParseRole for input outside the closed set.
type ErrUnknownRole struct {
	Value string
}

func (e ErrUnknownRole) Error() string {
	return fmt.Sprintf("unknown role %q", e.Value)
}

// ParseRole is the single normalization boundary for role strings.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer":
		return RoleCustomer, nil
	case "vendor":
		return RoleVendor, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleUnknown, ErrUnknownRole{Value: s}
	}
}

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleVendor:
		return "vendor"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r >= RoleCustomer && r <= RoleAdmin
}

// MarshalJSON encodes the role as its wire name.
func (r Role) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrUnknownRole{Value: r.String()}
	}
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a role through ParseRole.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
