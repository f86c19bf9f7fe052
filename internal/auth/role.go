package auth

import "strings"

// RoleName is the closed set of roles a user can hold.
type RoleName string

const (
	RoleUser  RoleName = "USER"
	RoleAdmin RoleName = "ADMIN"
)

// roleRank orders roles by privilege. A caller may assign any role at or below its own rank.
var roleRank = map[RoleName]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

// ParseRoleName normalises s and maps it onto a known role.
func ParseRoleName(s string) (RoleName, error) {
	name := RoleName(strings.ToUpper(strings.TrimSpace(s)))
	if !name.Valid() {
		return "", notFoundf("role %q not found", s)
	}
	return name, nil
}

// Roles lists every known role ordered by rank.
func Roles() []RoleName {
	return []RoleName{RoleUser, RoleAdmin}
}

func (r RoleName) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

func (r RoleName) String() string { return string(r) }

// CanAssign reports whether a caller holding r may register a user with the target role.
func (r RoleName) CanAssign(target RoleName) bool {
	if !r.Valid() || !target.Valid() {
		return false
	}
	return roleRank[r] >= roleRank[target]
}
