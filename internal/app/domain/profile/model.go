// Package profile defines member profile records.
package profile

import "time"

// Role is a member's permission level.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// CanModerate reports whether the role grants moderation powers.
func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleAdmin
}

// Profile is a member account. ContactEmail is only visible to accepted
// connections and moderators.
type Profile struct {
	ID           string
	Handle       string
	DisplayName  string
	Bio          string
	Location     string
	Languages    []string
	ContactEmail string
	Role         Role
	Suspended    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public returns a copy with the private contact details stripped.
func (p Profile) Public() Profile {
	p.ContactEmail = ""
	return p
}
