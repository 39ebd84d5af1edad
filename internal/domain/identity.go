package domain

// Role tags which side of a conversation an identity belongs to. It is a
// closed set; construct identities through the Role constants so invalid
// role strings cannot reach the persistence layer.
type Role string

const (
	RoleUser      Role = "user"
	RoleSuperstar Role = "superstar"
)

// ValidRole reports whether r is one of the known participant roles.
func ValidRole(r Role) bool {
	return r == RoleUser || r == RoleSuperstar
}

// Counterpart returns the opposite side of a conversation. Marking messages
// read always targets messages authored by the counterpart role.
func (r Role) Counterpart() Role {
	if r == RoleUser {
		return RoleSuperstar
	}
	return RoleUser
}

// Identity is the resolved caller of a request: a participant role plus the
// numeric account id on that side. It is resolved once by the auth middleware
// and passed explicitly into every service call; nothing reads it ambiently.
type Identity struct {
	Role Role `json:"role"`
	ID   uint `json:"id"`
}

// Zero reports whether the identity is unset (no authenticated caller).
func (i Identity) Zero() bool { return i.ID == 0 || !ValidRole(i.Role) }
