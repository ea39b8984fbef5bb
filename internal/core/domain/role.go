package domain

import (
	"fmt"
	"strings"
)

// Role is a capability that can be granted to an actor.
type Role string

const (
	RoleManufacturer  Role = "manufacturer"
	RoleTransporter   Role = "transporter"
	RoleWarehouse     Role = "warehouse"
	RoleRetailer      Role = "retailer"
	RoleAdministrator Role = "administrator"
)

// UnknownRoleLabel is recorded in history when the acting party holds no grant.
const UnknownRoleLabel = "Unknown"

var roleLabels = map[Role]string{
	RoleManufacturer:  "Manufacturer",
	RoleTransporter:   "Transporter",
	RoleWarehouse:     "Warehouse",
	RoleRetailer:      "Retailer",
	RoleAdministrator: "Administrator",
}

// labelPriority is the order in which grants are checked to label a history entry.
var labelPriority = []Role{
	RoleManufacturer,
	RoleTransporter,
	RoleWarehouse,
	RoleRetailer,
	RoleAdministrator,
}

// Valid reports whether r is one of the known capabilities.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// Label returns the display name stored in history entries.
func (r Role) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return UnknownRoleLabel
}

// ParseRole accepts either the wire name ("warehouse") or the label ("Warehouse").
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, s)
	}
	return r, nil
}

// Grants is the set of capabilities explicitly granted to a single actor.
type Grants map[Role]bool

// NewGrants builds a Grants set from a list of roles.
func NewGrants(roles ...Role) Grants {
	g := make(Grants, len(roles))
	for _, r := range roles {
		g[r] = true
	}
	return g
}

// Holds reports an explicit grant of r, ignoring Administrator.
func (g Grants) Holds(r Role) bool {
	return g[r]
}

// Satisfies reports whether the actor passes a capability check for r.
// Administrator satisfies every check.
func (g Grants) Satisfies(r Role) bool {
	return g[r] || g[RoleAdministrator]
}

// Label picks the history role label by fixed priority
// Manufacturer > Transporter > Warehouse > Retailer > Administrator.
func (g Grants) Label() string {
	for _, r := range labelPriority {
		if g[r] {
			return r.Label()
		}
	}
	return UnknownRoleLabel
}
