// Package ports maps a Serial Vault service role to the network ports the
// unit must expose and the ones it must stop exposing.
package ports

import "fmt"

// Protocol is the transport protocol of an exposed port.
type Protocol string

const ProtocolTCP Protocol = "TCP"

// Role is the functional mode the managed service runs in.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSigning    Role = "signing"
	RoleSystemUser Role = "system-user"
)

// Roles lists every known role in a stable order.
var Roles = []Role{RoleAdmin, RoleSigning, RoleSystemUser}

// Port is a single exposed port.
type Port struct {
	Number   int
	Protocol Protocol
}

// IsZero reports whether p is the empty port.
func (p Port) IsZero() bool {
	return p.Number == 0
}

func (p Port) String() string {
	return fmt.Sprintf("%d/%s", p.Number, p.Protocol)
}

// Plan is the port assignment implied by a role.
type Plan struct {
	Open  Port
	Close []Port
}

// Empty reports whether the plan touches no ports at all.
func (p Plan) Empty() bool {
	return p.Open.IsZero() && len(p.Close) == 0
}

var rolePorts = map[Role]int{
	RoleAdmin:      8081,
	RoleSigning:    8080,
	RoleSystemUser: 8082,
}

// PlanFor returns the plan for role. An unrecognised role yields an empty
// plan so that no port is touched.
func PlanFor(role Role) Plan {
	number, ok := rolePorts[role]
	if !ok {
		return Plan{}
	}

	plan := Plan{Open: Port{Number: number, Protocol: ProtocolTCP}}
	for _, other := range Roles {
		if other == role {
			continue
		}
		plan.Close = append(plan.Close, Port{Number: rolePorts[other], Protocol: ProtocolTCP})
	}
	return plan
}

// ServingPort is the port the service listens on for role, defaulting to the
// signing port for unknown roles. Reverse proxies are pointed at it.
func ServingPort(role Role) int {
	if number, ok := rolePorts[role]; ok {
		return number
	}
	return rolePorts[RoleSigning]
}

// Valid reports whether role is one of the known roles.
func (r Role) Valid() bool {
	_, ok := rolePorts[r]
	return ok
}
