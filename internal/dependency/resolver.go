package dependency

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// DefaultDatabaseName is the logical database the Serial Vault asks for when
// it joins the database relation.
const DefaultDatabaseName = "serialvault"

// ErrNotReady is returned by Resolve when no advertisement qualifies. It is
// an expected state, not a failure.
var ErrNotReady = errors.New("database not ready")

// Relation data keys published by the database application.
const (
	KeyDatabase = "database"
	KeyState    = "state"
	KeyHost     = "host"
	KeyPort     = "port"
	KeyUser     = "user"
	KeyPassword = "password"
)

// Role is the replication role advertised by a database unit.
type Role string

const (
	RoleMaster     Role = "master"
	RoleStandalone Role = "standalone"
	RoleOther      Role = "other"
)

func parseRole(s string) Role {
	switch Role(s) {
	case RoleMaster, RoleStandalone:
		return Role(s)
	default:
		return RoleOther
	}
}

// priority orders qualifying roles; lower wins. Non-qualifying roles
// report ok=false.
func (r Role) priority() (int, bool) {
	switch r {
	case RoleMaster:
		return 0, true
	case RoleStandalone:
		return 1, true
	default:
		return 0, false
	}
}

// Advertisement is the relation data one remote unit publishes.
type Advertisement struct {
	// Unit is the remote unit identifier, e.g. "postgresql/0".
	Unit string

	// Settings is the raw relation data of the unit.
	Settings map[string]string
}

// Database returns the advertised database name.
func (a Advertisement) Database() string {
	return a.Settings[KeyDatabase]
}

// Role returns the advertised replication role.
func (a Advertisement) Role() Role {
	return parseRole(a.Settings[KeyState])
}

// Credentials authenticate against the bound database.
type Credentials struct {
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

// Binding is the resolved connection to the backing database. It is valid
// for the current pass only.
type Binding struct {
	Unit         string      `json:"unit" yaml:"unit"`
	DatabaseName string      `json:"database" yaml:"database"`
	Host         string      `json:"host" yaml:"host"`
	Port         string      `json:"port" yaml:"port"`
	Credentials  Credentials `json:"credentials" yaml:"credentials"`
	Role         Role        `json:"role" yaml:"role"`
}

func bindingFrom(ad Advertisement) *Binding {
	return &Binding{
		Unit:         ad.Unit,
		DatabaseName: ad.Database(),
		Host:         ad.Settings[KeyHost],
		Port:         ad.Settings[KeyPort],
		Credentials: Credentials{
			User:     ad.Settings[KeyUser],
			Password: ad.Settings[KeyPassword],
		},
		Role: ad.Role(),
	}
}

// Resolve selects the advertisement to bind to. It ignores advertisements
// for other databases and units that are neither master nor standalone, and
// returns ErrNotReady when nothing is left.
//
// When several units qualify, a master is preferred over a standalone unit
// and ties go to the lowest unit, so postgresql/2 wins over postgresql/10.
// The choice does not depend on the order of ads.
func Resolve(expectedDatabase string, ads []Advertisement) (*Binding, error) {
	var candidates []Advertisement
	for _, ad := range ads {
		if ad.Database() != expectedDatabase {
			logging.Debug("Resolver", "Skipping %s: advertises database %q, want %q", ad.Unit, ad.Database(), expectedDatabase)
			continue
		}
		if _, ok := ad.Role().priority(); !ok {
			logging.Debug("Resolver", "Skipping %s: state %q is not usable", ad.Unit, ad.Settings[KeyState])
			continue
		}
		candidates = append(candidates, ad)
	}

	if len(candidates) == 0 {
		return nil, ErrNotReady
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		pi, _ := candidates[i].Role().priority()
		pj, _ := candidates[j].Role().priority()
		if pi != pj {
			return pi < pj
		}
		return unitLess(candidates[i].Unit, candidates[j].Unit)
	})

	if len(candidates) > 1 {
		logging.Info("Resolver", "%d units qualify for database %s, binding to %s", len(candidates), expectedDatabase, candidates[0].Unit)
	}
	return bindingFrom(candidates[0]), nil
}

// unitLess orders unit identifiers of the form "<application>/<number>".
// Identifiers without a numeric suffix sort after numbered ones of the same
// application and are compared as plain strings among themselves.
func unitLess(a, b string) bool {
	appA, numA, okA := splitUnit(a)
	appB, numB, okB := splitUnit(b)
	if appA != appB {
		return appA < appB
	}
	switch {
	case okA && okB:
		return numA < numB
	case okA != okB:
		return okA
	default:
		return a < b
	}
}

func splitUnit(unit string) (string, int, bool) {
	app, num, found := strings.Cut(unit, "/")
	if !found {
		return unit, 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return app, 0, false
	}
	return app, n, true
}
