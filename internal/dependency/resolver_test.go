package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ad(unit, db, state string) Advertisement {
	return Advertisement{
		Unit: unit,
		Settings: map[string]string{
			KeyDatabase: db,
			KeyState:    state,
			KeyHost:     unit + ".internal",
			KeyPort:     "5432",
			KeyUser:     "vault",
			KeyPassword: "secret",
		},
	}
}

func TestResolve_SkipsOtherDatabases(t *testing.T) {
	ads := []Advertisement{
		ad("postgresql/0", "other", "master"),
		ad("postgresql/1", "serialvault", "standalone"),
	}

	binding, err := Resolve("serialvault", ads)
	require.NoError(t, err)
	assert.Equal(t, "postgresql/1", binding.Unit)
	assert.Equal(t, "serialvault", binding.DatabaseName)
	assert.Equal(t, RoleStandalone, binding.Role)
	assert.Equal(t, "postgresql/1.internal", binding.Host)
	assert.Equal(t, "5432", binding.Port)
	assert.Equal(t, Credentials{User: "vault", Password: "secret"}, binding.Credentials)
}

func TestResolve_NotReady(t *testing.T) {
	tests := []struct {
		name string
		ads  []Advertisement
	}{
		{"no advertisements", nil},
		{"wrong database", []Advertisement{ad("postgresql/0", "other", "master")}},
		{"replica only", []Advertisement{ad("postgresql/0", "serialvault", "hot standby")}},
		{"no state yet", []Advertisement{ad("postgresql/0", "serialvault", "")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			binding, err := Resolve(DefaultDatabaseName, tt.ads)
			assert.ErrorIs(t, err, ErrNotReady)
			assert.Nil(t, binding)
		})
	}
}

func TestResolve_TieBreakIsOrderIndependent(t *testing.T) {
	forward := []Advertisement{
		ad("postgresql/10", "serialvault", "master"),
		ad("postgresql/2", "serialvault", "master"),
		ad("postgresql/1", "serialvault", "standalone"),
	}
	reversed := []Advertisement{forward[2], forward[1], forward[0]}

	a, err := Resolve("serialvault", forward)
	require.NoError(t, err)
	b, err := Resolve("serialvault", reversed)
	require.NoError(t, err)

	assert.Equal(t, "postgresql/2", a.Unit)
	assert.Equal(t, a, b)
}

func TestResolve_MasterPreferredOverStandalone(t *testing.T) {
	ads := []Advertisement{
		ad("postgresql/0", "serialvault", "standalone"),
		ad("postgresql/3", "serialvault", "master"),
	}

	binding, err := Resolve("serialvault", ads)
	require.NoError(t, err)
	assert.Equal(t, "postgresql/3", binding.Unit)
	assert.Equal(t, RoleMaster, binding.Role)
}

func TestUnitLess(t *testing.T) {
	assert.True(t, unitLess("postgresql/2", "postgresql/10"))
	assert.False(t, unitLess("postgresql/10", "postgresql/2"))
	assert.True(t, unitLess("alpha/9", "beta/0"))
	assert.True(t, unitLess("pg/1", "pg/x"))
	assert.True(t, unitLess("pg/a", "pg/b"))
}

func TestAdvertisementRole(t *testing.T) {
	assert.Equal(t, RoleMaster, ad("u/0", "d", "master").Role())
	assert.Equal(t, RoleOther, ad("u/0", "d", "recovering").Role())
}
