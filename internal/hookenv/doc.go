// Package hookenv talks to the Juju controller through the hook tools
// (config-get, relation-get, open-port, status-set and friends) available
// to a charm while a hook runs.
//
// Env implements the platform the reconciliation engine needs. Every call
// shells out; nothing is cached between calls so each pass sees fresh data.
package hookenv
