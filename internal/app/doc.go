// Package app wires the reconciler together: it turns a runtime
// configuration into a state store, a platform adapter, the production
// collaborators and an engine behind a serialising dispatcher.
//
// Two modes exist. Hook mode runs inside a Juju hook, talks to the
// controller through the hook tools and exits after one pass. Local mode
// reads its configuration and relation data from a directory (see package
// localenv) and, under Serve, keeps running and reconciles whenever those
// files change.
//
// Dry-run replaces the collaborators that mutate the host (snap, systemd,
// the payload installer, the snapd proxy) with ones that only log.
package app
