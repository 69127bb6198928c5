// Package engine implements the reconciliation engine that drives the Serial
// Vault towards the state implied by its configuration and its database
// relation.
//
// # Passes
//
// Every entry point (OnInstall, OnConfigChanged, OnDependencyRelationChanged,
// OnDependencyRelationJoined, OnUpgrade, OnWebsiteRelationChanged) runs one
// pass. A pass reads the current configuration, the current relation data
// and the persisted flags, derives a TargetState with DeriveTargetState, and
// issues the collaborator commands that state calls for. Nothing survives
// between passes except the flags in the state store, so a pass can be
// repeated, reordered or delivered stale without harm.
//
// OnConfigChanged and OnDependencyRelationChanged are two triggers for the
// same pass and share one code path.
//
// # Failures
//
// Collaborator failures never escape an entry point. They are reported on
// the status surface, recorded in Result.Failure, and leave the flags
// untouched so that a later event retries. The returned error is reserved
// for the state store itself being unusable.
//
// # Phases
//
//	Uninstalled -> Installing -> AwaitingDependency -> Configuring -> Active
//
// Only the available (past Installing) and active flags are stored; every
// other phase is derived.
package engine
