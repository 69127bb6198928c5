// Package dependency resolves the database binding the Serial Vault should use
// from the advertisements published by units on the database relation.
//
// Resolution is a pure function of the advertisements handed in. Nothing is
// cached: a binding that existed during one pass may be gone in the next, so
// callers resolve again on every pass.
//
// When several units qualify, the choice is deterministic: a master is
// preferred over a standalone server, and among equal roles the unit with the
// lowest identifier wins (application name compared lexically, unit number
// numerically).
package dependency
