// Package logging provides the subsystem-tagged logger used by every part of
// the reconciler.
//
// It is a thin layer over log/slog: records are written with a text handler
// and always carry a "subsystem" attribute, plus an "error" attribute for
// Error calls.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Engine", "Starting pass %s for %s", passID, event)
//	logging.Warn("Resolver", "Ignoring advertisement from %s", unit)
//	logging.Error("Installer", err, "Payload deploy failed")
//
// # Sinks
//
// When running as a hook executable the controller only keeps what is sent
// through juju-log. SetSink installs a mirror that receives every record that
// passes the level filter:
//
//	logging.SetSink(hookenv.NewLogSink(env))
//
// # Subsystems
//
//   - Bootstrap: process start, flag and runtime config handling
//   - Config: service configuration loading and validation
//   - Engine: reconciliation passes
//   - Dispatcher: event routing
//   - Resolver, Installer, Renderer, Systemd, StateStore, Watcher, HookEnv
package logging
