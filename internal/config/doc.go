// Package config turns the charm configuration into a typed, normalised
// ServiceConfig, and holds the runtime settings of the reconciler itself.
//
// Service configuration arrives as a flat map of option names to values,
// either from config-get in hook mode or from a YAML file in serve mode.
// FromSettings normalises it: an unknown channel falls back to stable and
// environment_variables is parsed into ordered key/value pairs with quotes
// stripped. Validate reports structural problems without rejecting the
// config, since an unknown service_type must still yield an empty port plan
// instead of a failure.
package config
