// Package utils exposes the ambient plumbing shared by prsweep commands.
//
// ConfigurationLoader layers embedded defaults, configuration files, and
// PRSWEEP_ environment overrides through Viper. LoggerFactory builds zap
// loggers in structured or console form. CommandContextAccessor carries the
// configuration path and per-change correlation identifiers through contexts.
package utils
