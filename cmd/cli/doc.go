// Package cli constructs the prsweep command-line interface, wiring the
// Cobra command hierarchy, the layered configuration loader, structured
// logging and telemetry providers around the sweep command.
package cli
