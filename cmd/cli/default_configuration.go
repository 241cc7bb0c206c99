package cli

import (
	"bytes"
	_ "embed"
)

//go:embed default_config.yaml
var defaultSweepConfiguration []byte

// EmbeddedDefaultConfiguration returns a copy of the built-in common, sweep and telemetry defaults with their format.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	return bytes.Clone(defaultSweepConfiguration), configurationTypeConstant
}
