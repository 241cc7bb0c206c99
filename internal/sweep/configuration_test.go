package sweep_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/prsweep/internal/sweep"
)

func TestCommandConfigurationSanitize(testInstance *testing.T) {
	sanitized := sweep.CommandConfiguration{
		RemoteBranch:    "  upstream/master ",
		Strategy:        " ",
		CommandAttempts: -3,
		Token:           " t0ken\n",
		Labels:          sweep.LabelScheme{Done: " shipped "},
	}.Sanitize()

	require.Equal(testInstance, "upstream/master", sanitized.RemoteBranch)
	require.Equal(testInstance, "replay", sanitized.Strategy)
	require.Equal(testInstance, "1 month ago", sanitized.Since)
	require.Equal(testInstance, "now", sanitized.Until)
	require.Equal(testInstance, ".", sanitized.RepositoryRoot)
	require.Equal(testInstance, "Sweep/config.yaml", sanitized.RulesPath)
	require.Equal(testInstance, 1, sanitized.CommandAttempts)
	require.Equal(testInstance, "origin", sanitized.ForkRemote)
	require.Equal(testInstance, "rel-", sanitized.ShortBranchPrefix)
	require.Equal(testInstance, "t0ken", sanitized.Token)
	require.Equal(testInstance, "shipped", sanitized.Labels.Done)
	require.Equal(testInstance, sweep.DefaultLabelScheme().Ignore, sanitized.Labels.Ignore)
}

func TestDefaultConfigurationValues(testInstance *testing.T) {
	values := sweep.DefaultConfigurationValues("sweep")

	require.Equal(testInstance, "1 month ago", values["sweep.since"])
	require.Equal(testInstance, "replay", values["sweep.strategy"])
	require.Equal(testInstance, false, values["sweep.dry_run"])
	require.Equal(testInstance, 1, values["sweep.command_attempts"])
	require.Equal(testInstance, "sweep:done", values["sweep.labels.done"])
	require.Equal(testInstance, "sweep:from ", values["sweep.labels.exclude_prefix"])
	require.Contains(testInstance, values, "sweep.token")
	require.Equal(testInstance, "sweep.token", sweep.TokenConfigurationKey("sweep"))
	require.Contains(testInstance, sweep.DefaultConfigurationValues(""), "remote_branch")
}
