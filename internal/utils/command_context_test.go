package utils_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/prsweep/internal/utils"
)

func TestCommandContextAccessorRoundTrips(testInstance *testing.T) {
	accessor := utils.NewCommandContextAccessor()

	executionContext := accessor.WithConfigurationFilePath(context.Background(), "/tmp/config.yaml")
	executionContext = accessor.WithRunIdentifier(executionContext, " 01HZX3J7C4V0000000000000 ")
	executionContext = accessor.WithCorrelationIdentifier(executionContext, "abc1234")

	configurationFilePath, configurationAvailable := accessor.ConfigurationFilePath(executionContext)
	require.True(testInstance, configurationAvailable)
	require.Equal(testInstance, "/tmp/config.yaml", configurationFilePath)

	runIdentifier, runAvailable := accessor.RunIdentifier(executionContext)
	require.True(testInstance, runAvailable)
	require.Equal(testInstance, "01HZX3J7C4V0000000000000", runIdentifier)

	correlationIdentifier, correlationAvailable := accessor.CorrelationIdentifier(executionContext)
	require.True(testInstance, correlationAvailable)
	require.Equal(testInstance, "abc1234", correlationIdentifier)
}

func TestCommandContextAccessorMissingValues(testInstance *testing.T) {
	accessor := utils.NewCommandContextAccessor()

	_, configurationAvailable := accessor.ConfigurationFilePath(context.Background())
	require.False(testInstance, configurationAvailable)

	//nolint:staticcheck // nil contexts are tolerated by the accessor
	_, correlationAvailable := accessor.CorrelationIdentifier(nil)
	require.False(testInstance, correlationAvailable)

	emptyCorrelation := accessor.WithCorrelationIdentifier(context.Background(), "   ")
	_, emptyAvailable := accessor.CorrelationIdentifier(emptyCorrelation)
	require.False(testInstance, emptyAvailable)
}
