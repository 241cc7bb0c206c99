package utils_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/prsweep/internal/utils"
)

const (
	testEnvironmentPrefixConstant              = "TESTPRSWEEP"
	testRemoteBranchKeyConstant                = "sweep.remote_branch"
	testTokenKeyConstant                       = "sweep.token"
	testDefaultRemoteBranchConstant            = "origin/main"
	testEmbeddedRemoteBranchConstant           = "origin/rel-embedded"
	testFileRemoteBranchConstant               = "origin/rel-file"
	testEnvironmentRemoteBranchConstant        = "upstream/rel-environment"
	testConfigFileNameConstant                 = "config.yaml"
	testConfigContentTemplateConstant          = "sweep:\n  remote_branch: %s\n"
	testConfigurationNameConstant              = "config"
	testConfigurationTypeConstant              = "yaml"
	configurationLoaderSubtestTemplateConstant = "%d_%s"
	testRemoteBranchEnvironmentNameConstant    = testEnvironmentPrefixConstant + "_SWEEP_REMOTE_BRANCH"
	testPrefixedTokenEnvironmentNameConstant   = testEnvironmentPrefixConstant + "_SWEEP_TOKEN"
	testPrimaryTokenAliasConstant              = "TESTPRSWEEP_GH_TOKEN"
	testSecondaryTokenAliasConstant            = "TESTPRSWEEP_GITHUB_TOKEN"
)

type configurationFixture struct {
	Sweep sweepSectionFixture `mapstructure:"sweep"`
}

type sweepSectionFixture struct {
	RemoteBranch string `mapstructure:"remote_branch"`
	Token        string `mapstructure:"token"`
}

func TestConfigurationLoaderLayering(testInstance *testing.T) {
	testCases := []struct {
		name                 string
		embeddedRemoteBranch string
		fileRemoteBranch     string
		environmentBranch    string
		expectedRemoteBranch string
	}{
		{
			name:                 "defaults_apply_without_sources",
			expectedRemoteBranch: testDefaultRemoteBranchConstant,
		},
		{
			name:                 "embedded_configuration_overrides_defaults",
			embeddedRemoteBranch: testEmbeddedRemoteBranchConstant,
			expectedRemoteBranch: testEmbeddedRemoteBranchConstant,
		},
		{
			name:                 "file_overrides_embedded",
			embeddedRemoteBranch: testEmbeddedRemoteBranchConstant,
			fileRemoteBranch:     testFileRemoteBranchConstant,
			expectedRemoteBranch: testFileRemoteBranchConstant,
		},
		{
			name:                 "environment_overrides_file",
			fileRemoteBranch:     testFileRemoteBranchConstant,
			environmentBranch:    testEnvironmentRemoteBranchConstant,
			expectedRemoteBranch: testEnvironmentRemoteBranchConstant,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(configurationLoaderSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			tempDirectory := testInstance.TempDir()
			configurationFilePath := ""
			if len(testCase.fileRemoteBranch) > 0 {
				configurationFilePath = filepath.Join(tempDirectory, testConfigFileNameConstant)
				configurationContent := fmt.Sprintf(testConfigContentTemplateConstant, testCase.fileRemoteBranch)
				require.NoError(testInstance, os.WriteFile(configurationFilePath, []byte(configurationContent), 0o600))
			}

			if len(testCase.environmentBranch) > 0 {
				testInstance.Setenv(testRemoteBranchEnvironmentNameConstant, testCase.environmentBranch)
			}

			configurationLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{tempDirectory})
			if len(testCase.embeddedRemoteBranch) > 0 {
				configurationLoader.SetEmbeddedConfiguration([]byte(fmt.Sprintf(testConfigContentTemplateConstant, testCase.embeddedRemoteBranch)), testConfigurationTypeConstant)
			}

			loadedConfiguration := configurationFixture{}
			metadata, loadError := configurationLoader.LoadConfiguration(configurationFilePath, map[string]any{
				testRemoteBranchKeyConstant: testDefaultRemoteBranchConstant,
			}, &loadedConfiguration)
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedRemoteBranch, loadedConfiguration.Sweep.RemoteBranch)

			if len(configurationFilePath) > 0 {
				require.Equal(testInstance, configurationFilePath, metadata.ConfigFileUsed)
			} else {
				require.Empty(testInstance, metadata.ConfigFileUsed)
			}
		})
	}
}

func TestConfigurationLoaderEnvironmentAliases(testInstance *testing.T) {
	testCases := []struct {
		name          string
		environment   map[string]string
		expectedToken string
	}{
		{
			name:          "no_token_sources",
			environment:   map[string]string{},
			expectedToken: "",
		},
		{
			name:          "secondary_alias_used_alone",
			environment:   map[string]string{testSecondaryTokenAliasConstant: "secondary"},
			expectedToken: "secondary",
		},
		{
			name: "primary_alias_wins_over_secondary",
			environment: map[string]string{
				testPrimaryTokenAliasConstant:   "primary",
				testSecondaryTokenAliasConstant: "secondary",
			},
			expectedToken: "primary",
		},
		{
			name: "prefixed_variable_wins_over_aliases",
			environment: map[string]string{
				testPrefixedTokenEnvironmentNameConstant: "prefixed",
				testPrimaryTokenAliasConstant:            "primary",
			},
			expectedToken: "prefixed",
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(configurationLoaderSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			for environmentName, environmentValue := range testCase.environment {
				testInstance.Setenv(environmentName, environmentValue)
			}

			configurationLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{testInstance.TempDir()})
			configurationLoader.BindEnvironmentAliases(testTokenKeyConstant, testPrimaryTokenAliasConstant, testSecondaryTokenAliasConstant)

			loadedConfiguration := configurationFixture{}
			_, loadError := configurationLoader.LoadConfiguration("", map[string]any{testTokenKeyConstant: ""}, &loadedConfiguration)
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedToken, loadedConfiguration.Sweep.Token)
		})
	}
}

func TestConfigurationLoaderRejectsMalformedFile(testInstance *testing.T) {
	configurationFilePath := filepath.Join(testInstance.TempDir(), testConfigFileNameConstant)
	require.NoError(testInstance, os.WriteFile(configurationFilePath, []byte("sweep: [unterminated"), 0o600))

	configurationLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, nil)
	loadedConfiguration := configurationFixture{}
	_, loadError := configurationLoader.LoadConfiguration(configurationFilePath, nil, &loadedConfiguration)
	require.Error(testInstance, loadError)
}
