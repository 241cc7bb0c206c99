package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/prsweep/internal/githubauth"
	"github.com/temirov/prsweep/internal/sweep"
	"github.com/temirov/prsweep/internal/telemetry"
	"github.com/temirov/prsweep/internal/utils"
)

const (
	applicationNameConstant                 = "prsweep"
	applicationShortDescriptionConstant     = "Sweep merged pull requests onto the branches they belong on"
	applicationLongDescriptionConstant      = "prsweep scans merge commits of a remote branch, decides from path rules and labels which other branches each change belongs on, and opens downstream pull requests for them."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	sweepConfigurationKeyConstant           = "sweep"
	telemetryConfigurationKeyConstant       = "telemetry"
	telemetryEnabledConfigKeyConstant       = telemetryConfigurationKeyConstant + ".enabled"
	telemetryServiceNameConfigKeyConstant   = telemetryConfigurationKeyConstant + ".service_name"
	environmentPrefixConstant               = "PRSWEEP"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	telemetryEnabledFieldConstant           = "telemetry_enabled"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	telemetryCreationErrorTemplateConstant  = "unable to create telemetry providers: %w"
	telemetryShutdownErrorTemplateConstant  = "unable to flush telemetry: %w"
	unknownCommandErrorTemplateConstant     = "unknown command %q"
	defaultConfigurationSearchPathConstant  = "."
)

// buildVersion is overridden at link time with -ldflags "-X github.com/temirov/prsweep/cmd/cli.buildVersion=...".
var buildVersion = "dev"

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common    ApplicationCommonConfiguration    `mapstructure:"common"`
	Sweep     sweep.CommandConfiguration        `mapstructure:"sweep"`
	Telemetry ApplicationTelemetryConfiguration `mapstructure:"telemetry"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationTelemetryConfiguration controls the trace and metric exporters.
type ApplicationTelemetryConfiguration struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Application wires the Cobra root command, configuration loader, structured logger and telemetry.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	telemetryProviders     *telemetry.Providers
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	commandContextAccessor utils.CommandContextAccessor
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant},
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())
	configurationLoader.BindEnvironmentAliases(sweep.TokenConfigurationKey(sweepConfigurationKeyConstant), githubauth.EnvironmentVariableNames()...)

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	sweepBuilder := sweep.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		ConfigurationProvider: func() sweep.CommandConfiguration {
			return application.configuration.Sweep
		},
		TelemetryProvider: func() *telemetry.Providers {
			return application.telemetryProviders
		},
	}
	sweepCommand, sweepBuildError := sweepBuilder.Build()
	if sweepBuildError == nil {
		cobraCommand.AddCommand(sweepCommand)
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy and flushes telemetry and the logger.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if shutdownError := application.shutdownTelemetry(); shutdownError != nil && executionError == nil {
		executionError = fmt.Errorf(telemetryShutdownErrorTemplateConstant, shutdownError)
	}
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// initializeForCommand loads configuration the way running the named subcommand would.
func (application *Application) initializeForCommand(commandUse string) error {
	for _, command := range application.rootCommand.Commands() {
		if command.Name() == strings.TrimSpace(commandUse) {
			return application.initializeConfiguration(command)
		}
	}
	return fmt.Errorf(unknownCommandErrorTemplateConstant, commandUse)
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:       string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant:      string(utils.LogFormatStructured),
		telemetryEnabledConfigKeyConstant:     false,
		telemetryServiceNameConfigKeyConstant: applicationNameConstant,
	}
	for configurationKey, configurationValue := range sweep.DefaultConfigurationValues(sweepConfigurationKeyConstant) {
		defaultValues[configurationKey] = configurationValue
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	providers, telemetryError := telemetry.NewProviders(telemetry.Configuration{
		Enabled:        application.configuration.Telemetry.Enabled,
		ServiceName:    application.configuration.Telemetry.ServiceName,
		ServiceVersion: buildVersion,
	})
	if telemetryError != nil {
		return fmt.Errorf(telemetryCreationErrorTemplateConstant, telemetryError)
	}
	application.telemetryProviders = providers

	application.logger.Info(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
		zap.Bool(telemetryEnabledFieldConstant, application.configuration.Telemetry.Enabled),
	)

	if command != nil {
		parentContext := command.Context()
		if parentContext == nil {
			parentContext = context.Background()
		}
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			parentContext,
			application.configurationMetadata.ConfigFileUsed,
		)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) shutdownTelemetry() error {
	if application.telemetryProviders == nil {
		return nil
	}
	return application.telemetryProviders.Shutdown(context.Background())
}

func (application *Application) flushLogger() error {
	if syncError := application.syncLoggerInstance(application.logger); syncError != nil {
		return syncError
	}
	return nil
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
