package sweep

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/temirov/prsweep/internal/execshell"
	"github.com/temirov/prsweep/internal/githubauth"
	"github.com/temirov/prsweep/internal/githubcli"
	"github.com/temirov/prsweep/internal/gitrepo"
	"github.com/temirov/prsweep/internal/telemetry"
	"github.com/temirov/prsweep/internal/timeparsing"
	"github.com/temirov/prsweep/internal/ui"
	"github.com/temirov/prsweep/internal/utils/flags"
)

const (
	commandUseConstant                    = "sweep"
	commandShortDescriptionConstant       = "Propagate merged pull requests to other branches"
	commandLongDescriptionConstant        = "sweep scans merge commits of a remote branch inside a time window, decides which branches each change belongs on, and opens downstream pull requests for them."
	branchFlagNameConstant                = "branch"
	branchFlagDescriptionConstant         = "Remote branch to scan, for example upstream/master"
	sinceFlagNameConstant                 = "since"
	sinceFlagDescriptionConstant          = "Start of the scan window (now, -2w, 2026-01-31, RFC3339 or \"1 month ago\")"
	untilFlagNameConstant                 = "until"
	untilFlagDescriptionConstant          = "End of the scan window"
	strategyFlagNameConstant              = "strategy"
	strategyFlagDescriptionConstant       = "How a change is applied to a target branch"
	dryRunFlagNameConstant                = "dry-run"
	dryRunFlagDescriptionConstant         = "Compute targets without labelling or sweeping"
	projectFlagNameConstant               = "project"
	projectFlagDescriptionConstant        = "Project owning the scanned pull requests (owner/repo); derived from the remote when empty"
	pullRequestProjectFlagNameConstant    = "pr-project"
	pullRequestProjectFlagDescription     = "Project hosting sweep branches (owner/repo); defaults to --project"
	tokenFlagNameConstant                 = "token"
	tokenFlagDescriptionConstant          = "Forge token; falls back to GH_TOKEN, GITHUB_TOKEN or GITHUB_API_TOKEN"
	repositoryRootFlagNameConstant        = "repository-root"
	repositoryRootFlagDescriptionConstant = "Path to the working copy"
	commandExecutionErrorTemplateConstant = "sweep failed: %w"
	remoteBranchFlagErrorTemplate         = "invalid --branch: %w"
	strategyErrorTemplateConstant         = "invalid --strategy: %w"
	windowErrorTemplateConstant           = "invalid scan window: %w"
	projectDerivationErrorTemplate        = "unable to derive project from remote %s: %w"
	tokenMissingMessageConstant           = "No forge token configured; relying on stored gh authentication"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current sweep configuration.
type ConfigurationProvider func() CommandConfiguration

// TelemetryProvider returns the telemetry providers of the running application.
type TelemetryProvider func() *telemetry.Providers

// ProjectResolver derives the owner/repo handle of a remote in the working copy.
type ProjectResolver func(repositoryRoot string, remoteName string) (string, error)

// CommandBuilder assembles the sweep command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	TelemetryProvider     TelemetryProvider
	GitExecutor           GitExecutor
	Forge                 Forge
	HistoryOpener         HistoryOpener
	ProjectResolver       ProjectResolver
	EnvironmentLookup     func(string) string
	Clock                 func() time.Time
}

// Build constructs the cobra command for sweep.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().String(branchFlagNameConstant, "", branchFlagDescriptionConstant)
	command.Flags().String(sinceFlagNameConstant, "", sinceFlagDescriptionConstant)
	command.Flags().String(untilFlagNameConstant, "", untilFlagDescriptionConstant)
	command.Flags().String(strategyFlagNameConstant, "", flags.FormatChoiceUsage(string(StrategyReplay), strategyChoices(), strategyFlagDescriptionConstant))
	command.Flags().Bool(dryRunFlagNameConstant, false, dryRunFlagDescriptionConstant)
	command.Flags().String(projectFlagNameConstant, "", projectFlagDescriptionConstant)
	command.Flags().String(pullRequestProjectFlagNameConstant, "", pullRequestProjectFlagDescription)
	command.Flags().String(tokenFlagNameConstant, "", tokenFlagDescriptionConstant)
	command.Flags().String(repositoryRootFlagNameConstant, "", repositoryRootFlagDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()

	options, optionsError := builder.parseOptions(command, configuration, logger)
	if optionsError != nil {
		return optionsError
	}

	tracer, meter := builder.resolveTelemetry()
	gitExecutor, forge, collaboratorsError := builder.resolveCollaborators(logger, meter, options.Token, configuration.CommandAttempts)
	if collaboratorsError != nil {
		return collaboratorsError
	}

	service, serviceError := NewService(ServiceDependencies{
		Logger:        logger,
		GitExecutor:   gitExecutor,
		Forge:         forge,
		HistoryOpener: builder.HistoryOpener,
		Tracer:        tracer,
		Meter:         meter,
	})
	if serviceError != nil {
		return serviceError
	}

	report, runError := service.Run(command.Context(), options)
	if runError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, runError)
	}

	printer := ui.NewRunSummaryPrinter(command.OutOrStdout())
	return printer.Print(SummaryRows(report))
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command, configuration CommandConfiguration, logger *zap.Logger) (Options, error) {
	stringFlag := func(flagName string, configurationValue string) (string, error) {
		flagValue, flagError := command.Flags().GetString(flagName)
		if flagError != nil {
			return "", flagError
		}
		return selectStringValue(flagValue, configurationValue), nil
	}

	remoteBranchValue, remoteBranchFlagError := stringFlag(branchFlagNameConstant, configuration.RemoteBranch)
	if remoteBranchFlagError != nil {
		return Options{}, remoteBranchFlagError
	}
	remoteBranch, remoteBranchError := ParseRemoteBranch(remoteBranchValue)
	if remoteBranchError != nil {
		return Options{}, fmt.Errorf(remoteBranchFlagErrorTemplate, remoteBranchError)
	}

	strategyValue, strategyFlagError := stringFlag(strategyFlagNameConstant, configuration.Strategy)
	if strategyFlagError != nil {
		return Options{}, strategyFlagError
	}
	strategy, strategyError := ParseStrategy(strategyValue)
	if strategyError != nil {
		return Options{}, fmt.Errorf(strategyErrorTemplateConstant, strategyError)
	}

	sinceValue, sinceFlagError := stringFlag(sinceFlagNameConstant, configuration.Since)
	if sinceFlagError != nil {
		return Options{}, sinceFlagError
	}
	untilValue, untilFlagError := stringFlag(untilFlagNameConstant, configuration.Until)
	if untilFlagError != nil {
		return Options{}, untilFlagError
	}
	window, windowError := timeparsing.ParseWindow(sinceValue, untilValue, builder.now())
	if windowError != nil {
		return Options{}, fmt.Errorf(windowErrorTemplateConstant, windowError)
	}

	dryRunValue := configuration.DryRun
	if command.Flags().Changed(dryRunFlagNameConstant) {
		flagDryRunValue, dryRunFlagError := command.Flags().GetBool(dryRunFlagNameConstant)
		if dryRunFlagError != nil {
			return Options{}, dryRunFlagError
		}
		dryRunValue = flagDryRunValue
	}

	repositoryRoot, repositoryRootFlagError := stringFlag(repositoryRootFlagNameConstant, configuration.RepositoryRoot)
	if repositoryRootFlagError != nil {
		return Options{}, repositoryRootFlagError
	}

	project, projectFlagError := stringFlag(projectFlagNameConstant, configuration.Project)
	if projectFlagError != nil {
		return Options{}, projectFlagError
	}
	if len(project) == 0 {
		derivedProject, derivationError := builder.resolveProjectResolver()(repositoryRoot, remoteBranch.Remote)
		if derivationError != nil {
			return Options{}, fmt.Errorf(projectDerivationErrorTemplate, remoteBranch.Remote, derivationError)
		}
		project = derivedProject
	}

	pullRequestProject, pullRequestProjectFlagError := stringFlag(pullRequestProjectFlagNameConstant, configuration.PullRequestProject)
	if pullRequestProjectFlagError != nil {
		return Options{}, pullRequestProjectFlagError
	}

	tokenValue, tokenFlagError := stringFlag(tokenFlagNameConstant, configuration.Token)
	if tokenFlagError != nil {
		return Options{}, tokenFlagError
	}
	token, tokenError := githubauth.ResolveToken(tokenValue, nil)
	if tokenError != nil {
		if !errors.Is(tokenError, githubauth.ErrTokenNotFound) {
			return Options{}, tokenError
		}
		logger.Warn(tokenMissingMessageConstant)
	}

	return Options{
		RemoteBranch:       remoteBranch,
		Window:             gitrepo.TimeWindow{Since: window.Since, Until: window.Until},
		Strategy:           strategy,
		DryRun:             dryRunValue,
		Project:            project,
		PullRequestProject: pullRequestProject,
		RepositoryRoot:     repositoryRoot,
		RulesPath:          configuration.RulesPath,
		ForkRemote:         configuration.ForkRemote,
		ConfigureRemotes:   configuration.ConfigureRemotes,
		Token:              token,
		ShortBranchPrefix:  configuration.ShortBranchPrefix,
		Labels:             configuration.Labels,
		RunURL:             RunProvenanceFromEnvironment(builder.resolveEnvironmentLookup()).URL(),
	}, nil
}

func (builder *CommandBuilder) resolveCollaborators(logger *zap.Logger, meter metric.Meter, token string, attempts int) (GitExecutor, Forge, error) {
	if builder.GitExecutor != nil && builder.Forge != nil {
		return builder.GitExecutor, builder.Forge, nil
	}

	executorOptions := []execshell.ShellExecutorOption{execshell.WithAttemptLimit(attempts)}
	if meter != nil {
		commandMetrics, metricsError := telemetry.NewCommandMetrics(meter)
		if metricsError != nil {
			return nil, nil, metricsError
		}
		executorOptions = append(executorOptions, execshell.WithCommandEventObserver(commandMetrics))
	}
	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), executorOptions...)
	if executorError != nil {
		return nil, nil, executorError
	}

	var gitExecutor GitExecutor = shellExecutor
	if builder.GitExecutor != nil {
		gitExecutor = builder.GitExecutor
	}
	if builder.Forge != nil {
		return gitExecutor, builder.Forge, nil
	}

	client, clientError := githubcli.NewClient(shellExecutor, githubcli.WithAuthenticationToken(token))
	if clientError != nil {
		return nil, nil, clientError
	}
	return gitExecutor, client, nil
}

func (builder *CommandBuilder) resolveTelemetry() (trace.Tracer, metric.Meter) {
	if builder.TelemetryProvider == nil {
		return nil, nil
	}
	providers := builder.TelemetryProvider()
	if providers == nil {
		return nil, nil
	}
	return providers.Tracer(), providers.Meter()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	return configuration.Sanitize()
}

func (builder *CommandBuilder) resolveProjectResolver() ProjectResolver {
	if builder.ProjectResolver != nil {
		return builder.ProjectResolver
	}
	return resolveProjectFromRemote
}

func (builder *CommandBuilder) resolveEnvironmentLookup() func(string) string {
	if builder.EnvironmentLookup != nil {
		return builder.EnvironmentLookup
	}
	return os.Getenv
}

func (builder *CommandBuilder) now() time.Time {
	if builder.Clock != nil {
		return builder.Clock()
	}
	return time.Now()
}

// SummaryRows converts a run report into rows of the terminal summary.
func SummaryRows(report RunReport) []ui.SummaryRow {
	rows := make([]ui.SummaryRow, 0, len(report.Results))
	for _, result := range report.Results {
		row := ui.SummaryRow{
			Commit:      result.Change.CommitHash,
			PullRequest: result.Change.PullRequestNumber,
			DryRun:      result.DryRun,
			Succeeded:   result.SucceededBranches(),
			Failed:      result.FailedBranches(),
		}
		if !result.Skipped {
			row.Disposition = string(result.Plan.Disposition)
		}
		rows = append(rows, row)
	}
	return rows
}

func resolveProjectFromRemote(repositoryRoot string, remoteName string) (string, error) {
	history, openError := gitrepo.OpenHistoryReader(repositoryRoot)
	if openError != nil {
		return "", openError
	}
	remote, remoteError := history.RemoteRepository(remoteName)
	if remoteError != nil {
		return "", remoteError
	}
	return remote.NameWithOwner(), nil
}

func strategyChoices() []string {
	return []string{string(StrategyReplay), string(StrategyMerge)}
}

func selectStringValue(flagValue string, configurationValue string) string {
	trimmedFlagValue := strings.TrimSpace(flagValue)
	if len(trimmedFlagValue) > 0 {
		return trimmedFlagValue
	}

	return strings.TrimSpace(configurationValue)
}
