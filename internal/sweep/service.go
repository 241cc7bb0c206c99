package sweep

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/temirov/prsweep/internal/execshell"
	"github.com/temirov/prsweep/internal/gitrepo"
)

const (
	defaultRulesPathConstant            = "Sweep/config.yaml"
	defaultForkRemoteConstant           = "origin"
	defaultShortBranchPrefixConstant    = "rel-"
	gitRemoteSubcommandConstant         = "remote"
	gitRemoteRenameConstant             = "rename"
	gitRemoteAddConstant                = "add"
	gitPruneFlagConstant                = "--prune"
	projectLookupErrorTemplateConstant  = "resolve project %s: %v"
	runStartedMessageConstant           = "Starting sweep run"
	remoteConfigurationFailedMessage    = "Failed to configure git remotes"
	remoteConfigurationSkippedMessage   = "Skipping remote configuration without a token"
	fetchFailedMessageConstant          = "Failed to fetch scanned remote"
	historyUnavailableMessageConstant   = "Repository history unavailable"
	mergeListFailedMessageConstant      = "Failed to list merge commits"
	noMergeCommitsMessageConstant       = "No merge commits to sweep"
	mergeCommitsFoundMessageConstant    = "Found merge commits to sweep"
	changeStartedMessageConstant        = "Sweeping merge commit"
	changeSkippedMessageConstant        = "Skipping merge commit"
	changeAlreadyHandledMessageConstant = "Change already handled by a previous sweep"
	changedPathsFailedMessageConstant   = "Failed to list changed files"
	dryRunStopMessageConstant           = "Dry run: not recording disposition or sweeping"
	dispositionFailedMessageConstant    = "Failed to record sweep disposition"
	noTargetsMessageConstant            = "No target branches for change"
	runFinishedMessageConstant          = "Finished sweep run"
	branchLogFieldConstant              = "branch"
	projectLogFieldConstant             = "project"
	forkProjectLogFieldConstant         = "fork_project"
	strategyLogFieldConstant            = "strategy"
	dryRunLogFieldConstant              = "dry_run"
	sinceLogFieldConstant               = "since"
	untilLogFieldConstant               = "until"
	mergeCountLogFieldConstant          = "merge_commits"
	stateLogFieldConstant               = "state"
	changeCountLogFieldConstant         = "changes"
	shortHashLogFieldConstant           = "short_hash"
	subjectLogFieldConstant             = "subject"
	skipReasonChangedPathsConstant      = "changed files unavailable"
	skipReasonDispositionConstant       = "disposition label could not be recorded"
)

// ErrGitExecutorNotConfigured indicates that a git executor was not provided.
var ErrGitExecutorNotConfigured = errors.New("sweep: git executor not configured")

// ErrForgeNotConfigured indicates that a forge client was not provided.
var ErrForgeNotConfigured = errors.New("sweep: forge client not configured")

// ProjectLookupError reports a project handle that could not be resolved.
type ProjectLookupError struct {
	Project string
	Cause   error
}

func (lookupError ProjectLookupError) Error() string {
	return fmt.Sprintf(projectLookupErrorTemplateConstant, lookupError.Project, lookupError.Cause)
}

// Unwrap exposes the underlying failure.
func (lookupError ProjectLookupError) Unwrap() error {
	return lookupError.Cause
}

// Options configures a sweep run.
type Options struct {
	RemoteBranch       RemoteBranch
	Window             gitrepo.TimeWindow
	Strategy           Strategy
	DryRun             bool
	Project            string
	PullRequestProject string
	RepositoryRoot     string
	RulesPath          string
	ForkRemote         string
	ConfigureRemotes   bool
	Token              string
	ShortBranchPrefix  string
	Labels             LabelScheme
	RunURL             string
}

// ServiceDependencies enumerates the collaborators of a sweep run.
type ServiceDependencies struct {
	Logger              *zap.Logger
	GitExecutor         GitExecutor
	Forge               Forge
	HistoryOpener       HistoryOpener
	Tracer              trace.Tracer
	Meter               metric.Meter
	IdentifierGenerator func() string
}

// Service runs sweeps.
type Service struct {
	logger              *zap.Logger
	gitExecutor         GitExecutor
	forge               Forge
	historyOpener       HistoryOpener
	instrumentation     instrumentation
	identifierGenerator func() string
}

// NewService validates the dependencies and constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if dependencies.Forge == nil {
		return nil, ErrForgeNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	historyOpener := dependencies.HistoryOpener
	if historyOpener == nil {
		historyOpener = openRepositoryHistory
	}
	identifierGenerator := dependencies.IdentifierGenerator
	if identifierGenerator == nil {
		identifierGenerator = newRunIdentifier
	}
	telemetry, telemetryError := newInstrumentation(dependencies.Tracer, dependencies.Meter)
	if telemetryError != nil {
		return nil, telemetryError
	}

	return &Service{
		logger:              logger,
		gitExecutor:         dependencies.GitExecutor,
		forge:               dependencies.Forge,
		historyOpener:       historyOpener,
		instrumentation:     telemetry,
		identifierGenerator: identifierGenerator,
	}, nil
}

type runComponents struct {
	runIdentifier string
	options       Options
	project       string
	rules         RuleTable
	extractor     Extractor
	composer      Composer
	publisher     Publisher
	reporter      Reporter
}

// Run sweeps every merge commit of the scanned branch inside the window.
// Only unresolvable project handles are returned as errors; retrieval failures end the run without work.
func (service *Service) Run(executionContext context.Context, options Options) (RunReport, error) {
	if executionContext == nil {
		executionContext = context.Background()
	}
	options = options.withDefaults()
	runIdentifier := service.identifierGenerator()
	runLogger := service.logger.With(zap.String(runIdentifierLogFieldConstant, runIdentifier))
	report := RunReport{RunIdentifier: runIdentifier}

	projectMetadata, projectError := service.forge.ResolveRepoMetadata(executionContext, options.Project)
	if projectError != nil {
		return report, ProjectLookupError{Project: options.Project, Cause: projectError}
	}
	forkMetadata, forkError := service.forge.ResolveRepoMetadata(executionContext, options.PullRequestProject)
	if forkError != nil {
		return report, ProjectLookupError{Project: options.PullRequestProject, Cause: forkError}
	}

	applyStrategy := service.strategy(options, forkMetadata.NameWithOwner)
	runLogger.Info(runStartedMessageConstant,
		zap.String(branchLogFieldConstant, options.RemoteBranch.String()),
		zap.String(projectLogFieldConstant, projectMetadata.NameWithOwner),
		zap.String(forkProjectLogFieldConstant, forkMetadata.NameWithOwner),
		zap.String(strategyLogFieldConstant, string(applyStrategy.Name())),
		zap.Bool(dryRunLogFieldConstant, options.DryRun),
		zap.Time(sinceLogFieldConstant, options.Window.Since),
		zap.Time(untilLogFieldConstant, options.Window.Until),
	)

	if options.ConfigureRemotes {
		service.configureRemotes(executionContext, runLogger, options, forkMetadata.NameWithOwner)
	}

	if _, fetchError := service.runGit(executionContext, options.RepositoryRoot, gitFetchSubcommandConstant, gitPruneFlagConstant, options.RemoteBranch.Remote); fetchError != nil {
		runLogger.Warn(fetchFailedMessageConstant, zap.Error(fetchError))
		return report, nil
	}

	history, historyError := service.historyOpener(options.RepositoryRoot)
	if historyError != nil {
		runLogger.Warn(historyUnavailableMessageConstant, zap.Error(historyError))
		return report, nil
	}

	rules := RuleLoader{Reader: history, Path: options.RulesPath}.Load(options.RemoteBranch, runLogger)

	mergeCommits, listError := history.ListMergeCommits(executionContext, options.RemoteBranch.String(), options.Window)
	if listError != nil {
		runLogger.Warn(mergeListFailedMessageConstant, zap.Error(listError))
		return report, nil
	}
	if len(mergeCommits) == 0 {
		runLogger.Info(noMergeCommitsMessageConstant)
		return report, nil
	}
	runLogger.Info(mergeCommitsFoundMessageConstant, zap.Int(mergeCountLogFieldConstant, len(mergeCommits)))

	components := runComponents{
		runIdentifier: runIdentifier,
		options:       options,
		project:       projectMetadata.NameWithOwner,
		rules:         rules,
		extractor:     NewExtractor(history, service.forge, projectMetadata.NameWithOwner),
		composer:      NewComposer(options.Labels),
		publisher: NewPublisher(service.forge, applyStrategy, PublisherSettings{
			Project:           projectMetadata.NameWithOwner,
			ForkProject:       forkMetadata.NameWithOwner,
			ForkOwner:         forkMetadata.Owner,
			SourceBranch:      options.RemoteBranch.Branch,
			UpstreamRemote:    options.RemoteBranch.Remote,
			ForkRemote:        options.ForkRemote,
			ShortBranchPrefix: options.ShortBranchPrefix,
		}, options.Labels).withInstrumentation(service.instrumentation),
		reporter: NewReporter(service.forge, projectMetadata.NameWithOwner, options.Labels, options.RunURL),
	}

	for _, mergeCommit := range mergeCommits {
		report.Results = append(report.Results, service.sweepChange(executionContext, components, mergeCommit))
	}
	runLogger.Info(runFinishedMessageConstant, zap.Int(changeCountLogFieldConstant, len(report.Results)))
	return report, nil
}

func (service *Service) sweepChange(executionContext context.Context, components runComponents, mergeCommit gitrepo.MergeCommit) SweepResult {
	changeContext, scope := NewChangeScope(executionContext, service.logger, components.runIdentifier, mergeCommit.Hash)
	changeContext, span := service.instrumentation.startChange(changeContext, mergeCommit.Hash)
	scope.logger().Debug(changeStartedMessageConstant, zap.String(shortHashLogFieldConstant, mergeCommit.ShortHash()), zap.String(subjectLogFieldConstant, mergeCommit.Subject))
	result := service.processChange(changeContext, scope, components, mergeCommit.Hash)
	service.instrumentation.finishChange(changeContext, span, result)
	return result
}

func (service *Service) processChange(executionContext context.Context, scope ChangeScope, components runComponents, commitHash string) SweepResult {
	record, extractError := components.extractor.Extract(executionContext, scope, commitHash)
	if extractError != nil {
		scope.logger().Warn(changeSkippedMessageConstant, zap.Error(extractError))
		return skippedResult(ChangeRecord{CommitHash: commitHash}, extractError.Error())
	}
	scope = scope.WithPullRequest(record.PullRequestNumber)

	classification := components.composer.Classify(record, scope.logger())
	if classification.State.Terminal() {
		scope.logger().Info(changeAlreadyHandledMessageConstant, zap.String(stateLogFieldConstant, string(classification.State)), zap.String(labelLogFieldConstant, classification.StateLabel))
		return skippedResult(record, string(classification.State))
	}

	record, pathsError := components.extractor.ChangedPaths(executionContext, record)
	if pathsError != nil {
		scope.logger().Warn(changedPathsFailedMessageConstant, zap.Error(pathsError))
		return skippedResult(record, skipReasonChangedPathsConstant)
	}

	ruleTargets := components.rules.Resolve(record.ChangedPaths, scope.logger())
	plan := components.composer.Compose(classification, ruleTargets, scope.logger())
	result := SweepResult{Change: record, Plan: plan}

	if _, transitionError := classification.State.Transition(plan.Disposition); transitionError != nil {
		scope.logger().Warn(dispositionFailedMessageConstant, zap.Error(transitionError))
		result.Skipped = true
		result.SkipReason = skipReasonDispositionConstant
		return result
	}

	if components.options.DryRun {
		scope.logger().Info(dryRunStopMessageConstant, zap.String(dispositionLogFieldConstant, string(plan.Disposition)))
		result.DryRun = true
		return result
	}

	if labelError := service.forge.SetLabels(executionContext, components.project, record.PullRequestNumber, components.composer.RecordedLabels(record, plan)); labelError != nil {
		scope.logger().Warn(dispositionFailedMessageConstant, zap.Error(labelError))
		result.Skipped = true
		result.SkipReason = skipReasonDispositionConstant
		return result
	}

	if len(plan.Targets) == 0 {
		scope.logger().Info(noTargetsMessageConstant)
		return result
	}

	record = components.extractor.AuthorIdentity(executionContext, scope, record)
	result.Change = record
	result.Outcomes = components.publisher.Publish(executionContext, scope, record, plan)

	reportResult := components.reporter.Report(executionContext, scope, record, result.Outcomes)
	result.TrackingIssue = reportResult.TrackingIssue
	result.SummaryPosted = reportResult.SummaryPosted
	return result
}

func (service *Service) strategy(options Options, forkProject string) ApplyStrategy {
	if options.Strategy == StrategyMerge {
		return NewMergeStrategy(service.forge, forkProject)
	}
	return NewReplayStrategy(service.gitExecutor, options.RepositoryRoot, options.RemoteBranch.Remote, options.ForkRemote)
}

// configureRemotes renames the fork remote to the scanned remote and re-adds the fork with credentials.
func (service *Service) configureRemotes(executionContext context.Context, logger *zap.Logger, options Options, forkProject string) {
	if len(strings.TrimSpace(options.Token)) == 0 {
		logger.Warn(remoteConfigurationSkippedMessage)
		return
	}
	if options.ForkRemote != options.RemoteBranch.Remote {
		if _, renameError := service.runGit(executionContext, options.RepositoryRoot, gitRemoteSubcommandConstant, gitRemoteRenameConstant, options.ForkRemote, options.RemoteBranch.Remote); renameError != nil {
			logger.Warn(remoteConfigurationFailedMessage, zap.Error(renameError))
		}
	}
	forkURL, urlError := gitrepo.AuthenticatedHTTPSURL("", forkProject, options.Token)
	if urlError != nil {
		logger.Warn(remoteConfigurationFailedMessage, zap.Error(urlError))
		return
	}
	if _, addError := service.runGit(executionContext, options.RepositoryRoot, gitRemoteSubcommandConstant, gitRemoteAddConstant, options.ForkRemote, forkURL); addError != nil {
		logger.Warn(remoteConfigurationFailedMessage, zap.Error(addError))
	}
}

func (service *Service) runGit(executionContext context.Context, workingDirectory string, arguments ...string) (execshell.ExecutionResult, error) {
	return service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{Arguments: arguments, WorkingDirectory: workingDirectory})
}

func (options Options) withDefaults() Options {
	normalized := options
	normalized.Project = strings.TrimSpace(options.Project)
	normalized.PullRequestProject = strings.TrimSpace(options.PullRequestProject)
	if len(normalized.PullRequestProject) == 0 {
		normalized.PullRequestProject = normalized.Project
	}
	if len(strings.TrimSpace(string(options.Strategy))) == 0 {
		normalized.Strategy = StrategyReplay
	}
	normalized.RulesPath = fallback(strings.TrimSpace(options.RulesPath), defaultRulesPathConstant)
	normalized.ForkRemote = fallback(strings.TrimSpace(options.ForkRemote), defaultForkRemoteConstant)
	normalized.ShortBranchPrefix = fallback(options.ShortBranchPrefix, defaultShortBranchPrefixConstant)
	normalized.Labels = options.Labels.Sanitize()
	if len(strings.TrimSpace(options.RunURL)) == 0 {
		normalized.RunURL = RunProvenanceFromEnvironment(nil).URL()
	}
	return normalized
}

func skippedResult(record ChangeRecord, reason string) SweepResult {
	return SweepResult{Change: record, Skipped: true, SkipReason: reason}
}

func openRepositoryHistory(repositoryPath string) (HistoryReader, error) {
	return gitrepo.OpenHistoryReader(repositoryPath)
}

func newRunIdentifier() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
