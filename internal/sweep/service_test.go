package sweep_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/prsweep/internal/gitrepo"
	"github.com/temirov/prsweep/internal/sweep"
)

const (
	testRunIdentifierConstant = "01JTESTRUN"
	testSecondCommitConstant  = "9e8d7c6b5a43"
	testSecondPullRequest     = 43
	testRulesDocument         = `
sweep-targets:
  master:
    "Detector/": [rel-6, rel-7]
    "Docs/": [rel-7]
`
)

type serviceFixture struct {
	forge   *fakeForge
	git     *recordingGitExecutor
	history *fakeHistory
	opened  int
}

func newServiceFixture(labels ...string) *serviceFixture {
	forge := seededForge()
	forge.labels[testPullRequestConstant] = append([]string(nil), labels...)
	history := seededHistory()
	history.mergeCommits = []gitrepo.MergeCommit{{Hash: testCommitHashConstant, Subject: "Merge pull request #42 from alice/fix"}}
	history.files = map[string][]byte{"upstream/master:Sweep/config.yaml": []byte(testRulesDocument)}
	return &serviceFixture{forge: forge, git: newRecordingGitExecutor(), history: history}
}

func (fixture *serviceFixture) service(testInstance *testing.T, logger *zap.Logger) *sweep.Service {
	service, serviceError := sweep.NewService(sweep.ServiceDependencies{
		Logger:      logger,
		GitExecutor: fixture.git,
		Forge:       fixture.forge,
		HistoryOpener: func(string) (sweep.HistoryReader, error) {
			fixture.opened++
			return fixture.history, nil
		},
		IdentifierGenerator: func() string { return testRunIdentifierConstant },
	})
	require.NoError(testInstance, serviceError)
	return service
}

func serviceOptions() sweep.Options {
	return sweep.Options{
		RemoteBranch:       sweep.RemoteBranch{Remote: "upstream", Branch: "master"},
		Strategy:           sweep.StrategyReplay,
		Project:            testProjectConstant,
		PullRequestProject: testForkProjectConstant,
		RepositoryRoot:     "/work",
		Labels:             sweep.DefaultLabelScheme(),
		RunURL:             testRunURLConstant,
	}
}

func TestServiceSweepsChangeToRuleTargets(testInstance *testing.T) {
	fixture := newServiceFixture()

	report, runError := fixture.service(testInstance, zap.NewNop()).Run(context.Background(), serviceOptions())

	require.NoError(testInstance, runError)
	require.Equal(testInstance, testRunIdentifierConstant, report.RunIdentifier)
	require.Len(testInstance, report.Results, 1)
	result := report.Results[0]
	require.False(testInstance, result.Skipped)
	require.Equal(testInstance, []string{"rel-6", "rel-7"}, result.Plan.Targets)
	require.Equal(testInstance, sweep.DispositionDone, result.Plan.Disposition)
	require.Equal(testInstance, []string{"rel-6", "rel-7"}, result.SucceededBranches())
	require.Empty(testInstance, result.FailedBranches())
	require.True(testInstance, result.SummaryPosted)
	require.Equal(testInstance, "alice <alice@users.noreply.github.com>", result.Change.AuthorIdentity)

	require.Equal(testInstance, "fetch --prune upstream", fixture.git.commands()[0])
	require.Equal(testInstance, "upstream/master", fixture.history.listedRef)
	require.Equal(testInstance, []string{"sweep:done"}, fixture.forge.setLabels[testPullRequestConstant])
	require.Len(testInstance, fixture.forge.createdRequests, 2)
	require.Contains(testInstance, fixture.forge.comments[testPullRequestConstant][0], "* rel-7")
	require.Empty(testInstance, fixture.forge.createdIssues)
}

func TestServiceAbortsAlreadyHandledChanges(testInstance *testing.T) {
	testCases := []struct {
		name           string
		labels         []string
		expectedReason string
	}{
		{name: "done", labels: []string{"sweep:done"}, expectedReason: "swept"},
		{name: "ignore", labels: []string{"sweep:ignore"}, expectedReason: "ignored"},
		{name: "swept_from_with_also_targeting", labels: []string{"alsoTargeting:rel-7", "sweptFrom:rel-6"}, expectedReason: "downstream"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			fixture := newServiceFixture(testCase.labels...)

			report, runError := fixture.service(subTest, zap.NewNop()).Run(context.Background(), serviceOptions())

			require.NoError(subTest, runError)
			require.Len(subTest, report.Results, 1)
			require.True(subTest, report.Results[0].Skipped)
			require.Equal(subTest, testCase.expectedReason, report.Results[0].SkipReason)
			require.Equal(subTest, []string{
				"ResolveRepoMetadata",
				"ResolveRepoMetadata",
				"GetCommit",
				"GetPullRequest",
				"ListLabels",
			}, fixture.forge.operations())
			require.Equal(subTest, []string{"fetch --prune upstream"}, fixture.git.commands())
		})
	}
}

func TestServiceSecondRunIsIdempotent(testInstance *testing.T) {
	fixture := newServiceFixture()
	service := fixture.service(testInstance, zap.NewNop())

	_, firstError := service.Run(context.Background(), serviceOptions())
	require.NoError(testInstance, firstError)
	requestsAfterFirstRun := len(fixture.forge.createdRequests)

	report, secondError := service.Run(context.Background(), serviceOptions())

	require.NoError(testInstance, secondError)
	require.True(testInstance, report.Results[0].Skipped)
	require.Len(testInstance, fixture.forge.createdRequests, requestsAfterFirstRun)
}

func TestServiceHonoursExclusionLabels(testInstance *testing.T) {
	fixture := newServiceFixture("sweep:from rel-6")

	report, runError := fixture.service(testInstance, zap.NewNop()).Run(context.Background(), serviceOptions())

	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{"rel-7"}, report.Results[0].Plan.Targets)
	require.Equal(testInstance, []string{"rel-6"}, report.Results[0].Plan.Exclusions)
	require.Len(testInstance, fixture.forge.createdRequests, 1)
}

func TestServiceRecordsIgnoreWithoutTargets(testInstance *testing.T) {
	fixture := newServiceFixture()
	fixture.forge.files[testPullRequestConstant] = []string{"Detector/mask.cc", "README.md"}

	report, runError := fixture.service(testInstance, zap.NewNop()).Run(context.Background(), serviceOptions())

	require.NoError(testInstance, runError)
	result := report.Results[0]
	require.Equal(testInstance, sweep.DispositionIgnore, result.Plan.Disposition)
	require.Empty(testInstance, result.Plan.Targets)
	require.Equal(testInstance, []string{"sweep:ignore"}, fixture.forge.setLabels[testPullRequestConstant])
	require.NotContains(testInstance, fixture.forge.operations(), "CreateBranchReference")
	require.NotContains(testInstance, fixture.forge.operations(), "CreateIssueComment")
}

func TestServiceDryRunDoesNotMutate(testInstance *testing.T) {
	fixture := newServiceFixture()
	options := serviceOptions()
	options.DryRun = true

	report, runError := fixture.service(testInstance, zap.NewNop()).Run(context.Background(), options)

	require.NoError(testInstance, runError)
	require.True(testInstance, report.Results[0].DryRun)
	require.Equal(testInstance, []string{"rel-6", "rel-7"}, report.Results[0].Plan.Targets)
	for _, operation := range []string{"SetLabels", "CreateBranchReference", "CreatePullRequest", "AddLabels", "CreateIssueComment"} {
		require.NotContains(testInstance, fixture.forge.operations(), operation)
	}
	require.Equal(testInstance, []string{"fetch --prune upstream"}, fixture.git.commands())
}

func TestServiceReportsFailedBranch(testInstance *testing.T) {
	fixture := newServiceFixture()
	fixture.git.failures["checkout -B sweep-4f2a9c1d7e8b-to-rel-7"] = errors.New("no such branch")

	report, runError := fixture.service(testInstance, zap.NewNop()).Run(context.Background(), serviceOptions())

	require.NoError(testInstance, runError)
	result := report.Results[0]
	require.Equal(testInstance, []string{"rel-6"}, result.SucceededBranches())
	require.Equal(testInstance, []string{"rel-7"}, result.FailedBranches())
	require.Equal(testInstance, 901, result.TrackingIssue)
	require.Contains(testInstance, fixture.forge.comments[testPullRequestConstant][0], "Closes #901")
	require.Equal(testInstance, []string{"sweep:failed"}, fixture.forge.addedLabels[testPullRequestConstant])
}

func TestServiceSkipsUnreferencedMergeCommits(testInstance *testing.T) {
	core, observedLogs := observer.New(zapcore.InfoLevel)
	fixture := newServiceFixture()
	fixture.history.messages[testCommitHashConstant] = "Merge branch 'hotfix'"

	report, runError := fixture.service(testInstance, zap.New(core)).Run(context.Background(), serviceOptions())

	require.NoError(testInstance, runError)
	require.True(testInstance, report.Results[0].Skipped)
	skipped := observedLogs.FilterMessage("Skipping merge commit").All()
	require.Len(testInstance, skipped, 1)
	require.Equal(testInstance, testCommitHashConstant, skipped[0].ContextMap()["merge_commit"])
	require.Equal(testInstance, testRunIdentifierConstant, skipped[0].ContextMap()["run_id"])
}

func TestServiceTreatsRetrievalFailuresAsNoWork(testInstance *testing.T) {
	testCases := []struct {
		name           string
		mutate         func(fixture *serviceFixture)
		expectedOpened int
	}{
		{
			name:           "fetch_failure",
			mutate:         func(fixture *serviceFixture) { fixture.git.failures["fetch --prune"] = errors.New("network down") },
			expectedOpened: 0,
		},
		{
			name:           "merge_listing_failure",
			mutate:         func(fixture *serviceFixture) { fixture.history.listError = errors.New("bad reference") },
			expectedOpened: 1,
		},
		{
			name:           "no_merge_commits",
			mutate:         func(fixture *serviceFixture) { fixture.history.mergeCommits = nil },
			expectedOpened: 1,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			fixture := newServiceFixture()
			testCase.mutate(fixture)

			report, runError := fixture.service(subTest, zap.NewNop()).Run(context.Background(), serviceOptions())

			require.NoError(subTest, runError)
			require.Empty(subTest, report.Results)
			require.Equal(subTest, testCase.expectedOpened, fixture.opened)
			require.NotContains(subTest, fixture.forge.operations(), "GetCommit")
		})
	}
}

func TestServiceMissingRulesMeansExplicitTargetsOnly(testInstance *testing.T) {
	fixture := newServiceFixture("alsoTargeting:rel-5")
	fixture.history.files = map[string][]byte{}

	report, runError := fixture.service(testInstance, zap.NewNop()).Run(context.Background(), serviceOptions())

	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{"rel-5"}, report.Results[0].Plan.Targets)
	require.Empty(testInstance, report.Results[0].Plan.RuleTargets)
}

func TestServiceRejectsUnknownProjects(testInstance *testing.T) {
	fixture := newServiceFixture()
	options := serviceOptions()
	options.PullRequestProject = "nobody/nothing"

	_, runError := fixture.service(testInstance, zap.NewNop()).Run(context.Background(), options)

	var lookupError sweep.ProjectLookupError
	require.ErrorAs(testInstance, runError, &lookupError)
	require.Equal(testInstance, "nobody/nothing", lookupError.Project)
	require.NotContains(testInstance, runError.Error(), "%!w")
	require.Contains(testInstance, runError.Error(), "resolve project nobody/nothing: ")
	require.Empty(testInstance, fixture.git.commands())
}

func TestServiceConfiguresRemotesWithToken(testInstance *testing.T) {
	fixture := newServiceFixture("sweep:done")
	options := serviceOptions()
	options.ConfigureRemotes = true
	options.Token = "s3cr3t"

	_, runError := fixture.service(testInstance, zap.NewNop()).Run(context.Background(), options)

	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{
		"remote rename origin upstream",
		"remote add origin https://s3cr3t@github.com/sweeper-bot/detector.git",
		"fetch --prune upstream",
	}, fixture.git.commands())
}

func TestNewServiceValidatesDependencies(testInstance *testing.T) {
	_, gitError := sweep.NewService(sweep.ServiceDependencies{Forge: newFakeForge()})
	require.ErrorIs(testInstance, gitError, sweep.ErrGitExecutorNotConfigured)

	_, forgeError := sweep.NewService(sweep.ServiceDependencies{GitExecutor: newRecordingGitExecutor()})
	require.ErrorIs(testInstance, forgeError, sweep.ErrForgeNotConfigured)
}

func TestServiceContinuesAfterSummaryPostFailure(testInstance *testing.T) {
	core, observedLogs := observer.New(zapcore.InfoLevel)
	fixture := newServiceFixture()
	secondPullRequest := fixture.forge.pullRequests[testPullRequestConstant]
	secondPullRequest.Number = testSecondPullRequest
	fixture.forge.pullRequests[testSecondPullRequest] = secondPullRequest
	fixture.forge.files[testSecondPullRequest] = []string{"Docs/guide.md"}
	fixture.history.messages[testSecondCommitConstant] = mergeMessage(testSecondPullRequest)
	fixture.history.mergeCommits = append(fixture.history.mergeCommits, gitrepo.MergeCommit{Hash: testSecondCommitConstant, Subject: "Merge pull request #43 from alice/docs"})
	fixture.forge.failures["CreateIssueComment"] = errForgeFailure

	report, runError := fixture.service(testInstance, zap.New(core)).Run(context.Background(), serviceOptions())

	require.NoError(testInstance, runError)
	require.Len(testInstance, report.Results, 2)
	for _, result := range report.Results {
		require.False(testInstance, result.Skipped)
		require.False(testInstance, result.SummaryPosted)
	}
	require.Equal(testInstance, []string{"rel-7"}, report.Results[1].SucceededBranches())

	commentCalls := 0
	for _, operation := range fixture.forge.operations() {
		if operation == "CreateIssueComment" {
			commentCalls++
		}
	}
	require.Equal(testInstance, 2, commentCalls)
	require.Len(testInstance, observedLogs.FilterMessage("Failed to post sweep summary").All(), 2)
}

func TestServiceRecordsChangeTelemetry(testInstance *testing.T) {
	testCases := []struct {
		name    string
		labels  []string
		mutate  func(fixture *serviceFixture)
		outcome string
		code    codes.Code
		status  string
	}{
		{
			name:    "skipped",
			labels:  []string{"sweep:done"},
			mutate:  func(*serviceFixture) {},
			outcome: "skipped",
			code:    codes.Unset,
		},
		{
			name: "failed_branch",
			mutate: func(fixture *serviceFixture) {
				fixture.git.failures["checkout -B sweep-4f2a9c1d7e8b-to-rel-7"] = errors.New("no such branch")
			},
			outcome: "done",
			code:    codes.Error,
			status:  "one or more target branches failed",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			fixture := newServiceFixture(testCase.labels...)
			testCase.mutate(fixture)
			spanRecorder := tracetest.NewSpanRecorder()
			metricReader := sdkmetric.NewManualReader()
			service, serviceError := sweep.NewService(sweep.ServiceDependencies{
				Logger:              zap.NewNop(),
				GitExecutor:         fixture.git,
				Forge:               fixture.forge,
				HistoryOpener:       func(string) (sweep.HistoryReader, error) { return fixture.history, nil },
				Tracer:              sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder)).Tracer("test"),
				Meter:               sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader)).Meter("test"),
				IdentifierGenerator: func() string { return testRunIdentifierConstant },
			})
			require.NoError(subTest, serviceError)

			_, runError := service.Run(context.Background(), serviceOptions())
			require.NoError(subTest, runError)

			var changeSpans []sdktrace.ReadOnlySpan
			for _, span := range spanRecorder.Ended() {
				if span.Name() == "sweep.change" {
					changeSpans = append(changeSpans, span)
				}
			}
			require.Len(subTest, changeSpans, 1)
			require.Equal(subTest, testCase.code, changeSpans[0].Status().Code)
			require.Equal(subTest, testCase.status, changeSpans[0].Status().Description)

			var collected metricdata.ResourceMetrics
			require.NoError(subTest, metricReader.Collect(context.Background(), &collected))
			require.Equal(subTest, []string{testCase.outcome}, changeOutcomes(collected))
		})
	}
}

func changeOutcomes(collected metricdata.ResourceMetrics) []string {
	var outcomes []string
	for _, scopeMetrics := range collected.ScopeMetrics {
		for _, recorded := range scopeMetrics.Metrics {
			if recorded.Name != "prsweep.changes" {
				continue
			}
			sum, isSum := recorded.Data.(metricdata.Sum[int64])
			if !isSum {
				continue
			}
			for _, dataPoint := range sum.DataPoints {
				outcome, found := dataPoint.Attributes.Value(attribute.Key("sweep.outcome"))
				if found {
					outcomes = append(outcomes, outcome.AsString())
				}
			}
		}
	}
	return outcomes
}

func TestServiceLogsStrategyAndMergeCommit(testInstance *testing.T) {
	core, observedLogs := observer.New(zapcore.DebugLevel)
	fixture := newServiceFixture("sweep:done")
	options := serviceOptions()
	options.Strategy = sweep.StrategyMerge

	_, runError := fixture.service(testInstance, zap.New(core)).Run(context.Background(), options)

	require.NoError(testInstance, runError)
	started := observedLogs.FilterMessage("Starting sweep run").All()
	require.Len(testInstance, started, 1)
	require.Equal(testInstance, "merge", started[0].ContextMap()["strategy"])

	sweeping := observedLogs.FilterMessage("Sweeping merge commit").All()
	require.Len(testInstance, sweeping, 1)
	require.Equal(testInstance, "4f2a9c1", sweeping[0].ContextMap()["short_hash"])
	require.Equal(testInstance, "Merge pull request #42 from alice/fix", sweeping[0].ContextMap()["subject"])
}
