package sweep

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/prsweep/internal/githubcli"
)

// Environment variables describing the CI run that executes a sweep.
const (
	EnvGitHubServerURL  = "GITHUB_SERVER_URL"
	EnvGitHubRepository = "GITHUB_REPOSITORY"
	EnvGitHubRunID      = "GITHUB_RUN_ID"
)

const (
	defaultServerURLConstant          = "https://github.com"
	runURLTemplateConstant            = "%s/%s/actions/runs/%s"
	summaryHeadingConstant            = "**Sweep summary**\n"
	summaryProvenanceTemplate         = "Sweep ran in %s"
	summarySucceededHeadingConstant   = "\n### Successful:"
	summaryFailedHeadingConstant      = "\n### Failed:"
	summarySucceededItemTemplate      = "* %s"
	summaryFailedItemTemplate         = "* **%s**"
	summaryRecoveryIndentConstant     = "  "
	trackingIssueTitleTemplate        = "Sweep failed for PR %s"
	trackingIssueBodyTemplate         = "%s\nSee %s"
	failedLabelErrorMessageConstant   = "Failed to label pull request as sweep failure"
	trackingIssueErrorMessageConstant = "Failed to open sweep failure tracking issue"
	trackingIssueOpenedMessage        = "Opened sweep failure tracking issue"
	summaryErrorMessageConstant       = "Failed to post sweep summary"
	summaryPostedMessageConstant      = "Posted sweep summary"
	issueLogFieldConstant             = "issue"
)

// RunProvenance identifies the CI run a summary links back to.
type RunProvenance struct {
	ServerURL  string
	Repository string
	RunID      string
}

// RunProvenanceFromEnvironment reads the GitHub Actions variables; missing values become placeholders.
func RunProvenanceFromEnvironment(lookup func(string) string) RunProvenance {
	if lookup == nil {
		lookup = func(string) string { return "" }
	}
	return RunProvenance{
		ServerURL:  fallback(strings.TrimSpace(lookup(EnvGitHubServerURL)), defaultServerURLConstant),
		Repository: fallback(strings.TrimSpace(lookup(EnvGitHubRepository)), EnvGitHubRepository),
		RunID:      fallback(strings.TrimSpace(lookup(EnvGitHubRunID)), EnvGitHubRunID),
	}
}

// URL renders the link to the run.
func (provenance RunProvenance) URL() string {
	return fmt.Sprintf(runURLTemplateConstant, strings.TrimRight(provenance.ServerURL, "/"), provenance.Repository, provenance.RunID)
}

// BuildSummary renders the sweep summary comment. Branches are listed in sorted order.
func BuildSummary(runURL string, outcomes []PublishOutcome) string {
	lines := []string{summaryHeadingConstant, fmt.Sprintf(summaryProvenanceTemplate, runURL)}

	result := SweepResult{Outcomes: outcomes}
	if succeeded := result.SucceededBranches(); len(succeeded) > 0 {
		lines = append(lines, summarySucceededHeadingConstant)
		for _, branch := range succeeded {
			lines = append(lines, fmt.Sprintf(summarySucceededItemTemplate, branch))
		}
	}

	failed := failedOutcomesByBranch(outcomes)
	if len(failed) > 0 {
		lines = append(lines, summaryFailedHeadingConstant)
		for _, outcome := range failed {
			lines = append(lines,
				fmt.Sprintf(summaryFailedItemTemplate, outcome.TargetBranch),
				summaryRecoveryIndentConstant+strings.ReplaceAll(outcome.RecoveryText, "\n", "\n"+summaryRecoveryIndentConstant),
			)
		}
	}
	return strings.Join(lines, "\n")
}

// ReportResult describes what the reporter managed to publish.
type ReportResult struct {
	Summary       string
	TrackingIssue int
	SummaryPosted bool
}

// Reporter publishes the outcome of sweeping one change.
type Reporter struct {
	forge   ReportForge
	project string
	labels  LabelScheme
	runURL  string
}

// NewReporter constructs a Reporter.
func NewReporter(forge ReportForge, project string, labels LabelScheme, runURL string) Reporter {
	return Reporter{forge: forge, project: project, labels: labels.Sanitize(), runURL: runURL}
}

// Report labels failures, opens the tracking issue and posts the summary. Errors are logged, never returned.
func (reporter Reporter) Report(executionContext context.Context, scope ChangeScope, record ChangeRecord, outcomes []PublishOutcome) ReportResult {
	logger := scope.logger()
	result := ReportResult{Summary: BuildSummary(reporter.runURL, outcomes)}

	if len(failedOutcomesByBranch(outcomes)) > 0 {
		if labelError := reporter.forge.AddLabels(executionContext, reporter.project, record.PullRequestNumber, []string{reporter.labels.Failed}); labelError != nil {
			logger.Warn(failedLabelErrorMessageConstant, zap.Error(labelError))
		}

		issueTitle := fmt.Sprintf(trackingIssueTitleTemplate, record.CanonicalTitle)
		issue, issueError := reporter.forge.CreateIssue(executionContext, reporter.project, githubcli.IssueDraft{
			Title:     issueTitle,
			Body:      fmt.Sprintf(trackingIssueBodyTemplate, issueTitle, record.HTMLURL),
			Assignees: []string{record.AuthorLogin},
			Labels:    []string{reporter.labels.Failed},
		})
		if issueError != nil {
			logger.Warn(trackingIssueErrorMessageConstant, zap.Error(issueError))
		} else {
			result.TrackingIssue = issue.Number
			result.Summary = strings.ReplaceAll(result.Summary, FailedIssuePlaceholder, strconv.Itoa(issue.Number))
			logger.Info(trackingIssueOpenedMessage, zap.Int(issueLogFieldConstant, issue.Number))
		}
	}

	if commentError := reporter.forge.CreateIssueComment(executionContext, reporter.project, record.PullRequestNumber, result.Summary); commentError != nil {
		logger.Warn(summaryErrorMessageConstant, zap.Error(commentError))
		return result
	}
	result.SummaryPosted = true
	logger.Info(summaryPostedMessageConstant)
	return result
}

func failedOutcomesByBranch(outcomes []PublishOutcome) []PublishOutcome {
	byBranch := map[string]PublishOutcome{}
	for _, outcome := range outcomes {
		if outcome.Succeeded() {
			continue
		}
		byBranch[outcome.TargetBranch] = outcome
	}
	failed := make([]PublishOutcome, 0, len(byBranch))
	for _, branch := range sortedKeys(toBranchSet(byBranch)) {
		failed = append(failed, byBranch[branch])
	}
	return failed
}

func toBranchSet(outcomes map[string]PublishOutcome) map[string]struct{} {
	set := make(map[string]struct{}, len(outcomes))
	for branch := range outcomes {
		set[branch] = struct{}{}
	}
	return set
}
