package sweep

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/prsweep/internal/githubcli"
)

const (
	sweepBranchTemplateConstant     = "sweep-%s-to-%s"
	downstreamTitleTemplateConstant = "[sweep:%s] %s"
	downstreamBodyTemplateConstant  = "Sweep #%d `%s` to `%s`.\n\nAdding original author @%s as watcher.\n\n%s"
	sweepCommitMessageTemplate      = "sweep: #%d %s"
	branchSweptMessageConstant      = "Swept change to branch"
	branchFailedMessageConstant     = "Sweep to branch failed"
	targetBranchLogFieldConstant    = "target_branch"
	failedStepLogFieldConstant      = "failed_step"
	statusLogFieldConstant          = "status"
	recoveryLogFieldConstant        = "recovery"
	downstreamPullRequestLogField   = "downstream_pull_request"
	forkHeadSeparatorConstant       = ":"
)

// PublisherSettings names the projects, remotes and branches used while publishing.
type PublisherSettings struct {
	Project           string
	ForkProject       string
	ForkOwner         string
	SourceBranch      string
	UpstreamRemote    string
	ForkRemote        string
	ShortBranchPrefix string
}

// Publisher runs the per-branch publishing state machine.
type Publisher struct {
	forge           PublishForge
	strategy        ApplyStrategy
	settings        PublisherSettings
	labels          LabelScheme
	instrumentation instrumentation
}

// NewPublisher constructs a Publisher.
func NewPublisher(forge PublishForge, strategy ApplyStrategy, settings PublisherSettings, labels LabelScheme) Publisher {
	noopTelemetry, _ := newInstrumentation(nil, nil)
	return Publisher{forge: forge, strategy: strategy, settings: settings, labels: labels.Sanitize(), instrumentation: noopTelemetry}
}

func (publisher Publisher) withInstrumentation(telemetry instrumentation) Publisher {
	instrumented := publisher
	instrumented.instrumentation = telemetry
	return instrumented
}

// SweepBranchName names the branch carrying a commit to a target branch.
func SweepBranchName(commitHash string, targetBranch string) string {
	return fmt.Sprintf(sweepBranchTemplateConstant, commitHash, targetBranch)
}

// DownstreamTitle builds the title of the pull request opened against the target branch.
func DownstreamTitle(targetBranch string, shortBranchPrefix string, canonicalTitle string) string {
	return fmt.Sprintf(downstreamTitleTemplateConstant, strings.TrimPrefix(targetBranch, shortBranchPrefix), canonicalTitle)
}

// DownstreamBody builds the provenance, credit and release notes body of a downstream pull request.
func DownstreamBody(record ChangeRecord, targetBranch string) string {
	return fmt.Sprintf(downstreamBodyTemplateConstant, record.PullRequestNumber, record.CanonicalTitle, targetBranch, record.AuthorLogin, record.ReleaseNotes)
}

// SweepCommitMessage is the message of the replayed commit.
func SweepCommitMessage(record ChangeRecord) string {
	return fmt.Sprintf(sweepCommitMessageTemplate, record.PullRequestNumber, record.CanonicalTitle)
}

// Publish processes every target branch in order. A failing branch never affects its siblings.
func (publisher Publisher) Publish(executionContext context.Context, scope ChangeScope, record ChangeRecord, plan TargetPlan) []PublishOutcome {
	outcomes := make([]PublishOutcome, 0, len(plan.Targets))
	for _, targetBranch := range plan.Targets {
		branchContext, span := publisher.instrumentation.startBranch(executionContext, targetBranch)
		outcome := publisher.publishBranch(branchContext, scope, record, targetBranch)
		publisher.instrumentation.finishBranch(branchContext, span, outcome)
		publisher.logOutcome(scope, outcome)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (publisher Publisher) publishBranch(executionContext context.Context, scope ChangeScope, record ChangeRecord, targetBranch string) PublishOutcome {
	sweepBranch := SweepBranchName(record.CommitHash, targetBranch)
	details := publisher.recoveryDetails(record, targetBranch, sweepBranch)
	outcome := PublishOutcome{TargetBranch: targetBranch, SweepBranch: sweepBranch}

	if createError := publisher.createReference(executionContext, targetBranch, sweepBranch); createError != nil {
		return failedOutcome(outcome, PublishStatusApplyFailed, PublishStepCreateRef, createError, ApplyRecoveryInstructions(details, PublishStepCreateRef))
	}

	applyError := publisher.strategy.Apply(executionContext, scope, ApplyRequest{
		Record:        record,
		TargetBranch:  targetBranch,
		SweepBranch:   sweepBranch,
		CommitMessage: details.CommitMessage,
	})
	if applyError != nil {
		return failedOutcome(outcome, PublishStatusApplyFailed, PublishStepApply, applyError, ApplyRecoveryInstructions(details, PublishStepApply))
	}

	pullRequest, openError := publisher.forge.CreatePullRequest(executionContext, publisher.settings.Project, githubcli.PullRequestDraft{
		Title: details.Title,
		Head:  publisher.settings.ForkOwner + forkHeadSeparatorConstant + sweepBranch,
		Base:  targetBranch,
		Body:  details.Body,
	})
	if openError != nil {
		return failedOutcome(outcome, PublishStatusPublishFailed, PublishStepOpenRequest, openError, OpenRequestRecoveryInstructions(details))
	}
	outcome.PullRequestNumber = pullRequest.Number
	outcome.PullRequestURL = pullRequest.HTMLURL
	details.PullRequest = pullRequest.Number

	if labelError := publisher.forge.AddLabels(executionContext, publisher.settings.Project, pullRequest.Number, []string{details.ProvenanceLabel}); labelError != nil {
		return failedOutcome(outcome, PublishStatusPublishFailed, PublishStepAddProvenanceLabel, labelError, LabelRecoveryInstructions(details))
	}

	outcome.Status = PublishStatusSucceeded
	return outcome
}

func (publisher Publisher) createReference(executionContext context.Context, targetBranch string, sweepBranch string) error {
	head, headError := publisher.forge.GetBranchHead(executionContext, publisher.settings.Project, targetBranch)
	if headError != nil {
		return headError
	}
	return publisher.forge.CreateBranchReference(executionContext, publisher.settings.ForkProject, sweepBranch, head)
}

func (publisher Publisher) recoveryDetails(record ChangeRecord, targetBranch string, sweepBranch string) RecoveryDetails {
	return RecoveryDetails{
		CommitHash:      record.CommitHash,
		TargetBranch:    targetBranch,
		SweepBranch:     sweepBranch,
		Project:         publisher.settings.Project,
		ForkOwner:       publisher.settings.ForkOwner,
		UpstreamRemote:  publisher.settings.UpstreamRemote,
		ForkRemote:      publisher.settings.ForkRemote,
		Title:           DownstreamTitle(targetBranch, publisher.settings.ShortBranchPrefix, record.CanonicalTitle),
		Body:            DownstreamBody(record, targetBranch),
		CommitMessage:   SweepCommitMessage(record),
		AuthorIdentity:  record.AuthorIdentity,
		ProvenanceLabel: publisher.labels.ProvenanceLabel(publisher.settings.SourceBranch),
	}
}

func (publisher Publisher) logOutcome(scope ChangeScope, outcome PublishOutcome) {
	branchLogger := scope.logger().With(
		zap.String(targetBranchLogFieldConstant, outcome.TargetBranch),
		zap.String(sweepBranchLogFieldConstant, outcome.SweepBranch),
	)
	if outcome.Succeeded() {
		branchLogger.Info(branchSweptMessageConstant, zap.Int(downstreamPullRequestLogField, outcome.PullRequestNumber))
		return
	}
	branchLogger.Warn(branchFailedMessageConstant,
		zap.String(statusLogFieldConstant, string(outcome.Status)),
		zap.String(failedStepLogFieldConstant, string(outcome.FailedStep)),
		zap.String(recoveryLogFieldConstant, outcome.RecoveryText),
		zap.Error(outcome.Failure),
	)
}

func failedOutcome(outcome PublishOutcome, status PublishStatus, step PublishStep, failure error, recoveryText string) PublishOutcome {
	failed := outcome
	failed.Status = status
	failed.FailedStep = step
	failed.Failure = failure
	failed.RecoveryText = recoveryText
	return failed
}
