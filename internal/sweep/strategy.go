package sweep

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/prsweep/internal/execshell"
	"github.com/temirov/prsweep/internal/githubcli"
)

const (
	gitFetchSubcommandConstant       = "fetch"
	gitCheckoutSubcommandConstant    = "checkout"
	gitCheckoutResetFlagConstant     = "-B"
	gitCherryPickSubcommandConstant  = "cherry-pick"
	gitCherryPickRecordFlagConstant  = "-x"
	gitMainlineFlagConstant          = "-m"
	gitFirstParentConstant           = "1"
	gitAbortFlagConstant             = "--abort"
	gitCommitSubcommandConstant      = "commit"
	gitAmendFlagConstant             = "--amend"
	gitMessageFlagConstant           = "-m"
	gitAuthorFlagTemplateConstant    = "--author=%s"
	gitPushSubcommandConstant        = "push"
	applyStepErrorTemplateConstant   = "%s: %v"
	replayAbortFailedMessageConstant = "Failed to abort cherry-pick"
	replayStepFetchUpstream          = "fetch upstream"
	replayStepFetchFork              = "fetch fork"
	replayStepCheckout               = "checkout"
	replayStepCherryPick             = "cherry-pick"
	replayStepAmend                  = "amend"
	replayStepPush                   = "push"
	mergeStepConstant                = "merge"
	alreadyMergedMessageConstant     = "Change already present on sweep branch"
	sweepBranchLogFieldConstant      = "sweep_branch"
)

// ApplyRequest describes one change applied to one sweep branch.
type ApplyRequest struct {
	Record        ChangeRecord
	TargetBranch  string
	SweepBranch   string
	CommitMessage string
}

// ApplyStepError identifies the strategy step that failed.
type ApplyStepError struct {
	Step  string
	Cause error
}

func (stepError ApplyStepError) Error() string {
	return fmt.Sprintf(applyStepErrorTemplateConstant, stepError.Step, stepError.Cause)
}

// Unwrap exposes the underlying failure.
func (stepError ApplyStepError) Unwrap() error {
	return stepError.Cause
}

// ApplyStrategy brings a change onto a freshly created sweep branch.
type ApplyStrategy interface {
	Name() Strategy
	Apply(executionContext context.Context, scope ChangeScope, request ApplyRequest) error
}

// MergeStrategy asks the forge to merge the original merge commit into the sweep branch.
type MergeStrategy struct {
	merger      BranchMerger
	forkProject string
}

// NewMergeStrategy constructs a MergeStrategy operating on the fork project.
func NewMergeStrategy(merger BranchMerger, forkProject string) MergeStrategy {
	return MergeStrategy{merger: merger, forkProject: forkProject}
}

// Name identifies the strategy.
func (strategy MergeStrategy) Name() Strategy {
	return StrategyMerge
}

// Apply merges the commit server-side.
func (strategy MergeStrategy) Apply(executionContext context.Context, scope ChangeScope, request ApplyRequest) error {
	mergeHash, mergeError := strategy.merger.MergeBranches(executionContext, strategy.forkProject, githubcli.MergeRequest{
		Base:          request.SweepBranch,
		Head:          request.Record.CommitHash,
		CommitMessage: request.CommitMessage,
	})
	if mergeError != nil {
		return ApplyStepError{Step: mergeStepConstant, Cause: mergeError}
	}
	if len(mergeHash) == 0 {
		scope.logger().Info(alreadyMergedMessageConstant, zap.String(sweepBranchLogFieldConstant, request.SweepBranch))
	}
	return nil
}

// ReplayStrategy cherry-picks the merge commit in the local working copy and pushes the result.
type ReplayStrategy struct {
	git              GitExecutor
	workingDirectory string
	upstreamRemote   string
	forkRemote       string
}

// NewReplayStrategy constructs a ReplayStrategy for the working copy.
func NewReplayStrategy(git GitExecutor, workingDirectory string, upstreamRemote string, forkRemote string) ReplayStrategy {
	return ReplayStrategy{git: git, workingDirectory: workingDirectory, upstreamRemote: upstreamRemote, forkRemote: forkRemote}
}

// Name identifies the strategy.
func (strategy ReplayStrategy) Name() Strategy {
	return StrategyReplay
}

// Apply replays the change with the first parent as mainline, rewrites the commit and pushes it.
// A failed cherry-pick is aborted before the failure is returned.
func (strategy ReplayStrategy) Apply(executionContext context.Context, scope ChangeScope, request ApplyRequest) error {
	steps := []struct {
		name      string
		arguments []string
	}{
		{name: replayStepFetchUpstream, arguments: []string{gitFetchSubcommandConstant, strategy.upstreamRemote}},
		{name: replayStepFetchFork, arguments: []string{gitFetchSubcommandConstant, strategy.forkRemote}},
		{name: replayStepCheckout, arguments: []string{gitCheckoutSubcommandConstant, gitCheckoutResetFlagConstant, request.SweepBranch, strategy.forkRemote + remoteBranchSeparatorConstant + request.SweepBranch}},
	}
	for _, step := range steps {
		if stepError := strategy.run(executionContext, step.arguments); stepError != nil {
			return ApplyStepError{Step: step.name, Cause: stepError}
		}
	}

	cherryPickError := strategy.run(executionContext, []string{gitCherryPickSubcommandConstant, gitCherryPickRecordFlagConstant, gitMainlineFlagConstant, gitFirstParentConstant, request.Record.CommitHash})
	if cherryPickError != nil {
		if abortError := strategy.run(executionContext, []string{gitCherryPickSubcommandConstant, gitAbortFlagConstant}); abortError != nil {
			scope.logger().Warn(replayAbortFailedMessageConstant, zap.String(sweepBranchLogFieldConstant, request.SweepBranch), zap.Error(abortError))
		}
		return ApplyStepError{Step: replayStepCherryPick, Cause: cherryPickError}
	}

	amendArguments := []string{gitCommitSubcommandConstant, gitAmendFlagConstant, gitMessageFlagConstant, request.CommitMessage}
	if identity := strings.TrimSpace(request.Record.AuthorIdentity); len(identity) > 0 {
		amendArguments = append(amendArguments, fmt.Sprintf(gitAuthorFlagTemplateConstant, identity))
	}
	if amendError := strategy.run(executionContext, amendArguments); amendError != nil {
		return ApplyStepError{Step: replayStepAmend, Cause: amendError}
	}

	if pushError := strategy.run(executionContext, []string{gitPushSubcommandConstant, strategy.forkRemote, request.SweepBranch}); pushError != nil {
		return ApplyStepError{Step: replayStepPush, Cause: pushError}
	}
	return nil
}

func (strategy ReplayStrategy) run(executionContext context.Context, arguments []string) error {
	_, executionError := strategy.git.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: strategy.workingDirectory,
	})
	return executionError
}
