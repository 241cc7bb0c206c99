package sweep

import (
	"context"

	"go.uber.org/zap"

	"github.com/temirov/prsweep/internal/utils"
)

const (
	mergeCommitLogFieldConstant   = "merge_commit"
	runIdentifierLogFieldConstant = "run_id"
	pullRequestLogFieldConstant   = "pull_request"
)

// ChangeScope carries the correlation data of the change being processed.
type ChangeScope struct {
	RunIdentifier string
	CommitHash    string
	Logger        *zap.Logger
}

// NewChangeScope derives a scope for a merge commit and stores its correlation identifier in the context.
func NewChangeScope(parentContext context.Context, baseLogger *zap.Logger, runIdentifier string, commitHash string) (context.Context, ChangeScope) {
	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}
	if parentContext == nil {
		parentContext = context.Background()
	}
	contextAccessor := utils.NewCommandContextAccessor()
	scopedContext := contextAccessor.WithCorrelationIdentifier(parentContext, commitHash)
	scopedContext = contextAccessor.WithRunIdentifier(scopedContext, runIdentifier)
	return scopedContext, ChangeScope{
		RunIdentifier: runIdentifier,
		CommitHash:    commitHash,
		Logger: baseLogger.With(
			zap.String(runIdentifierLogFieldConstant, runIdentifier),
			zap.String(mergeCommitLogFieldConstant, commitHash),
		),
	}
}

// WithPullRequest returns a scope whose logger also carries the pull request number.
func (scope ChangeScope) WithPullRequest(pullRequestNumber int) ChangeScope {
	scoped := scope
	scoped.Logger = scope.logger().With(zap.Int(pullRequestLogFieldConstant, pullRequestNumber))
	return scoped
}

func (scope ChangeScope) logger() *zap.Logger {
	if scope.Logger == nil {
		return zap.NewNop()
	}
	return scope.Logger
}
