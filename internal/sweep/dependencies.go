package sweep

import (
	"context"

	"github.com/temirov/prsweep/internal/execshell"
	"github.com/temirov/prsweep/internal/githubcli"
	"github.com/temirov/prsweep/internal/gitrepo"
)

// GitExecutor runs git commands in the working copy.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// HistoryReader exposes the read-only repository history used by a run.
type HistoryReader interface {
	ListMergeCommits(executionContext context.Context, reference string, window gitrepo.TimeWindow) ([]gitrepo.MergeCommit, error)
	CommitMessage(revision string) (string, error)
	ReadFile(reference string, path string) ([]byte, error)
}

// HistoryOpener opens the repository history rooted at a path.
type HistoryOpener func(repositoryPath string) (HistoryReader, error)

// ChangeForge retrieves pull request data for merge commits.
type ChangeForge interface {
	GetCommit(executionContext context.Context, repository string, commitHash string) (githubcli.Commit, error)
	GetPullRequest(executionContext context.Context, repository string, pullRequestNumber int) (githubcli.PullRequest, error)
	ListLabels(executionContext context.Context, repository string, issueNumber int) ([]string, error)
	ListPullRequestFiles(executionContext context.Context, repository string, pullRequestNumber int) ([]string, error)
	ResolveAuthorIdentity(executionContext context.Context, repository string, login string) (githubcli.AuthorIdentity, error)
}

// BranchMerger merges a commit into a branch on the forge.
type BranchMerger interface {
	MergeBranches(executionContext context.Context, repository string, request githubcli.MergeRequest) (string, error)
}

// PublishForge creates the downstream branches and pull requests.
type PublishForge interface {
	GetBranchHead(executionContext context.Context, repository string, branch string) (string, error)
	CreateBranchReference(executionContext context.Context, repository string, branch string, commitHash string) error
	CreatePullRequest(executionContext context.Context, repository string, draft githubcli.PullRequestDraft) (githubcli.PullRequest, error)
	AddLabels(executionContext context.Context, repository string, issueNumber int, labels []string) error
}

// ReportForge posts sweep summaries and tracking issues.
type ReportForge interface {
	CreateIssue(executionContext context.Context, repository string, draft githubcli.IssueDraft) (githubcli.Issue, error)
	CreateIssueComment(executionContext context.Context, repository string, issueNumber int, body string) error
	AddLabels(executionContext context.Context, repository string, issueNumber int, labels []string) error
}

// Forge is the complete forge surface a sweep run uses.
type Forge interface {
	ChangeForge
	BranchMerger
	PublishForge
	ReportForge
	ResolveRepoMetadata(executionContext context.Context, repository string) (githubcli.RepositoryMetadata, error)
	SetLabels(executionContext context.Context, repository string, issueNumber int, labels []string) error
}

var _ Forge = (*githubcli.Client)(nil)
