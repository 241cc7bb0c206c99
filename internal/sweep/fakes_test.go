package sweep_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/prsweep/internal/execshell"
	"github.com/temirov/prsweep/internal/githubcli"
	"github.com/temirov/prsweep/internal/gitrepo"
)

const (
	testProjectConstant      = "acme/detector"
	testForkProjectConstant  = "sweeper-bot/detector"
	testForkOwnerConstant    = "sweeper-bot"
	testCommitHashConstant   = "4f2a9c1d7e8b"
	testPullRequestConstant  = 42
	testAuthorLoginConstant  = "alice"
	testBranchHeadConstant   = "b1c2d3"
	testRunURLConstant       = "https://github.com/acme/detector/actions/runs/7"
	testMergeMessageTemplate = "Merge pull request #%d from alice/fix\n\n[Detector] Fix pixel mask"
)

var errForgeFailure = errors.New("forge unavailable")

type forgeCall struct {
	Operation string
	Arguments string
}

// fakeForge records every forge operation and answers from configurable tables.
type fakeForge struct {
	metadata         map[string]githubcli.RepositoryMetadata
	pullRequests     map[int]githubcli.PullRequest
	labels           map[int][]string
	files            map[int][]string
	identity         *githubcli.AuthorIdentity
	commitErrors     map[string]error
	failures         map[string]error
	createdRequests  []githubcli.PullRequestDraft
	createdIssues    []githubcli.IssueDraft
	comments         map[int][]string
	setLabels        map[int][]string
	addedLabels      map[int][]string
	merges           []githubcli.MergeRequest
	calls            []forgeCall
	nextPullRequest  int
	nextIssueNumber  int
	failingPullBases map[string]bool
}

func newFakeForge() *fakeForge {
	return &fakeForge{
		metadata: map[string]githubcli.RepositoryMetadata{
			testProjectConstant:     {NameWithOwner: testProjectConstant, Owner: "acme", Name: "detector"},
			testForkProjectConstant: {NameWithOwner: testForkProjectConstant, Owner: testForkOwnerConstant, Name: "detector", Fork: true},
		},
		pullRequests:     map[int]githubcli.PullRequest{},
		labels:           map[int][]string{},
		files:            map[int][]string{},
		commitErrors:     map[string]error{},
		failures:         map[string]error{},
		comments:         map[int][]string{},
		setLabels:        map[int][]string{},
		addedLabels:      map[int][]string{},
		nextPullRequest:  100,
		nextIssueNumber:  900,
		failingPullBases: map[string]bool{},
	}
}

func (forge *fakeForge) record(operation string, arguments ...any) error {
	formatted := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		formatted = append(formatted, fmt.Sprint(argument))
	}
	forge.calls = append(forge.calls, forgeCall{Operation: operation, Arguments: strings.Join(formatted, " ")})
	return forge.failures[operation]
}

func (forge *fakeForge) operations() []string {
	operations := make([]string, 0, len(forge.calls))
	for _, call := range forge.calls {
		operations = append(operations, call.Operation)
	}
	return operations
}

func (forge *fakeForge) ResolveRepoMetadata(_ context.Context, repository string) (githubcli.RepositoryMetadata, error) {
	if failure := forge.record("ResolveRepoMetadata", repository); failure != nil {
		return githubcli.RepositoryMetadata{}, failure
	}
	metadata, found := forge.metadata[repository]
	if !found {
		return githubcli.RepositoryMetadata{}, errForgeFailure
	}
	return metadata, nil
}

func (forge *fakeForge) GetCommit(_ context.Context, repository string, commitHash string) (githubcli.Commit, error) {
	if failure := forge.record("GetCommit", repository, commitHash); failure != nil {
		return githubcli.Commit{}, failure
	}
	if commitError := forge.commitErrors[commitHash]; commitError != nil {
		return githubcli.Commit{}, commitError
	}
	return githubcli.Commit{SHA: commitHash}, nil
}

func (forge *fakeForge) GetPullRequest(_ context.Context, repository string, pullRequestNumber int) (githubcli.PullRequest, error) {
	if failure := forge.record("GetPullRequest", repository, pullRequestNumber); failure != nil {
		return githubcli.PullRequest{}, failure
	}
	pullRequest, found := forge.pullRequests[pullRequestNumber]
	if !found {
		return githubcli.PullRequest{}, errForgeFailure
	}
	return pullRequest, nil
}

func (forge *fakeForge) ListLabels(_ context.Context, repository string, issueNumber int) ([]string, error) {
	if failure := forge.record("ListLabels", repository, issueNumber); failure != nil {
		return nil, failure
	}
	return append([]string(nil), forge.labels[issueNumber]...), nil
}

func (forge *fakeForge) ListPullRequestFiles(_ context.Context, repository string, pullRequestNumber int) ([]string, error) {
	if failure := forge.record("ListPullRequestFiles", repository, pullRequestNumber); failure != nil {
		return nil, failure
	}
	return append([]string(nil), forge.files[pullRequestNumber]...), nil
}

func (forge *fakeForge) ResolveAuthorIdentity(_ context.Context, repository string, login string) (githubcli.AuthorIdentity, error) {
	if failure := forge.record("ResolveAuthorIdentity", repository, login); failure != nil {
		return githubcli.AuthorIdentity{}, failure
	}
	if forge.identity == nil {
		return githubcli.AuthorIdentity{}, errForgeFailure
	}
	return *forge.identity, nil
}

func (forge *fakeForge) MergeBranches(_ context.Context, repository string, request githubcli.MergeRequest) (string, error) {
	if failure := forge.record("MergeBranches", repository, request.Base, request.Head); failure != nil {
		return "", failure
	}
	forge.merges = append(forge.merges, request)
	return "m3rg3d", nil
}

func (forge *fakeForge) GetBranchHead(_ context.Context, repository string, branch string) (string, error) {
	if failure := forge.record("GetBranchHead", repository, branch); failure != nil {
		return "", failure
	}
	return testBranchHeadConstant, nil
}

func (forge *fakeForge) CreateBranchReference(_ context.Context, repository string, branch string, commitHash string) error {
	return forge.record("CreateBranchReference", repository, branch, commitHash)
}

func (forge *fakeForge) CreatePullRequest(_ context.Context, repository string, draft githubcli.PullRequestDraft) (githubcli.PullRequest, error) {
	if failure := forge.record("CreatePullRequest", repository, draft.Head, draft.Base); failure != nil {
		return githubcli.PullRequest{}, failure
	}
	if forge.failingPullBases[draft.Base] {
		return githubcli.PullRequest{}, errForgeFailure
	}
	forge.createdRequests = append(forge.createdRequests, draft)
	forge.nextPullRequest++
	return githubcli.PullRequest{Number: forge.nextPullRequest, Title: draft.Title, BaseBranch: draft.Base}, nil
}

func (forge *fakeForge) AddLabels(_ context.Context, repository string, issueNumber int, labels []string) error {
	if failure := forge.record("AddLabels", repository, issueNumber, strings.Join(labels, ",")); failure != nil {
		return failure
	}
	forge.addedLabels[issueNumber] = append(forge.addedLabels[issueNumber], labels...)
	return nil
}

func (forge *fakeForge) SetLabels(_ context.Context, repository string, issueNumber int, labels []string) error {
	if failure := forge.record("SetLabels", repository, issueNumber, strings.Join(labels, ",")); failure != nil {
		return failure
	}
	forge.setLabels[issueNumber] = append([]string(nil), labels...)
	forge.labels[issueNumber] = append([]string(nil), labels...)
	return nil
}

func (forge *fakeForge) CreateIssue(_ context.Context, repository string, draft githubcli.IssueDraft) (githubcli.Issue, error) {
	if failure := forge.record("CreateIssue", repository, draft.Title); failure != nil {
		return githubcli.Issue{}, failure
	}
	forge.createdIssues = append(forge.createdIssues, draft)
	forge.nextIssueNumber++
	return githubcli.Issue{Number: forge.nextIssueNumber}, nil
}

func (forge *fakeForge) CreateIssueComment(_ context.Context, repository string, issueNumber int, body string) error {
	if failure := forge.record("CreateIssueComment", repository, issueNumber); failure != nil {
		return failure
	}
	forge.comments[issueNumber] = append(forge.comments[issueNumber], body)
	return nil
}

// recordingGitExecutor records git invocations and fails those whose arguments start with a configured prefix.
type recordingGitExecutor struct {
	invocations [][]string
	failures    map[string]error
}

func newRecordingGitExecutor() *recordingGitExecutor {
	return &recordingGitExecutor{failures: map[string]error{}}
}

func (executor *recordingGitExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.invocations = append(executor.invocations, append([]string(nil), details.Arguments...))
	joined := strings.Join(details.Arguments, " ")
	for prefix, failure := range executor.failures {
		if strings.HasPrefix(joined, prefix) {
			return execshell.ExecutionResult{}, failure
		}
	}
	return execshell.ExecutionResult{}, nil
}

func (executor *recordingGitExecutor) commands() []string {
	commands := make([]string, 0, len(executor.invocations))
	for _, invocation := range executor.invocations {
		commands = append(commands, strings.Join(invocation, " "))
	}
	return commands
}

// fakeHistory serves merge commits, messages and rule files from memory.
type fakeHistory struct {
	mergeCommits []gitrepo.MergeCommit
	messages     map[string]string
	files        map[string][]byte
	listError    error
	listedRef    string
}

func (history *fakeHistory) ListMergeCommits(_ context.Context, reference string, _ gitrepo.TimeWindow) ([]gitrepo.MergeCommit, error) {
	history.listedRef = reference
	if history.listError != nil {
		return nil, history.listError
	}
	return history.mergeCommits, nil
}

func (history *fakeHistory) CommitMessage(revision string) (string, error) {
	message, found := history.messages[revision]
	if !found {
		return "", errors.New("unknown revision")
	}
	return message, nil
}

func (history *fakeHistory) ReadFile(reference string, path string) ([]byte, error) {
	content, found := history.files[reference+":"+path]
	if !found {
		return nil, errors.New("file not found")
	}
	return content, nil
}

func mergeMessage(pullRequestNumber int) string {
	return fmt.Sprintf(testMergeMessageTemplate, pullRequestNumber)
}
