package githubcli_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/prsweep/internal/githubcli"
)

func TestListLabels(testInstance *testing.T) {
	executor := &stubGitHubExecutor{executeFunc: respondWith("sweep:done\nsweep:from rel-6\n")}
	client := newTestClient(testInstance, executor)

	labels, listError := client.ListLabels(context.Background(), testRepositoryIdentifierConstant, 42)
	require.NoError(testInstance, listError)
	require.Equal(testInstance, []string{"sweep:done", "sweep:from rel-6"}, labels)
	require.Equal(testInstance, "repos/acme/widgets/issues/42/labels", executor.recordedDetails[0].Arguments[1])
}

func TestLabelWrites(testInstance *testing.T) {
	testCases := []struct {
		name           string
		invoke         func(client *githubcli.Client) error
		expectedMethod string
		expectedLabels []any
	}{
		{
			name: "set_replaces_with_normalized_set",
			invoke: func(client *githubcli.Client) error {
				return client.SetLabels(context.Background(), testRepositoryIdentifierConstant, 42, []string{"bug", " sweep:done ", "bug"})
			},
			expectedMethod: "PUT",
			expectedLabels: []any{"bug", "sweep:done"},
		},
		{
			name: "set_allows_clearing",
			invoke: func(client *githubcli.Client) error {
				return client.SetLabels(context.Background(), testRepositoryIdentifierConstant, 42, nil)
			},
			expectedMethod: "PUT",
			expectedLabels: []any{},
		},
		{
			name: "add_appends",
			invoke: func(client *githubcli.Client) error {
				return client.AddLabels(context.Background(), testRepositoryIdentifierConstant, 77, []string{"sweptFrom:rel-6"})
			},
			expectedMethod: "POST",
			expectedLabels: []any{"sweptFrom:rel-6"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &stubGitHubExecutor{}
			client := newTestClient(testInstance, executor)

			require.NoError(testInstance, testCase.invoke(client))
			require.Len(testInstance, executor.recordedDetails, 1)
			require.Equal(testInstance, testCase.expectedMethod, executor.recordedDetails[0].Arguments[3])
			require.Equal(testInstance, testCase.expectedLabels, decodePayload(testInstance, executor.recordedDetails[0])["labels"])
		})
	}
}

func TestAddLabelsRequiresLabels(testInstance *testing.T) {
	executor := &stubGitHubExecutor{}
	client := newTestClient(testInstance, executor)

	addError := client.AddLabels(context.Background(), testRepositoryIdentifierConstant, 77, []string{" "})
	require.IsType(testInstance, githubcli.InvalidInputError{}, addError)
	require.Empty(testInstance, executor.recordedDetails)
}

func TestCreateIssue(testInstance *testing.T) {
	executor := &stubGitHubExecutor{executeFunc: respondWith(`{"number":901,"html_url":"https://github.com/acme/widgets/issues/901"}`)}
	client := newTestClient(testInstance, executor)

	issue, createError := client.CreateIssue(context.Background(), testRepositoryIdentifierConstant, githubcli.IssueDraft{
		Title:     "Sweep failed for PR Fix detector",
		Body:      "Fix detector\nSee https://github.com/acme/widgets/pull/42",
		Assignees: []string{"ada"},
		Labels:    []string{"sweep:failed"},
	})
	require.NoError(testInstance, createError)
	require.Equal(testInstance, githubcli.Issue{Number: 901, HTMLURL: "https://github.com/acme/widgets/issues/901"}, issue)

	payload := decodePayload(testInstance, executor.recordedDetails[0])
	require.Equal(testInstance, []any{"ada"}, payload["assignees"])
	require.Equal(testInstance, []any{"sweep:failed"}, payload["labels"])
}

func TestCreateIssueComment(testInstance *testing.T) {
	executor := &stubGitHubExecutor{}
	client := newTestClient(testInstance, executor)

	require.NoError(testInstance, client.CreateIssueComment(context.Background(), testRepositoryIdentifierConstant, 42, "**Sweep summary**"))
	require.Equal(testInstance, "repos/acme/widgets/issues/42/comments", executor.recordedDetails[0].Arguments[1])
	require.Equal(testInstance, map[string]any{"body": "**Sweep summary**"}, decodePayload(testInstance, executor.recordedDetails[0]))

	emptyError := client.CreateIssueComment(context.Background(), testRepositoryIdentifierConstant, 42, " ")
	require.IsType(testInstance, githubcli.InvalidInputError{}, emptyError)
}
