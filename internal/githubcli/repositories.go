package githubcli

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const (
	resolveRepoMetadataOperationNameConstant   = OperationName("ResolveRepoMetadata")
	getBranchHeadOperationNameConstant         = OperationName("GetBranchHead")
	createBranchReferenceOperationNameConstant = OperationName("CreateBranchReference")
	mergeBranchesOperationNameConstant         = OperationName("MergeBranches")
	getCommitOperationNameConstant             = OperationName("GetCommit")
	resolveAuthorIdentityOperationNameConstant = OperationName("ResolveAuthorIdentity")
	branchFieldNameConstant                    = "branch"
	commitFieldNameConstant                    = "commit"
	baseFieldNameConstant                      = "base"
	headFieldNameConstant                      = "head"
	loginFieldNameConstant                     = "login"
	branchesPathSegmentConstant                = "branches"
	gitReferencesPathConstant                  = "git/refs"
	mergesPathSegmentConstant                  = "merges"
	commitsPathSegmentConstant                 = "commits"
	branchHeadJQFilterConstant                 = ".commit.sha"
	branchReferencePrefixConstant              = "refs/heads/"
	authorCommitsQueryTemplateConstant         = "commits?author=%s&per_page=1"
	noReplyEmailTemplateConstant               = "%s@users.noreply.github.com"
	authorIdentityTemplateConstant             = "%s <%s>"
)

// RepositoryMetadata contains key details resolved from GitHub.
type RepositoryMetadata struct {
	NameWithOwner string
	Owner         string
	Name          string
	DefaultBranch string
	HTMLURL       string
	Fork          bool
}

// Commit describes a commit as reported by the API.
type Commit struct {
	SHA         string
	Message     string
	AuthorName  string
	AuthorEmail string
	ParentSHAs  []string
}

// MergeRequest describes a server-side merge of Head into Base.
type MergeRequest struct {
	Base          string
	Head          string
	CommitMessage string
}

// AuthorIdentity is the name and email a user commits under.
type AuthorIdentity struct {
	Name  string
	Email string
}

// String renders the identity in git's "Name <email>" form.
func (identity AuthorIdentity) String() string {
	return fmt.Sprintf(authorIdentityTemplateConstant, identity.Name, identity.Email)
}

// NoReplyIdentity builds the identity GitHub assigns to users that hide their email.
func NoReplyIdentity(login string) AuthorIdentity {
	trimmedLogin := strings.TrimSpace(login)
	return AuthorIdentity{Name: trimmedLogin, Email: fmt.Sprintf(noReplyEmailTemplateConstant, trimmedLogin)}
}

// ResolveRepoMetadata verifies that a repository exists and returns its canonical handle.
func (client *Client) ResolveRepoMetadata(executionContext context.Context, repository string) (RepositoryMetadata, error) {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return RepositoryMetadata{}, validationError
	}

	var response struct {
		FullName      string `json:"full_name"`
		Name          string `json:"name"`
		DefaultBranch string `json:"default_branch"`
		HTMLURL       string `json:"html_url"`
		Fork          bool   `json:"fork"`
		Owner         struct {
			Login string `json:"login"`
		} `json:"owner"`
	}
	requestError := client.invokeJSON(executionContext, apiRequest{
		operation: resolveRepoMetadataOperationNameConstant,
		endpoint:  repositoryEndpoint(repositoryIdentifier),
	}, &response)
	if requestError != nil {
		return RepositoryMetadata{}, requestError
	}

	return RepositoryMetadata{
		NameWithOwner: response.FullName,
		Owner:         response.Owner.Login,
		Name:          response.Name,
		DefaultBranch: response.DefaultBranch,
		HTMLURL:       response.HTMLURL,
		Fork:          response.Fork,
	}, nil
}

// GetBranchHead returns the commit hash at the tip of branch.
func (client *Client) GetBranchHead(executionContext context.Context, repository string, branch string) (string, error) {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return "", validationError
	}
	branchName, branchError := validateRequired(branchFieldNameConstant, branch)
	if branchError != nil {
		return "", branchError
	}

	standardOutput, requestError := client.invoke(executionContext, apiRequest{
		operation: getBranchHeadOperationNameConstant,
		endpoint:  repositoryEndpoint(repositoryIdentifier, branchesPathSegmentConstant, escapeBranch(branchName)),
		jqFilter:  branchHeadJQFilterConstant,
	})
	if requestError != nil {
		return "", requestError
	}
	return strings.TrimSpace(standardOutput), nil
}

// CreateBranchReference creates refs/heads/<branch> pointing at commitHash.
func (client *Client) CreateBranchReference(executionContext context.Context, repository string, branch string, commitHash string) error {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return validationError
	}
	branchName, branchError := validateRequired(branchFieldNameConstant, branch)
	if branchError != nil {
		return branchError
	}
	commitIdentifier, commitError := validateRequired(commitFieldNameConstant, commitHash)
	if commitError != nil {
		return commitError
	}

	payload := struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}{Ref: branchReferencePrefixConstant + branchName, SHA: commitIdentifier}

	_, requestError := client.invoke(executionContext, apiRequest{
		operation: createBranchReferenceOperationNameConstant,
		method:    httpMethodPostConstant,
		endpoint:  repositoryEndpoint(repositoryIdentifier, gitReferencesPathConstant),
		payload:   payload,
	})
	return requestError
}

// MergeBranches merges Head into Base on the server and returns the merge commit hash.
// An empty hash means Base already contained Head.
func (client *Client) MergeBranches(executionContext context.Context, repository string, request MergeRequest) (string, error) {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return "", validationError
	}
	baseBranch, baseError := validateRequired(baseFieldNameConstant, request.Base)
	if baseError != nil {
		return "", baseError
	}
	head, headError := validateRequired(headFieldNameConstant, request.Head)
	if headError != nil {
		return "", headError
	}

	payload := struct {
		Base          string `json:"base"`
		Head          string `json:"head"`
		CommitMessage string `json:"commit_message,omitempty"`
	}{Base: baseBranch, Head: head, CommitMessage: request.CommitMessage}

	standardOutput, requestError := client.invoke(executionContext, apiRequest{
		operation: mergeBranchesOperationNameConstant,
		method:    httpMethodPostConstant,
		endpoint:  repositoryEndpoint(repositoryIdentifier, mergesPathSegmentConstant),
		payload:   payload,
	})
	if requestError != nil {
		return "", requestError
	}
	if len(strings.TrimSpace(standardOutput)) == 0 {
		return "", nil
	}

	var response struct {
		SHA string `json:"sha"`
	}
	if decodingError := decodeJSON(standardOutput, &response); decodingError != nil {
		return "", ResponseDecodingError{Operation: mergeBranchesOperationNameConstant, Cause: decodingError}
	}
	return response.SHA, nil
}

// GetCommit retrieves a commit with its message and parents.
func (client *Client) GetCommit(executionContext context.Context, repository string, commitHash string) (Commit, error) {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return Commit{}, validationError
	}
	commitIdentifier, commitError := validateRequired(commitFieldNameConstant, commitHash)
	if commitError != nil {
		return Commit{}, commitError
	}

	var response commitResponse
	requestError := client.invokeJSON(executionContext, apiRequest{
		operation: getCommitOperationNameConstant,
		endpoint:  repositoryEndpoint(repositoryIdentifier, commitsPathSegmentConstant, url.PathEscape(commitIdentifier)),
	}, &response)
	if requestError != nil {
		return Commit{}, requestError
	}
	return response.toCommit(), nil
}

// ResolveAuthorIdentity finds the name and email login last committed under in repository.
// Users without commits there resolve to their noreply identity.
func (client *Client) ResolveAuthorIdentity(executionContext context.Context, repository string, login string) (AuthorIdentity, error) {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return AuthorIdentity{}, validationError
	}
	authorLogin, loginError := validateRequired(loginFieldNameConstant, login)
	if loginError != nil {
		return AuthorIdentity{}, loginError
	}

	var response []commitResponse
	requestError := client.invokeJSON(executionContext, apiRequest{
		operation: resolveAuthorIdentityOperationNameConstant,
		endpoint:  repositoryEndpoint(repositoryIdentifier, fmt.Sprintf(authorCommitsQueryTemplateConstant, url.QueryEscape(authorLogin))),
	}, &response)
	if requestError != nil {
		return AuthorIdentity{}, requestError
	}

	if len(response) == 0 {
		return NoReplyIdentity(authorLogin), nil
	}
	latestCommit := response[0].toCommit()
	if len(strings.TrimSpace(latestCommit.AuthorName)) == 0 || len(strings.TrimSpace(latestCommit.AuthorEmail)) == 0 {
		return NoReplyIdentity(authorLogin), nil
	}
	return AuthorIdentity{Name: latestCommit.AuthorName, Email: latestCommit.AuthorEmail}, nil
}

type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"author"`
	} `json:"commit"`
	Parents []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
}

func (response commitResponse) toCommit() Commit {
	parentHashes := make([]string, 0, len(response.Parents))
	for _, parent := range response.Parents {
		parentHashes = append(parentHashes, parent.SHA)
	}
	return Commit{
		SHA:         response.SHA,
		Message:     response.Commit.Message,
		AuthorName:  response.Commit.Author.Name,
		AuthorEmail: response.Commit.Author.Email,
		ParentSHAs:  parentHashes,
	}
}
