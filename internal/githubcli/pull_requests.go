package githubcli

import (
	"context"
	"strconv"
	"strings"
)

const (
	getPullRequestOperationNameConstant       = OperationName("GetPullRequest")
	listPullRequestFilesOperationNameConstant = OperationName("ListPullRequestFiles")
	createPullRequestOperationNameConstant    = OperationName("CreatePullRequest")
	pullRequestNumberFieldNameConstant        = "pull_request_number"
	titleFieldNameConstant                    = "title"
	pullsPathSegmentConstant                  = "pulls"
	filesPathSegmentConstant                  = "files"
	fileNamesJQFilterConstant                 = ".[].filename"
)

// PullRequest represents the pull request details the sweep engine consumes.
type PullRequest struct {
	Number      int
	Title       string
	Body        string
	AuthorLogin string
	HTMLURL     string
	BaseBranch  string
	HeadBranch  string
	Merged      bool
}

// PullRequestDraft describes a pull request to open.
type PullRequestDraft struct {
	Title string
	Head  string
	Base  string
	Body  string
}

type pullRequestResponse struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	Merged  bool   `json:"merged"`
	User    struct {
		Login string `json:"login"`
	} `json:"user"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	Head struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

func (response pullRequestResponse) toPullRequest() PullRequest {
	return PullRequest{
		Number:      response.Number,
		Title:       response.Title,
		Body:        response.Body,
		AuthorLogin: response.User.Login,
		HTMLURL:     response.HTMLURL,
		BaseBranch:  response.Base.Ref,
		HeadBranch:  response.Head.Ref,
		Merged:      response.Merged,
	}
}

// GetPullRequest retrieves a pull request by number.
func (client *Client) GetPullRequest(executionContext context.Context, repository string, pullRequestNumber int) (PullRequest, error) {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return PullRequest{}, validationError
	}
	if numberError := validateNumber(pullRequestNumberFieldNameConstant, pullRequestNumber); numberError != nil {
		return PullRequest{}, numberError
	}

	var response pullRequestResponse
	requestError := client.invokeJSON(executionContext, apiRequest{
		operation: getPullRequestOperationNameConstant,
		endpoint:  repositoryEndpoint(repositoryIdentifier, pullsPathSegmentConstant, strconv.Itoa(pullRequestNumber)),
	}, &response)
	if requestError != nil {
		return PullRequest{}, requestError
	}
	return response.toPullRequest(), nil
}

// ListPullRequestFiles returns every path touched by a pull request across all pages.
func (client *Client) ListPullRequestFiles(executionContext context.Context, repository string, pullRequestNumber int) ([]string, error) {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return nil, validationError
	}
	if numberError := validateNumber(pullRequestNumberFieldNameConstant, pullRequestNumber); numberError != nil {
		return nil, numberError
	}

	standardOutput, requestError := client.invoke(executionContext, apiRequest{
		operation: listPullRequestFilesOperationNameConstant,
		endpoint:  repositoryEndpoint(repositoryIdentifier, pullsPathSegmentConstant, strconv.Itoa(pullRequestNumber), filesPathSegmentConstant),
		paginate:  true,
		jqFilter:  fileNamesJQFilterConstant,
	})
	if requestError != nil {
		return nil, requestError
	}
	return splitLines(standardOutput), nil
}

// CreatePullRequest opens a pull request and returns it as created.
func (client *Client) CreatePullRequest(executionContext context.Context, repository string, draft PullRequestDraft) (PullRequest, error) {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return PullRequest{}, validationError
	}
	title, titleError := validateRequired(titleFieldNameConstant, draft.Title)
	if titleError != nil {
		return PullRequest{}, titleError
	}
	head, headError := validateRequired(headFieldNameConstant, draft.Head)
	if headError != nil {
		return PullRequest{}, headError
	}
	base, baseError := validateRequired(baseFieldNameConstant, draft.Base)
	if baseError != nil {
		return PullRequest{}, baseError
	}

	payload := struct {
		Title string `json:"title"`
		Head  string `json:"head"`
		Base  string `json:"base"`
		Body  string `json:"body"`
	}{Title: title, Head: head, Base: base, Body: strings.TrimRight(draft.Body, "\n")}

	var response pullRequestResponse
	requestError := client.invokeJSON(executionContext, apiRequest{
		operation: createPullRequestOperationNameConstant,
		method:    httpMethodPostConstant,
		endpoint:  repositoryEndpoint(repositoryIdentifier, pullsPathSegmentConstant),
		payload:   payload,
	}, &response)
	if requestError != nil {
		return PullRequest{}, requestError
	}
	return response.toPullRequest(), nil
}
