package githubcli

import (
	"context"
	"strconv"
	"strings"
)

const (
	listLabelsOperationNameConstant         = OperationName("ListLabels")
	setLabelsOperationNameConstant          = OperationName("SetLabels")
	addLabelsOperationNameConstant          = OperationName("AddLabels")
	createIssueOperationNameConstant        = OperationName("CreateIssue")
	createIssueCommentOperationNameConstant = OperationName("CreateIssueComment")
	issueNumberFieldNameConstant            = "issue_number"
	labelsFieldNameConstant                 = "labels"
	bodyFieldNameConstant                   = "body"
	issuesPathSegmentConstant               = "issues"
	labelsPathSegmentConstant               = "labels"
	commentsPathSegmentConstant             = "comments"
	labelNamesJQFilterConstant              = ".[].name"
)

// IssueDraft describes an issue to open.
type IssueDraft struct {
	Title     string
	Body      string
	Assignees []string
	Labels    []string
}

// Issue identifies a created issue.
type Issue struct {
	Number  int
	HTMLURL string
}

type labelsPayload struct {
	Labels []string `json:"labels"`
}

// ListLabels returns the label names attached to an issue or pull request.
func (client *Client) ListLabels(executionContext context.Context, repository string, issueNumber int) ([]string, error) {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return nil, validationError
	}
	if numberError := validateNumber(issueNumberFieldNameConstant, issueNumber); numberError != nil {
		return nil, numberError
	}

	standardOutput, requestError := client.invoke(executionContext, apiRequest{
		operation: listLabelsOperationNameConstant,
		endpoint:  labelsEndpoint(repositoryIdentifier, issueNumber),
		paginate:  true,
		jqFilter:  labelNamesJQFilterConstant,
	})
	if requestError != nil {
		return nil, requestError
	}
	return splitLines(standardOutput), nil
}

// SetLabels replaces the complete label set of an issue or pull request.
func (client *Client) SetLabels(executionContext context.Context, repository string, issueNumber int, labels []string) error {
	return client.writeLabels(executionContext, setLabelsOperationNameConstant, httpMethodPutConstant, repository, issueNumber, labels)
}

// AddLabels attaches labels without touching the existing ones.
func (client *Client) AddLabels(executionContext context.Context, repository string, issueNumber int, labels []string) error {
	if len(normalizeLabels(labels)) == 0 {
		return InvalidInputError{FieldName: labelsFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return client.writeLabels(executionContext, addLabelsOperationNameConstant, httpMethodPostConstant, repository, issueNumber, labels)
}

func (client *Client) writeLabels(executionContext context.Context, operation OperationName, method string, repository string, issueNumber int, labels []string) error {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return validationError
	}
	if numberError := validateNumber(issueNumberFieldNameConstant, issueNumber); numberError != nil {
		return numberError
	}

	_, requestError := client.invoke(executionContext, apiRequest{
		operation: operation,
		method:    method,
		endpoint:  labelsEndpoint(repositoryIdentifier, issueNumber),
		payload:   labelsPayload{Labels: normalizeLabels(labels)},
	})
	return requestError
}

// CreateIssue opens an issue and returns its number.
func (client *Client) CreateIssue(executionContext context.Context, repository string, draft IssueDraft) (Issue, error) {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return Issue{}, validationError
	}
	title, titleError := validateRequired(titleFieldNameConstant, draft.Title)
	if titleError != nil {
		return Issue{}, titleError
	}

	payload := struct {
		Title     string   `json:"title"`
		Body      string   `json:"body"`
		Assignees []string `json:"assignees,omitempty"`
		Labels    []string `json:"labels,omitempty"`
	}{Title: title, Body: draft.Body, Assignees: normalizeLabels(draft.Assignees), Labels: normalizeLabels(draft.Labels)}

	var response struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	requestError := client.invokeJSON(executionContext, apiRequest{
		operation: createIssueOperationNameConstant,
		method:    httpMethodPostConstant,
		endpoint:  repositoryEndpoint(repositoryIdentifier, issuesPathSegmentConstant),
		payload:   payload,
	}, &response)
	if requestError != nil {
		return Issue{}, requestError
	}
	return Issue{Number: response.Number, HTMLURL: response.HTMLURL}, nil
}

// CreateIssueComment posts a comment on an issue or pull request.
func (client *Client) CreateIssueComment(executionContext context.Context, repository string, issueNumber int, body string) error {
	repositoryIdentifier, validationError := validateRepository(repository)
	if validationError != nil {
		return validationError
	}
	if numberError := validateNumber(issueNumberFieldNameConstant, issueNumber); numberError != nil {
		return numberError
	}
	if _, bodyError := validateRequired(bodyFieldNameConstant, body); bodyError != nil {
		return bodyError
	}

	payload := struct {
		Body string `json:"body"`
	}{Body: body}

	_, requestError := client.invoke(executionContext, apiRequest{
		operation: createIssueCommentOperationNameConstant,
		method:    httpMethodPostConstant,
		endpoint:  repositoryEndpoint(repositoryIdentifier, issuesPathSegmentConstant, strconv.Itoa(issueNumber), commentsPathSegmentConstant),
		payload:   payload,
	})
	return requestError
}

func labelsEndpoint(repository string, issueNumber int) string {
	return repositoryEndpoint(repository, issuesPathSegmentConstant, strconv.Itoa(issueNumber), labelsPathSegmentConstant)
}

// normalizeLabels trims values and drops blanks and duplicates while keeping order.
func normalizeLabels(values []string) []string {
	normalized := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmedValue := strings.TrimSpace(value)
		if len(trimmedValue) == 0 {
			continue
		}
		if _, exists := seen[trimmedValue]; exists {
			continue
		}
		seen[trimmedValue] = struct{}{}
		normalized = append(normalized, trimmedValue)
	}
	return normalized
}
