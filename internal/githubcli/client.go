package githubcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/temirov/prsweep/internal/execshell"
	"github.com/temirov/prsweep/internal/githubauth"
)

const (
	apiSubcommandConstant                   = "api"
	methodFlagConstant                      = "-X"
	inputFlagConstant                       = "--input"
	stdinReferenceConstant                  = "-"
	acceptHeaderFlagConstant                = "-H"
	acceptHeaderValueConstant               = "Accept: application/vnd.github+json"
	paginateFlagConstant                    = "--paginate"
	jqFlagConstant                          = "--jq"
	httpMethodGetConstant                   = "GET"
	httpMethodPostConstant                  = "POST"
	httpMethodPutConstant                   = "PUT"
	repositoryFieldNameConstant             = "repository"
	requiredValueMessageConstant            = "value required"
	positiveNumberMessageConstant           = "must be a positive number"
	repositoryFormatMessageConstant         = "must be in owner/name form"
	executorNotConfiguredMessageConstant    = "github cli executor not configured"
	operationErrorMessageTemplateConstant   = "%s operation failed"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
	responseDecodingErrorTemplateConstant   = "%s response decoding failed: %s"
	payloadEncodingErrorTemplateConstant    = "%s payload encoding failed: %s"
	invalidInputErrorTemplateConstant       = "%s: %s"
	repositoryEndpointTemplateConstant      = "repos/%s"
	repositoryPathSeparatorConstant         = "/"
)

// OperationName describes a named GitHub API workflow supported by the client.
type OperationName string

// GitHubCommandExecutor is the minimal interface required from execshell.ShellExecutor.
type GitHubCommandExecutor interface {
	ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithAuthenticationToken authenticates every gh invocation with token.
func WithAuthenticationToken(token string) ClientOption {
	return func(client *Client) {
		client.environment = githubauth.CommandEnvironment(token)
	}
}

// Client coordinates GitHub CLI invocations through execshell.
type Client struct {
	executor    GitHubCommandExecutor
	environment map[string]string
}

var (
	// ErrExecutorNotConfigured indicates the client was constructed without an executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps execution issues for GitHub CLI operations.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError indicates JSON decoding failures.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying JSON error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// PayloadEncodingError indicates JSON encoding issues.
type PayloadEncodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the encoding failure.
func (encodingError PayloadEncodingError) Error() string {
	return fmt.Sprintf(payloadEncodingErrorTemplateConstant, encodingError.Operation, encodingError.Cause)
}

// Unwrap exposes the underlying error.
func (encodingError PayloadEncodingError) Unwrap() error {
	return encodingError.Cause
}

// NewClient constructs a GitHub CLI client.
func NewClient(executor GitHubCommandExecutor, options ...ClientOption) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	client := &Client{executor: executor}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

type apiRequest struct {
	operation OperationName
	method    string
	endpoint  string
	payload   any
	paginate  bool
	jqFilter  string
}

// invoke runs gh api and returns the raw standard output. POST requests create state and run once.
func (client *Client) invoke(executionContext context.Context, request apiRequest) (string, error) {
	method := request.method
	if len(method) == 0 {
		method = httpMethodGetConstant
	}
	arguments := []string{apiSubcommandConstant, request.endpoint, methodFlagConstant, method, acceptHeaderFlagConstant, acceptHeaderValueConstant}
	if request.paginate {
		arguments = append(arguments, paginateFlagConstant)
	}
	if len(request.jqFilter) > 0 {
		arguments = append(arguments, jqFlagConstant, request.jqFilter)
	}

	commandDetails := execshell.CommandDetails{
		Arguments:            arguments,
		EnvironmentVariables: client.environment,
		SingleAttempt:        method == httpMethodPostConstant,
	}
	if request.payload != nil {
		payloadBytes, encodingError := json.Marshal(request.payload)
		if encodingError != nil {
			return "", PayloadEncodingError{Operation: request.operation, Cause: encodingError}
		}
		commandDetails.Arguments = append(commandDetails.Arguments, inputFlagConstant, stdinReferenceConstant)
		commandDetails.StandardInput = payloadBytes
	}

	executionResult, executionError := client.executor.ExecuteGitHubCLI(executionContext, commandDetails)
	if executionError != nil {
		return "", OperationError{Operation: request.operation, Cause: executionError}
	}
	return executionResult.StandardOutput, nil
}

// invokeJSON runs gh api and decodes the response into target.
func (client *Client) invokeJSON(executionContext context.Context, request apiRequest, target any) error {
	standardOutput, invokeError := client.invoke(executionContext, request)
	if invokeError != nil {
		return invokeError
	}
	if decodingError := decodeJSON(standardOutput, target); decodingError != nil {
		return ResponseDecodingError{Operation: request.operation, Cause: decodingError}
	}
	return nil
}

func validateRepository(repository string) (string, error) {
	repositoryIdentifier := strings.TrimSpace(repository)
	if len(repositoryIdentifier) == 0 {
		return "", InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}
	ownerAndName := strings.Split(repositoryIdentifier, repositoryPathSeparatorConstant)
	if len(ownerAndName) != 2 || len(ownerAndName[0]) == 0 || len(ownerAndName[1]) == 0 {
		return "", InvalidInputError{FieldName: repositoryFieldNameConstant, Message: repositoryFormatMessageConstant}
	}
	return repositoryIdentifier, nil
}

func validateRequired(fieldName string, value string) (string, error) {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return "", InvalidInputError{FieldName: fieldName, Message: requiredValueMessageConstant}
	}
	return trimmedValue, nil
}

func validateNumber(fieldName string, number int) error {
	if number <= 0 {
		return InvalidInputError{FieldName: fieldName, Message: positiveNumberMessageConstant}
	}
	return nil
}

func repositoryEndpoint(repository string, pathSegments ...string) string {
	endpoint := fmt.Sprintf(repositoryEndpointTemplateConstant, repository)
	if len(pathSegments) == 0 {
		return endpoint
	}
	return endpoint + repositoryPathSeparatorConstant + strings.Join(pathSegments, repositoryPathSeparatorConstant)
}

// escapeBranch keeps branch separators intact while escaping the rest for the URL path.
func escapeBranch(branch string) string {
	segments := strings.Split(branch, repositoryPathSeparatorConstant)
	for segmentIndex, segment := range segments {
		segments[segmentIndex] = url.PathEscape(segment)
	}
	return strings.Join(segments, repositoryPathSeparatorConstant)
}

func splitLines(output string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(output, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if len(trimmedLine) > 0 {
			lines = append(lines, trimmedLine)
		}
	}
	return lines
}

func decodeJSON(output string, target any) error {
	return json.Unmarshal([]byte(output), target)
}
