package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/temirov/prsweep/internal/utils"
)

// CommandName identifies an executable supported by the executor.
type CommandName string

// Supported executables.
const (
	CommandGit    CommandName = "git"
	CommandGitHub CommandName = "gh"
)

const (
	defaultAttemptLimitConstant           = 1
	commandFailedErrorTemplateConstant    = "%s failed with exit code %d%s"
	commandExecutionErrorTemplateConstant = "%s failed to start: %v"
	standardErrorDetailTemplateConstant   = ": %s"
	commandLogFieldNameConstant           = "command"
	argumentsLogFieldNameConstant         = "arguments"
	workingDirectoryLogFieldNameConstant  = "working_directory"
	attemptLogFieldNameConstant           = "attempt"
	exitCodeLogFieldNameConstant          = "exit_code"
	correlationLogFieldNameConstant       = "merge_commit"
	retryDelayLogFieldNameConstant        = "retry_delay"
	retryScheduledMessageConstant         = "Retrying command"
)

// ErrLoggerNotConfigured indicates that a logger was not provided.
var ErrLoggerNotConfigured = errors.New("execshell: logger not configured")

// ErrCommandRunnerNotConfigured indicates that a command runner was not provided.
var ErrCommandRunnerNotConfigured = errors.New("execshell: command runner not configured")

// CommandDetails describes how a single command invocation is performed.
// SingleAttempt disables retries for commands that must not be repeated.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
	SingleAttempt        bool
}

// ShellCommand couples an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outcome of a process.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner launches processes.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a process that exited with a non-zero status.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

func (failure CommandFailedError) Error() string {
	standardErrorDetail := ""
	if trimmed := strings.TrimSpace(failure.Result.StandardError); len(trimmed) > 0 {
		standardErrorDetail = fmt.Sprintf(standardErrorDetailTemplateConstant, redactText(trimmed))
	}
	return fmt.Sprintf(commandFailedErrorTemplateConstant, describeCommand(failure.Command), failure.Result.ExitCode, standardErrorDetail)
}

// CommandExecutionError reports a process that could not be run at all.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, describeCommand(failure.Command), failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}

// BackOffFactory produces a fresh retry schedule for each command.
type BackOffFactory func() backoff.BackOff

// ShellExecutorOption customizes a ShellExecutor.
type ShellExecutorOption func(*ShellExecutor)

// WithAttemptLimit sets how many times a failing command is attempted in total.
func WithAttemptLimit(attemptLimit int) ShellExecutorOption {
	return func(executor *ShellExecutor) {
		if attemptLimit > 0 {
			executor.attemptLimit = attemptLimit
		}
	}
}

// WithRetryBackOff replaces the delay schedule used between attempts.
func WithRetryBackOff(factory BackOffFactory) ShellExecutorOption {
	return func(executor *ShellExecutor) {
		if factory != nil {
			executor.backOffFactory = factory
		}
	}
}

// WithCommandEventObserver registers an observer notified about every attempt.
func WithCommandEventObserver(observer CommandEventObserver) ShellExecutorOption {
	return func(executor *ShellExecutor) {
		if observer != nil {
			executor.observer = observer
		}
	}
}

// ShellExecutor runs git and gh processes with logging and bounded retries.
type ShellExecutor struct {
	logger          *zap.Logger
	runner          CommandRunner
	formatter       CommandMessageFormatter
	observer        CommandEventObserver
	contextAccessor utils.CommandContextAccessor
	attemptLimit    int
	backOffFactory  BackOffFactory
}

// NewShellExecutor validates dependencies and builds an executor.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, options ...ShellExecutorOption) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	executor := &ShellExecutor{
		logger:          logger,
		runner:          runner,
		formatter:       CommandMessageFormatter{},
		observer:        noopCommandEventObserver{},
		contextAccessor: utils.NewCommandContextAccessor(),
		attemptLimit:    defaultAttemptLimitConstant,
		backOffFactory:  defaultBackOffFactory,
	}
	for _, option := range options {
		option(executor)
	}
	return executor, nil
}

// ExecuteGit runs git with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteGitHubCLI runs gh with the provided details.
func (executor *ShellExecutor) ExecuteGitHubCLI(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGitHub, Details: details})
}

// Execute runs the command up to the configured attempt limit and returns the last outcome.
// A non-zero exit becomes CommandFailedError; a launch failure becomes CommandExecutionError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	if executionContext == nil {
		executionContext = context.Background()
	}
	commandLogger := executor.commandLogger(executionContext, command)

	attemptNumber := 0
	var finalResult ExecutionResult
	operation := func() error {
		attemptNumber++
		attemptLogger := commandLogger.With(zap.Int(attemptLogFieldNameConstant, attemptNumber))
		result, attemptError := executor.runAttempt(executionContext, attemptLogger, command)
		finalResult = result
		if attemptError != nil && executionContext.Err() != nil {
			return backoff.Permanent(attemptError)
		}
		return attemptError
	}

	retryLimit := executor.attemptLimit - 1
	if command.Details.SingleAttempt {
		retryLimit = 0
	}
	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(executor.backOffFactory(), uint64(retryLimit)), executionContext)
	notify := func(retryError error, delay time.Duration) {
		commandLogger.Warn(retryScheduledMessageConstant, zap.Int(attemptLogFieldNameConstant, attemptNumber), zap.Duration(retryDelayLogFieldNameConstant, delay), zap.Error(retryError))
	}

	retryError := backoff.RetryNotify(operation, retryPolicy, notify)
	if retryError != nil {
		return ExecutionResult{}, retryError
	}
	return finalResult, nil
}

func (executor *ShellExecutor) runAttempt(executionContext context.Context, attemptLogger *zap.Logger, command ShellCommand) (ExecutionResult, error) {
	attemptLogger.Info(executor.formatter.BuildStartedMessage(command))
	executor.observer.CommandStarted(command)

	result, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		executionError := CommandExecutionError{Command: command, Cause: runError}
		attemptLogger.Warn(executor.formatter.BuildExecutionFailureMessage(command, runError), zap.Error(runError))
		executor.observer.CommandExecutionFailed(command, runError)
		return ExecutionResult{}, executionError
	}

	executor.observer.CommandCompleted(command, result)
	if result.ExitCode != 0 {
		attemptLogger.Warn(executor.formatter.BuildFailureMessage(command, result), zap.Int(exitCodeLogFieldNameConstant, result.ExitCode))
		return ExecutionResult{}, CommandFailedError{Command: command, Result: result}
	}

	attemptLogger.Info(executor.formatter.BuildSuccessMessage(command))
	return result, nil
}

func (executor *ShellExecutor) commandLogger(executionContext context.Context, command ShellCommand) *zap.Logger {
	fields := []zap.Field{
		zap.String(commandLogFieldNameConstant, string(command.Name)),
		zap.Strings(argumentsLogFieldNameConstant, RedactArguments(command.Details.Arguments)),
	}
	if workingDirectory := strings.TrimSpace(command.Details.WorkingDirectory); len(workingDirectory) > 0 {
		fields = append(fields, zap.String(workingDirectoryLogFieldNameConstant, workingDirectory))
	}
	if correlationIdentifier, available := executor.contextAccessor.CorrelationIdentifier(executionContext); available {
		fields = append(fields, zap.String(correlationLogFieldNameConstant, correlationIdentifier))
	}
	return executor.logger.With(fields...)
}

func defaultBackOffFactory() backoff.BackOff {
	exponentialBackOff := backoff.NewExponentialBackOff()
	exponentialBackOff.InitialInterval = 2 * time.Second
	exponentialBackOff.MaxInterval = 30 * time.Second
	return exponentialBackOff
}

func redactText(text string) string {
	return embeddedCredentialsPattern.ReplaceAllString(text, redactedCredentialsConstant)
}

func describeCommand(command ShellCommand) string {
	arguments := RedactArguments(command.Details.Arguments)
	if len(arguments) == 0 {
		return string(command.Name)
	}
	return string(command.Name) + " " + strings.Join(arguments, " ")
}
