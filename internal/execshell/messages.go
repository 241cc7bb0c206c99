package execshell

import (
	"fmt"
	"regexp"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	standardErrorSuffixTemplateConstant     = ": %s"
	commandArgumentsJoinSeparatorConstant   = " "
	unknownFailureMessageConstant           = "unknown error"
	defaultWorkingDirectoryLabelConstant    = "current directory"
	allRemotesLabelConstant                 = "all remotes"
	unknownValueLabelConstant               = "unknown"
	redactedCredentialsConstant             = "${1}***@"
)

const (
	gitFetchSubcommandNameConstant      = "fetch"
	gitRemoteSubcommandNameConstant     = "remote"
	gitRemoteRenameSubcommandConstant   = "rename"
	gitRemoteAddSubcommandConstant      = "add"
	gitCheckoutSubcommandNameConstant   = "checkout"
	gitCherryPickSubcommandNameConstant = "cherry-pick"
	gitCommitSubcommandNameConstant     = "commit"
	gitPushSubcommandNameConstant       = "push"
	gitAbortFlagConstant                = "--abort"
	gitCreateBranchFlagConstant         = "-B"
	githubAPISubcommandNameConstant     = "api"
	githubMethodFlagConstant            = "-X"
	githubDefaultMethodConstant         = "GET"
	flagPrefixConstant                  = "-"
)

const (
	gitFetchStartTemplateConstant             = "Fetching from %s in %s"
	gitFetchSuccessTemplateConstant           = "Fetched from %s in %s"
	gitFetchFailureTemplateConstant           = "Failed to fetch from %s in %s (exit code %d%s)"
	gitRemoteRenameStartTemplateConstant      = "Renaming remote %s to %s"
	gitRemoteRenameSuccessTemplateConstant    = "Renamed remote %s to %s"
	gitRemoteRenameFailureTemplateConstant    = "Failed to rename remote %s to %s (exit code %d%s)"
	gitRemoteAddStartTemplateConstant         = "Adding remote %s"
	gitRemoteAddSuccessTemplateConstant       = "Added remote %s"
	gitRemoteAddFailureTemplateConstant       = "Failed to add remote %s (exit code %d%s)"
	gitCheckoutStartTemplateConstant          = "Checking out %s"
	gitCheckoutSuccessTemplateConstant        = "Checked out %s"
	gitCheckoutFailureTemplateConstant        = "Failed to check out %s (exit code %d%s)"
	gitCherryPickStartTemplateConstant        = "Replaying %s"
	gitCherryPickSuccessTemplateConstant      = "Replayed %s"
	gitCherryPickFailureTemplateConstant      = "Failed to replay %s (exit code %d%s)"
	gitCherryPickAbortStartMessageConstant    = "Aborting interrupted replay"
	gitCherryPickAbortSuccessMessageConstant  = "Aborted interrupted replay"
	gitCherryPickAbortFailureTemplateConstant = "Failed to abort interrupted replay (exit code %d%s)"
	gitCommitStartMessageConstant             = "Rewriting sweep commit"
	gitCommitSuccessMessageConstant           = "Rewrote sweep commit"
	gitCommitFailureTemplateConstant          = "Failed to rewrite sweep commit (exit code %d%s)"
	gitPushStartTemplateConstant              = "Pushing %s to %s"
	gitPushSuccessTemplateConstant            = "Pushed %s to %s"
	gitPushFailureTemplateConstant            = "Failed to push %s to %s (exit code %d%s)"
	githubAPIStartTemplateConstant            = "Calling GitHub API %s %s"
	githubAPISuccessTemplateConstant          = "GitHub API %s %s succeeded"
	githubAPIFailureTemplateConstant          = "GitHub API %s %s failed (exit code %d%s)"
	githubAPIExecutionFailureTemplateConstant = "Unable to call GitHub API %s %s: %s"
)

var embeddedCredentialsPattern = regexp.MustCompile(`(https?://)[^/@\s]+@`)

// RedactArguments returns a copy of arguments with credentials embedded in URLs masked.
func RedactArguments(arguments []string) []string {
	redacted := make([]string, len(arguments))
	for argumentIndex, argument := range arguments {
		redacted[argumentIndex] = embeddedCredentialsPattern.ReplaceAllString(argument, redactedCredentialsConstant)
	}
	return redacted
}

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	// Launch failures carry no exit code, so every command shares the generic wording.
	if stage == messageStageExecutionFailure && command.Name != CommandGitHub {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
	switch command.Name {
	case CommandGit:
		return formatter.describeGitMessage(command, result, failure, stage)
	case CommandGitHub:
		return formatter.describeGitHubMessage(command, result, failure, stage)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := RedactArguments(command.Details.Arguments)
	if len(arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
	standardErrorSuffix := formatter.formatStandardErrorSuffix(result.StandardError)

	switch strings.TrimSpace(arguments[0]) {
	case gitFetchSubcommandNameConstant:
		remote := formatter.firstPositionalArgument(arguments[1:])
		if len(remote) == 0 {
			remote = allRemotesLabelConstant
		}
		workingDirectory := formatter.describeWorkingDirectory(command)
		return formatter.selectMessage(stage,
			fmt.Sprintf(gitFetchStartTemplateConstant, remote, workingDirectory),
			fmt.Sprintf(gitFetchSuccessTemplateConstant, remote, workingDirectory),
			fmt.Sprintf(gitFetchFailureTemplateConstant, remote, workingDirectory, result.ExitCode, standardErrorSuffix))
	case gitRemoteSubcommandNameConstant:
		return formatter.describeGitRemoteMessage(command, arguments, result, failure, stage)
	case gitCheckoutSubcommandNameConstant:
		branch := findFlagValue(arguments, gitCreateBranchFlagConstant)
		if len(branch) == 0 {
			branch = formatter.ensureValue(formatter.firstPositionalArgument(arguments[1:]))
		}
		return formatter.selectMessage(stage,
			fmt.Sprintf(gitCheckoutStartTemplateConstant, branch),
			fmt.Sprintf(gitCheckoutSuccessTemplateConstant, branch),
			fmt.Sprintf(gitCheckoutFailureTemplateConstant, branch, result.ExitCode, standardErrorSuffix))
	case gitCherryPickSubcommandNameConstant:
		if containsArgument(arguments, gitAbortFlagConstant) {
			return formatter.selectMessage(stage,
				gitCherryPickAbortStartMessageConstant,
				gitCherryPickAbortSuccessMessageConstant,
				fmt.Sprintf(gitCherryPickAbortFailureTemplateConstant, result.ExitCode, standardErrorSuffix))
		}
		commit := formatter.ensureValue(formatter.lastPositionalArgument(arguments[1:]))
		return formatter.selectMessage(stage,
			fmt.Sprintf(gitCherryPickStartTemplateConstant, commit),
			fmt.Sprintf(gitCherryPickSuccessTemplateConstant, commit),
			fmt.Sprintf(gitCherryPickFailureTemplateConstant, commit, result.ExitCode, standardErrorSuffix))
	case gitCommitSubcommandNameConstant:
		return formatter.selectMessage(stage,
			gitCommitStartMessageConstant,
			gitCommitSuccessMessageConstant,
			fmt.Sprintf(gitCommitFailureTemplateConstant, result.ExitCode, standardErrorSuffix))
	case gitPushSubcommandNameConstant:
		positional := formatter.positionalArguments(arguments[1:])
		remote := formatter.ensureValue(formatter.argumentAtIndex(positional, 0))
		reference := formatter.ensureValue(formatter.argumentAtIndex(positional, 1))
		return formatter.selectMessage(stage,
			fmt.Sprintf(gitPushStartTemplateConstant, reference, remote),
			fmt.Sprintf(gitPushSuccessTemplateConstant, reference, remote),
			fmt.Sprintf(gitPushFailureTemplateConstant, reference, remote, result.ExitCode, standardErrorSuffix))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitRemoteMessage(command ShellCommand, arguments []string, result ExecutionResult, failure error, stage messageStage) string {
	standardErrorSuffix := formatter.formatStandardErrorSuffix(result.StandardError)
	switch formatter.argumentAtIndex(arguments, 1) {
	case gitRemoteRenameSubcommandConstant:
		oldName := formatter.ensureValue(formatter.argumentAtIndex(arguments, 2))
		newName := formatter.ensureValue(formatter.argumentAtIndex(arguments, 3))
		return formatter.selectMessage(stage,
			fmt.Sprintf(gitRemoteRenameStartTemplateConstant, oldName, newName),
			fmt.Sprintf(gitRemoteRenameSuccessTemplateConstant, oldName, newName),
			fmt.Sprintf(gitRemoteRenameFailureTemplateConstant, oldName, newName, result.ExitCode, standardErrorSuffix))
	case gitRemoteAddSubcommandConstant:
		remoteName := formatter.ensureValue(formatter.argumentAtIndex(arguments, 2))
		return formatter.selectMessage(stage,
			fmt.Sprintf(gitRemoteAddStartTemplateConstant, remoteName),
			fmt.Sprintf(gitRemoteAddSuccessTemplateConstant, remoteName),
			fmt.Sprintf(gitRemoteAddFailureTemplateConstant, remoteName, result.ExitCode, standardErrorSuffix))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitHubMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	if len(arguments) < 2 || strings.TrimSpace(arguments[0]) != githubAPISubcommandNameConstant {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
	method := strings.ToUpper(strings.TrimSpace(findFlagValue(arguments, githubMethodFlagConstant)))
	if len(method) == 0 {
		method = githubDefaultMethodConstant
	}
	endpoint := strings.TrimSpace(arguments[1])

	if stage == messageStageExecutionFailure {
		return fmt.Sprintf(githubAPIExecutionFailureTemplateConstant, method, endpoint, formatter.describeFailure(failure))
	}
	return formatter.selectMessage(stage,
		fmt.Sprintf(githubAPIStartTemplateConstant, method, endpoint),
		fmt.Sprintf(githubAPISuccessTemplateConstant, method, endpoint),
		fmt.Sprintf(githubAPIFailureTemplateConstant, method, endpoint, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError)))
}

func (formatter CommandMessageFormatter) selectMessage(stage messageStage, startMessage string, successMessage string, failureMessage string) string {
	switch stage {
	case messageStageStart:
		return startMessage
	case messageStageSuccess:
		return successMessage
	default:
		return failureMessage
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := describeCommand(command) + formatter.formatWorkingDirectorySuffix(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return ""
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return ""
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, embeddedCredentialsPattern.ReplaceAllString(trimmedStandardError, redactedCredentialsConstant))
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) positionalArguments(arguments []string) []string {
	positional := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		trimmedArgument := strings.TrimSpace(argument)
		if len(trimmedArgument) == 0 || strings.HasPrefix(trimmedArgument, flagPrefixConstant) {
			continue
		}
		positional = append(positional, trimmedArgument)
	}
	return positional
}

func (formatter CommandMessageFormatter) firstPositionalArgument(arguments []string) string {
	return formatter.argumentAtIndex(formatter.positionalArguments(arguments), 0)
}

func (formatter CommandMessageFormatter) lastPositionalArgument(arguments []string) string {
	positional := formatter.positionalArguments(arguments)
	return formatter.argumentAtIndex(positional, len(positional)-1)
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index < 0 || index >= len(arguments) {
		return ""
	}
	return strings.TrimSpace(arguments[index])
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	if len(strings.TrimSpace(value)) == 0 {
		return unknownValueLabelConstant
	}
	return value
}

func containsArgument(arguments []string, value string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == value {
			return true
		}
	}
	return false
}

func findFlagValue(arguments []string, flag string) string {
	for argumentIndex := 0; argumentIndex < len(arguments)-1; argumentIndex++ {
		if strings.TrimSpace(arguments[argumentIndex]) == flag {
			return strings.TrimSpace(arguments[argumentIndex+1])
		}
	}
	return ""
}
