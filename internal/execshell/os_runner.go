package execshell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
)

const (
	environmentAssignmentSeparatorConstant = "="
	gitTerminalPromptVariableConstant      = "GIT_TERMINAL_PROMPT"
	githubPromptDisabledVariableConstant   = "GH_PROMPT_DISABLED"
	disabledPromptValueConstant            = "0"
	enabledFlagValueConstant               = "1"
)

// OSCommandRunner executes commands using the operating system facilities.
// Interactive credential prompts are disabled so unattended runs fail instead of hanging.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs a runner backed by os/exec.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// Run executes the supplied command and reports non-zero exits through ExecutionResult.ExitCode.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executable := exec.CommandContext(executionContext, string(command.Name), append([]string{}, command.Details.Arguments...)...)

	if len(command.Details.WorkingDirectory) > 0 {
		executable.Dir = command.Details.WorkingDirectory
	}
	executable.Env = buildEnvironment(os.Environ(), command.Details.EnvironmentVariables)

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = &standardOutputBuffer
	executable.Stderr = &standardErrorBuffer

	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	runError := executable.Run()
	result := ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
	}
	if runError != nil {
		var exitError *exec.ExitError
		if errors.As(runError, &exitError) {
			result.ExitCode = exitError.ExitCode()
			return result, nil
		}
		return ExecutionResult{}, runError
	}
	return result, nil
}

// buildEnvironment appends overrides in key order after the inherited environment; later entries win.
func buildEnvironment(inheritedEnvironment []string, overrides map[string]string) []string {
	environment := append([]string{}, inheritedEnvironment...)
	environment = append(environment,
		gitTerminalPromptVariableConstant+environmentAssignmentSeparatorConstant+disabledPromptValueConstant,
		githubPromptDisabledVariableConstant+environmentAssignmentSeparatorConstant+enabledFlagValueConstant,
	)

	overrideKeys := make([]string, 0, len(overrides))
	for overrideKey := range overrides {
		overrideKeys = append(overrideKeys, overrideKey)
	}
	sort.Strings(overrideKeys)
	for _, overrideKey := range overrideKeys {
		environment = append(environment, overrideKey+environmentAssignmentSeparatorConstant+overrides[overrideKey])
	}
	return environment
}
