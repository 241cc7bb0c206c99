package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/temirov/prsweep/internal/execshell"
)

const (
	commandsStartedMetricConstant  = "prsweep.commands.started"
	commandsFailedMetricConstant   = "prsweep.commands.failed"
	commandNameAttributeConstant   = "command"
	commandFailureKindAttribute    = "failure"
	commandFailureExitCodeConstant = "exit_code"
	commandFailureLaunchConstant   = "launch"
)

// CommandMetrics counts executed commands and their failures.
type CommandMetrics struct {
	started metric.Int64Counter
	failed  metric.Int64Counter
}

var _ execshell.CommandEventObserver = (*CommandMetrics)(nil)

// NewCommandMetrics registers the command counters on the provided meter.
func NewCommandMetrics(meter metric.Meter) (*CommandMetrics, error) {
	started, startedError := meter.Int64Counter(commandsStartedMetricConstant, metric.WithDescription("Commands launched by the sweep executor"))
	if startedError != nil {
		return nil, startedError
	}
	failed, failedError := meter.Int64Counter(commandsFailedMetricConstant, metric.WithDescription("Commands that failed to launch or exited non-zero"))
	if failedError != nil {
		return nil, failedError
	}
	return &CommandMetrics{started: started, failed: failed}, nil
}

// CommandStarted counts a launched attempt.
func (metrics *CommandMetrics) CommandStarted(command execshell.ShellCommand) {
	metrics.started.Add(context.Background(), 1, metric.WithAttributes(attribute.String(commandNameAttributeConstant, string(command.Name))))
}

// CommandCompleted counts non-zero exits as failures.
func (metrics *CommandMetrics) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if result.ExitCode == 0 {
		return
	}
	metrics.recordFailure(command, commandFailureExitCodeConstant)
}

// CommandExecutionFailed counts launch failures.
func (metrics *CommandMetrics) CommandExecutionFailed(command execshell.ShellCommand, _ error) {
	metrics.recordFailure(command, commandFailureLaunchConstant)
}

func (metrics *CommandMetrics) recordFailure(command execshell.ShellCommand, failureKind string) {
	metrics.failed.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String(commandNameAttributeConstant, string(command.Name)),
		attribute.String(commandFailureKindAttribute, failureKind),
	))
}
