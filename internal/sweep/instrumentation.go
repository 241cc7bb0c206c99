package sweep

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationScopeConstant  = "github.com/temirov/prsweep/internal/sweep"
	changeSpanNameConstant        = "sweep.change"
	branchSpanNameConstant        = "sweep.branch"
	changesMetricConstant         = "prsweep.changes"
	branchesMetricConstant        = "prsweep.branches"
	commitAttributeConstant       = "sweep.commit"
	pullRequestAttributeConstant  = "sweep.pull_request"
	targetBranchAttributeConstant = "sweep.target_branch"
	outcomeAttributeConstant      = "sweep.outcome"
	statusAttributeConstant       = "sweep.status"
	failedStepAttributeConstant   = "sweep.failed_step"
	skippedOutcomeConstant        = "skipped"
	failedBranchesStatusConstant  = "one or more target branches failed"
)

type instrumentation struct {
	tracer   trace.Tracer
	changes  metric.Int64Counter
	branches metric.Int64Counter
}

func newInstrumentation(tracer trace.Tracer, meter metric.Meter) (instrumentation, error) {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationScopeConstant)
	}
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationScopeConstant)
	}
	changes, changesError := meter.Int64Counter(changesMetricConstant, metric.WithDescription("Merge commits processed by outcome"))
	if changesError != nil {
		return instrumentation{}, changesError
	}
	branches, branchesError := meter.Int64Counter(branchesMetricConstant, metric.WithDescription("Target branches processed by publish status"))
	if branchesError != nil {
		return instrumentation{}, branchesError
	}
	return instrumentation{tracer: tracer, changes: changes, branches: branches}, nil
}

func (telemetry instrumentation) startChange(executionContext context.Context, commitHash string) (context.Context, trace.Span) {
	return telemetry.tracer.Start(executionContext, changeSpanNameConstant, trace.WithAttributes(attribute.String(commitAttributeConstant, commitHash)))
}

func (telemetry instrumentation) finishChange(executionContext context.Context, span trace.Span, result SweepResult) {
	outcome := string(result.Plan.Disposition)
	if result.Skipped {
		outcome = skippedOutcomeConstant
	}
	span.SetAttributes(
		attribute.Int(pullRequestAttributeConstant, result.Change.PullRequestNumber),
		attribute.String(outcomeAttributeConstant, outcome),
	)
	if len(result.FailedBranches()) > 0 {
		span.SetStatus(codes.Error, failedBranchesStatusConstant)
	}
	span.End()
	telemetry.changes.Add(executionContext, 1, metric.WithAttributes(attribute.String(outcomeAttributeConstant, outcome)))
}

func (telemetry instrumentation) startBranch(executionContext context.Context, targetBranch string) (context.Context, trace.Span) {
	return telemetry.tracer.Start(executionContext, branchSpanNameConstant, trace.WithAttributes(attribute.String(targetBranchAttributeConstant, targetBranch)))
}

func (telemetry instrumentation) finishBranch(executionContext context.Context, span trace.Span, outcome PublishOutcome) {
	span.SetAttributes(attribute.String(statusAttributeConstant, string(outcome.Status)))
	if !outcome.Succeeded() {
		span.SetAttributes(attribute.String(failedStepAttributeConstant, string(outcome.FailedStep)))
		if outcome.Failure != nil {
			span.RecordError(outcome.Failure)
		}
		span.SetStatus(codes.Error, string(outcome.Status))
	}
	span.End()
	telemetry.branches.Add(executionContext, 1, metric.WithAttributes(attribute.String(statusAttributeConstant, string(outcome.Status))))
}
