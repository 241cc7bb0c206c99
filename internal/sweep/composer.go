package sweep

import (
	"go.uber.org/zap"
)

const (
	malformedLabelMessageConstant  = "Ignoring malformed sweep label"
	targetsComposedMessageConstant = "Composed sweep targets"
	labelLogFieldConstant          = "label"
	reasonLogFieldConstant         = "reason"
	targetsLogFieldConstant        = "targets"
	exclusionsLogFieldConstant     = "exclusions"
	explicitLogFieldConstant       = "explicit_targets"
	ruleTargetsLogFieldConstant    = "rule_targets"
	dispositionLogFieldConstant    = "disposition"
)

// Composer merges rule-derived targets with label directives.
type Composer struct {
	labels LabelScheme
}

// NewComposer constructs a Composer for the label vocabulary.
func NewComposer(labels LabelScheme) Composer {
	return Composer{labels: labels.Sanitize()}
}

// Classify reads the sweep state and branch directives from the change labels.
func (composer Composer) Classify(record ChangeRecord, logger *zap.Logger) LabelClassification {
	if logger == nil {
		logger = zap.NewNop()
	}
	classification := composer.labels.Classify(record.Labels)
	for _, malformed := range classification.Malformed {
		logger.Warn(malformedLabelMessageConstant, zap.String(labelLogFieldConstant, malformed.Label), zap.String(reasonLogFieldConstant, malformed.Reason))
	}
	return classification
}

// Compose returns (rule ∪ explicit) − exclusions and its disposition.
func (composer Composer) Compose(classification LabelClassification, ruleTargets []string, logger *zap.Logger) TargetPlan {
	if logger == nil {
		logger = zap.NewNop()
	}
	excluded := toSet(classification.Exclusions)
	targets := map[string]struct{}{}
	for _, branch := range append(append([]string(nil), ruleTargets...), classification.ExplicitTargets...) {
		if _, isExcluded := excluded[branch]; isExcluded {
			continue
		}
		targets[branch] = struct{}{}
	}

	plan := TargetPlan{
		Targets:         sortedKeys(targets),
		Exclusions:      sortedKeys(excluded),
		ExplicitTargets: sortedKeys(toSet(classification.ExplicitTargets)),
		RuleTargets:     sortedKeys(toSet(ruleTargets)),
		Disposition:     DispositionDone,
	}
	if len(plan.Targets) == 0 {
		plan.Disposition = DispositionIgnore
	}

	logger.Info(targetsComposedMessageConstant,
		zap.Strings(targetsLogFieldConstant, plan.Targets),
		zap.Strings(exclusionsLogFieldConstant, plan.Exclusions),
		zap.Strings(explicitLogFieldConstant, plan.ExplicitTargets),
		zap.Strings(ruleTargetsLogFieldConstant, plan.RuleTargets),
		zap.String(dispositionLogFieldConstant, string(plan.Disposition)),
	)
	return plan
}

// RecordedLabels returns the change labels plus the disposition label, without duplicates.
func (composer Composer) RecordedLabels(record ChangeRecord, plan TargetPlan) []string {
	dispositionLabel := composer.labels.DispositionLabel(plan.Disposition)
	labels := append([]string(nil), record.Labels...)
	if !record.HasLabel(dispositionLabel) {
		labels = append(labels, dispositionLabel)
	}
	return labels
}
