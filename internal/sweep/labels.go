package sweep

import (
	"fmt"
	"strings"
	"unicode"
)

// SweepState is the sweep lifecycle state persisted through pull request labels.
type SweepState string

// Sweep states.
const (
	SweepStateUnswept    SweepState = "unswept"
	SweepStateSwept      SweepState = "swept"
	SweepStateIgnored    SweepState = "ignored"
	SweepStateDownstream SweepState = "downstream"
)

const (
	defaultDoneLabelConstant          = "sweep:done"
	defaultIgnoreLabelConstant        = "sweep:ignore"
	defaultSweptFromPrefixConstant    = "sweptFrom:"
	defaultExcludePrefixConstant      = "sweep:from "
	defaultAlsoTargetPrefixConstant   = "alsoTargeting:"
	defaultFailedLabelConstant        = "sweep:failed"
	alsoTargetSeparatorConstant       = ":"
	invalidTransitionErrorTemplate    = "sweep state %s cannot record disposition %s"
	malformedExclusionReasonConstant  = "exclusion label must name exactly one branch"
	malformedAlsoTargetReasonConstant = "also-target label must name exactly one branch"
)

var stateTransitions = map[SweepState]map[Disposition]SweepState{
	SweepStateUnswept: {
		DispositionDone:   SweepStateSwept,
		DispositionIgnore: SweepStateIgnored,
	},
}

// InvalidTransitionError reports a disposition recorded from a terminal state.
type InvalidTransitionError struct {
	From        SweepState
	Disposition Disposition
}

func (transitionError InvalidTransitionError) Error() string {
	return fmt.Sprintf(invalidTransitionErrorTemplate, transitionError.From, transitionError.Disposition)
}

// Terminal reports whether a change in this state must not be swept again.
func (state SweepState) Terminal() bool {
	_, transitions := stateTransitions[state]
	return !transitions
}

// Transition returns the state reached by recording the disposition.
func (state SweepState) Transition(disposition Disposition) (SweepState, error) {
	next, allowed := stateTransitions[state][disposition]
	if !allowed {
		return state, InvalidTransitionError{From: state, Disposition: disposition}
	}
	return next, nil
}

// LabelScheme names the labels that carry sweep state.
type LabelScheme struct {
	Done             string `mapstructure:"done"`
	Ignore           string `mapstructure:"ignore"`
	SweptFromPrefix  string `mapstructure:"swept_from_prefix"`
	ExcludePrefix    string `mapstructure:"exclude_prefix"`
	AlsoTargetPrefix string `mapstructure:"also_target_prefix"`
	Failed           string `mapstructure:"failed"`
}

// DefaultLabelScheme returns the standard sweep label vocabulary.
func DefaultLabelScheme() LabelScheme {
	return LabelScheme{
		Done:             defaultDoneLabelConstant,
		Ignore:           defaultIgnoreLabelConstant,
		SweptFromPrefix:  defaultSweptFromPrefixConstant,
		ExcludePrefix:    defaultExcludePrefixConstant,
		AlsoTargetPrefix: defaultAlsoTargetPrefixConstant,
		Failed:           defaultFailedLabelConstant,
	}
}

// Sanitize fills blank labels with their defaults. Prefixes keep their trailing whitespace.
func (scheme LabelScheme) Sanitize() LabelScheme {
	defaults := DefaultLabelScheme()
	sanitized := LabelScheme{
		Done:             fallback(strings.TrimSpace(scheme.Done), defaults.Done),
		Ignore:           fallback(strings.TrimSpace(scheme.Ignore), defaults.Ignore),
		SweptFromPrefix:  fallback(strings.TrimLeftFunc(scheme.SweptFromPrefix, unicode.IsSpace), defaults.SweptFromPrefix),
		ExcludePrefix:    fallback(strings.TrimLeftFunc(scheme.ExcludePrefix, unicode.IsSpace), defaults.ExcludePrefix),
		AlsoTargetPrefix: fallback(strings.TrimLeftFunc(scheme.AlsoTargetPrefix, unicode.IsSpace), defaults.AlsoTargetPrefix),
		Failed:           fallback(strings.TrimSpace(scheme.Failed), defaults.Failed),
	}
	return sanitized
}

// DispositionLabel returns the label recording the disposition.
func (scheme LabelScheme) DispositionLabel(disposition Disposition) string {
	if disposition == DispositionIgnore {
		return scheme.Ignore
	}
	return scheme.Done
}

// ProvenanceLabel returns the label placed on a downstream pull request.
func (scheme LabelScheme) ProvenanceLabel(sourceBranch string) string {
	return scheme.ExcludePrefix + strings.TrimSpace(sourceBranch)
}

// MalformedLabel is a sweep label whose value could not be interpreted.
type MalformedLabel struct {
	Label  string
	Reason string
}

// LabelClassification is the sweep state and branch directives carried by a label set.
type LabelClassification struct {
	State           SweepState
	StateLabel      string
	Exclusions      []string
	ExplicitTargets []string
	Malformed       []MalformedLabel
}

// Classify evaluates a label set. Done wins over ignore, which wins over swept-from.
func (scheme LabelScheme) Classify(labels []string) LabelClassification {
	classification := LabelClassification{State: SweepStateUnswept}

	for _, label := range labels {
		if label == scheme.Done {
			return LabelClassification{State: SweepStateSwept, StateLabel: label}
		}
	}
	for _, label := range labels {
		if label == scheme.Ignore {
			return LabelClassification{State: SweepStateIgnored, StateLabel: label}
		}
	}
	for _, label := range labels {
		if strings.HasPrefix(label, scheme.SweptFromPrefix) {
			return LabelClassification{State: SweepStateDownstream, StateLabel: label}
		}
	}

	exclusions := map[string]struct{}{}
	explicitTargets := map[string]struct{}{}
	for _, label := range labels {
		switch {
		case strings.HasPrefix(label, scheme.ExcludePrefix):
			branch, valid := singleBranch(strings.TrimPrefix(label, scheme.ExcludePrefix), false)
			if !valid {
				classification.Malformed = append(classification.Malformed, MalformedLabel{Label: label, Reason: malformedExclusionReasonConstant})
				continue
			}
			exclusions[branch] = struct{}{}
		case strings.HasPrefix(label, scheme.AlsoTargetPrefix):
			branch, valid := singleBranch(strings.TrimPrefix(label, scheme.AlsoTargetPrefix), true)
			if !valid {
				classification.Malformed = append(classification.Malformed, MalformedLabel{Label: label, Reason: malformedAlsoTargetReasonConstant})
				continue
			}
			explicitTargets[branch] = struct{}{}
		}
	}

	classification.Exclusions = sortedKeys(exclusions)
	classification.ExplicitTargets = sortedKeys(explicitTargets)
	return classification
}

// singleBranch validates the branch carried by a directive label.
func singleBranch(value string, rejectSeparator bool) (string, bool) {
	branch := strings.TrimSpace(value)
	if len(branch) == 0 || strings.IndexFunc(branch, unicode.IsSpace) >= 0 {
		return "", false
	}
	if rejectSeparator && strings.Contains(branch, alsoTargetSeparatorConstant) {
		return "", false
	}
	return branch, true
}

func fallback(value string, defaultValue string) string {
	if len(value) == 0 {
		return defaultValue
	}
	return value
}
