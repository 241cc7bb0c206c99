package sweep

import (
	"fmt"
	"sort"
	"strings"

	"github.com/temirov/prsweep/internal/utils/flags"
)

// Strategy selects how a change is applied to a target branch.
type Strategy string

// Supported apply strategies.
const (
	StrategyReplay     Strategy = "replay"
	StrategyCherryPick Strategy = "cherry-pick"
	StrategyMerge      Strategy = "merge"
)

// Disposition is the final classification recorded on a swept pull request.
type Disposition string

// Supported dispositions.
const (
	DispositionDone   Disposition = "done"
	DispositionIgnore Disposition = "ignore"
)

// PublishStatus summarizes the outcome for one target branch.
type PublishStatus string

// Publish statuses.
const (
	PublishStatusSucceeded     PublishStatus = "succeeded"
	PublishStatusApplyFailed   PublishStatus = "apply-failed"
	PublishStatusPublishFailed PublishStatus = "publish-failed"
)

// PublishStep names a step of the per-branch publishing state machine.
type PublishStep string

// Publishing steps in execution order.
const (
	PublishStepCreateRef          PublishStep = "create-ref"
	PublishStepApply              PublishStep = "apply"
	PublishStepOpenRequest        PublishStep = "open-request"
	PublishStepAddProvenanceLabel PublishStep = "add-provenance-label"
)

const (
	remoteBranchSeparatorConstant     = "/"
	remoteBranchErrorTemplateConstant = "branch %q does not name a remote branch (expected e.g. upstream/master)"
)

// ParseStrategy normalizes a strategy name; cherry-pick is an alias of replay.
func ParseStrategy(value string) (Strategy, error) {
	normalized, choiceError := flags.NormalizeChoice(value, string(StrategyReplay), []string{string(StrategyReplay), string(StrategyCherryPick), string(StrategyMerge)})
	if choiceError != nil {
		return "", choiceError
	}
	if Strategy(normalized) == StrategyCherryPick {
		return StrategyReplay, nil
	}
	return Strategy(normalized), nil
}

// RemoteBranch is a branch qualified by the remote it is scanned from.
type RemoteBranch struct {
	Remote string
	Branch string
}

// String renders the remote-qualified branch name.
func (remoteBranch RemoteBranch) String() string {
	return remoteBranch.Remote + remoteBranchSeparatorConstant + remoteBranch.Branch
}

// ParseRemoteBranch splits "upstream/master" into its remote and branch parts.
func ParseRemoteBranch(value string) (RemoteBranch, error) {
	trimmedValue := strings.TrimSpace(value)
	remoteName, branchName, found := strings.Cut(trimmedValue, remoteBranchSeparatorConstant)
	remoteName = strings.TrimSpace(remoteName)
	branchName = strings.TrimSpace(branchName)
	if !found || len(remoteName) == 0 || len(branchName) == 0 {
		return RemoteBranch{}, fmt.Errorf(remoteBranchErrorTemplateConstant, value)
	}
	return RemoteBranch{Remote: remoteName, Branch: branchName}, nil
}

// ChangeRecord is the normalized view of one merged pull request.
type ChangeRecord struct {
	CommitHash        string
	PullRequestNumber int
	Title             string
	CanonicalTitle    string
	Body              string
	ReleaseNotes      string
	AuthorLogin       string
	AuthorIdentity    string
	Labels            []string
	ChangedPaths      []string
	HTMLURL           string
}

// WithChangedPaths returns a copy of the record carrying the changed paths.
func (record ChangeRecord) WithChangedPaths(paths []string) ChangeRecord {
	enriched := record.clone()
	enriched.ChangedPaths = append([]string(nil), paths...)
	return enriched
}

// WithAuthorIdentity returns a copy of the record carrying the commit identity.
func (record ChangeRecord) WithAuthorIdentity(identity string) ChangeRecord {
	enriched := record.clone()
	enriched.AuthorIdentity = strings.TrimSpace(identity)
	return enriched
}

// HasLabel reports whether the record carries the label.
func (record ChangeRecord) HasLabel(label string) bool {
	for _, candidate := range record.Labels {
		if candidate == label {
			return true
		}
	}
	return false
}

func (record ChangeRecord) clone() ChangeRecord {
	cloned := record
	cloned.Labels = append([]string(nil), record.Labels...)
	cloned.ChangedPaths = append([]string(nil), record.ChangedPaths...)
	return cloned
}

// TargetPlan is the composed set of branches a change is swept to.
type TargetPlan struct {
	Targets         []string
	Exclusions      []string
	ExplicitTargets []string
	RuleTargets     []string
	Disposition     Disposition
}

// PublishOutcome is the result of publishing a change to one target branch.
type PublishOutcome struct {
	TargetBranch      string
	Status            PublishStatus
	FailedStep        PublishStep
	SweepBranch       string
	PullRequestNumber int
	PullRequestURL    string
	RecoveryText      string
	Failure           error
}

// Succeeded reports whether the branch was swept.
func (outcome PublishOutcome) Succeeded() bool {
	return outcome.Status == PublishStatusSucceeded
}

// SweepResult aggregates everything a run did for one merge commit.
type SweepResult struct {
	Change        ChangeRecord
	Plan          TargetPlan
	Outcomes      []PublishOutcome
	Skipped       bool
	SkipReason    string
	DryRun        bool
	TrackingIssue int
	SummaryPosted bool
}

// SucceededBranches returns the sorted branches the change was swept to.
func (result SweepResult) SucceededBranches() []string {
	return result.branchesMatching(true)
}

// FailedBranches returns the sorted branches the change failed to reach.
func (result SweepResult) FailedBranches() []string {
	return result.branchesMatching(false)
}

func (result SweepResult) branchesMatching(succeeded bool) []string {
	branchSet := map[string]struct{}{}
	for _, outcome := range result.Outcomes {
		if outcome.Succeeded() == succeeded {
			branchSet[outcome.TargetBranch] = struct{}{}
		}
	}
	return sortedKeys(branchSet)
}

// RunReport lists the results of every merge commit processed in a run.
type RunReport struct {
	RunIdentifier string
	Results       []SweepResult
}

func sortedKeys(values map[string]struct{}) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}
