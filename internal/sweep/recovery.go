package sweep

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
)

// FailedIssuePlaceholder is replaced with the tracking issue number once it exists.
const FailedIssuePlaceholder = "@@@FAILED_ISSUE_ID@@@"

const (
	closesFailedIssueTemplateConstant = "\nCloses #" + FailedIssuePlaceholder
	applyFailedHeadlineTemplate       = "sweep of %s into %s failed at %s"
	applyFailedHintConstant           = "check merge conflicts on a local copy of this repository"
	openRequestFailedHeadlineTemplate = "Failed to open the PR, try to open a PR from %s:%s to %s"
	labelFailedHeadlineTemplate       = "Pull request #%d was opened but the provenance label could not be added"
	codeFenceOpenConstant             = "```bash"
	codeFenceCloseConstant            = "```"
	resolveConflictsCommentConstant   = "# Fix the conflicts"
	githubCLIHintConstant             = "# If you have the GitHub CLI installed the PR can be made with"
	continuationSuffixConstant        = " \\"
	continuationIndentConstant        = "     "
	remoteBranchTemplateConstant      = "%s/%s"
	forkHeadTemplateConstant          = "%s:%s"
	authorFlagTemplateConstant        = "--author=%s"
)

// RecoveryDetails holds the concrete values interpolated into recovery instructions.
type RecoveryDetails struct {
	CommitHash      string
	TargetBranch    string
	SweepBranch     string
	Project         string
	ForkOwner       string
	UpstreamRemote  string
	ForkRemote      string
	Title           string
	Body            string
	CommitMessage   string
	AuthorIdentity  string
	ProvenanceLabel string
	PullRequest     int
}

// ApplyRecoveryInstructions explains how to replay the change by hand after CreateRef or Apply failed.
func ApplyRecoveryInstructions(details RecoveryDetails, failedStep PublishStep) string {
	lines := []string{
		fmt.Sprintf(applyFailedHeadlineTemplate, details.CommitHash, details.TargetBranch, failedStep),
		applyFailedHintConstant,
		codeFenceOpenConstant,
		quoteCommand("git", "fetch", details.UpstreamRemote),
		quoteCommand("git", "checkout", fmt.Sprintf(remoteBranchTemplateConstant, details.UpstreamRemote, details.TargetBranch), "-b", details.SweepBranch),
		quoteCommand("git", "cherry-pick", "-x", "-m", "1", details.CommitHash),
		resolveConflictsCommentConstant,
		quoteCommand("git", "cherry-pick", "--continue"),
		quoteCommand("git", "commit", "--amend", "-m", details.CommitMessage) + " " + fmt.Sprintf(authorFlagTemplateConstant, shellescape.Quote(details.AuthorIdentity)),
		quoteCommand("git", "push", "-u", details.ForkRemote, details.SweepBranch),
		"",
		githubCLIHintConstant,
	}
	lines = append(lines, pullRequestCreateCommand(details, "", details.Body+closesFailedIssueTemplateConstant)...)
	lines = append(lines, codeFenceCloseConstant)
	return strings.Join(lines, "\n")
}

// OpenRequestRecoveryInstructions explains how to open the downstream pull request from the pushed branch.
func OpenRequestRecoveryInstructions(details RecoveryDetails) string {
	forkHead := fmt.Sprintf(forkHeadTemplateConstant, details.ForkOwner, details.SweepBranch)
	lines := []string{
		fmt.Sprintf(openRequestFailedHeadlineTemplate, details.ForkOwner, details.SweepBranch, details.TargetBranch),
		codeFenceOpenConstant,
	}
	lines = append(lines, pullRequestCreateCommand(details, forkHead, details.Body)...)
	lines = append(lines, codeFenceCloseConstant)
	return strings.Join(lines, "\n")
}

// LabelRecoveryInstructions explains how to add the provenance label by hand.
func LabelRecoveryInstructions(details RecoveryDetails) string {
	return strings.Join([]string{
		fmt.Sprintf(labelFailedHeadlineTemplate, details.PullRequest),
		codeFenceOpenConstant,
		quoteCommand("gh", "pr", "edit", strconv.Itoa(details.PullRequest), "--repo", details.Project, "--add-label", details.ProvenanceLabel),
		codeFenceCloseConstant,
	}, "\n")
}

func pullRequestCreateCommand(details RecoveryDetails, head string, body string) []string {
	options := [][]string{
		{"--label", details.ProvenanceLabel},
		{"--base", details.TargetBranch},
	}
	if len(head) > 0 {
		options = append(options, []string{"--head", head})
	}
	options = append(options,
		[]string{"--repo", details.Project},
		[]string{"--title", details.Title},
		[]string{"--body", body},
	)

	lines := []string{"gh pr create" + continuationSuffixConstant}
	for index, option := range options {
		line := continuationIndentConstant + quoteCommand(option...)
		if index < len(options)-1 {
			line += continuationSuffixConstant
		}
		lines = append(lines, line)
	}
	return lines
}

func quoteCommand(arguments ...string) string {
	return shellescape.QuoteCommand(arguments)
}
