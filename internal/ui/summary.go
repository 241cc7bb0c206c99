package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

const (
	commitHeaderConstant       = "COMMIT"
	pullRequestHeaderConstant  = "PR"
	dispositionHeaderConstant  = "DISPOSITION"
	succeededHeaderConstant    = "SWEPT TO"
	failedHeaderConstant       = "FAILED"
	emptyCellConstant          = "-"
	branchSeparatorConstant    = ", "
	pullRequestCellTemplate    = "#%d"
	shortCommitLengthConstant  = 10
	noChangesMessageConstant   = "No merge commits found in the scan window."
	totalsMessageTemplate      = "%d change(s) scanned, %d branch(es) swept, %d branch(es) failed\n"
	dispositionDoneConstant    = "done"
	dispositionIgnoreConstant  = "ignore"
	dispositionSkippedConstant = "skipped"
	dispositionDryRunSuffix    = " (dry run)"
)

var (
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

// SummaryRow describes one processed merge commit.
type SummaryRow struct {
	Commit      string
	PullRequest int
	Disposition string
	DryRun      bool
	Succeeded   []string
	Failed      []string
}

// RunSummaryPrinter writes a sweep run summary table.
type RunSummaryPrinter struct {
	Out io.Writer
}

// NewRunSummaryPrinter creates a printer writing to out, or to stdout when out is nil.
func NewRunSummaryPrinter(out io.Writer) *RunSummaryPrinter {
	if out == nil {
		out = os.Stdout
	}
	return &RunSummaryPrinter{Out: out}
}

// Print renders one row per change followed by run totals.
func (printer *RunSummaryPrinter) Print(rows []SummaryRow) error {
	output := printer.Out
	if output == nil {
		output = os.Stdout
	}

	if len(rows) == 0 {
		_, writeError := fmt.Fprintln(output, noChangesMessageConstant)
		return writeError
	}

	table := tablewriter.NewTable(output,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header([]string{commitHeaderConstant, pullRequestHeaderConstant, dispositionHeaderConstant, succeededHeaderConstant, failedHeaderConstant})

	succeededTotal := 0
	failedTotal := 0
	for _, row := range rows {
		succeededTotal += len(row.Succeeded)
		failedTotal += len(row.Failed)
		if appendError := table.Append([]string{
			shortCommit(row.Commit),
			formatPullRequest(row.PullRequest),
			formatDisposition(row.Disposition, row.DryRun),
			formatBranches(row.Succeeded, green),
			formatBranches(row.Failed, red),
		}); appendError != nil {
			return appendError
		}
	}

	if renderError := table.Render(); renderError != nil {
		return renderError
	}
	_, writeError := fmt.Fprintf(output, totalsMessageTemplate, len(rows), succeededTotal, failedTotal)
	return writeError
}

func shortCommit(commit string) string {
	if len(commit) <= shortCommitLengthConstant {
		return commit
	}
	return commit[:shortCommitLengthConstant]
}

func formatPullRequest(number int) string {
	if number <= 0 {
		return emptyCellConstant
	}
	return fmt.Sprintf(pullRequestCellTemplate, number)
}

func formatDisposition(disposition string, dryRun bool) string {
	trimmed := strings.TrimSpace(disposition)
	if len(trimmed) == 0 {
		trimmed = dispositionSkippedConstant
	}
	var colored string
	switch trimmed {
	case dispositionDoneConstant:
		colored = cyan(trimmed)
	case dispositionIgnoreConstant:
		colored = yellow(trimmed)
	default:
		colored = trimmed
	}
	if dryRun {
		return colored + dispositionDryRunSuffix
	}
	return colored
}

func formatBranches(branches []string, paint func(...interface{}) string) string {
	if len(branches) == 0 {
		return emptyCellConstant
	}
	return paint(strings.Join(branches, branchSeparatorConstant))
}
