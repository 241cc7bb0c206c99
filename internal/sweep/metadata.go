package sweep

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	pullRequestNumberPattern = regexp.MustCompile(`Merge pull request #(\d+)`)
	releaseNotesPattern      = regexp.MustCompile(`(?s)BEGINRELEASENOTES.+ENDRELEASENOTES`)
	originalAuthorPattern    = regexp.MustCompile(`Adding original author @(\S+) as watcher\.`)
	bracketedTitlePattern    = regexp.MustCompile(`^\[[^\]]+\]\s+(.+)$`)
)

// ParsePullRequestNumber finds the pull request number in a merge commit message.
func ParsePullRequestNumber(commitMessage string) (int, bool) {
	matches := pullRequestNumberPattern.FindStringSubmatch(commitMessage)
	if matches == nil {
		return 0, false
	}
	number, conversionError := strconv.Atoi(matches[1])
	if conversionError != nil || number <= 0 {
		return 0, false
	}
	return number, true
}

// ExtractReleaseNotes returns the release notes block including its markers.
func ExtractReleaseNotes(body string) (string, bool) {
	block := releaseNotesPattern.FindString(body)
	return block, len(block) > 0
}

// ExtractOriginalAuthor returns the login credited by a previous sweep.
func ExtractOriginalAuthor(body string) (string, bool) {
	matches := originalAuthorPattern.FindStringSubmatch(body)
	if matches == nil {
		return "", false
	}
	return matches[1], true
}

// CanonicalTitle strips a leading bracketed tag such as "[v7r2] ".
func CanonicalTitle(title string) (string, bool) {
	trimmedTitle := strings.TrimSpace(title)
	matches := bracketedTitlePattern.FindStringSubmatch(trimmedTitle)
	if matches == nil {
		return trimmedTitle, false
	}
	return matches[1], true
}
