package sweep

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/prsweep/internal/githubcli"
)

const (
	skipReasonCommitLookupConstant        = "merge commit not found on the forge"
	skipReasonCommitMessageConstant       = "merge commit message unavailable"
	skipReasonMissingPullRequestConstant  = "merge commit does not reference a pull request"
	skipReasonPullRequestLookupConstant   = "pull request unavailable"
	skipReasonLabelsLookupConstant        = "pull request labels unavailable"
	changeSkippedErrorTemplateConstant    = "skip %s: %s"
	changeSkippedCauseTemplateConstant    = "skip %s: %s: %v"
	changeExtractedMessageConstant        = "Extracted change metadata"
	authorIdentityFallbackMessageConstant = "Falling back to noreply author identity"
	titleLogFieldConstant                 = "title"
	authorLogFieldConstant                = "author"
	labelsLogFieldConstant                = "labels"
)

// ChangeSkippedError reports a merge commit that cannot be swept.
type ChangeSkippedError struct {
	CommitHash string
	Reason     string
	Cause      error
}

func (skippedError ChangeSkippedError) Error() string {
	if skippedError.Cause == nil {
		return fmt.Sprintf(changeSkippedErrorTemplateConstant, skippedError.CommitHash, skippedError.Reason)
	}
	return fmt.Sprintf(changeSkippedCauseTemplateConstant, skippedError.CommitHash, skippedError.Reason, skippedError.Cause)
}

// Unwrap exposes the underlying failure.
func (skippedError ChangeSkippedError) Unwrap() error {
	return skippedError.Cause
}

// CommitMessageReader reads commit messages from local history.
type CommitMessageReader interface {
	CommitMessage(revision string) (string, error)
}

// Extractor builds change records from merge commits.
type Extractor struct {
	history CommitMessageReader
	forge   ChangeForge
	project string
}

// NewExtractor constructs an Extractor for the project.
func NewExtractor(history CommitMessageReader, forge ChangeForge, project string) Extractor {
	return Extractor{history: history, forge: forge, project: project}
}

// Extract resolves the merge commit to its pull request. Optional fields fall back to defaults.
func (extractor Extractor) Extract(executionContext context.Context, scope ChangeScope, commitHash string) (ChangeRecord, error) {
	if _, commitError := extractor.forge.GetCommit(executionContext, extractor.project, commitHash); commitError != nil {
		return ChangeRecord{}, ChangeSkippedError{CommitHash: commitHash, Reason: skipReasonCommitLookupConstant, Cause: commitError}
	}

	message, messageError := extractor.history.CommitMessage(commitHash)
	if messageError != nil {
		return ChangeRecord{}, ChangeSkippedError{CommitHash: commitHash, Reason: skipReasonCommitMessageConstant, Cause: messageError}
	}

	pullRequestNumber, found := ParsePullRequestNumber(message)
	if !found {
		return ChangeRecord{}, ChangeSkippedError{CommitHash: commitHash, Reason: skipReasonMissingPullRequestConstant}
	}

	pullRequest, pullRequestError := extractor.forge.GetPullRequest(executionContext, extractor.project, pullRequestNumber)
	if pullRequestError != nil {
		return ChangeRecord{}, ChangeSkippedError{CommitHash: commitHash, Reason: skipReasonPullRequestLookupConstant, Cause: pullRequestError}
	}

	labels, labelsError := extractor.forge.ListLabels(executionContext, extractor.project, pullRequestNumber)
	if labelsError != nil {
		return ChangeRecord{}, ChangeSkippedError{CommitHash: commitHash, Reason: skipReasonLabelsLookupConstant, Cause: labelsError}
	}

	record := buildChangeRecord(commitHash, pullRequest, labels)
	scope.logger().Debug(changeExtractedMessageConstant,
		zap.Int(pullRequestLogFieldConstant, record.PullRequestNumber),
		zap.String(titleLogFieldConstant, record.CanonicalTitle),
		zap.String(authorLogFieldConstant, record.AuthorLogin),
		zap.Strings(labelsLogFieldConstant, record.Labels),
	)
	return record, nil
}

// ChangedPaths returns a copy of the record carrying the files the pull request touched.
func (extractor Extractor) ChangedPaths(executionContext context.Context, record ChangeRecord) (ChangeRecord, error) {
	paths, filesError := extractor.forge.ListPullRequestFiles(executionContext, extractor.project, record.PullRequestNumber)
	if filesError != nil {
		return record, filesError
	}
	return record.WithChangedPaths(uniqueSorted(paths)), nil
}

// AuthorIdentity returns a copy of the record carrying the identity sweep commits are authored as.
func (extractor Extractor) AuthorIdentity(executionContext context.Context, scope ChangeScope, record ChangeRecord) ChangeRecord {
	identity, identityError := extractor.forge.ResolveAuthorIdentity(executionContext, extractor.project, record.AuthorLogin)
	if identityError != nil {
		scope.logger().Warn(authorIdentityFallbackMessageConstant, zap.String(authorLogFieldConstant, record.AuthorLogin), zap.Error(identityError))
		identity = githubcli.NoReplyIdentity(record.AuthorLogin)
	}
	return record.WithAuthorIdentity(identity.String())
}

func buildChangeRecord(commitHash string, pullRequest githubcli.PullRequest, labels []string) ChangeRecord {
	releaseNotes, _ := ExtractReleaseNotes(pullRequest.Body)
	author, credited := ExtractOriginalAuthor(pullRequest.Body)
	if !credited {
		author = strings.TrimSpace(pullRequest.AuthorLogin)
	}
	canonicalTitle, _ := CanonicalTitle(pullRequest.Title)

	return ChangeRecord{
		CommitHash:        commitHash,
		PullRequestNumber: pullRequest.Number,
		Title:             pullRequest.Title,
		CanonicalTitle:    canonicalTitle,
		Body:              pullRequest.Body,
		ReleaseNotes:      releaseNotes,
		AuthorLogin:       author,
		Labels:            append([]string(nil), labels...),
		HTMLURL:           pullRequest.HTMLURL,
	}
}

func uniqueSorted(values []string) []string {
	set := map[string]struct{}{}
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if len(trimmed) == 0 {
			continue
		}
		set[trimmed] = struct{}{}
	}
	return sortedKeys(set)
}
