package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	referencesPrefixConstant               = "refs/"
	remoteReferencePrefixConstant          = "refs/remotes/"
	shortHashLengthConstant                = 7
	openRepositoryErrorTemplateConstant    = "open repository %s: %w"
	readCommitErrorTemplateConstant        = "read commit %s: %w"
	readFileErrorTemplateConstant          = "read %s at %s: %w"
	referenceNotFoundErrorTemplateConstant = "reference %s not found"
	remoteNotFoundErrorTemplateConstant    = "remote %s: %w"
)

// ErrFileNotFound indicates that a path does not exist at the requested reference.
var ErrFileNotFound = errors.New("gitrepo: file not found")

// ReferenceNotFoundError reports a reference that resolves to no commit.
type ReferenceNotFoundError struct {
	Reference string
}

func (notFoundError ReferenceNotFoundError) Error() string {
	return fmt.Sprintf(referenceNotFoundErrorTemplateConstant, notFoundError.Reference)
}

// TimeWindow bounds a history scan by committer time, inclusive on both ends.
type TimeWindow struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether moment falls within the window.
func (window TimeWindow) Contains(moment time.Time) bool {
	if !window.Since.IsZero() && moment.Before(window.Since) {
		return false
	}
	if !window.Until.IsZero() && moment.After(window.Until) {
		return false
	}
	return true
}

// MergeCommit is a merge found on a branch's first-parent history.
type MergeCommit struct {
	Hash          string
	Subject       string
	Message       string
	CommitterTime time.Time
}

// ShortHash abbreviates the hash the way git log --oneline does.
func (commit MergeCommit) ShortHash() string {
	if len(commit.Hash) <= shortHashLengthConstant {
		return commit.Hash
	}
	return commit.Hash[:shortHashLengthConstant]
}

// HistoryReader answers read-only questions about a repository.
type HistoryReader struct {
	repository *git.Repository
}

// OpenHistoryReader opens the repository containing path.
func OpenHistoryReader(path string) (*HistoryReader, error) {
	repository, openError := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if openError != nil {
		return nil, fmt.Errorf(openRepositoryErrorTemplateConstant, path, openError)
	}
	return NewHistoryReader(repository), nil
}

// NewHistoryReader wraps an already opened repository.
func NewHistoryReader(repository *git.Repository) *HistoryReader {
	return &HistoryReader{repository: repository}
}

// ListMergeCommits returns merge commits on the first-parent chain of reference whose
// committer time lies inside window, oldest first.
func (reader *HistoryReader) ListMergeCommits(executionContext context.Context, reference string, window TimeWindow) ([]MergeCommit, error) {
	currentCommit, resolveError := reader.resolveCommit(reference)
	if resolveError != nil {
		return nil, resolveError
	}

	mergeCommits := make([]MergeCommit, 0)
	seen := make(map[plumbing.Hash]struct{})
	for currentCommit != nil {
		if executionContext != nil {
			if contextError := executionContext.Err(); contextError != nil {
				return nil, contextError
			}
		}
		committerTime := currentCommit.Committer.When
		if !window.Since.IsZero() && committerTime.Before(window.Since) {
			break
		}
		if _, duplicate := seen[currentCommit.Hash]; !duplicate && currentCommit.NumParents() > 1 && window.Contains(committerTime) {
			seen[currentCommit.Hash] = struct{}{}
			mergeCommits = append(mergeCommits, MergeCommit{
				Hash:          currentCommit.Hash.String(),
				Subject:       firstLine(currentCommit.Message),
				Message:       currentCommit.Message,
				CommitterTime: committerTime,
			})
		}
		if currentCommit.NumParents() == 0 {
			break
		}
		parentCommit, parentError := currentCommit.Parent(0)
		if parentError != nil {
			return nil, fmt.Errorf(readCommitErrorTemplateConstant, currentCommit.Hash.String(), parentError)
		}
		currentCommit = parentCommit
	}

	for leftIndex, rightIndex := 0, len(mergeCommits)-1; leftIndex < rightIndex; leftIndex, rightIndex = leftIndex+1, rightIndex-1 {
		mergeCommits[leftIndex], mergeCommits[rightIndex] = mergeCommits[rightIndex], mergeCommits[leftIndex]
	}
	return mergeCommits, nil
}

// CommitMessage returns the full message of the commit named by revision.
func (reader *HistoryReader) CommitMessage(revision string) (string, error) {
	commit, resolveError := reader.resolveCommit(revision)
	if resolveError != nil {
		return "", resolveError
	}
	return commit.Message, nil
}

// ReadFile returns the contents of path as committed at reference.
func (reader *HistoryReader) ReadFile(reference string, path string) ([]byte, error) {
	commit, resolveError := reader.resolveCommit(reference)
	if resolveError != nil {
		return nil, resolveError
	}
	file, fileError := commit.File(strings.TrimPrefix(path, pathSeparatorConstant))
	if fileError != nil {
		if errors.Is(fileError, object.ErrFileNotFound) {
			return nil, fmt.Errorf(readFileErrorTemplateConstant, path, reference, ErrFileNotFound)
		}
		return nil, fmt.Errorf(readFileErrorTemplateConstant, path, reference, fileError)
	}
	fileReader, readerError := file.Reader()
	if readerError != nil {
		return nil, fmt.Errorf(readFileErrorTemplateConstant, path, reference, readerError)
	}
	defer fileReader.Close()
	contents, readError := io.ReadAll(fileReader)
	if readError != nil {
		return nil, fmt.Errorf(readFileErrorTemplateConstant, path, reference, readError)
	}
	return contents, nil
}

// RemoteRepository parses the first URL configured for remoteName.
func (reader *HistoryReader) RemoteRepository(remoteName string) (RemoteURL, error) {
	remote, remoteError := reader.repository.Remote(remoteName)
	if remoteError != nil {
		return RemoteURL{}, fmt.Errorf(remoteNotFoundErrorTemplateConstant, remoteName, remoteError)
	}
	remoteURLs := remote.Config().URLs
	if len(remoteURLs) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: remoteName, Message: requiredValueMessageConstant}
	}
	return ParseRemoteURL(remoteURLs[0])
}

// resolveCommit prefers the remote-tracking reference so "upstream/master" means refs/remotes/upstream/master.
func (reader *HistoryReader) resolveCommit(reference string) (*object.Commit, error) {
	trimmedReference := strings.TrimSpace(reference)
	candidates := []string{trimmedReference}
	if !strings.HasPrefix(trimmedReference, referencesPrefixConstant) && strings.Contains(trimmedReference, pathSeparatorConstant) {
		candidates = []string{remoteReferencePrefixConstant + trimmedReference, trimmedReference}
	}
	for _, candidate := range candidates {
		hash, resolveError := reader.repository.ResolveRevision(plumbing.Revision(candidate))
		if resolveError != nil {
			continue
		}
		commit, commitError := reader.repository.CommitObject(*hash)
		if commitError != nil {
			return nil, fmt.Errorf(readCommitErrorTemplateConstant, candidate, commitError)
		}
		return commit, nil
	}
	return nil, ReferenceNotFoundError{Reference: trimmedReference}
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return strings.TrimSpace(line)
}
