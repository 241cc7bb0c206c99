package gitrepo

import (
	"fmt"
	"strings"
)

const (
	sshProtocolPrefixConstant           = "ssh://"
	sshUserDelimiterConstant            = "@"
	sshPathDelimiterConstant            = ":"
	httpsProtocolPrefixConstant         = "https://"
	httpProtocolPrefixConstant          = "http://"
	gitUserPrefixConstant               = "git@"
	pathSeparatorConstant               = "/"
	gitSuffixConstant                   = ".git"
	remoteURLParseErrorTemplateConstant = "%s: %s"
	invalidRemoteURLMessageConstant     = "invalid remote url"
	requiredValueMessageConstant        = "value required"
	defaultHostConstant                 = "github.com"
	authenticatedURLTemplateConstant    = "https://%s@%s/%s/%s.git"
	anonymousURLTemplateConstant        = "https://%s/%s/%s.git"
)

// RemoteURL represents a structured git remote URL.
type RemoteURL struct {
	Host       string
	Owner      string
	Repository string
}

// NameWithOwner renders the owner/name handle used by the GitHub API.
func (remote RemoteURL) NameWithOwner() string {
	return remote.Owner + pathSeparatorConstant + remote.Repository
}

// RemoteURLParseError indicates a remote string could not be parsed.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// ParseRemoteURL converts ssh, scp-like, and http(s) remote URLs into a structured representation.
// Credentials embedded in http(s) URLs are discarded.
func ParseRemoteURL(remote string) (RemoteURL, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: requiredValueMessageConstant}
	}

	switch {
	case strings.HasPrefix(trimmedRemote, sshProtocolPrefixConstant):
		return parseSSHRemote(strings.TrimPrefix(trimmedRemote, sshProtocolPrefixConstant))
	case strings.HasPrefix(trimmedRemote, gitUserPrefixConstant):
		return parseSSHRemote(trimmedRemote)
	case strings.HasPrefix(trimmedRemote, httpsProtocolPrefixConstant):
		return parseHTTPRemote(strings.TrimPrefix(trimmedRemote, httpsProtocolPrefixConstant))
	case strings.HasPrefix(trimmedRemote, httpProtocolPrefixConstant):
		return parseHTTPRemote(strings.TrimPrefix(trimmedRemote, httpProtocolPrefixConstant))
	default:
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
}

// AuthenticatedHTTPSURL builds an https remote URL that embeds token for pushes.
func AuthenticatedHTTPSURL(host string, nameWithOwner string, token string) (string, error) {
	owner, repository, splitError := splitOwnerAndRepository(strings.TrimSpace(nameWithOwner))
	if splitError != nil {
		return "", splitError
	}
	resolvedHost := strings.TrimSpace(host)
	if len(resolvedHost) == 0 {
		resolvedHost = defaultHostConstant
	}
	trimmedToken := strings.TrimSpace(token)
	if len(trimmedToken) == 0 {
		return fmt.Sprintf(anonymousURLTemplateConstant, resolvedHost, owner, repository), nil
	}
	return fmt.Sprintf(authenticatedURLTemplateConstant, trimmedToken, resolvedHost, owner, repository), nil
}

func parseSSHRemote(remote string) (RemoteURL, error) {
	userSplitIndex := strings.Index(remote, sshUserDelimiterConstant)
	if userSplitIndex == -1 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	hostAndPath := remote[userSplitIndex+1:]
	pathSplitIndex := strings.Index(hostAndPath, sshPathDelimiterConstant)
	var host string
	var path string
	if pathSplitIndex == -1 {
		slashIndex := strings.Index(hostAndPath, pathSeparatorConstant)
		if slashIndex == -1 {
			return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
		}
		host = hostAndPath[:slashIndex]
		path = hostAndPath[slashIndex+1:]
	} else {
		host = hostAndPath[:pathSplitIndex]
		path = hostAndPath[pathSplitIndex+1:]
	}
	owner, repository, parseError := splitOwnerAndRepository(path)
	if parseError != nil {
		return RemoteURL{}, parseError
	}
	return RemoteURL{Host: host, Owner: owner, Repository: repository}, nil
}

func parseHTTPRemote(remote string) (RemoteURL, error) {
	if credentialsIndex := strings.Index(remote, sshUserDelimiterConstant); credentialsIndex != -1 && credentialsIndex < strings.Index(remote+pathSeparatorConstant, pathSeparatorConstant) {
		remote = remote[credentialsIndex+1:]
	}
	pathComponents := strings.SplitN(remote, pathSeparatorConstant, 2)
	if len(pathComponents) != 2 || len(pathComponents[0]) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	owner, repository, parseError := splitOwnerAndRepository(strings.TrimSuffix(pathComponents[1], pathSeparatorConstant))
	if parseError != nil {
		return RemoteURL{}, parseError
	}
	return RemoteURL{Host: pathComponents[0], Owner: owner, Repository: repository}, nil
}

func splitOwnerAndRepository(path string) (string, string, error) {
	segments := strings.Split(path, pathSeparatorConstant)
	if len(segments) != 2 || len(segments[0]) == 0 {
		return "", "", RemoteURLParseError{Input: path, Message: invalidRemoteURLMessageConstant}
	}
	repository := strings.TrimSuffix(segments[1], gitSuffixConstant)
	if len(repository) == 0 {
		return "", "", RemoteURLParseError{Input: path, Message: invalidRemoteURLMessageConstant}
	}
	return segments[0], repository, nil
}
