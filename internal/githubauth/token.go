package githubauth

import (
	"errors"
	"os"
	"strings"
)

// Environment variable names used by GitHub authentication helpers.
const (
	EnvGitHubCLIToken = "GH_TOKEN"
	EnvGitHubToken    = "GITHUB_TOKEN"
	EnvGitHubAPIToken = "GITHUB_API_TOKEN"
)

// ErrTokenNotFound indicates that neither an explicit token nor a token variable was supplied.
var ErrTokenNotFound = errors.New("githubauth: no token provided via --token, GH_TOKEN, GITHUB_TOKEN, or GITHUB_API_TOKEN")

// EnvironmentVariableNames lists token variables in precedence order.
func EnvironmentVariableNames() []string {
	return []string{EnvGitHubCLIToken, EnvGitHubToken, EnvGitHubAPIToken}
}

// ResolveToken returns the explicit token when present, otherwise the first non-empty
// token variable observed in environment and then in the process environment.
func ResolveToken(explicitToken string, environment map[string]string) (string, error) {
	if trimmedToken := strings.TrimSpace(explicitToken); len(trimmedToken) > 0 {
		return trimmedToken, nil
	}
	for _, key := range EnvironmentVariableNames() {
		if value, ok := lookup(environment, key); ok {
			return value, nil
		}
	}
	for _, key := range EnvironmentVariableNames() {
		if value, ok := os.LookupEnv(key); ok {
			value = strings.TrimSpace(value)
			if len(value) > 0 {
				return value, nil
			}
		}
	}
	return "", ErrTokenNotFound
}

// CommandEnvironment returns the variables that authenticate a gh invocation.
func CommandEnvironment(token string) map[string]string {
	trimmedToken := strings.TrimSpace(token)
	if len(trimmedToken) == 0 {
		return nil
	}
	return map[string]string{EnvGitHubCLIToken: trimmedToken}
}

func lookup(environment map[string]string, key string) (string, bool) {
	if environment == nil {
		return "", false
	}
	value, exists := environment[key]
	if !exists {
		return "", false
	}
	value = strings.TrimSpace(value)
	if len(value) == 0 {
		return "", false
	}
	return value, true
}
