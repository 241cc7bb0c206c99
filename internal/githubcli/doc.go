// Package githubcli talks to the GitHub REST API through the gh CLI.
//
// Client issues `gh api` requests via execshell, decodes JSON responses into
// small typed structures, and reports failures as OperationError values whose
// message carries gh's own diagnostic output.
package githubcli
