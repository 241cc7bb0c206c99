// Package sweep propagates merged pull requests to other release branches.
//
// A run scans the first-parent merge commits of a remote branch inside a time
// window. Each merge is resolved to its pull request, the target branches are
// derived from the sweep rules and the pull request labels, the change is
// applied to every target in isolation, and the outcome is reported back on the
// originating pull request.
package sweep
