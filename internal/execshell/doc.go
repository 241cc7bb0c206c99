// Package execshell runs git and gh processes for prsweep.
//
// ShellExecutor wraps a CommandRunner with zap logging, bounded retries driven
// by cenkalti/backoff, and optional CommandEventObserver notifications.
// Embedded credentials are redacted from every log line and error message.
// OSCommandRunner is the os/exec backed runner used outside tests.
package execshell
