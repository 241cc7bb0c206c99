// Package gitrepo reads repository state for the sweep engine.
//
// HistoryReader uses go-git to walk first-parent merge history, read commit
// messages, and read files at a reference without touching the working tree.
// Remote URL helpers parse remotes into owner/name handles and build the
// authenticated push URL for the fork remote.
package gitrepo
