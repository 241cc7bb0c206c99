// Package ui renders the terminal summary printed after a sweep run.
package ui
