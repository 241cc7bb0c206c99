package sweep_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/prsweep/internal/sweep"
)

func TestParsePullRequestNumber(testInstance *testing.T) {
	testCases := []struct {
		name           string
		message        string
		expectedNumber int
		expectedFound  bool
	}{
		{name: "merge_marker", message: "Merge pull request #1234 from someone/fix-calo\n\nFix calo", expectedNumber: 1234, expectedFound: true},
		{name: "marker_inside_text", message: "commit abc\n\n    Merge pull request #7 from a/b", expectedNumber: 7, expectedFound: true},
		{name: "squash_commit", message: "Fix calo (#1234)", expectedFound: false},
		{name: "empty", message: "", expectedFound: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			number, found := sweep.ParsePullRequestNumber(testCase.message)
			require.Equal(testInstance, testCase.expectedFound, found)
			require.Equal(testInstance, testCase.expectedNumber, number)
		})
	}
}

func TestExtractReleaseNotes(testInstance *testing.T) {
	body := "Fixes the calo.\n\nBEGINRELEASENOTES\n- Calo: fixed\nENDRELEASENOTES\ntrailing"
	notes, found := sweep.ExtractReleaseNotes(body)
	require.True(testInstance, found)
	require.Equal(testInstance, "BEGINRELEASENOTES\n- Calo: fixed\nENDRELEASENOTES", notes)

	missing, missingFound := sweep.ExtractReleaseNotes("no notes here")
	require.False(testInstance, missingFound)
	require.Empty(testInstance, missing)
}

func TestExtractOriginalAuthor(testInstance *testing.T) {
	author, found := sweep.ExtractOriginalAuthor("Sweep #1 `x` to `rel-7`.\n\nAdding original author @octo-cat as watcher.\n")
	require.True(testInstance, found)
	require.Equal(testInstance, "octo-cat", author)

	_, missingFound := sweep.ExtractOriginalAuthor("plain body")
	require.False(testInstance, missingFound)
}

func TestCanonicalTitle(testInstance *testing.T) {
	testCases := []struct {
		title           string
		expectedTitle   string
		expectedChanged bool
	}{
		{title: "[v7r2] Fix X", expectedTitle: "Fix X", expectedChanged: true},
		{title: "Fix X", expectedTitle: "Fix X", expectedChanged: false},
		{title: "[sweep:7] [v7r2] Fix X", expectedTitle: "[v7r2] Fix X", expectedChanged: true},
		{title: "[WIP]", expectedTitle: "[WIP]", expectedChanged: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.title, func(testInstance *testing.T) {
			canonical, changed := sweep.CanonicalTitle(testCase.title)
			require.Equal(testInstance, testCase.expectedTitle, canonical)
			require.Equal(testInstance, testCase.expectedChanged, changed)

			again, _ := sweep.CanonicalTitle(testCase.expectedTitle)
			if !changed {
				require.Equal(testInstance, canonical, again)
			}
		})
	}
}
