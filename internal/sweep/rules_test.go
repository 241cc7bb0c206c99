package sweep_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/prsweep/internal/sweep"
)

const (
	detectorPatternConstant = "^Detector/.*"
	corePatternConstant     = "Core/"
	rulesPathConstant       = "Sweep/config.yaml"
)

func TestRuleTableResolveScenarios(testInstance *testing.T) {
	testCases := []struct {
		name             string
		patterns         map[string][]string
		paths            []string
		expectedBranches []string
	}{
		{
			name:             "every_path_matches",
			patterns:         map[string][]string{detectorPatternConstant: {"rel-7"}},
			paths:            []string{"Detector/Calo/x.cpp", "Detector/Track/y.cpp"},
			expectedBranches: []string{"rel-7"},
		},
		{
			name:             "one_path_outside_pattern",
			patterns:         map[string][]string{detectorPatternConstant: {"rel-7"}},
			paths:            []string{"Detector/x.cpp", "Core/y.cpp"},
			expectedBranches: []string{},
		},
		{
			name:             "empty_path_set_matches_nothing",
			patterns:         map[string][]string{".*": {"rel-7"}},
			paths:            nil,
			expectedBranches: []string{},
		},
		{
			name:             "patterns_anchor_at_path_start",
			patterns:         map[string][]string{corePatternConstant: {"rel-6"}},
			paths:            []string{"src/Core/y.cpp"},
			expectedBranches: []string{},
		},
		{
			name: "matching_rules_union",
			patterns: map[string][]string{
				detectorPatternConstant: {"rel-7", "rel-6"},
				"Detector/Calo":         {"rel-5", "rel-7"},
				corePatternConstant:     {"rel-4"},
			},
			paths:            []string{"Detector/Calo/x.cpp"},
			expectedBranches: []string{"rel-5", "rel-6", "rel-7"},
		},
		{
			name: "malformed_pattern_fails_closed",
			patterns: map[string][]string{
				"Detector/(":            {"rel-9"},
				detectorPatternConstant: {"rel-7"},
			},
			paths:            []string{"Detector/x.cpp"},
			expectedBranches: []string{"rel-7"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			table := sweep.NewRuleTable(testCase.patterns)
			require.Equal(testInstance, testCase.expectedBranches, table.Resolve(testCase.paths, zap.NewNop()))
		})
	}
}

func TestRuleTableResolveIsOrderIndependent(testInstance *testing.T) {
	paths := []string{"Detector/Calo/x.cpp"}
	forward := sweep.NewRuleTable(map[string][]string{
		"Detector/": {"rel-7"},
		"Det":       {"rel-6"},
		"D":         {"rel-5", "rel-7"},
	})
	expected := forward.Resolve(paths, nil)

	for attempt := 0; attempt < 20; attempt++ {
		reordered := sweep.NewRuleTable(map[string][]string{
			"D":         {"rel-7", "rel-5"},
			"Det":       {"rel-6"},
			"Detector/": {"rel-7"},
		})
		require.Equal(testInstance, expected, reordered.Resolve(paths, nil))
	}
	require.Equal(testInstance, []string{"rel-5", "rel-6", "rel-7"}, expected)
}

func TestRuleTableLogsMalformedPattern(testInstance *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	table := sweep.NewRuleTable(map[string][]string{"[": {"rel-1"}})

	require.Empty(testInstance, table.Resolve([]string{"a"}, zap.New(core)))
	warnings := recorded.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(testInstance, warnings, 1)
	require.Equal(testInstance, "Skipping malformed sweep rule", warnings[0].Message)
}

func TestParseRuleTable(testInstance *testing.T) {
	document := []byte(`
sweep-targets:
  master:
    "^Detector/.*":
      - rel-7
      - rel-6
    "Core/": rel-5
  rel-7:
    ".*": [rel-6]
`)

	masterTable, masterError := sweep.ParseRuleTable(document, "master")
	require.NoError(testInstance, masterError)
	require.Equal(testInstance, 2, masterTable.Len())
	require.Equal(testInstance, []string{"rel-6", "rel-7"}, masterTable.Resolve([]string{"Detector/x.cpp"}, nil))
	require.Equal(testInstance, []string{"rel-5"}, masterTable.Resolve([]string{"Core/y.cpp"}, nil))

	missingTable, missingError := sweep.ParseRuleTable(document, "rel-6")
	require.NoError(testInstance, missingError)
	require.Zero(testInstance, missingTable.Len())

	_, emptyError := sweep.ParseRuleTable([]byte(""), "master")
	require.ErrorIs(testInstance, emptyError, sweep.ErrEmptyRuleConfiguration)

	_, malformedError := sweep.ParseRuleTable([]byte("sweep-targets: [unterminated"), "master")
	require.Error(testInstance, malformedError)
}

func TestParseRuleTableIsolatesMalformedEntries(testInstance *testing.T) {
	document := []byte(`
sweep-targets:
  rel-6: oops
  master:
    "^Detector/": [rel-7]
    "Docs/":
      nested: map
`)
	core, recorded := observer.New(zapcore.DebugLevel)

	table, parseError := sweep.ParseRuleTable(document, "master")

	require.NoError(testInstance, parseError)
	require.Equal(testInstance, 2, table.Len())
	require.Equal(testInstance, []string{"rel-7"}, table.Resolve([]string{"Detector/x.cpp"}, zap.New(core)))
	require.Empty(testInstance, table.Resolve([]string{"Docs/guide.md"}, zap.New(core)))

	warnings := recorded.FilterMessage("Skipping malformed sweep rule").All()
	require.Len(testInstance, warnings, 2)
	require.Equal(testInstance, "Docs/", warnings[0].ContextMap()["pattern"])

	otherTable, otherError := sweep.ParseRuleTable(document, "rel-6")
	require.Error(testInstance, otherError)
	require.Zero(testInstance, otherTable.Len())
}

type stubRuleFileReader struct {
	content           []byte
	readError         error
	requestedRevision string
	requestedPath     string
}

func (reader *stubRuleFileReader) ReadFile(reference string, path string) ([]byte, error) {
	reader.requestedRevision = reference
	reader.requestedPath = path
	return reader.content, reader.readError
}

func TestRuleLoaderLoad(testInstance *testing.T) {
	remoteBranch := sweep.RemoteBranch{Remote: "upstream", Branch: "master"}

	reader := &stubRuleFileReader{content: []byte("sweep-targets:\n  master:\n    \"Detector/\": [rel-7]\n")}
	table := sweep.RuleLoader{Reader: reader, Path: rulesPathConstant}.Load(remoteBranch, zap.NewNop())
	require.Equal(testInstance, 1, table.Len())
	require.Equal(testInstance, "upstream/master", reader.requestedRevision)
	require.Equal(testInstance, rulesPathConstant, reader.requestedPath)

	failingReader := &stubRuleFileReader{readError: errors.New("missing")}
	require.Zero(testInstance, sweep.RuleLoader{Reader: failingReader, Path: rulesPathConstant}.Load(remoteBranch, nil).Len())

	invalidReader := &stubRuleFileReader{content: []byte(":::")}
	require.Zero(testInstance, sweep.RuleLoader{Reader: invalidReader, Path: rulesPathConstant}.Load(remoteBranch, nil).Len())

	require.Zero(testInstance, sweep.RuleLoader{Path: rulesPathConstant}.Load(remoteBranch, nil).Len())
}
