package sweep

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	sweepTargetsKeyConstant         = "sweep-targets"
	ruleParseErrorTemplateConstant  = "parse sweep rules: %w"
	ruleDecodeErrorTemplateConstant = "decode sweep rules: %w"
	ruleBranchesErrorTemplate       = "decode branches of rule %q: %w"
	anchoredPatternTemplateConstant = `^(?:%s)`
	malformedRuleMessageConstant    = "Skipping malformed sweep rule"
	ruleMatchedMessageConstant      = "Sweep rule matched"
	ruleSkippedMessageConstant      = "Sweep rule did not match every changed path"
	rulesMissingMessageConstant     = "No sweep rules available"
	rulesLoadedMessageConstant      = "Loaded sweep rules"
	rulePatternLogFieldConstant     = "pattern"
	ruleBranchesLogFieldConstant    = "branches"
	ruleCountLogFieldConstant       = "rule_count"
	rulesPathLogFieldConstant       = "rules_path"
	rulesReferenceLogFieldConstant  = "reference"
	rulesBranchLogFieldConstant     = "branch"
)

// ErrEmptyRuleConfiguration indicates an empty rules file.
var ErrEmptyRuleConfiguration = errors.New("sweep: rules file is empty")

type sweepRule struct {
	pattern    string
	expression *regexp.Regexp
	ruleError  error
	branches   []string
}

// RuleTable maps changed-path patterns to the branches a change is swept to.
type RuleTable struct {
	rules []sweepRule
}

// NewRuleTable compiles the patterns anchored at the start of each path.
func NewRuleTable(patterns map[string][]string) RuleTable {
	rules := make([]sweepRule, 0, len(patterns))
	for pattern, branches := range patterns {
		rules = append(rules, compileRule(pattern, branches))
	}
	return newSortedRuleTable(rules)
}

func compileRule(pattern string, branches []string) sweepRule {
	rule := sweepRule{pattern: pattern, branches: normalizeBranches(branches)}
	rule.expression, rule.ruleError = regexp.Compile(fmt.Sprintf(anchoredPatternTemplateConstant, pattern))
	return rule
}

func newSortedRuleTable(rules []sweepRule) RuleTable {
	sort.Slice(rules, func(left int, right int) bool {
		return rules[left].pattern < rules[right].pattern
	})
	return RuleTable{rules: rules}
}

// Len returns the number of rules in the table, malformed ones included.
func (table RuleTable) Len() int {
	return len(table.rules)
}

// Resolve returns the sorted union of branches whose rule matches every path.
// An empty path set matches no rule.
func (table RuleTable) Resolve(paths []string, logger *zap.Logger) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	candidates := map[string]struct{}{}
	if len(paths) == 0 {
		return sortedKeys(candidates)
	}

	for _, rule := range table.rules {
		ruleLogger := logger.With(zap.String(rulePatternLogFieldConstant, rule.pattern), zap.Strings(ruleBranchesLogFieldConstant, rule.branches))
		if rule.ruleError != nil {
			ruleLogger.Warn(malformedRuleMessageConstant, zap.Error(rule.ruleError))
			continue
		}
		if !matchesEveryPath(rule.expression, paths) {
			ruleLogger.Debug(ruleSkippedMessageConstant)
			continue
		}
		ruleLogger.Debug(ruleMatchedMessageConstant)
		for _, branch := range rule.branches {
			candidates[branch] = struct{}{}
		}
	}
	return sortedKeys(candidates)
}

func matchesEveryPath(expression *regexp.Regexp, paths []string) bool {
	for _, path := range paths {
		if !expression.MatchString(path) {
			return false
		}
	}
	return true
}

// ParseRuleTable reads the rules configured for branch from a sweep configuration document.
// A document without rules for the branch yields an empty table. Sections of other branches are never decoded,
// and a rule whose branch list cannot be decoded is kept as a malformed rule that never matches.
func ParseRuleTable(document []byte, branch string) (RuleTable, error) {
	var raw map[string]any
	if parseError := yaml.Unmarshal(document, &raw); parseError != nil {
		return RuleTable{}, fmt.Errorf(ruleParseErrorTemplateConstant, parseError)
	}
	if len(raw) == 0 {
		return RuleTable{}, ErrEmptyRuleConfiguration
	}

	var sections map[string]any
	if decodeError := decodeWeakly(raw[sweepTargetsKeyConstant], &sections); decodeError != nil {
		return RuleTable{}, fmt.Errorf(ruleDecodeErrorTemplateConstant, decodeError)
	}
	section, found := sections[strings.TrimSpace(branch)]
	if !found || section == nil {
		return RuleTable{}, nil
	}

	var patterns map[string]any
	if decodeError := decodeWeakly(section, &patterns); decodeError != nil {
		return RuleTable{}, fmt.Errorf(ruleDecodeErrorTemplateConstant, decodeError)
	}

	rules := make([]sweepRule, 0, len(patterns))
	for pattern, value := range patterns {
		var branches []string
		if decodeError := decodeWeakly(value, &branches); decodeError != nil {
			rules = append(rules, sweepRule{pattern: pattern, ruleError: fmt.Errorf(ruleBranchesErrorTemplate, pattern, decodeError)})
			continue
		}
		rules = append(rules, compileRule(pattern, branches))
	}
	return newSortedRuleTable(rules), nil
}

func decodeWeakly(input any, target any) error {
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if decoderError != nil {
		return decoderError
	}
	return decoder.Decode(input)
}

// RuleFileReader reads a file at a git reference.
type RuleFileReader interface {
	ReadFile(reference string, path string) ([]byte, error)
}

// RuleLoader loads the rule table for a scanned branch from its own tree.
type RuleLoader struct {
	Reader RuleFileReader
	Path   string
}

// Load returns the rules for the scanned branch. Every failure yields an empty table.
func (loader RuleLoader) Load(remoteBranch RemoteBranch, logger *zap.Logger) RuleTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	loadLogger := logger.With(
		zap.String(rulesReferenceLogFieldConstant, remoteBranch.String()),
		zap.String(rulesPathLogFieldConstant, loader.Path),
	)

	if loader.Reader == nil {
		loadLogger.Info(rulesMissingMessageConstant)
		return RuleTable{}
	}
	document, readError := loader.Reader.ReadFile(remoteBranch.String(), loader.Path)
	if readError != nil {
		loadLogger.Info(rulesMissingMessageConstant, zap.Error(readError))
		return RuleTable{}
	}
	table, parseError := ParseRuleTable(document, remoteBranch.Branch)
	if parseError != nil {
		loadLogger.Warn(rulesMissingMessageConstant, zap.Error(parseError))
		return RuleTable{}
	}
	loadLogger.Info(rulesLoadedMessageConstant, zap.String(rulesBranchLogFieldConstant, remoteBranch.Branch), zap.Int(ruleCountLogFieldConstant, table.Len()))
	return table
}

func normalizeBranches(branches []string) []string {
	normalized := make([]string, 0, len(branches))
	for _, branch := range branches {
		trimmed := strings.TrimSpace(branch)
		if len(trimmed) == 0 {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
