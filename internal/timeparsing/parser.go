// Package timeparsing turns human-written moments into the sweep scan window.
//
// Parsing is layered: the literal "now", compact durations (-6h, -2w),
// absolute timestamps (RFC3339, YYYY-MM-DD), then natural language handled by
// olebedev/when ("1 month ago", "yesterday").
package timeparsing

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const (
	nowKeywordConstant                 = "now"
	dateOnlyLayoutConstant             = "2006-01-02"
	unrecognizedMomentTemplateConstant = "unrecognized time expression %q"
	invalidWindowTemplateConstant      = "since %s is after until %s"
	emptyExpressionMessageConstant     = "empty time expression"
	sinceFieldNameConstant             = "since"
	untilFieldNameConstant             = "until"
	fieldErrorTemplateConstant         = "%s: %w"
)

// ErrEmptyExpression indicates a blank time expression.
var ErrEmptyExpression = errors.New(emptyExpressionMessageConstant)

var compactDurationPattern = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

var naturalLanguageParser = newNaturalLanguageParser()

func newNaturalLanguageParser() *when.Parser {
	parser := when.New(nil)
	parser.Add(en.All...)
	parser.Add(common.All...)
	return parser
}

// Window is a resolved scan window.
type Window struct {
	Since time.Time
	Until time.Time
}

// ParseWindow resolves both bounds relative to now and rejects inverted windows.
func ParseWindow(sinceExpression string, untilExpression string, now time.Time) (Window, error) {
	since, sinceError := ParseMoment(sinceExpression, now)
	if sinceError != nil {
		return Window{}, fmt.Errorf(fieldErrorTemplateConstant, sinceFieldNameConstant, sinceError)
	}
	until, untilError := ParseMoment(untilExpression, now)
	if untilError != nil {
		return Window{}, fmt.Errorf(fieldErrorTemplateConstant, untilFieldNameConstant, untilError)
	}
	if since.After(until) {
		return Window{}, fmt.Errorf(invalidWindowTemplateConstant, since.Format(time.RFC3339), until.Format(time.RFC3339))
	}
	return Window{Since: since, Until: until}, nil
}

// ParseMoment resolves a single expression relative to now.
func ParseMoment(expression string, now time.Time) (time.Time, error) {
	trimmedExpression := strings.TrimSpace(expression)
	if len(trimmedExpression) == 0 {
		return time.Time{}, ErrEmptyExpression
	}
	if strings.EqualFold(trimmedExpression, nowKeywordConstant) {
		return now, nil
	}
	if moment, matched := parseCompactDuration(trimmedExpression, now); matched {
		return moment, nil
	}
	if moment, parseError := time.Parse(time.RFC3339, trimmedExpression); parseError == nil {
		return moment, nil
	}
	if moment, parseError := time.ParseInLocation(dateOnlyLayoutConstant, trimmedExpression, now.Location()); parseError == nil {
		return moment, nil
	}
	result, parseError := naturalLanguageParser.Parse(strings.ToLower(trimmedExpression), now)
	if parseError == nil && result != nil {
		return result.Time, nil
	}
	return time.Time{}, fmt.Errorf(unrecognizedMomentTemplateConstant, trimmedExpression)
}

// parseCompactDuration handles [+-]N[hdwmy]; an unsigned amount points forward.
func parseCompactDuration(expression string, now time.Time) (time.Time, bool) {
	matches := compactDurationPattern.FindStringSubmatch(expression)
	if matches == nil {
		return time.Time{}, false
	}
	amount, conversionError := strconv.Atoi(matches[2])
	if conversionError != nil {
		return time.Time{}, false
	}
	if matches[1] == "-" {
		amount = -amount
	}
	switch matches[3] {
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), true
	case "d":
		return now.AddDate(0, 0, amount), true
	case "w":
		return now.AddDate(0, 0, amount*7), true
	case "m":
		return now.AddDate(0, amount, 0), true
	default:
		return now.AddDate(amount, 0, 0), true
	}
}
