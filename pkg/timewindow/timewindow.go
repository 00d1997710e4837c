// Package timewindow resolves user-supplied start/end expressions into
// a concrete [start, end) instant pair for a fetch.
package timewindow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

var (
	// ErrInvalidExpression indicates an expression that parses as
	// neither an absolute timestamp nor a relative offset.
	ErrInvalidExpression = errors.New("invalid time expression")

	// ErrInvalidRange indicates a resolved window with start >= end.
	ErrInvalidRange = errors.New("invalid time range")
)

// Defaults for empty expressions. With midnight flooring the start
// default shrinks by one day so the window covers 89 complete days
// rather than 90 partial ones.
const (
	defaultStartExpr         = "-90 days"
	defaultStartExprMidnight = "-89 days"
)

// absoluteFormats are the accepted absolute timestamp layouts, tried in
// order. The bare YYYYMMDD form matches what the fetch command has
// historically accepted.
var absoluteFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

// unitAliases maps spelled-out duration units onto the compact form
// understood by the duration parser.
var unitAliases = []struct {
	long, short string
}{
	{"weeks", "w"},
	{"week", "w"},
	{"days", "d"},
	{"day", "d"},
	{"hours", "h"},
	{"hour", "h"},
	{"minutes", "m"},
	{"minute", "m"},
	{"seconds", "s"},
	{"second", "s"},
}

// Resolver turns start/end expressions into a concrete window. Now is
// injectable so window arithmetic is testable; a nil Now means
// time.Now.
type Resolver struct {
	Now func() time.Time
}

// Window is a resolved [Start, End) instant pair.
type Window struct {
	Start time.Time
	End   time.Time
}

// Resolve parses the two expressions against a single reference
// instant. Each expression is either an absolute timestamp or a signed
// offset relative to now ("-10 days"). A bare unsigned offset used as
// the start expression means that far in the past. With midnight both
// bounds are floored to the start of their UTC calendar day.
func (r *Resolver) Resolve(startExpr, endExpr string, midnight bool) (Window, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	ref := now().UTC()

	if endExpr == "" {
		endExpr = "now"
	}

	if startExpr == "" {
		startExpr = defaultStartExpr
		if midnight {
			startExpr = defaultStartExprMidnight
		}
	}

	end, err := parseExpr(endExpr, ref, false)
	if err != nil {
		return Window{}, fmt.Errorf("end: %w", err)
	}

	start, err := parseExpr(startExpr, ref, true)
	if err != nil {
		return Window{}, fmt.Errorf("start: %w", err)
	}

	if midnight {
		start = floorDay(start)
		end = floorDay(end)
	}

	if !start.Before(end) {
		return Window{}, fmt.Errorf("%w: start %s is not before end %s",
			ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	return Window{Start: start, End: end}, nil
}

// parseExpr resolves a single expression against ref. negateBare makes
// a sign-less relative offset count backwards, which is what a start
// expression like "1 week" means.
func parseExpr(expr string, ref time.Time, negateBare bool) (time.Time, error) {
	expr = strings.TrimSpace(expr)

	if strings.EqualFold(expr, "now") {
		return ref, nil
	}

	for _, layout := range absoluteFormats {
		if t, err := time.Parse(layout, expr); err == nil {
			return t.UTC(), nil
		}
	}

	if d, ok := parseOffset(expr, negateBare); ok {
		return ref.Add(d), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
}

// parseOffset parses a relative offset such as "-10 days", "+1 week" or
// "36h". The returned duration is signed.
func parseOffset(expr string, negateBare bool) (time.Duration, bool) {
	sign := time.Duration(1)

	switch {
	case strings.HasPrefix(expr, "-"):
		sign = -1
		expr = expr[1:]
	case strings.HasPrefix(expr, "+"):
		expr = expr[1:]
	default:
		if negateBare {
			sign = -1
		}
	}

	compact := strings.ToLower(strings.ReplaceAll(expr, " ", ""))
	for _, alias := range unitAliases {
		compact = strings.ReplaceAll(compact, alias.long, alias.short)
	}

	d, err := str2duration.ParseDuration(compact)
	if err != nil || d == 0 {
		return 0, false
	}

	return sign * d, true
}

// floorDay truncates t to the start of its UTC calendar day.
func floorDay(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
