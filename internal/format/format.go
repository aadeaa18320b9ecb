// Package format renders durations, dates and CSV cells.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Duration formats milliseconds as HH:MM:SS. Hours are not wrapped at 24 and
// negative input renders as zero.
func Duration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseDuration reads HH:MM:SS (or MM:SS) back into milliseconds.
func ParseDuration(s string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q (want HH:MM:SS)", s)
	}
	var secs int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q (want HH:MM:SS)", s)
		}
		if i > 0 && n > 59 {
			return 0, fmt.Errorf("invalid duration %q: minutes and seconds must be below 60", s)
		}
		secs = secs*60 + n
	}
	return secs * 1000, nil
}

// Hours formats milliseconds as decimal hours, e.g. "1.5h".
func Hours(ms int64) string {
	return fmt.Sprintf("%.1fh", float64(ms)/float64(time.Hour/time.Millisecond))
}

// Date returns the calendar date of t in loc.
func Date(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// DateTime formats an optional timestamp; nil renders as "".
func DateTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateTimeLayout)
}

var formulaPrefix = regexp.MustCompile(`^[=+\-@\t\r]`)

// CSVField quotes a value for CSV output. Values a spreadsheet could read as
// a formula get an apostrophe prefix; every value is wrapped in double quotes
// with internal quotes doubled.
func CSVField(v string) string {
	if formulaPrefix.MatchString(v) {
		v = "'" + v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// CSVRow joins already-raw values into one CSV line, escaping each field.
func CSVRow(values ...string) string {
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = CSVField(v)
	}
	return strings.Join(fields, ",")
}
