// Package workitemid holds the DD/MM/YY/NNN work item identifier format.
//
// An id is "new format" when it is exactly two-digit day, month and year plus a
// three-digit zero-padded sequence, slash separated. Anything else is legacy and
// is left for the id migration to rewrite.
package workitemid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CenturyPivot resolves two-digit years: 00..30 are 20xx, 31..99 are 19xx.
const CenturyPivot = 30

// MaxSequence is the largest sequence a bucket can hold in three digits.
const MaxSequence = 999

var newFormatRe = regexp.MustCompile(`^\d{2}/\d{2}/\d{2}/\d{3}$`)

// ParsedID is the structural decomposition of a new-format id.
// No calendar validation is applied: 31/02/25/001 parses.
type ParsedID struct {
	Day      int `json:"day"`
	Month    int `json:"month"`
	Year2    int `json:"year2"`
	Sequence int `json:"sequence"`
	FullYear int `json:"full_year"`
}

func IsNewFormat(id string) bool {
	return newFormatRe.MatchString(id)
}

func Parse(id string) (ParsedID, bool) {
	if !IsNewFormat(id) {
		return ParsedID{}, false
	}
	parts := strings.Split(id, "/")
	// the regex guarantees four all-digit parts
	day, _ := strconv.Atoi(parts[0])
	month, _ := strconv.Atoi(parts[1])
	year2, _ := strconv.Atoi(parts[2])
	seq, _ := strconv.Atoi(parts[3])
	return ParsedID{
		Day:      day,
		Month:    month,
		Year2:    year2,
		Sequence: seq,
		FullYear: FullYear(year2),
	}, true
}

func FullYear(year2 int) int {
	if year2 <= CenturyPivot {
		return 2000 + year2
	}
	return 1900 + year2
}

// DatePrefix returns DD/MM/YY using the calendar fields of t in its own location.
func DatePrefix(t time.Time) string {
	return fmt.Sprintf("%02d/%02d/%02d", t.Day(), int(t.Month()), t.Year()%100)
}

// Format joins a date prefix and a sequence number.
func Format(datePrefix string, seq int) string {
	return fmt.Sprintf("%s/%03d", datePrefix, seq)
}

// DayBounds returns 00:00:00.000 and 23:59:59.999 of t's calendar day in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}

// Sequence extracts the trailing segment of id as a sequence number.
// Malformed or non-numeric segments yield 0.
func Sequence(id string) int {
	idx := strings.LastIndexByte(id, '/')
	if idx < 0 || idx == len(id)-1 {
		return 0
	}
	n, err := strconv.Atoi(id[idx+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
