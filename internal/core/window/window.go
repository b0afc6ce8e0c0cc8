// Package window enumerates the calendar days of a backfill run and names their index partitions
package window

import (
	"strconv"
	"strings"
	"time"
)

// DayKeyLayout renders the source store's per-day lookup key (yymmdd)
const DayKeyLayout = "060102"

// Day truncates t to its calendar date at UTC midnight
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Days returns duration calendar days ending at end, newest first.
// duration <= 0 yields nil
func Days(end time.Time, duration int) []time.Time {
	if duration <= 0 {
		return nil
	}
	end = Day(end)
	out := make([]time.Time, duration)
	for i := range out {
		out[i] = end.AddDate(0, 0, -i)
	}
	return out
}

// DayKey renders day as the source lookup key
func DayKey(day time.Time) string { return day.UTC().Format(DayKeyLayout) }

// PartitionName derives the partition for day from template.
// A blank template means no partition. A template containing '%' is expanded
// with strftime directives; anything else is used as is
func PartitionName(day time.Time, template string) (string, bool) {
	if strings.TrimSpace(template) == "" {
		return "", false
	}
	if !strings.Contains(template, "%") {
		return template, true
	}
	return strftime(Day(day), template), true
}

// strftime expands the directives a calendar day can answer.
// Unknown directives and a trailing '%' are copied verbatim
func strftime(t time.Time, f string) string {
	var b strings.Builder
	b.Grow(len(f) + 8)
	for i := 0; i < len(f); i++ {
		c := f[i]
		if c != '%' || i == len(f)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch f[i] {
		case 'Y':
			b.WriteString(strconv.Itoa(t.Year()))
		case 'y':
			b.WriteString(t.Format("06"))
		case 'm':
			b.WriteString(t.Format("01"))
		case 'd':
			b.WriteString(t.Format("02"))
		case 'j':
			b.WriteString(t.Format("002"))
		case 'b':
			b.WriteString(t.Format("Jan"))
		case 'B':
			b.WriteString(t.Format("January"))
		case 'a':
			b.WriteString(t.Format("Mon"))
		case 'A':
			b.WriteString(t.Format("Monday"))
		case 'H', 'M', 'S':
			b.WriteString("00")
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(f[i])
		}
	}
	return b.String()
}
