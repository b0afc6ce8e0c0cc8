// Package normalize rewrites date-like string fields of a record into one canonical form.
// Accepted inputs
//   - YYYY-MM-DD (exactly ten characters) at UTC midnight
//   - YYYY-MM-DD[T| ]hh:mm[:ss[.frac]] with an optional Z, ±hh:mm, ±hhmm or ±hh zone; no zone means UTC
//
// Output is always 2006-01-02T15:04:05-07:00 with the parsed offset kept and fractions dropped
package normalize

import (
	"time"
)

// CanonicalLayout is the single output form for every recognised date
const CanonicalLayout = "2006-01-02T15:04:05-07:00"

const dateOnly = "2006-01-02"

// datetime layouts tried in order; seconds fractions are accepted by time.Parse without a layout element
var layouts = func() []string {
	var out []string
	for _, clock := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		for _, zone := range []string{"Z07:00", "Z0700", "Z07", ""} {
			out = append(out, clock+zone)
		}
	}
	return out
}()

// TryParseDate parses s when it is a recognised date or datetime
func TryParseDate(s string) (time.Time, bool) {
	switch {
	case len(s) == len(dateOnly):
		t, err := time.Parse(dateOnly, s)
		return t, err == nil
	case len(s) < len("2006-01-02T15:04"):
		return time.Time{}, false
	}
	if s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	if s[10] != 'T' {
		return time.Time{}, false
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Canonical renders t in CanonicalLayout
func Canonical(t time.Time) string { return t.Format(CanonicalLayout) }

// Normalizer rewrites date strings inside records. The zero value is ready to use
type Normalizer struct {
	skip map[string]struct{}
}

// New returns a Normalizer that never touches the named fields
func New(skip ...string) *Normalizer {
	n := &Normalizer{skip: make(map[string]struct{}, len(skip))}
	for _, f := range skip {
		n.skip[f] = struct{}{}
	}
	return n
}

// Record rewrites, in place, every top-level string value that parses as a date.
// Other values are left alone. It returns the number of rewritten fields
func (n *Normalizer) Record(r map[string]any) int {
	changed := 0
	for k, v := range r {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if _, skip := n.skip[k]; skip {
			continue
		}
		t, ok := TryParseDate(s)
		if !ok {
			continue
		}
		if c := Canonical(t); c != s {
			r[k] = c
			changed++
		}
	}
	return changed
}
