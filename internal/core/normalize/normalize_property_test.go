package normalize

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_Normalize(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	// seconds since 1970 up to 2100, offsets in whole minutes within ±14h
	instant := gen.Int64Range(0, 4102444800)
	offset := gen.IntRange(-14*60, 14*60)

	properties.Property("canonical output parses back to the same instant and text", prop.ForAll(
		func(sec int64, offMin int) bool {
			tm := time.Unix(sec, 0).In(time.FixedZone("", offMin*60))
			c := Canonical(tm)
			back, ok := TryParseDate(c)
			return ok && back.Equal(tm) && Canonical(back) == c
		},
		instant, offset,
	))

	properties.Property("record normalization is idempotent", prop.ForAll(
		func(sec int64, word string) bool {
			d := time.Unix(sec, 0).UTC()
			rec := map[string]any{
				"a": d.Format("2006-01-02"),
				"b": d.Format("2006-01-02 15:04:05"),
				"c": word,
				"n": sec,
			}
			n := New()
			n.Record(rec)
			once := fmt.Sprint(rec)
			return n.Record(rec) == 0 && fmt.Sprint(rec) == once
		},
		instant, gen.AlphaString(),
	))

	properties.Property("strings without a date shape are never rewritten", prop.ForAll(
		func(word string) bool {
			rec := map[string]any{"w": word}
			return New().Record(rec) == 0 && rec["w"] == word
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
