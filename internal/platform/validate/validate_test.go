package validate

import (
	"testing"

	perr "dayfill/internal/platform/errors"
	kit "dayfill/internal/platform/testkit"
)

type sample struct {
	Duration  int    `env:"DURATION" validate:"gte=0"`
	Threshold int    `env:"BATCH_THRESHOLD" validate:"gte=1"`
	Table     string `env:"TABLE" validate:"required,ident"`
	Plain     string `validate:"omitempty,ident"`
}

func TestStruct_OK(t *testing.T) {
	if err := Struct(sample{Duration: 7, Threshold: 50, Table: "crashes.processed_records"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStruct_ReportsEnvNames(t *testing.T) {
	err := Struct(sample{Duration: -1, Threshold: 0, Table: "x; drop"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	e, ok := perr.As(err)
	if !ok || e.Code() != perr.ErrorCodeValidation {
		t.Fatalf("want validation code, got %v", err)
	}
	if e.Field() != "DURATION" {
		t.Fatalf("first field = %q, want DURATION", e.Field())
	}
	kit.MustContain(t, err.Error(), "BATCH_THRESHOLD")
	kit.MustContain(t, err.Error(), "TABLE must be a plain identifier")
}

func TestStruct_FieldNameFallback(t *testing.T) {
	err := Struct(sample{Threshold: 1, Table: "ok", Plain: "not ok"})
	if e, ok := perr.As(err); !ok || e.Field() != "Plain" {
		t.Fatalf("want Plain field, got %v", err)
	}
}
