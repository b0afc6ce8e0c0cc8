package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	perr "dayfill/internal/platform/errors"
	"dayfill/internal/services/backfill/domain"
)

// JSONDecoder decodes one JSON object per payload. Numbers stay json.Number so they
// reach the index exactly as stored
type JSONDecoder struct {
	// KeyField must be present and non-empty on every record; empty disables the check
	KeyField string
}

var _ domain.Decoder = JSONDecoder{}

// NewJSONDecoder returns a decoder requiring keyField
func NewJSONDecoder(keyField string) JSONDecoder { return JSONDecoder{KeyField: keyField} }

// Decode returns an ErrorCodeJSON error for anything that is not a single keyed object
func (d JSONDecoder) Decode(raw []byte) (domain.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var rec domain.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "decode record")
	}
	if rec == nil {
		return nil, perr.JSONErrf("decode record: not an object")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, perr.JSONErrf("decode record: trailing data after object")
	}
	if d.KeyField != "" {
		v, ok := rec[d.KeyField]
		if !ok || v == nil || fmt.Sprint(v) == "" {
			return nil, perr.WithField(perr.JSONErrf("decode record: missing key %q", d.KeyField), d.KeyField)
		}
	}
	return rec, nil
}
