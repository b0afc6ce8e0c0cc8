package module

import (
	"time"

	"dayfill/internal/platform/config"
	"dayfill/internal/platform/validate"
	"dayfill/internal/services/backfill/guardrails"
	"dayfill/internal/services/backfill/service"
)

// Options holds configuration options for the backfill service
type Options struct {
	EndDate        time.Time `env:"CORE_BACKFILL_END_DATE"`
	Duration       int       `env:"CORE_BACKFILL_DURATION" validate:"gte=0,lte=36500"`
	BatchThreshold int       `env:"CORE_BACKFILL_BATCH_THRESHOLD" validate:"gte=0"`
	IndexTemplate  string    `env:"CORE_BACKFILL_INDEX_TEMPLATE"`
	RecordType     string    `env:"CORE_BACKFILL_RECORD_TYPE" validate:"required"`
	KeyField       string    `env:"CORE_BACKFILL_KEY_FIELD" validate:"required"`

	Retries   int           `env:"CORE_BACKFILL_RETRIES" validate:"gte=1"`
	RetryBase time.Duration `env:"CORE_BACKFILL_RETRY_BASE" validate:"gt=0"`
	RetryCap  time.Duration `env:"CORE_BACKFILL_RETRY_CAP" validate:"gtefield=RetryBase"`

	DayTimeout   time.Duration `env:"CORE_BACKFILL_DAY_TIMEOUT" validate:"gte=0"`
	FetchTimeout time.Duration `env:"CORE_BACKFILL_FETCH_TIMEOUT" validate:"gte=0"`
	WriteTimeout time.Duration `env:"CORE_BACKFILL_WRITE_TIMEOUT" validate:"gte=0"`
	DBTimeout    time.Duration `env:"CORE_BACKFILL_DB_TIMEOUT" validate:"gte=0"`

	AbortOnFailure bool `env:"CORE_BACKFILL_ABORT_ON_FAILURE"`

	// Ledger records every day in postgres when a pool is configured
	Ledger             bool `env:"CORE_BACKFILL_LEDGER"`
	StatementTimeoutMs int  `env:"CORE_BACKFILL_STATEMENT_TIMEOUT_MS" validate:"gte=0"`
}

// FromConfig reads the backfill options from config with CORE_BACKFILL_ prefix
func FromConfig(cfg config.Conf) Options {
	bf := cfg.Prefix("CORE_BACKFILL_")
	return Options{
		EndDate:            bf.MayDate("END_DATE", today()),
		Duration:           bf.MayInt("DURATION", 7),
		BatchThreshold:     bf.MayInt("BATCH_THRESHOLD", 50),
		IndexTemplate:      bf.MayString("INDEX_TEMPLATE", ""),
		RecordType:         bf.MayString("RECORD_TYPE", "record"),
		KeyField:           bf.MayString("KEY_FIELD", "uuid"),
		Retries:            bf.MayInt("RETRIES", service.DefaultMaxAttempts),
		RetryBase:          bf.MayDuration("RETRY_BASE", service.DefaultRetryBase),
		RetryCap:           bf.MayDuration("RETRY_CAP", service.DefaultRetryCap),
		DayTimeout:         bf.MayDuration("DAY_TIMEOUT", 0),
		FetchTimeout:       bf.MayDuration("FETCH_TIMEOUT", 5*time.Minute),
		WriteTimeout:       bf.MayDuration("WRITE_TIMEOUT", 2*time.Minute),
		DBTimeout:          bf.MayDuration("DB_TIMEOUT", 10*time.Second),
		AbortOnFailure:     bf.MayBool("ABORT_ON_FAILURE", false),
		Ledger:             bf.MayBool("LEDGER", true),
		StatementTimeoutMs: bf.MayInt("STATEMENT_TIMEOUT_MS", 5000),
	}
}

// Validate reports the first invalid option by its env name
func (o Options) Validate() error { return validate.Struct(o) }

// ServiceConfig maps the options onto service.Config
func (o Options) ServiceConfig() service.Config {
	return service.Config{
		IndexTemplate:  o.IndexTemplate,
		RecordType:     o.RecordType,
		KeyField:       o.KeyField,
		BatchThreshold: o.BatchThreshold,
		Retry: service.RetryPolicy{
			MaxAttempts: o.Retries,
			Base:        o.RetryBase,
			Cap:         o.RetryCap,
		},
		Timeouts: guardrails.Timeouts{
			Day:   o.DayTimeout,
			Fetch: o.FetchTimeout,
			Write: o.WriteTimeout,
			DB:    o.DBTimeout,
		},
		AbortOnDayFailure: o.AbortOnFailure,
	}
}

func today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
