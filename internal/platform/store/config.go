package store

import "time"

// Config aggregates per backend configuration; a disabled backend stays nil on the Store
type Config struct {
	PG     PGConfig
	CH     CHConfig
	Search SearchConfig
}

// PGConfig configures the postgres pool behind the day ledger
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// AppName is reported to the server as application_name
	AppName string

	// Ready is applied at Open; zero Attempts means 20
	Ready ReadyPolicy
}

// CHConfig configures the clickhouse connection the records are read from
type CHConfig struct {
	Enabled     bool
	URL         string
	DialTimeout time.Duration
	ClientName  string
	ClientTag   string

	// Ready is applied at Open only when Attempts > 0; the driver dials lazily otherwise
	Ready ReadyPolicy
}

// SearchConfig configures the on-disk search index
type SearchConfig struct {
	Enabled bool

	// Dir holds one index directory per partition
	Dir string

	// KeyField is mapped as an exact-match keyword field in new partitions
	KeyField string
}

// ReadyPolicy bounds how long Open waits for a backend to answer a ping
type ReadyPolicy struct {
	Attempts     int
	PingTimeout  time.Duration
	BackoffStart time.Duration
	BackoffCap   time.Duration
}

func (p ReadyPolicy) withDefaults(attempts int) ReadyPolicy {
	if p.Attempts <= 0 {
		p.Attempts = attempts
	}
	if p.PingTimeout <= 0 {
		p.PingTimeout = 3 * time.Second
	}
	if p.BackoffStart <= 0 {
		p.BackoffStart = 150 * time.Millisecond
	}
	if p.BackoffCap < p.BackoffStart {
		p.BackoffCap = max(2*time.Second, p.BackoffStart)
	}
	return p
}
