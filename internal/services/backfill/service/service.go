// Package service provides the backfill service implementation
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dayfill/internal/core/batcher"
	"dayfill/internal/core/window"
	"dayfill/internal/modkit/repokit"
	perr "dayfill/internal/platform/errors"
	"dayfill/internal/platform/logger"
	"dayfill/internal/services/backfill/domain"
	"dayfill/internal/services/backfill/guardrails"

	"github.com/google/uuid"
)

// Config holds configuration options for the backfill service
type Config struct {
	// IndexTemplate names the partition of a day; blank writes to the default partition
	IndexTemplate string

	// RecordType is the document type handed to the index
	RecordType string

	// KeyField is the record field used as document id
	KeyField string

	// BatchThreshold releases a batch once more than this many records are pending
	BatchThreshold int

	Retry    RetryPolicy
	Timeouts guardrails.Timeouts

	// AbortOnDayFailure stops the run at the first failed day instead of moving on
	AbortOnDayFailure bool
}

// Service implements domain.RunnerPort
type Service struct {
	Source domain.RecordSource
	Decode domain.Decoder
	Norm   domain.Normalizer
	Index  domain.IndexWriter
	Cfg    Config

	// optional day ledger; both nil disables it
	DB     repokit.TxRunner
	Ledger repokit.Binder[domain.LedgerRepo]

	newRunID func() uuid.UUID
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

var _ domain.RunnerPort = (*Service)(nil)

// Option configures a Service
type Option func(*Service)

// WithLedger records every day in the ledger bound from db
func WithLedger(db repokit.TxRunner, b repokit.Binder[domain.LedgerRepo]) Option {
	return func(s *Service) {
		if db != nil && b != nil {
			s.DB, s.Ledger = db, b
		}
	}
}

// WithClock replaces time.Now for timings
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleep replaces the ctx-aware sleep used between fetch attempts
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithRunIDs replaces the run id generator
func WithRunIDs(gen func() uuid.UUID) Option {
	return func(s *Service) {
		if gen != nil {
			s.newRunID = gen
		}
	}
}

// New constructs the backfill service
func New(
	src domain.RecordSource,
	dec domain.Decoder,
	norm domain.Normalizer,
	idx domain.IndexWriter,
	cfg Config,
	opts ...Option,
) *Service {
	if src == nil {
		panic("backfill.Service requires a non nil RecordSource")
	}
	if dec == nil {
		panic("backfill.Service requires a non nil Decoder")
	}
	if norm == nil {
		panic("backfill.Service requires a non nil Normalizer")
	}
	if idx == nil {
		panic("backfill.Service requires a non nil IndexWriter")
	}
	s := &Service{
		Source: src, Decode: dec, Norm: norm, Index: idx,
		Cfg:      cfg,
		newRunID: uuid.New,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Plan lists the days RunWindow would process, newest first
func (s *Service) Plan(end time.Time, duration int) []domain.PlannedDay {
	return PlanDays(end, duration, s.Cfg.IndexTemplate)
}

// PlanDays resolves the day keys and partition names of a window without any collaborator
func PlanDays(end time.Time, duration int, template string) []domain.PlannedDay {
	days := window.Days(end, duration)
	out := make([]domain.PlannedDay, 0, len(days))
	for _, d := range days {
		name, ok := window.PartitionName(d, template)
		out = append(out, domain.PlannedDay{Day: d, Key: window.DayKey(d), Partition: name, HasIndex: ok})
	}
	return out
}

// RunWindow backfills the duration days ending at end, newest first.
// Failed days are collected and joined under ErrDaysFailed; cancellation returns ctx.Err()
func (s *Service) RunWindow(ctx context.Context, end time.Time, duration int) (domain.Summary, error) {
	runID := s.newRunID()
	ctx = logger.WithRun(ctx, runID.String())
	log := logger.C(ctx)

	sum := domain.Summary{RunID: runID, End: window.Day(end), Duration: duration}
	started := s.now()
	var failures []error

	finish := func(err error) (domain.Summary, error) {
		sum.Elapsed = s.now().Sub(started)
		ev := log.Info()
		if err != nil {
			ev = log.Error().Err(err)
		}
		ev.Int("days_ok", sum.DaysOK).
			Strs("days_failed", sum.Failed).
			Int("fetched", sum.Fetched).
			Int("discarded", sum.Discarded).
			Int("indexed", sum.Indexed).
			Dur("elapsed", sum.Elapsed).
			Msg("backfill finished")
		return sum, err
	}

	for _, day := range window.Days(end, duration) {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		st, err := s.runDay(ctx, runID, day)
		sum.Add(st)
		if err == nil {
			sum.DaysOK++
			continue
		}
		if cerr := ctx.Err(); cerr != nil {
			return finish(cerr)
		}

		sum.Failed = append(sum.Failed, window.DayKey(day))
		failures = append(failures, err)
		if s.Cfg.AbortOnDayFailure {
			break
		}
	}

	if len(failures) > 0 {
		return finish(fmt.Errorf("%w: %w", ErrDaysFailed, errors.Join(failures...)))
	}
	return finish(nil)
}

// runDay processes one day. Errors other than cancellation come back as *DayError
func (s *Service) runDay(ctx context.Context, runID uuid.UUID, day time.Time) (st domain.DayStats, retErr error) {
	key := window.DayKey(day)
	partition, hasIndex := window.PartitionName(day, s.Cfg.IndexTemplate)
	ctx = logger.WithPartition(logger.WithDay(ctx, key), partition)
	log := logger.C(ctx)
	log.Info().Msgf("backfilling records for %s", key)

	tos := s.Cfg.Timeouts

	dayCtx, cancel := guardrails.WithDay(ctx, tos)
	defer cancel()

	// writes run to completion even when the run is cancelled mid-day
	writeBase := context.WithoutCancel(dayCtx)

	startWall := s.now()
	var fetchDur, writeDur time.Duration

	s.ledgerStart(ctx, runID, day, partition)
	defer func() {
		fin := domain.DayFinish{
			Status:    domain.StatusOK,
			DayStats:  st,
			FetchMS:   int(fetchDur.Milliseconds()),
			WriteMS:   int(writeDur.Milliseconds()),
			ElapsedMS: int(s.now().Sub(startWall).Milliseconds()),
		}
		switch {
		case retErr == nil:
		case ctx.Err() != nil:
			fin.Status, fin.ErrText = domain.StatusCancelled, retErr.Error()
		default:
			fin.Status, fin.ErrText = domain.StatusError, retErr.Error()
		}
		s.ledgerFinish(ctx, runID, day, fin)

		ev := log.Info()
		if retErr != nil {
			ev = log.Error().Err(retErr).Stringer("code", perr.CodeOf(retErr))
		}
		ev.Int("fetched", st.Fetched).
			Int("discarded", st.Discarded).
			Int("indexed", st.Indexed).
			Int("batches", st.Batches).
			Int("elapsed_ms", fin.ElapsedMS).
			Msg("day " + fin.Status)
	}()

	if hasIndex {
		wctx, wcancel := guardrails.ForWrite(writeBase, tos)
		err := s.Index.CreatePartition(wctx, partition)
		wcancel()
		if err != nil {
			return st, &DayError{Day: day, Stage: domain.StagePartition, Err: err}
		}
	}

	t0 := s.now()
	payloads, attempts, err := s.fetchWithRetry(dayCtx, key)
	fetchDur = s.now().Sub(t0)
	st.Attempts = attempts
	if err != nil {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		return st, &DayError{Day: day, Stage: domain.StageFetch, Err: err}
	}
	st.Fetched = len(payloads)

	submit := func(batch []domain.Record) error {
		wctx, wcancel := guardrails.ForWrite(writeBase, tos)
		defer wcancel()
		t := s.now()
		err := s.Index.BulkWrite(wctx, partition, s.Cfg.RecordType, batch, s.Cfg.KeyField)
		writeDur += s.now().Sub(t)
		if err != nil {
			return &DayError{Day: day, Stage: domain.StageWrite, Err: err}
		}
		st.Indexed += len(batch)
		st.Batches++
		return nil
	}

	b := batcher.New[domain.Record](s.Cfg.BatchThreshold)
	for i, raw := range payloads {
		if err := ctx.Err(); err != nil {
			if n := b.Len(); n > 0 {
				log.Warn().Int("pending", n).Msg("dropping unsent records on cancel")
			}
			return st, err
		}
		rec, err := s.Decode.Decode(raw)
		if err != nil {
			st.Discarded++
			log.Warn().Err(err).Int("index", i).Msg("discarding undecodable record")
			continue
		}
		s.Norm.Record(rec)
		if batch, ok := b.Offer(rec); ok {
			if err := submit(batch); err != nil {
				return st, err
			}
		}
	}
	if batch, ok := b.Flush(); ok {
		if err := submit(batch); err != nil {
			return st, err
		}
	}
	return st, nil
}

// fetchWithRetry returns the payloads of key and the number of attempts made
func (s *Service) fetchWithRetry(ctx context.Context, key string) ([][]byte, int, error) {
	p := s.Cfg.Retry.withDefaults()
	log := logger.C(ctx)

	var last error
	for i := range p.MaxAttempts {
		fctx, cancel := guardrails.ForFetch(ctx, s.Cfg.Timeouts)
		out, err := s.Source.FetchDay(fctx, key)
		attemptTimedOut := errors.Is(fctx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return out, i + 1, nil
		}
		last = err

		if ctx.Err() != nil {
			return nil, i + 1, ctx.Err()
		}
		// an attempt that ran out its own fetch budget is transient
		if !attemptTimedOut && !p.ShouldRetry(err) {
			return nil, i + 1, err
		}
		if i == p.MaxAttempts-1 {
			break
		}

		d := p.Backoff(i)
		log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", p.MaxAttempts).Dur("backoff", d).Msg("fetch failed; retrying")
		if se := s.sleep(ctx, d); se != nil {
			return nil, i + 1, se
		}
	}
	return nil, p.MaxAttempts, fmt.Errorf("fetch %s: %d attempts: %w", key, p.MaxAttempts, last)
}

// ledgerStart is best effort; a ledger outage never fails a day
func (s *Service) ledgerStart(ctx context.Context, runID uuid.UUID, day time.Time, partition string) {
	if s.DB == nil {
		return
	}
	dbCtx, cancel := guardrails.ForDB(context.WithoutCancel(ctx), s.Cfg.Timeouts)
	defer cancel()
	err := repokit.InTx(dbCtx, s.DB, s.Ledger, func(r domain.LedgerRepo) error {
		return r.StartDay(dbCtx, runID, day, partition)
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("ledger start day failed")
	}
}

func (s *Service) ledgerFinish(ctx context.Context, runID uuid.UUID, day time.Time, fin domain.DayFinish) {
	if s.DB == nil {
		return
	}
	dbCtx, cancel := guardrails.ForDB(context.WithoutCancel(ctx), s.Cfg.Timeouts)
	defer cancel()
	err := repokit.InTx(dbCtx, s.DB, s.Ledger, func(r domain.LedgerRepo) error {
		return r.FinishDay(dbCtx, runID, day, fin)
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("status", fin.Status).Msg("ledger finish day failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
