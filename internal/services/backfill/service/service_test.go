package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dayfill/internal/core/normalize"
	"dayfill/internal/modkit/repokit"
	perr "dayfill/internal/platform/errors"
	kit "dayfill/internal/platform/testkit"
	"dayfill/internal/services/backfill/domain"
	"dayfill/internal/services/backfill/guardrails"
	"dayfill/internal/services/backfill/ingest"

	"github.com/google/uuid"
)

// fakes

type fakeSource struct {
	mu    sync.Mutex
	days  map[string][][]byte
	fail  map[string]error
	calls map[string]int

	// hang holds the listed days until the attempt ctx is done
	hang map[string]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{days: map[string][][]byte{}, fail: map[string]error{}, calls: map[string]int{}, hang: map[string]bool{}}
}

func (f *fakeSource) FetchDay(ctx context.Context, key string) ([][]byte, error) {
	f.mu.Lock()
	f.calls[key]++
	hang := f.hang[key]
	err := f.fail[key]
	out := f.days[key]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, perr.Wrap(ctx.Err(), perr.ErrorCodeDB, "clickhouse fetch day")
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

type write struct {
	partition  string
	recordType string
	keyField   string
	ids        []string
}

type fakeIndex struct {
	creates   []string
	writes    []write
	createErr error
	writeErr  error
	onWrite   func(ctx context.Context)
}

func (f *fakeIndex) CreatePartition(_ context.Context, name string) error {
	f.creates = append(f.creates, name)
	return f.createErr
}

func (f *fakeIndex) BulkWrite(ctx context.Context, partition, recordType string, recs []domain.Record, keyField string) error {
	if f.onWrite != nil {
		f.onWrite(ctx)
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	w := write{partition: partition, recordType: recordType, keyField: keyField}
	for _, r := range recs {
		w.ids = append(w.ids, fmt.Sprint(r[keyField]))
	}
	f.writes = append(f.writes, w)
	return nil
}

func (f *fakeIndex) sizes() []int {
	out := make([]int, 0, len(f.writes))
	for _, w := range f.writes {
		out = append(out, len(w.ids))
	}
	return out
}

type ledgerCall struct {
	day    time.Time
	status string
	fin    domain.DayFinish
}

type fakeLedger struct {
	starts   []ledgerCall
	finishes []ledgerCall
	startErr error
}

func (l *fakeLedger) StartDay(_ context.Context, _ uuid.UUID, day time.Time, _ string) error {
	l.starts = append(l.starts, ledgerCall{day: day, status: domain.StatusRunning})
	return l.startErr
}

func (l *fakeLedger) FinishDay(_ context.Context, _ uuid.UUID, day time.Time, fin domain.DayFinish) error {
	l.finishes = append(l.finishes, ledgerCall{day: day, status: fin.Status, fin: fin})
	return nil
}

func (l *fakeLedger) Days(context.Context, uuid.UUID) ([]domain.DayEntry, error) { return nil, nil }

type fakeDB struct {
	repokit.TxRunner
	txs int
}

func (d *fakeDB) Tx(_ context.Context, fn func(repokit.Queryer) error) error {
	d.txs++
	return fn(d)
}

type harness struct {
	src    *fakeSource
	idx    *fakeIndex
	ledger *fakeLedger
	db     *fakeDB
	sleeps []time.Duration
}

func newHarness(t *testing.T, cfg Config) (*harness, *Service) {
	t.Helper()
	h := &harness{src: newFakeSource(), idx: &fakeIndex{}, ledger: &fakeLedger{}, db: &fakeDB{}}
	if cfg.KeyField == "" {
		cfg.KeyField = "uuid"
	}
	if cfg.RecordType == "" {
		cfg.RecordType = "record"
	}
	runID := uuid.MustParse("00000000-0000-0000-0000-000000000042")
	svc := New(h.src, ingest.NewJSONDecoder(cfg.KeyField), normalize.New(cfg.KeyField), h.idx, cfg,
		WithLedger(h.db, repokit.BindFunc[domain.LedgerRepo](func(repokit.Queryer) domain.LedgerRepo { return h.ledger })),
		WithSleep(func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
		WithRunIDs(func() uuid.UUID { return runID }),
	)
	return h, svc
}

func rec(id string) []byte {
	return []byte(`{"uuid":"` + id + `","created":"2024-03-10 12:00:00","n":1}`)
}

var march10 = time.Date(2024, 3, 10, 17, 45, 0, 0, time.UTC)

// tests

func TestNew_PanicsOnMissingCollaborators(t *testing.T) {
	src, idx := newFakeSource(), &fakeIndex{}
	dec, norm := ingest.NewJSONDecoder("uuid"), normalize.New()
	kit.MustPanic(t, func() { New(nil, dec, norm, idx, Config{}) })
	kit.MustPanic(t, func() { New(src, nil, norm, idx, Config{}) })
	kit.MustPanic(t, func() { New(src, dec, nil, idx, Config{}) })
	kit.MustPanic(t, func() { New(src, dec, norm, nil, Config{}) })
	kit.MustNotPanic(t, func() { New(src, dec, norm, idx, Config{}) })
}

func TestRunWindow_EndToEnd(t *testing.T) {
	h, svc := newHarness(t, Config{IndexTemplate: "records_%Y%m%d", BatchThreshold: 1})
	h.src.days["240310"] = [][]byte{rec("a"), rec("b"), rec("c")}

	sum, err := svc.RunWindow(context.Background(), march10, 2)
	if err != nil {
		t.Fatalf("RunWindow: %v", err)
	}

	kit.MustEqual(t, h.idx.creates, []string{"records_20240310", "records_20240309"})
	kit.MustEqual(t, h.idx.sizes(), []int{2, 1})
	for _, w := range h.idx.writes {
		if w.partition != "records_20240310" || w.recordType != "record" || w.keyField != "uuid" {
			t.Fatalf("unexpected write target %+v", w)
		}
	}
	kit.MustEqual(t, h.idx.writes[0].ids, []string{"a", "b"})
	kit.MustEqual(t, h.src.calls, map[string]int{"240310": 1, "240309": 1})

	if sum.DaysOK != 2 || len(sum.Failed) != 0 || sum.DaysRun() != 2 {
		t.Fatalf("summary days = %+v", sum)
	}
	if sum.Fetched != 3 || sum.Indexed != 3 || sum.Batches != 2 || sum.Discarded != 0 {
		t.Fatalf("summary counters = %+v", sum.DayStats)
	}
	if !sum.End.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) || sum.Duration != 2 {
		t.Fatalf("summary window = %v/%d", sum.End, sum.Duration)
	}

	if len(h.ledger.starts) != 2 || len(h.ledger.finishes) != 2 {
		t.Fatalf("ledger calls = %d/%d", len(h.ledger.starts), len(h.ledger.finishes))
	}
	if f := h.ledger.finishes[0]; f.status != domain.StatusOK || f.fin.Indexed != 3 || f.fin.Attempts != 1 {
		t.Fatalf("first finish = %+v", f)
	}
}

func TestRunWindow_NormalizesDates(t *testing.T) {
	h, svc := newHarness(t, Config{BatchThreshold: 10})
	h.src.days["240310"] = [][]byte{rec("a")}

	var got domain.Record
	idx := &capturingIndex{fakeIndex: h.idx, last: &got}
	svc.Index = idx

	if _, err := svc.RunWindow(context.Background(), march10, 1); err != nil {
		t.Fatalf("RunWindow: %v", err)
	}
	if got["created"] != "2024-03-10T12:00:00+00:00" {
		t.Fatalf("created = %v", got["created"])
	}
	if got["uuid"] != "a" {
		t.Fatalf("key field rewritten: %v", got["uuid"])
	}
}

type capturingIndex struct {
	*fakeIndex
	last *domain.Record
}

func (c *capturingIndex) BulkWrite(ctx context.Context, partition, recordType string, recs []domain.Record, keyField string) error {
	if len(recs) > 0 {
		*c.last = recs[len(recs)-1]
	}
	return c.fakeIndex.BulkWrite(ctx, partition, recordType, recs, keyField)
}

func TestRunWindow_NoTemplateWritesDefaultPartition(t *testing.T) {
	h, svc := newHarness(t, Config{BatchThreshold: 50})
	h.src.days["240310"] = [][]byte{rec("a"), rec("b")}

	if _, err := svc.RunWindow(context.Background(), march10, 1); err != nil {
		t.Fatalf("RunWindow: %v", err)
	}
	if len(h.idx.creates) != 0 {
		t.Fatalf("no partition should be created, got %v", h.idx.creates)
	}
	if len(h.idx.writes) != 1 || h.idx.writes[0].partition != "" {
		t.Fatalf("writes = %+v", h.idx.writes)
	}
}

func TestRunWindow_DiscardsMalformedPayloads(t *testing.T) {
	h, svc := newHarness(t, Config{BatchThreshold: 50})
	h.src.days["240310"] = [][]byte{rec("a"), []byte(`{"uuid":`), []byte(`[1,2]`), rec("b")}

	sum, err := svc.RunWindow(context.Background(), march10, 1)
	if err != nil {
		t.Fatalf("RunWindow: %v", err)
	}
	if sum.Fetched != 4 || sum.Discarded != 2 || sum.Indexed != 2 {
		t.Fatalf("counters = %+v", sum.DayStats)
	}
	kit.MustEqual(t, h.idx.writes[0].ids, []string{"a", "b"})
}

func TestRunWindow_ZeroDurationIsEmpty(t *testing.T) {
	h, svc := newHarness(t, Config{})
	for _, d := range []int{0, -3} {
		sum, err := svc.RunWindow(context.Background(), march10, d)
		if err != nil || sum.DaysRun() != 0 {
			t.Fatalf("duration %d: sum=%+v err=%v", d, sum, err)
		}
	}
	if len(h.src.calls) != 0 {
		t.Fatalf("no fetch expected, got %v", h.src.calls)
	}
}

func TestRunWindow_FetchExhaustedSkipsDay(t *testing.T) {
	h, svc := newHarness(t, Config{BatchThreshold: 50, Retry: RetryPolicy{NoJitter: true}})
	h.src.fail["240310"] = perr.Unavailablef("source down")
	h.src.days["240309"] = [][]byte{rec("x")}

	sum, err := svc.RunWindow(context.Background(), march10, 2)
	if !errors.Is(err, ErrDaysFailed) {
		t.Fatalf("want ErrDaysFailed, got %v", err)
	}
	if h.src.calls["240310"] != DefaultMaxAttempts {
		t.Fatalf("attempts = %d", h.src.calls["240310"])
	}
	if h.src.calls["240309"] != 1 {
		t.Fatalf("next day should still run")
	}
	kit.MustEqual(t, h.sleeps, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second})

	des := DayErrors(err)
	if len(des) != 1 || des[0].Stage != domain.StageFetch || !perr.IsCode(des[0], perr.ErrorCodeUnavailable) {
		t.Fatalf("day errors = %v", des)
	}
	kit.MustContain(t, err.Error(), "day 240310 fetch")

	kit.MustEqual(t, sum.Failed, []string{"240310"})
	if sum.DaysOK != 1 || sum.Indexed != 1 || sum.Attempts != DefaultMaxAttempts+1 {
		t.Fatalf("summary = %+v", sum)
	}
	if f := h.ledger.finishes[0]; f.status != domain.StatusError || f.fin.ErrText == "" {
		t.Fatalf("ledger finish = %+v", f)
	}
}

func TestRunWindow_FetchAttemptTimeoutIsRetried(t *testing.T) {
	h, svc := newHarness(t, Config{
		Retry:    RetryPolicy{MaxAttempts: 5, NoJitter: true},
		Timeouts: guardrails.Timeouts{Fetch: 5 * time.Millisecond},
	})
	h.src.hang["240310"] = true

	sum, err := svc.RunWindow(context.Background(), march10, 1)
	if !errors.Is(err, ErrDaysFailed) {
		t.Fatalf("want ErrDaysFailed, got %v", err)
	}
	if h.src.calls["240310"] != 5 || sum.Attempts != 5 {
		t.Fatalf("calls=%d attempts=%d", h.src.calls["240310"], sum.Attempts)
	}
	if len(h.sleeps) != 4 {
		t.Fatalf("sleeps = %v", h.sleeps)
	}
	des := DayErrors(err)
	if len(des) != 1 || des[0].Stage != domain.StageFetch || !errors.Is(des[0], context.DeadlineExceeded) {
		t.Fatalf("day errors = %v", des)
	}
	kit.MustContain(t, err.Error(), "5 attempts")
}

func TestRunWindow_FetchAttemptTimeoutThenSuccess(t *testing.T) {
	h, svc := newHarness(t, Config{Timeouts: guardrails.Timeouts{Fetch: 5 * time.Millisecond}})
	h.src.hang["240310"] = true
	h.src.days["240310"] = [][]byte{rec("a")}
	svc.sleep = func(context.Context, time.Duration) error {
		h.src.mu.Lock()
		h.src.hang["240310"] = false
		h.src.mu.Unlock()
		return nil
	}

	sum, err := svc.RunWindow(context.Background(), march10, 1)
	if err != nil {
		t.Fatalf("RunWindow: %v", err)
	}
	if sum.Attempts != 2 || sum.Indexed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestRunWindow_AbortOnDayFailure(t *testing.T) {
	h, svc := newHarness(t, Config{AbortOnDayFailure: true})
	h.src.fail["240310"] = perr.Unavailablef("source down")

	sum, err := svc.RunWindow(context.Background(), march10, 2)
	if !errors.Is(err, ErrDaysFailed) {
		t.Fatalf("want ErrDaysFailed, got %v", err)
	}
	if _, ran := h.src.calls["240309"]; ran {
		t.Fatalf("run should stop after the failed day")
	}
	if sum.DaysRun() != 1 || h.src.calls["240310"] != DefaultMaxAttempts {
		t.Fatalf("summary = %+v calls = %v", sum, h.src.calls)
	}
}

func TestRunWindow_NonRetryableStopsEarly(t *testing.T) {
	h, svc := newHarness(t, Config{})
	h.src.fail["240310"] = perr.InvalidArgf("bad day key")

	_, err := svc.RunWindow(context.Background(), march10, 1)
	if !errors.Is(err, ErrDaysFailed) {
		t.Fatalf("want ErrDaysFailed, got %v", err)
	}
	if h.src.calls["240310"] != 1 || len(h.sleeps) != 0 {
		t.Fatalf("calls=%d sleeps=%v", h.src.calls["240310"], h.sleeps)
	}
}

func TestRunWindow_PartitionAndWriteFailures(t *testing.T) {
	t.Run("partition", func(t *testing.T) {
		h, svc := newHarness(t, Config{IndexTemplate: "r_%Y"})
		h.idx.createErr = perr.Indexf("disk full")
		_, err := svc.RunWindow(context.Background(), march10, 1)
		des := DayErrors(err)
		if len(des) != 1 || des[0].Stage != domain.StagePartition {
			t.Fatalf("day errors = %v", des)
		}
		if len(h.src.calls) != 0 {
			t.Fatalf("fetch must not run after partition failure")
		}
	})
	t.Run("write", func(t *testing.T) {
		h, svc := newHarness(t, Config{BatchThreshold: 0})
		h.src.days["240310"] = [][]byte{rec("a"), rec("b")}
		h.idx.writeErr = perr.Indexf("rejected")
		sum, err := svc.RunWindow(context.Background(), march10, 1)
		des := DayErrors(err)
		if len(des) != 1 || des[0].Stage != domain.StageWrite || !perr.IsCode(err, perr.ErrorCodeIndex) {
			t.Fatalf("day errors = %v", des)
		}
		if sum.Indexed != 0 || sum.Fetched != 2 {
			t.Fatalf("counters = %+v", sum.DayStats)
		}
	})
}

func TestRunWindow_CancelledBeforeStart(t *testing.T) {
	h, svc := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RunWindow(ctx, march10, 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if len(h.src.calls) != 0 || len(h.ledger.starts) != 0 {
		t.Fatalf("nothing should run after cancel")
	}
}

func TestRunWindow_CancelledMidDayFinishesInFlightWrite(t *testing.T) {
	h, svc := newHarness(t, Config{BatchThreshold: 0})
	h.src.days["240310"] = [][]byte{rec("a"), rec("b"), rec("c")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var writeCtxErr error
	h.idx.onWrite = func(wctx context.Context) {
		cancel()
		writeCtxErr = wctx.Err()
	}

	sum, err := svc.RunWindow(ctx, march10, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if writeCtxErr != nil {
		t.Fatalf("in-flight write saw cancellation: %v", writeCtxErr)
	}
	kit.MustEqual(t, h.idx.sizes(), []int{1})
	if sum.Indexed != 1 || len(sum.Failed) != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if _, ran := h.src.calls["240309"]; ran {
		t.Fatalf("second day must not start")
	}
	if len(h.ledger.finishes) != 1 || h.ledger.finishes[0].status != domain.StatusCancelled {
		t.Fatalf("ledger finishes = %+v", h.ledger.finishes)
	}
}

func TestRunWindow_LedgerFailureIsNotFatal(t *testing.T) {
	h, svc := newHarness(t, Config{})
	h.ledger.startErr = errors.New("pg down")
	h.src.days["240310"] = [][]byte{rec("a")}

	sum, err := svc.RunWindow(context.Background(), march10, 1)
	if err != nil || sum.Indexed != 1 {
		t.Fatalf("sum=%+v err=%v", sum, err)
	}
	if h.db.txs != 2 {
		t.Fatalf("ledger txs = %d", h.db.txs)
	}
}

func TestRunWindow_WithoutLedger(t *testing.T) {
	src := newFakeSource()
	src.days["240310"] = [][]byte{rec("a")}
	idx := &fakeIndex{}
	svc := New(src, ingest.NewJSONDecoder("uuid"), normalize.New("uuid"), idx, Config{KeyField: "uuid"})
	if svc.DB != nil {
		t.Fatalf("ledger should be disabled")
	}
	if _, err := svc.RunWindow(context.Background(), march10, 1); err != nil {
		t.Fatalf("RunWindow: %v", err)
	}
	kit.MustEqual(t, idx.sizes(), []int{1})
}

func TestPlan(t *testing.T) {
	_, svc := newHarness(t, Config{IndexTemplate: "records_%Y%m%d"})
	got := svc.Plan(march10, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	want := []string{"240310", "240309", "240308"}
	for i, p := range got {
		if p.Key != want[i] || !p.HasIndex || p.Partition != "records_20"+want[i] {
			t.Fatalf("plan[%d] = %+v", i, p)
		}
	}

	svc.Cfg.IndexTemplate = ""
	if p := svc.Plan(march10, 1); len(p) != 1 || p[0].HasIndex || p[0].Partition != "" {
		t.Fatalf("blank template plan = %+v", p)
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), 0); err != nil {
		t.Fatalf("zero sleep: %v", err)
	}
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("short sleep: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled sleep = %v", err)
	}
}
