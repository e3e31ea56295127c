package journal

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/framehub/bus"
	"github.com/pithecene-io/framehub/log"
	"github.com/pithecene-io/framehub/metrics"
	"github.com/pithecene-io/framehub/types"
)

// sharedFactory returns a StoreFactory that always returns the given store,
// so write and read datasets share the same in-memory state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

// FailingStore is a lode.Store that returns configurable errors.
type FailingStore struct {
	PutErr   error
	PutCalls int
}

func (s *FailingStore) Put(_ context.Context, _ string, _ io.Reader) error {
	s.PutCalls++
	return s.PutErr
}

func (s *FailingStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not found")
}

func (s *FailingStore) Exists(_ context.Context, _ string) (bool, error) { return false, nil }

func (s *FailingStore) List(_ context.Context, _ string) ([]string, error) { return nil, nil }

func (s *FailingStore) Delete(_ context.Context, _ string) error { return nil }

func (s *FailingStore) ReadRange(_ context.Context, _ string, _, _ int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) ReaderAt(_ context.Context, _ string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*FailingStore)(nil)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newBus() *bus.Bus {
	return bus.New(log.NewNop(), bus.WithClock(func() time.Time { return fixedNow }))
}

// newWriter builds a writer whose ticker never fires during a test,
// so flushes happen only on batch size or Close.
func newWriter(t *testing.T, factory lode.StoreFactory, b *bus.Bus, cfg WriterConfig) *Writer {
	t.Helper()
	if cfg.SessionID == "" {
		cfg.SessionID = "sess-1"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Hour
	}
	w, err := NewWriter(factory, b, cfg)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	return w
}

func TestWriter_FlushOnClose(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	b := newBus()
	collector := metrics.NewCollector("sess-1")

	w := newWriter(t, factory, b, WriterConfig{Collector: collector})
	w.Start(t.Context())

	b.Publish(types.EventCSPlayerFilterChanged, map[string]any{"csxuName": "unit-7"}, "csPlayer")
	b.Publish(types.EventGrafanaUpdateTimeRange, map[string]any{"from": "now-1h", "to": "now"}, "")
	b.Publish(types.EventFrameReady, map[string]any{"service": "airflow"}, "airflow")

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ds, err := NewDataset("", factory)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	records, err := Query(t.Context(), ds, Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	first := records[0]
	if first.Session != "sess-1" {
		t.Errorf("Session = %q, want sess-1", first.Session)
	}
	if first.Day != "2026-03-14" {
		t.Errorf("Day = %q, want 2026-03-14", first.Day)
	}
	if first.Service != "csPlayer" || first.EventName != "csPlayer:filterChanged" {
		t.Errorf("first record = %s/%s", first.Service, first.EventName)
	}
	if first.Category != string(types.CategoryCommand) {
		t.Errorf("Category = %q, want %q", first.Category, types.CategoryCommand)
	}
	if first.Sender != "csPlayer" {
		t.Errorf("Sender = %q, want csPlayer", first.Sender)
	}
	data, ok := first.Data.(map[string]any)
	if !ok || data["csxuName"] != "unit-7" {
		t.Errorf("Data = %#v", first.Data)
	}
	if !first.Time().Equal(fixedNow) {
		t.Errorf("Time() = %v, want %v", first.Time(), fixedNow)
	}

	for i, r := range records {
		if r.Seq != int64(i+1) {
			t.Errorf("records[%d].Seq = %d, want %d", i, r.Seq, i+1)
		}
	}
	if records[1].Sender != types.SenderDashboard {
		t.Errorf("default sender = %q, want %q", records[1].Sender, types.SenderDashboard)
	}

	if got := collector.Snapshot().JournalWriteSuccess; got != 1 {
		t.Errorf("JournalWriteSuccess = %d, want 1", got)
	}
}

func TestWriter_FlushOnBatchSize(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)
	b := newBus()
	collector := metrics.NewCollector("sess-1")

	w := newWriter(t, factory, b, WriterConfig{BatchSize: 2, Collector: collector})
	w.Start(t.Context())

	for range 4 {
		b.Publish(types.EventAirflowDagTriggered, map[string]any{"dagId": "etl"}, "airflow")
	}
	_ = w.Close()

	snaps, err := w.Dataset().Snapshots(t.Context())
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(snaps) != 2 {
		t.Errorf("got %d snapshots, want 2", len(snaps))
	}
	if got := collector.Snapshot().JournalWriteSuccess; got != 2 {
		t.Errorf("JournalWriteSuccess = %d, want 2", got)
	}
}

func TestWriter_EventsFilter(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	b := newBus()

	w := newWriter(t, factory, b, WriterConfig{
		Events: []types.EventName{types.EventCSPlayerPackageChanged},
	})
	w.Start(t.Context())

	b.Publish(types.EventCSPlayerFilterChanged, map[string]any{"csxuName": "u"}, "csPlayer")
	b.Publish(types.EventCSPlayerPackageChanged, map[string]any{"packageName": "p"}, "csPlayer")
	_ = w.Close()

	records, err := Query(t.Context(), w.Dataset(), Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 1 || records[0].EventName != string(types.EventCSPlayerPackageChanged) {
		t.Errorf("records = %+v, want only packageChanged", records)
	}
}

func TestWriter_StopsArchivingAfterClose(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	b := newBus()

	w := newWriter(t, factory, b, WriterConfig{})
	w.Start(t.Context())
	_ = w.Close()
	_ = w.Close()

	b.Publish(types.EventCSPlayerRefreshTasks, nil, "")

	if subs := b.Subscribers(types.EventCSPlayerRefreshTasks); len(subs) != 0 {
		t.Errorf("subscribers after Close = %v, want none", subs)
	}
	if _, err := Query(t.Context(), w.Dataset(), Filter{}); !errors.Is(err, ErrNoRecords) {
		t.Errorf("Query err = %v, want ErrNoRecords", err)
	}
}

func TestWriter_ContextCancelFlushes(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	b := newBus()

	ctx, cancel := context.WithCancel(t.Context())
	w := newWriter(t, factory, b, WriterConfig{})
	w.Start(ctx)

	b.Publish(types.EventGrafanaPanelDataLoaded, map[string]any{"panelId": 3}, "grafana")
	b.Publish(types.EventGrafanaPanelDataLoaded, map[string]any{"panelId": 4}, "grafana")
	cancel()
	_ = w.Close()

	records, err := Query(t.Context(), w.Dataset(), Filter{Service: "grafana"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}

func TestWriter_QueueFullDrops(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	b := newBus()
	collector := metrics.NewCollector("sess-1")

	// Not started: nothing drains the queue.
	w := newWriter(t, factory, b, WriterConfig{QueueSize: 1, Collector: collector})
	for _, name := range w.config.Events {
		w.unsubs = append(w.unsubs, b.Subscribe(name, w.enqueue, "journal"))
	}

	for range 3 {
		b.Publish(types.EventAirflowPauseDag, map[string]any{"dagId": "etl"}, "")
	}
	_ = w.Close()

	if got := collector.Snapshot().JournalDropped; got != 2 {
		t.Errorf("JournalDropped = %d, want 2", got)
	}
}

func TestWriter_WriteFailure(t *testing.T) {
	store := &FailingStore{
		PutErr: errors.New("write /data/framehub/part.jsonl: no space left on device"),
	}
	b := newBus()
	collector := metrics.NewCollector("sess-1")

	w := newWriter(t, sharedFactory(store), b, WriterConfig{Collector: collector})

	err := w.write(t.Context(), []Record{NewRecord("sess-1", 1, nil, types.Envelope{
		EventName: types.EventFrameError,
		Sender:    "grafana",
		Timestamp: fixedNow,
	})})
	if err == nil {
		t.Fatal("expected write error, got nil")
	}

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected *StorageError, got %T", err)
	}
	if !errors.Is(err, ErrDiskFull) {
		t.Errorf("expected ErrDiskFull, got kind %v", storageErr.Kind)
	}
	if storageErr.Op != "write" {
		t.Errorf("Op = %q, want write", storageErr.Op)
	}
	if store.PutCalls == 0 {
		t.Error("expected at least one Put call")
	}

	s := collector.Snapshot()
	if s.JournalWriteFailure != 1 || s.JournalWriteSuccess != 0 {
		t.Errorf("failure/success = %d/%d, want 1/0", s.JournalWriteFailure, s.JournalWriteSuccess)
	}
}

func TestNewWriter_FactoryFailure(t *testing.T) {
	factory := func() (lode.Store, error) {
		return nil, errors.New("mkdir /journal: permission denied")
	}

	_, err := NewWriter(factory, newBus(), WriterConfig{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected *StorageError, got %T: %v", err, err)
	}
	if storageErr.Op != "init" {
		t.Errorf("Op = %q, want init", storageErr.Op)
	}
}

func TestNewRecord_UnknownService(t *testing.T) {
	r := NewRecord("s", 9, nil, types.Envelope{EventName: "bare", Timestamp: fixedNow})
	if r.Service != unknownService {
		t.Errorf("Service = %q, want %q", r.Service, unknownService)
	}
	if r := NewRecord("s", 1, nil, types.Envelope{EventName: ":verb", Timestamp: fixedNow}); r.Service != unknownService {
		t.Errorf("empty prefix: Service = %q, want %q", r.Service, unknownService)
	}
	if r.Category != "" {
		t.Errorf("Category = %q, want empty", r.Category)
	}
	if _, ok := r.toMap()["data"]; ok {
		t.Error("nil data should be omitted from the record map")
	}
}

func envelopeAt(name types.EventName) types.Envelope {
	return types.Envelope{EventName: name, Sender: types.SenderDashboard, Timestamp: fixedNow}
}

func TestNewRecord_PartitionValuesAreSanitized(t *testing.T) {
	tests := []struct {
		name        string
		session     string
		event       types.EventName
		wantSession string
		wantService string
	}{
		{"plain", "sess-1", types.EventCSPlayerTaskExecuted, "sess-1", "csPlayer"},
		{"slash in service", "sess-1", "../evil:x", "sess-1", ".._evil"},
		{"forged segment", "sess-1", "a/day=2020-01-01:x", "sess-1", "a_day_2020-01-01"},
		{"session separators", `s/1\2=3`, types.EventFrameReady, "s_1_2_3", "system"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecord(tt.session, 1, nil, types.Envelope{EventName: tt.event, Timestamp: fixedNow})
			if r.Session != tt.wantSession || r.Service != tt.wantService {
				t.Errorf("Session, Service = %q, %q; want %q, %q", r.Session, r.Service, tt.wantSession, tt.wantService)
			}
		})
	}
}
