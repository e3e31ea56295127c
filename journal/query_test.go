package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/framehub/types"
)

func seedDataset(t *testing.T) lode.Dataset {
	t.Helper()
	factory := sharedFactory(lode.NewMemory())
	w := newWriter(t, factory, newBus(), WriterConfig{})

	at := func(min int) time.Time { return fixedNow.Add(time.Duration(min) * time.Minute) }
	batches := [][]Record{
		{
			NewRecord("sess-1", 1, nil, types.Envelope{EventName: types.EventCSPlayerFilterChanged, Sender: "dashboard", Timestamp: at(0)}),
			NewRecord("sess-1", 2, nil, types.Envelope{EventName: types.EventAirflowDagTriggered, Sender: "airflow", Timestamp: at(1)}),
		},
		{
			NewRecord("sess-1", 3, nil, types.Envelope{EventName: types.EventCSPlayerTaskExecuted, Sender: "csPlayer", Timestamp: at(2)}),
			NewRecord("sess-10", 1, nil, types.Envelope{EventName: types.EventCSPlayerTaskExecuted, Sender: "csPlayer", Timestamp: at(3)}),
		},
	}
	for _, batch := range batches {
		if err := w.write(t.Context(), batch); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	return w.Dataset()
}

func TestQuery_Filters(t *testing.T) {
	ds := seedDataset(t)

	tests := []struct {
		name    string
		filter  Filter
		wantSeq []int64
	}{
		{"all", Filter{}, []int64{1, 2, 3, 1}},
		{"session exact segment", Filter{Session: "sess-1"}, []int64{1, 2, 3}},
		{"service", Filter{Service: "csPlayer"}, []int64{1, 3, 1}},
		{"event name", Filter{EventName: "airflow:dagTriggered"}, []int64{2}},
		{"since", Filter{Since: fixedNow.Add(2 * time.Minute)}, []int64{3, 1}},
		{"limit keeps newest", Filter{Session: "sess-1", Limit: 2}, []int64{2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Query(t.Context(), ds, tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(records) != len(tt.wantSeq) {
				t.Fatalf("got %d records, want %d", len(records), len(tt.wantSeq))
			}
			for i, r := range records {
				if r.Seq != tt.wantSeq[i] {
					t.Errorf("records[%d].Seq = %d, want %d", i, r.Seq, tt.wantSeq[i])
				}
			}
		})
	}
}

func TestQuery_NoMatch(t *testing.T) {
	ds := seedDataset(t)

	_, err := Query(t.Context(), ds, Filter{Service: "grafana"})
	if !errors.Is(err, ErrNoRecords) {
		t.Errorf("err = %v, want ErrNoRecords", err)
	}
}

func TestQuery_EmptyDataset(t *testing.T) {
	ds, err := NewDataset("framehub", sharedFactory(lode.NewMemory()))
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	if _, err := Query(t.Context(), ds, Filter{}); !errors.Is(err, ErrNoRecords) {
		t.Errorf("err = %v, want ErrNoRecords", err)
	}
}

func TestMatchesPartitionValue(t *testing.T) {
	path := "datasets/framehub/partitions/session=sess-10/day=2026-03-14/service=csPlayer/part.jsonl"
	if matchesPartitionValue(path, "session", "sess-1") {
		t.Error("sess-1 matched sess-10")
	}
	if !matchesPartitionValue(path, "session", "sess-10") {
		t.Error("sess-10 did not match")
	}
}

func TestQuery_SanitizedServiceFilter(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	w := newWriter(t, factory, newBus(), WriterConfig{})
	batch := []Record{
		NewRecord("sess-1", 1, nil, types.Envelope{EventName: "a/b:x", Sender: "a", Timestamp: fixedNow}),
		NewRecord("sess-1", 2, nil, types.Envelope{EventName: "bare", Sender: "b", Timestamp: fixedNow}),
	}
	if err := w.write(t.Context(), batch); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	records, err := Query(t.Context(), w.Dataset(), Filter{Service: "a/b"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 1 || records[0].Seq != 1 || records[0].Service != "a_b" {
		t.Errorf("records = %+v, want seq 1 under service a_b", records)
	}

	spaced := NewRecord("sess 2", 3, nil, types.Envelope{EventName: types.EventFrameReady, Sender: "c", Timestamp: fixedNow})
	if err := w.write(t.Context(), []Record{spaced}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	records, err = Query(t.Context(), w.Dataset(), Filter{Session: "sess 2"})
	if err != nil {
		t.Fatalf("Query escaped session failed: %v", err)
	}
	if len(records) != 1 || records[0].Seq != 3 {
		t.Errorf("records = %+v, want seq 3", records)
	}

	records, err = Query(t.Context(), w.Dataset(), Filter{Service: unknownService})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 1 || records[0].EventName != "bare" {
		t.Errorf("records = %+v, want the bare event", records)
	}
}
