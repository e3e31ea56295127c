// Package journal archives bus traffic into a Lode dataset.
//
// Records are JSONL, Hive-partitioned by session/day/service, and written in
// batches from a background goroutine so bus delivery never waits on storage.
// The same layout is used by Query on the read path.
package journal

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/framehub/bus"
	"github.com/pithecene-io/framehub/log"
	"github.com/pithecene-io/framehub/metrics"
	"github.com/pithecene-io/framehub/types"
)

// Defaults.
const (
	DefaultDataset       = "framehub"
	DefaultBatchSize     = 64
	DefaultFlushInterval = time.Second
	DefaultQueueSize     = 1024

	finalFlushTimeout = 10 * time.Second
)

// PartitionKeys is the Hive layout of the journal dataset.
var PartitionKeys = []string{"session", "day", "service"}

// unknownService partitions events whose name carries no service prefix.
const unknownService = "unknown"

// Record is one archived bus delivery.
type Record struct {
	Session   string `json:"session"`
	Day       string `json:"day"`
	Service   string `json:"service"`
	EventName string `json:"event_name"`
	Category  string `json:"category,omitempty"`
	Sender    string `json:"sender"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
	Seq       int64  `json:"seq"`
}

// NewRecord builds the record for one delivery.
func NewRecord(session string, seq int64, data any, env types.Envelope) Record {
	ts := env.Timestamp.UTC()
	service := unknownService
	if name := string(env.EventName); strings.Contains(name, types.NamespaceSeparator) {
		if s := env.EventName.Service(); s != "" {
			service = partitionValue(s)
		}
	}
	category, _ := types.CategoryOf(env.EventName)
	return Record{
		Session:   partitionValue(session),
		Day:       ts.Format(time.DateOnly),
		Service:   service,
		EventName: string(env.EventName),
		Category:  string(category),
		Sender:    env.Sender,
		Data:      data,
		Timestamp: ts.Format(time.RFC3339Nano),
		Seq:       seq,
	}
}

// partitionReplacer strips characters that would split or forge a Hive
// path segment. Event names arrive from frames.
var partitionReplacer = strings.NewReplacer("/", "_", "\\", "_", "=", "_")

// partitionValue returns v made safe for use as a key=value path segment.
func partitionValue(v string) string {
	return partitionReplacer.Replace(v)
}

// Time parses Timestamp. An unparseable stamp yields the zero time.
func (r Record) Time() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, r.Timestamp)
	return t
}

func (r Record) toMap() map[string]any {
	m := map[string]any{
		"session":    r.Session,
		"day":        r.Day,
		"service":    r.Service,
		"event_name": r.EventName,
		"sender":     r.Sender,
		"timestamp":  r.Timestamp,
		"seq":        r.Seq,
	}
	if r.Category != "" {
		m["category"] = r.Category
	}
	if r.Data != nil {
		m["data"] = r.Data
	}
	return m
}

func recordFromMap(m map[string]any) Record {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return Record{
		Session:   str("session"),
		Day:       str("day"),
		Service:   str("service"),
		EventName: str("event_name"),
		Category:  str("category"),
		Sender:    str("sender"),
		Data:      m["data"],
		Timestamp: str("timestamp"),
		Seq:       toInt64(m["seq"]),
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	// SessionID partitions every record.
	SessionID string
	// Dataset is the Lode dataset ID (default DefaultDataset).
	Dataset string
	// Events limits archiving to these names. Empty archives the whole catalog.
	Events []types.EventName
	// BatchSize flushes once this many records are pending.
	BatchSize int
	// FlushInterval flushes pending records at least this often.
	FlushInterval time.Duration
	// QueueSize bounds records waiting for the writer goroutine.
	// When full, new records are dropped and counted.
	QueueSize int
	Logger    *log.Logger
	Collector *metrics.Collector
}

// Writer subscribes to the bus and archives deliveries.
type Writer struct {
	dataset lode.Dataset
	bus     *bus.Bus
	config  WriterConfig
	logger  *log.Logger
	seq     atomic.Int64

	mu      sync.Mutex
	queue   chan Record
	closed  bool
	started bool
	unsubs  []bus.Unsubscribe
	done    chan struct{}
}

// NewWriter opens the dataset on factory. Call Start to begin archiving.
func NewWriter(factory lode.StoreFactory, b *bus.Bus, config WriterConfig) (*Writer, error) {
	if config.Dataset == "" {
		config.Dataset = DefaultDataset
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if len(config.Events) == 0 {
		for _, info := range types.Catalog() {
			config.Events = append(config.Events, info.Name)
		}
	}

	ds, err := NewDataset(config.Dataset, factory)
	if err != nil {
		return nil, err
	}

	return &Writer{
		dataset: ds,
		bus:     b,
		config:  config,
		logger:  log.OrNop(config.Logger),
		queue:   make(chan Record, config.QueueSize),
		done:    make(chan struct{}),
	}, nil
}

// Dataset returns the underlying dataset, for reads in the same process.
func (w *Writer) Dataset() lode.Dataset { return w.dataset }

// Start subscribes to the configured events and starts the flush loop.
// The loop stops when ctx is cancelled or Close is called; pending
// records are flushed either way.
func (w *Writer) Start(ctx context.Context) {
	for _, name := range w.config.Events {
		w.unsubs = append(w.unsubs, w.bus.Subscribe(name, w.enqueue, "journal"))
	}
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.run(ctx)
}

func (w *Writer) enqueue(data any, env types.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	rec := NewRecord(w.config.SessionID, w.seq.Add(1), data, env)
	select {
	case w.queue <- rec:
	default:
		w.config.Collector.IncJournalDropped()
		w.logger.Warn("journal queue full, dropping record", map[string]any{
			"event_name": rec.EventName,
			"seq":        rec.Seq,
		})
	}
	return nil
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, w.config.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		writeCtx := ctx
		if ctx.Err() != nil {
			// Final flush after cancellation gets its own deadline.
			var cancel context.CancelFunc
			writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			defer cancel()
		}
		_ = w.write(writeCtx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-w.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= w.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// Drain what is already queued.
		drain:
			for {
				select {
				case rec, ok := <-w.queue:
					if !ok {
						break drain
					}
					batch = append(batch, rec)
				default:
					break drain
				}
			}
			flush()
			return
		}
	}
}

func (w *Writer) write(ctx context.Context, batch []Record) error {
	records := make([]any, 0, len(batch))
	for _, r := range batch {
		records = append(records, r.toMap())
	}

	if _, err := w.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		err = WrapWriteError(err, w.config.Dataset)
		w.config.Collector.IncJournalWriteFailure()
		w.logger.Error("journal write failed", map[string]any{
			"records": len(records),
			"error":   err.Error(),
		})
		return err
	}
	w.config.Collector.IncJournalWriteSuccess()
	w.logger.Debug("journal batch written", map[string]any{
		"records":   len(records),
		"first_seq": batch[0].Seq,
		"last_seq":  batch[len(batch)-1].Seq,
	})
	return nil
}

// Close unsubscribes, flushes pending records and waits for the loop.
// Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	close(w.queue)
	w.mu.Unlock()

	for _, unsub := range w.unsubs {
		unsub()
	}
	if started {
		<-w.done
	}
	return nil
}
