package core

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var expvarSeq atomic.Uint64

// OperationStats summarizes one registry operation.
type OperationStats struct {
	Success   int64   `json:"success"`
	Error     int64   `json:"error"`
	TotalMS   float64 `json:"total_ms"`
	SlowestMS float64 `json:"slowest_ms"`
}

// ExpvarMetricsSnapshot is a point-in-time copy of an ExpvarMetricsRecorder.
type ExpvarMetricsSnapshot struct {
	Operations map[string]OperationStats `json:"operations"`
	RecordedAt time.Time                 `json:"recorded_at"`
}

// ExpvarMetricsRecorder keeps per-operation stats in an expvar.Map, so they
// show up on /debug/vars keyed by operation name.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex // serializes first use of an operation key
	ops  expvar.Map
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name
// gets a numbered one, since expvar panics on duplicate names.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("geuebt_registry_metrics_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{name: name}
	rec.ops.Init()
	expvar.Publish(name, &rec.ops)
	return rec
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe records an operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.stats(operation).record(success, duration)
}

// Snapshot copies the stats of every operation seen so far.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	snap := ExpvarMetricsSnapshot{Operations: make(map[string]OperationStats), RecordedAt: time.Now().UTC()}
	r.ops.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*operationVar); ok {
			snap.Operations[kv.Key] = v.read()
		}
	})
	return snap
}

func (r *ExpvarMetricsRecorder) stats(operation string) *operationVar {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.ops.Get(operation).(*operationVar); ok {
		return v
	}
	v := &operationVar{}
	r.ops.Set(operation, v)
	return v
}

// operationVar is the expvar.Var stored per operation key.
type operationVar struct {
	mu    sync.Mutex
	stats OperationStats
}

func (v *operationVar) record(success bool, duration time.Duration) {
	ms := float64(duration) / float64(time.Millisecond)
	v.mu.Lock()
	defer v.mu.Unlock()
	if success {
		v.stats.Success++
	} else {
		v.stats.Error++
	}
	v.stats.TotalMS += ms
	v.stats.SlowestMS = max(v.stats.SlowestMS, ms)
}

func (v *operationVar) read() OperationStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

func (v *operationVar) String() string {
	raw, err := json.Marshal(v.read())
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// PrometheusMetricsRecorder exports operation counters and latency histograms.
type PrometheusMetricsRecorder struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the registry collectors with reg.
// Collectors already registered by an earlier recorder are reused.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geuebt",
		Name:      "operations_total",
		Help:      "Registry operations by outcome.",
	}, []string{"operation", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geuebt",
		Name:      "operation_duration_seconds",
		Help:      "Registry operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	var err error
	if total, err = register(reg, total); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &PrometheusMetricsRecorder{total: total, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metrics: %w", err)
	}
	return c, nil
}

// Observe records an operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.total.WithLabelValues(operation, statusLabel(success)).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// MultiMetricsRecorder fans an observation out to several recorders.
type MultiMetricsRecorder []MetricsRecorder

// Observe forwards to every recorder.
func (m MultiMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		r.Observe(ctx, operation, success, duration)
	}
}

// JSONTraceEntry is one serialized span.
type JSONTraceEntry struct {
	SpanID     string    `json:"span_id"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes spans as JSON lines and retains them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer returns a tracer writing to w. A nil writer only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{enc: enc}
}

// Entries returns a copy of the recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

type spanIDKey struct{}

// SpanID returns the id of the JSON trace span active in ctx, if any.
func SpanID(ctx context.Context) string {
	id, _ := ctx.Value(spanIDKey{}).(string)
	return id
}

// Start opens a span and stores its id in the returned context.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	span := &jsonTraceSpan{
		tracer:    t,
		id:        uuid.NewString(),
		operation: operation,
		started:   time.Now().UTC(),
	}
	return context.WithValue(ctx, spanIDKey{}, span.id), span
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	id        string
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		SpanID:     s.id,
		Operation:  s.operation,
		Status:     statusLabel(err == nil),
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
