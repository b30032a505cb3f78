package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopObservability(_ *testing.T) {
	logger := noopLogger{}
	logger.Debug("debug", "k", "v")
	logger.Info("info", "k", "v")
	logger.Warn("warn", "k", "v")
	logger.Error("error", "k", "v")
	noopMetrics{}.Observe(context.Background(), "op", true, time.Second)
	_, span := noopTracer{}.Start(context.Background(), "op")
	span.End(nil)
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), OpGetRun, true, 2*time.Millisecond)
	rec.Observe(context.Background(), OpGetRun, false, 3*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)

	snap := rec.Snapshot()
	want := OperationStats{Success: 1, Error: 1, TotalMS: 5, SlowestMS: 3}
	if got := snap.Operations[OpGetRun]; got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if len(snap.Operations) != 1 {
		t.Fatalf("empty operation must be ignored, got %+v", snap.Operations)
	}
	published := expvar.Get(rec.Name())
	if published == nil {
		t.Fatalf("expected expvar %s to be published", rec.Name())
	}
	var decoded map[string]OperationStats
	if err := json.Unmarshal([]byte(published.String()), &decoded); err != nil {
		t.Fatalf("decode expvar: %v", err)
	}
	if decoded[OpGetRun] != want {
		t.Fatalf("unexpected published stats %+v", decoded)
	}
}

func TestExpvarMetricsRecorderConcurrentFirstUse(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Observe(context.Background(), OpCreateIsolate, true, time.Millisecond)
		}()
	}
	wg.Wait()
	if got := rec.Snapshot().Operations[OpCreateIsolate].Success; got != 16 {
		t.Fatalf("expected 16 observations, got %d", got)
	}
}

func TestExpvarMetricsRecorderNamed(t *testing.T) {
	name := fmt.Sprintf("geuebt_named_recorder_%d", time.Now().UnixNano())
	rec := NewExpvarMetricsRecorder(name)
	if rec.Name() != name || expvar.Get(name) == nil {
		t.Fatalf("expected recorder published under its name")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), OpCreateIsolate, true, 10*time.Millisecond)
	rec.Observe(context.Background(), OpCreateIsolate, false, 10*time.Millisecond)
	rec.Observe(context.Background(), OpCreateIsolate, false, 10*time.Millisecond)

	if got := testutil.ToFloat64(rec.total.WithLabelValues(OpCreateIsolate, "error")); got != 2 {
		t.Fatalf("expected 2 errors, got %v", got)
	}
	if got := testutil.CollectAndCount(rec.duration, "geuebt_operation_duration_seconds"); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}

	again, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	again.Observe(context.Background(), OpCreateIsolate, true, time.Millisecond)
	if got := testutil.ToFloat64(rec.total.WithLabelValues(OpCreateIsolate, "success")); got != 2 {
		t.Fatalf("expected shared collectors, got %v", got)
	}
}

func TestMultiMetricsRecorder(t *testing.T) {
	a, b := &captureMetrics{}, &captureMetrics{}
	MultiMetricsRecorder{a, b}.Observe(context.Background(), OpListRuns, true, time.Millisecond)
	if !a.has(OpListRuns, true) || !b.has(OpListRuns, true) {
		t.Fatalf("expected fan-out")
	}
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	ctx, span := tracer.Start(context.Background(), OpGetCluster)
	if SpanID(ctx) == "" {
		t.Fatalf("expected span id in context")
	}
	span.End(errors.New("boom"))

	var entry JSONTraceEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode span: %v", err)
	}
	if entry.Operation != OpGetCluster || entry.Status != "error" || entry.Error != "boom" || entry.SpanID != SpanID(ctx) {
		t.Fatalf("unexpected span %+v", entry)
	}
	if SpanID(context.Background()) != "" {
		t.Fatalf("expected empty span id outside a span")
	}
}
