package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"geuebt/internal/blob"
	"geuebt/internal/infra/persistence/memory"
	"geuebt/pkg/domain"
)

var fixedNow = time.Date(2026, time.March, 4, 10, 30, 0, 0, time.UTC)

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) add(s string) {
	c.mu.Lock()
	c.calls = append(c.calls, s)
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add("d:" + msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add("i:" + msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add("w:" + msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add("e:" + msg) }

type metricsCall struct {
	op      string
	success bool
}

type captureMetrics struct{ calls []metricsCall }

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetrics) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	base := []ServiceOption{
		WithClock(ClockFunc(func() time.Time { return fixedNow })),
		WithBlobStore(blob.NewMemory()),
	}
	svc := NewService(memory.NewStore(), append(base, opts...)...)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func ptr[T any](v T) *T { return &v }

func validIsolate(id string) domain.Isolate {
	return domain.Isolate{
		IsolateID:  id,
		SampleID:   "sample-" + id,
		Organism:   domain.OrganismListeria,
		SampleType: domain.SampleTypeFood,
		FastaName:  id + ".fasta",
		FastaMD5:   "d41d8cd98f00b204e9800998ecf8427e",
		SampleInfo: domain.SampleInfo{
			IsolationOrg:      domain.UserOWL,
			SequencingOrg:     domain.UserRRW,
			BioinformaticsOrg: domain.UserOther,
		},
		QCMetrics: domain.QCMetrics{
			SeqDepth:                50,
			RefCoverage:             0.95,
			Q30:                     0.9,
			N50:                     250000,
			L50:                     4,
			NContigs1kbp:            20,
			AssemblySize:            3_000_000,
			GCPerc:                  38,
			OrthologsFound:          99,
			DuplicatedOrthologs:     0.5,
			MajorityGenus:           "Listeria",
			FractionMajorityGenus:   0.99,
			MajoritySpecies:         "Listeria monocytogenes",
			FractionMajoritySpecies: 0.98,
		},
	}
}

func cluster(id string, number int, organism domain.Organism) domain.Cluster {
	return domain.Cluster{
		ClusterID:      id,
		ClusterNumber:  number,
		Organism:       organism,
		Priority:       domain.Priority{Level: 1, User: "curator"},
		Size:           2,
		ADThreshold:    10,
		RootMembers:    []string{"a", "b"},
		DistanceMatrix: []map[string]int{{"a": 0, "b": 3}, {"a": 3, "b": 0}},
		Tree:           "(a:1,b:2);",
	}
}
