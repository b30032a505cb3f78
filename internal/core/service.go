// Package core implements the isolate registry service over a pluggable
// document store.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"geuebt/internal/blob"
	"geuebt/pkg/domain"
)

// Operation names reported to loggers, metrics and tracers.
const (
	OpCreateIsolate       = "create_isolate"
	OpGetIsolate          = "get_isolate"
	OpListIsolates        = "list_isolates"
	OpAttachAlleleProfile = "attach_allele_profile"
	OpGetAlleleProfile    = "get_allele_profile"
	OpCreateSequence      = "create_sequence"
	OpGetSequence         = "get_sequence"
	OpUpsertCluster       = "upsert_cluster"
	OpGetCluster          = "get_cluster"
	OpListClusters        = "list_clusters"
	OpGetOrphanCluster    = "get_orphan_cluster"
	OpCreateRun           = "create_run"
	OpGetRun              = "get_run"
	OpListRuns            = "list_runs"
)

// sequenceDocument is the stored form of a sequence. When a blob store is
// configured the raw text lives under BlobKey and Sequence is empty.
type sequenceDocument struct {
	domain.Sequence
	BlobKey   string `json:"blob_key,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	MD5       string `json:"md5,omitempty"`
}

// Service exposes the registry operations.
type Service struct {
	store     domain.DocumentStore
	validator *domain.Validator
	blobs     blob.Store
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	clock     Clock

	isolates  Collection[domain.Isolate]
	sequences Collection[sequenceDocument]
	clusters  Collection[domain.Cluster]
	runs      Collection[domain.RunReport]
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the operation logger.
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the span factory.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(c Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithBlobStore offloads sequence text to store.
func WithBlobStore(store blob.Store) ServiceOption {
	return func(s *Service) { s.blobs = store }
}

// WithValidator replaces the default QC validator.
func WithValidator(v *domain.Validator) ServiceOption {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}

func isolateIndex(iso domain.Isolate) (domain.Organism, *int) { return iso.Organism, nil }

func clusterIndex(c domain.Cluster) (domain.Organism, *int) {
	return c.Organism, domain.IntPtr(c.ClusterNumber)
}

// NewService builds a registry over store.
func NewService(store domain.DocumentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		validator: domain.NewValidator(),
		logger:    noopLogger{},
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		clock:     systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.isolates = NewCollection(store, domain.CollectionIsolates, func(i domain.Isolate) string { return i.IsolateID }, isolateIndex)
	s.sequences = NewCollection(store, domain.CollectionSequences, func(d sequenceDocument) string { return d.IsolateID }, nil)
	s.clusters = NewCollection(store, domain.CollectionClusters, func(c domain.Cluster) string { return c.ClusterID }, clusterIndex)
	s.runs = NewCollection(store, domain.CollectionRuns, func(r domain.RunReport) string { return r.RunMetadata.Name }, nil)
	return s
}

// Store returns the underlying document store.
func (s *Service) Store() domain.DocumentStore { return s.store }

// Validator returns the QC validator in use.
func (s *Service) Validator() *domain.Validator { return s.validator }

// Close releases the document store.
func (s *Service) Close() error { return s.store.Close() }

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

// run wraps an operation with a span, a metrics observation and a log line.
func (s *Service) run(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	switch {
	case err == nil:
		s.logger.Debug("registry operation", "operation", op, "key", key, "duration", elapsed)
	case isClientError(err):
		s.logger.Info("registry operation rejected", "operation", op, "key", key, "error", err)
	default:
		s.logger.Error("registry operation failed", "operation", op, "key", key, "error", err)
	}
	return err
}

func isClientError(err error) bool {
	var (
		nf       domain.ErrNotFound
		conflict domain.ErrConflict
		invalid  domain.ValidationError
	)
	return errors.As(err, &nf) || errors.As(err, &conflict) || errors.As(err, &invalid)
}

// CreateIsolate applies epidata defaults, checks the schema, runs the QC
// validator and stores the isolate.
func (s *Service) CreateIsolate(ctx context.Context, iso domain.Isolate) (domain.Isolate, error) {
	err := s.run(ctx, OpCreateIsolate, iso.IsolateID, func(ctx context.Context) error {
		now := s.now()
		iso.Epidata.ApplyDefaults()
		violations := domain.CheckIsolate(iso, now)
		if fv, ok := domain.SuppliedProfile(iso); ok {
			violations = append(violations, fv)
		}
		if err := domain.AsError(violations); err != nil {
			return err
		}
		if err := domain.ErrFromDecision(s.validator.Decide(iso)); err != nil {
			return err
		}
		if iso.CreatedAt.IsZero() {
			iso.CreatedAt = now
		}
		return s.isolates.Insert(ctx, iso)
	})
	if err != nil {
		return domain.Isolate{}, err
	}
	return iso, nil
}

// GetIsolate returns the isolate stored under id.
func (s *Service) GetIsolate(ctx context.Context, id string) (domain.Isolate, error) {
	var out domain.Isolate
	err := s.run(ctx, OpGetIsolate, id, func(ctx context.Context) error {
		var err error
		out, err = s.isolates.Get(ctx, id)
		return err
	})
	return out, err
}

// ListIsolates projects isolate ids, optionally filtered by organism.
func (s *Service) ListIsolates(ctx context.Context, organism domain.Organism) ([]domain.IsolateRef, error) {
	var out []domain.IsolateRef
	err := s.run(ctx, OpListIsolates, string(organism), func(ctx context.Context) error {
		keys, err := s.isolates.Keys(ctx, domain.Query{Organism: organism})
		if err != nil {
			return err
		}
		out = make([]domain.IsolateRef, 0, len(keys))
		for _, k := range keys {
			out = append(out, domain.IsolateRef{IsolateID: k})
		}
		return nil
	})
	return out, err
}

// AttachAlleleProfile overwrites the isolate's updated_at, missing-loci
// fraction and cgMLST profile. QC thresholds are not re-evaluated.
func (s *Service) AttachAlleleProfile(ctx context.Context, id string, update domain.AlleleProfileUpdate) (domain.Isolate, error) {
	var out domain.Isolate
	err := s.run(ctx, OpAttachAlleleProfile, id, func(ctx context.Context) error {
		if err := domain.AsError(domain.CheckAlleleProfileUpdate(update)); err != nil {
			return err
		}
		updatedAt := s.now()
		if update.UpdatedAt != nil {
			updatedAt = update.UpdatedAt.UTC()
		}
		profile := *update.CGMLST
		var err error
		out, err = s.isolates.Update(ctx, id, func(iso *domain.Isolate) error {
			iso.UpdatedAt = &updatedAt
			fraction := *update.QCMetrics.CGMLSTMissingFraction
			iso.QCMetrics.CGMLSTMissingFraction = &fraction
			iso.CGMLST = &profile
			return nil
		})
		return err
	})
	return out, err
}

// GetAlleleProfile projects an isolate onto its allele profile. Isolates
// without a profile yield an empty list.
func (s *Service) GetAlleleProfile(ctx context.Context, id string) (domain.AlleleProfileView, error) {
	var out domain.AlleleProfileView
	err := s.run(ctx, OpGetAlleleProfile, id, func(ctx context.Context) error {
		iso, err := s.isolates.Get(ctx, id)
		if err != nil {
			return err
		}
		out = domain.AlleleProfileView{IsolateID: iso.IsolateID, Profile: []domain.LocusInfo{}}
		if iso.CGMLST != nil && iso.CGMLST.AlleleProfile != nil {
			out.Profile = iso.CGMLST.AlleleProfile
		}
		return nil
	})
	return out, err
}

// CreateSequence stores a sequence record, offloading the text to the blob
// store when one is configured.
func (s *Service) CreateSequence(ctx context.Context, seq domain.Sequence) (domain.Sequence, error) {
	err := s.run(ctx, OpCreateSequence, seq.IsolateID, func(ctx context.Context) error {
		if err := domain.AsError(domain.CheckSequence(seq)); err != nil {
			return err
		}
		if seq.CreatedAt.IsZero() {
			seq.CreatedAt = s.now()
		}
		exists, err := s.sequences.Exists(ctx, seq.IsolateID)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrConflict{Collection: domain.CollectionSequences, Key: seq.IsolateID, KeyField: domain.KeyField(domain.CollectionSequences)}
		}
		doc := sequenceDocument{Sequence: seq}
		if s.blobs == nil {
			return s.sequences.Insert(ctx, doc)
		}
		if err := s.offload(ctx, &doc); err != nil {
			return err
		}
		if err := s.sequences.Insert(ctx, doc); err != nil {
			if _, delErr := s.blobs.Delete(ctx, doc.BlobKey); delErr != nil && !errors.Is(delErr, blob.ErrNotFound) {
				s.logger.Warn("sequence blob cleanup failed", "key", doc.BlobKey, "error", delErr)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Sequence{}, err
	}
	return seq, nil
}

// offload writes the sequence text to the blob store. A blob left behind by
// an earlier failed create is replaced.
func (s *Service) offload(ctx context.Context, doc *sequenceDocument) error {
	info, digest, err := blob.PutSequence(ctx, s.blobs, doc.IsolateID, doc.Sequence.Sequence)
	if errors.Is(err, blob.ErrExists) {
		if _, err := s.blobs.Delete(ctx, blob.SequenceKey(doc.IsolateID)); err != nil {
			return fmt.Errorf("replace stale sequence blob: %w", err)
		}
		info, digest, err = blob.PutSequence(ctx, s.blobs, doc.IsolateID, doc.Sequence.Sequence)
	}
	if err != nil {
		return err
	}
	doc.BlobKey = info.Key
	doc.SizeBytes = info.Size
	doc.MD5 = digest
	doc.Sequence.Sequence = ""
	return nil
}

// GetSequence returns the sequence record with its text rehydrated.
func (s *Service) GetSequence(ctx context.Context, id string) (domain.Sequence, error) {
	var out domain.Sequence
	err := s.run(ctx, OpGetSequence, id, func(ctx context.Context) error {
		doc, err := s.sequences.Get(ctx, id)
		if err != nil {
			return err
		}
		out = doc.Sequence
		if doc.BlobKey == "" {
			return nil
		}
		if s.blobs == nil {
			return fmt.Errorf("sequence %s is stored in blob %s but no blob store is configured", id, doc.BlobKey)
		}
		out.Sequence, err = blob.ReadText(ctx, s.blobs, doc.BlobKey)
		return err
	})
	return out, err
}

// UpsertCluster stores the cluster under id. An existing cluster keeps its
// identity, organism, priority, tags and annotations; only the membership
// fields are refreshed. It reports whether the cluster was inserted.
func (s *Service) UpsertCluster(ctx context.Context, id string, c domain.Cluster) (bool, error) {
	var inserted bool
	err := s.run(ctx, OpUpsertCluster, id, func(ctx context.Context) error {
		c.ClusterID = id
		if err := domain.AsError(domain.CheckCluster(c)); err != nil {
			return err
		}
		now := s.now()
		stampCluster(&c, now)
		incoming := c
		var err error
		inserted, err = s.clusters.Upsert(ctx, c, func(stored *domain.Cluster) error {
			stored.UpdatedAt = incoming.UpdatedAt
			stored.Size = incoming.Size
			stored.RootMembers = incoming.RootMembers
			stored.Subclusters = incoming.Subclusters
			stored.DistanceMatrix = incoming.DistanceMatrix
			stored.Tree = incoming.Tree
			return nil
		})
		return err
	})
	return inserted, err
}

// stampCluster fills omitted timestamps with now.
func stampCluster(c *domain.Cluster, now time.Time) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	for p := &c.Priority; p != nil; p = p.History {
		stamp(&p.Date, now)
	}
	for i := range c.Tags {
		stamp(&c.Tags[i].Date, now)
	}
	for i := range c.PublicAnnotation {
		stamp(&c.PublicAnnotation[i].Date, now)
	}
}

func stamp(t **time.Time, now time.Time) {
	if *t == nil {
		v := now
		*t = &v
	}
}

// GetCluster returns the cluster stored under id.
func (s *Service) GetCluster(ctx context.Context, id string) (domain.Cluster, error) {
	var out domain.Cluster
	err := s.run(ctx, OpGetCluster, id, func(ctx context.Context) error {
		var err error
		out, err = s.clusters.Get(ctx, id)
		return err
	})
	return out, err
}

// ListClusters projects the ids of non-orphan clusters, optionally filtered
// by organism.
func (s *Service) ListClusters(ctx context.Context, organism domain.Organism) ([]domain.ClusterRef, error) {
	var out []domain.ClusterRef
	err := s.run(ctx, OpListClusters, string(organism), func(ctx context.Context) error {
		keys, err := s.clusters.Keys(ctx, domain.Query{Organism: organism, MinNumber: domain.IntPtr(domain.OrphanClusterNumber + 1)})
		if err != nil {
			return err
		}
		out = make([]domain.ClusterRef, 0, len(keys))
		for _, k := range keys {
			out = append(out, domain.ClusterRef{ClusterID: k})
		}
		return nil
	})
	return out, err
}

// GetOrphanCluster returns the organism's orphan placeholder cluster.
func (s *Service) GetOrphanCluster(ctx context.Context, organism domain.Organism) (domain.Cluster, error) {
	var out domain.Cluster
	err := s.run(ctx, OpGetOrphanCluster, string(organism), func(ctx context.Context) error {
		found, err := s.clusters.Find(ctx, domain.Query{Organism: organism, Number: domain.IntPtr(domain.OrphanClusterNumber)})
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return domain.ErrNotFound{Collection: domain.CollectionClusters, Key: string(organism)}
		}
		out = found[0]
		return nil
	})
	return out, err
}

// CreateRun stores a run report keyed on its run name.
func (s *Service) CreateRun(ctx context.Context, report domain.RunReport) (domain.RunReport, error) {
	err := s.run(ctx, OpCreateRun, report.RunMetadata.Name, func(ctx context.Context) error {
		if err := domain.AsError(domain.CheckRunReport(report)); err != nil {
			return err
		}
		stamp(&report.RunMetadata.Date, s.now())
		return s.runs.Insert(ctx, report)
	})
	if err != nil {
		return domain.RunReport{}, err
	}
	return report, nil
}

// GetRun returns the run report named name.
func (s *Service) GetRun(ctx context.Context, name string) (domain.RunReport, error) {
	var out domain.RunReport
	err := s.run(ctx, OpGetRun, name, func(ctx context.Context) error {
		var err error
		out, err = s.runs.Get(ctx, name)
		return err
	})
	return out, err
}

// ListRuns projects every run name.
func (s *Service) ListRuns(ctx context.Context) ([]domain.RunRef, error) {
	var out []domain.RunRef
	err := s.run(ctx, OpListRuns, "", func(ctx context.Context) error {
		keys, err := s.runs.Keys(ctx, domain.Query{})
		if err != nil {
			return err
		}
		out = make([]domain.RunRef, 0, len(keys))
		for _, k := range keys {
			out = append(out, domain.RunRef{RunName: k})
		}
		return nil
	})
	return out, err
}
