package domain

import (
	"fmt"
	"time"
)

// schemaCheck accumulates field violations for one submitted record.
type schemaCheck struct {
	violations []FieldViolation
}

func (s *schemaCheck) add(v FieldViolation) {
	s.violations = append(s.violations, v)
}

func (s *schemaCheck) required(value string, loc ...string) {
	if value == "" {
		s.add(FieldViolation{Type: ViolationMissing, Loc: bodyLoc(loc), Msg: "Field required", Input: value})
	}
}

func (s *schemaCheck) floatRange(value, min, max float64, loc ...string) {
	if value < min || value > max {
		s.add(FieldViolation{
			Type:  ViolationRange,
			Loc:   bodyLoc(loc),
			Msg:   fmt.Sprintf("Input should be between %s and %s", formatFloat(min), formatFloat(max)),
			Input: value,
			Ctx:   map[string]any{"ge": min, "le": max},
		})
	}
}

func (s *schemaCheck) floatMin(value, min float64, loc ...string) {
	if value < min {
		s.add(FieldViolation{
			Type:  ViolationRange,
			Loc:   bodyLoc(loc),
			Msg:   fmt.Sprintf("Input should be greater than or equal to %s", formatFloat(min)),
			Input: value,
			Ctx:   map[string]any{"ge": min},
		})
	}
}

func (s *schemaCheck) intMin(value int64, loc ...string) {
	if value < 0 {
		s.add(FieldViolation{
			Type:  ViolationRange,
			Loc:   bodyLoc(loc),
			Msg:   "Input should be greater than or equal to 0",
			Input: value,
			Ctx:   map[string]any{"ge": 0},
		})
	}
}

func enumCheck[T ~string](s *schemaCheck, value T, allowed []T, loc ...string) {
	if oneOf(value, allowed) {
		return
	}
	expected := enumList(allowed)
	s.add(FieldViolation{
		Type:  ViolationEnum,
		Loc:   bodyLoc(loc),
		Msg:   "Input should be " + expected,
		Input: string(value),
		Ctx:   map[string]any{"expected": expected},
	})
}

func (s *schemaCheck) err() error {
	if len(s.violations) == 0 {
		return nil
	}
	return ValidationError{Violations: s.violations}
}

func bodyLoc(loc []string) []string {
	return append([]string{"body"}, loc...)
}

// CheckIsolate validates the field-level schema of an isolate sheet and
// reports every violation. Organism QC thresholds are not evaluated here.
// now bounds the collection date, which must lie in the past.
func CheckIsolate(iso Isolate, now time.Time) []FieldViolation {
	var s schemaCheck
	s.required(iso.IsolateID, "isolate_id")
	s.required(iso.SampleID, "sample_id")
	enumCheck(&s, iso.Organism, Organisms, "organism")
	enumCheck(&s, iso.SampleType, SampleTypes, "sample_type")
	s.required(iso.FastaName, "fasta_name")
	s.required(iso.FastaMD5, "fasta_md5")

	if s.present(iso.absent, "sample_info") {
		enumCheck(&s, iso.SampleInfo.IsolationOrg, UserOrgs, "sample_info", "isolation_org")
		enumCheck(&s, iso.SampleInfo.SequencingOrg, UserOrgs, "sample_info", "sequencing_org")
		enumCheck(&s, iso.SampleInfo.BioinformaticsOrg, UserOrgs, "sample_info", "bioinformatics_org")
	}

	if d := iso.Epidata.CollectionDate; d != nil {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if !d.Before(today) {
			s.add(FieldViolation{
				Type:  ViolationDate,
				Loc:   bodyLoc([]string{"epidata", "collection_date"}),
				Msg:   "Date should be in the past",
				Input: d.Format(dateLayout),
			})
		}
	}

	if s.present(iso.absent, "qc_metrics") {
		checkQCMetrics(&s, iso.QCMetrics, iso.absent)
	}
	return s.violations
}

func checkQCMetrics(s *schemaCheck, qc QCMetrics, absent map[string]bool) {
	has := func(field string) bool { return s.present(absent, "qc_metrics", field) }
	if has("seq_depth") {
		s.floatMin(qc.SeqDepth, 0, "qc_metrics", "seq_depth")
	}
	if has("ref_coverage") {
		s.floatRange(qc.RefCoverage, 0, 1, "qc_metrics", "ref_coverage")
	}
	if has("q30") {
		s.floatRange(qc.Q30, 0.75, 1, "qc_metrics", "q30")
	}
	if has("N50") {
		s.intMin(qc.N50, "qc_metrics", "N50")
	}
	if has("L50") {
		s.intMin(qc.L50, "qc_metrics", "L50")
	}
	if has("n_contigs_1kbp") {
		s.intMin(qc.NContigs1kbp, "qc_metrics", "n_contigs_1kbp")
	}
	if has("assembly_size") {
		s.intMin(qc.AssemblySize, "qc_metrics", "assembly_size")
	}
	if has("GC_perc") {
		s.floatRange(qc.GCPerc, 0, 100, "qc_metrics", "GC_perc")
	}
	if has("orthologs_found") {
		s.floatRange(qc.OrthologsFound, 0, 100, "qc_metrics", "orthologs_found")
	}
	if has("duplicated_orthologs") {
		s.floatRange(qc.DuplicatedOrthologs, 0, 100, "qc_metrics", "duplicated_orthologs")
	}
	s.required(qc.MajorityGenus, "qc_metrics", "majority_genus")
	if has("fraction_majority_genus") {
		s.floatRange(qc.FractionMajorityGenus, 0, 1, "qc_metrics", "fraction_majority_genus")
	}
	s.required(qc.MajoritySpecies, "qc_metrics", "majority_species")
	if has("fraction_majority_species") {
		s.floatRange(qc.FractionMajoritySpecies, 0, 1, "qc_metrics", "fraction_majority_species")
	}
	if qc.CGMLSTMissingFraction != nil {
		s.floatRange(*qc.CGMLSTMissingFraction, 0, 1, "qc_metrics", "cgmlst_missing_fraction")
	}
}

// SuppliedProfile flags an allele profile submitted with a new isolate.
// Profiles are only attached after creation.
func SuppliedProfile(iso Isolate) (FieldViolation, bool) {
	if iso.CGMLST == nil {
		return FieldViolation{}, false
	}
	return FieldViolation{
		Type:  ViolationExtra,
		Loc:   []string{"body", "cgmlst"},
		Msg:   "Allele profiles are attached after creation",
		Input: "cgmlst",
	}, true
}

// CheckAlleleProfileUpdate validates an allele-profile attachment payload.
func CheckAlleleProfileUpdate(u AlleleProfileUpdate) []FieldViolation {
	var s schemaCheck
	if u.QCMetrics.CGMLSTMissingFraction == nil {
		s.add(FieldViolation{Type: ViolationMissing, Loc: bodyLoc([]string{"qc_metrics", "cgmlst_missing_fraction"}), Msg: "Field required"})
	} else {
		s.floatRange(*u.QCMetrics.CGMLSTMissingFraction, 0, 1, "qc_metrics", "cgmlst_missing_fraction")
	}
	if u.CGMLST == nil {
		s.add(FieldViolation{Type: ViolationMissing, Loc: bodyLoc([]string{"cgmlst"}), Msg: "Field required"})
		return s.violations
	}
	if s.present(u.absent, "cgmlst", "allele_profile") {
		for i, locus := range u.CGMLST.AlleleProfile {
			s.required(locus.Locus, "cgmlst", "allele_profile", fmt.Sprint(i), "locus")
		}
	}
	if !s.present(u.absent, "cgmlst", "allele_stats") {
		return s.violations
	}
	stats := u.CGMLST.AlleleStats
	for _, stat := range []struct {
		name  string
		value int
	}{
		{"EXC", stats.EXC}, {"INF", stats.INF}, {"LNF", stats.LNF}, {"PLOT", stats.PLOT},
		{"NIPH", stats.NIPH}, {"ALM", stats.ALM}, {"ASM", stats.ASM},
	} {
		if s.present(u.absent, "cgmlst", "allele_stats", stat.name) {
			s.intMin(int64(stat.value), "cgmlst", "allele_stats", stat.name)
		}
	}
	return s.violations
}

// CheckSequence validates a sequence record.
func CheckSequence(seq Sequence) []FieldViolation {
	var s schemaCheck
	s.required(seq.IsolateID, "isolate_id")
	enumCheck(&s, seq.SequenceType, SequenceTypes, "sequence_type")
	s.required(seq.Sequence, "sequence")
	return s.violations
}

// CheckCluster validates a cluster sheet.
func CheckCluster(c Cluster) []FieldViolation {
	var s schemaCheck
	s.required(c.ClusterID, "cluster_id")
	s.intMin(int64(c.ClusterNumber), "cluster_number")
	enumCheck(&s, c.Organism, Organisms, "organism")
	s.required(c.Priority.User, "priority", "user")
	for i, tag := range c.Tags {
		s.required(tag.TagID, "tags", fmt.Sprint(i), "tag_id")
		s.required(tag.TagOrigin, "tags", fmt.Sprint(i), "tag_origin")
	}
	for i, note := range c.PublicAnnotation {
		s.required(note.User, "public_annotation", fmt.Sprint(i), "user")
	}
	s.intMin(int64(c.Size), "size")
	s.intMin(int64(c.ADThreshold), "AD_threshold")
	for i, sub := range c.Subclusters {
		idx := fmt.Sprint(i)
		s.required(sub.SubclusterID, "subclusters", idx, "subcluster_id")
		s.intMin(int64(sub.SubclusterNumber), "subclusters", idx, "subcluster_number")
		s.intMin(int64(sub.Size), "subclusters", idx, "size")
		s.intMin(int64(sub.ADThreshold), "subclusters", idx, "AD_threshold")
	}
	return s.violations
}

// CheckRunReport validates a run report.
func CheckRunReport(r RunReport) []FieldViolation {
	var s schemaCheck
	s.required(r.RunMetadata.Name, "run_metadata", "name")
	s.required(r.RunMetadata.GeuebtVersion, "run_metadata", "geuebt_version")
	s.required(r.RunMetadata.User, "run_metadata", "user")
	for i, sample := range r.Samples {
		idx := fmt.Sprint(i)
		s.required(sample.IsolateID, "samples", idx, "isolate_id")
		enumCheck(&s, sample.Status, StatusFlags, "samples", idx, "STATUS")
	}
	return s.violations
}

// AsError wraps violations into a ValidationError, or returns nil when empty.
func AsError(violations []FieldViolation) error {
	s := schemaCheck{violations: violations}
	return s.err()
}
