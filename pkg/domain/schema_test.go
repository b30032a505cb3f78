package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func paths(vs []FieldViolation) map[string]FieldViolation {
	out := make(map[string]FieldViolation, len(vs))
	for _, v := range vs {
		out[v.Path()] = v
	}
	return out
}

func TestCheckIsolateValid(t *testing.T) {
	if vs := CheckIsolate(validIsolate(), fixedNow); len(vs) != 0 {
		t.Fatalf("expected no violations, got %+v", vs)
	}
}

func TestCheckIsolateReportsAllViolations(t *testing.T) {
	iso := validIsolate()
	iso.IsolateID = ""
	iso.Organism = "Bacillus cereus"
	iso.SampleType = "Abwasser"
	iso.SampleInfo.SequencingOrg = "XYZ"
	iso.QCMetrics.Q30 = 0.5
	iso.QCMetrics.RefCoverage = 1.2
	iso.QCMetrics.N50 = -1
	iso.QCMetrics.GCPerc = 101
	iso.QCMetrics.MajorityGenus = ""
	missing := 1.5
	iso.QCMetrics.CGMLSTMissingFraction = &missing

	got := paths(CheckIsolate(iso, fixedNow))
	want := map[string]string{
		"isolate_id":                         ViolationMissing,
		"organism":                           ViolationEnum,
		"sample_type":                        ViolationEnum,
		"sample_info.sequencing_org":         ViolationEnum,
		"qc_metrics.q30":                     ViolationRange,
		"qc_metrics.ref_coverage":            ViolationRange,
		"qc_metrics.N50":                     ViolationRange,
		"qc_metrics.GC_perc":                 ViolationRange,
		"qc_metrics.majority_genus":          ViolationMissing,
		"qc_metrics.cgmlst_missing_fraction": ViolationRange,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d violations, got %d: %+v", len(want), len(got), got)
	}
	for path, typ := range want {
		v, ok := got[path]
		if !ok {
			t.Fatalf("missing violation for %s", path)
		}
		if v.Type != typ {
			t.Fatalf("%s: expected type %s, got %s", path, typ, v.Type)
		}
		if v.Loc[0] != "body" {
			t.Fatalf("%s: expected body-rooted loc, got %v", path, v.Loc)
		}
	}
}

func TestCheckIsolateCollectionDateMustBePast(t *testing.T) {
	iso := validIsolate()
	today := NewDate(fixedNow.Year(), fixedNow.Month(), fixedNow.Day())
	iso.Epidata.CollectionDate = &today
	got := paths(CheckIsolate(iso, fixedNow))
	if v, ok := got["epidata.collection_date"]; !ok || v.Type != ViolationDate {
		t.Fatalf("expected past-date violation, got %+v", got)
	}

	yesterday := NewDate(2026, time.March, 3)
	iso.Epidata.CollectionDate = &yesterday
	if vs := CheckIsolate(iso, fixedNow); len(vs) != 0 {
		t.Fatalf("expected yesterday to be accepted, got %+v", vs)
	}
}

// decodeWithout marshals v, drops the dotted keys and decodes the result into out.
func decodeWithout(t *testing.T, v any, out any, drop ...string) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range drop {
		node := doc
		parts := strings.Split(key, ".")
		for _, p := range parts[:len(parts)-1] {
			node = node[p].(map[string]any)
		}
		delete(node, parts[len(parts)-1])
	}
	if raw, err = json.Marshal(doc); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestCheckIsolateReportsOmittedNumericFields(t *testing.T) {
	omitted := []string{
		"qc_metrics.seq_depth",
		"qc_metrics.ref_coverage",
		"qc_metrics.q30",
		"qc_metrics.N50",
		"qc_metrics.L50",
		"qc_metrics.n_contigs_1kbp",
		"qc_metrics.assembly_size",
		"qc_metrics.GC_perc",
		"qc_metrics.orthologs_found",
		"qc_metrics.duplicated_orthologs",
		"qc_metrics.fraction_majority_genus",
		"qc_metrics.fraction_majority_species",
	}
	for _, field := range omitted {
		var iso Isolate
		decodeWithout(t, validIsolate(), &iso, field)
		got := CheckIsolate(iso, fixedNow)
		if len(got) != 1 {
			t.Fatalf("%s: expected a single violation, got %+v", field, got)
		}
		if got[0].Path() != field || got[0].Type != ViolationMissing || got[0].Msg != "Field required" {
			t.Fatalf("%s: unexpected violation %+v", field, got[0])
		}
	}

	var iso Isolate
	decodeWithout(t, validIsolate(), &iso, "qc_metrics.N50", "qc_metrics.GC_perc", "qc_metrics.ref_coverage")
	if got := paths(CheckIsolate(iso, fixedNow)); len(got) != 3 {
		t.Fatalf("expected every omitted field reported, got %+v", got)
	}
}

func TestCheckIsolateReportsOmittedObjects(t *testing.T) {
	var iso Isolate
	decodeWithout(t, validIsolate(), &iso, "qc_metrics", "sample_info")
	got := paths(CheckIsolate(iso, fixedNow))
	if len(got) != 2 {
		t.Fatalf("expected only the two objects reported, got %+v", got)
	}
	for _, path := range []string{"qc_metrics", "sample_info"} {
		if got[path].Type != ViolationMissing {
			t.Fatalf("expected missing violation at %s, got %+v", path, got)
		}
	}
}

func TestCheckIsolateNullCountsAsOmitted(t *testing.T) {
	var iso Isolate
	body := `{"isolate_id":"x","sample_id":"s","organism":"Listeria monocytogenes","sample_type":"Human",` +
		`"fasta_name":"x.fa","fasta_md5":"m","sample_info":{"isolation_org":"OWL","sequencing_org":"OWL","bioinformatics_org":"OWL"},` +
		`"qc_metrics":{"seq_depth":50,"ref_coverage":0.9,"q30":0.9,"N50":1,"L50":1,"n_contigs_1kbp":1,"assembly_size":3000000,` +
		`"GC_perc":null,"orthologs_found":99,"duplicated_orthologs":1,"majority_genus":"Listeria","fraction_majority_genus":0.99,` +
		`"majority_species":"Listeria monocytogenes","fraction_majority_species":0.9}}`
	if err := json.Unmarshal([]byte(body), &iso); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := CheckIsolate(iso, fixedNow)
	if len(got) != 1 || got[0].Path() != "qc_metrics.GC_perc" || got[0].Type != ViolationMissing {
		t.Fatalf("expected GC_perc reported missing, got %+v", got)
	}
	if screened := NewValidator().Screen(iso, fixedNow); len(screened) != 1 {
		t.Fatalf("expected QC checks skipped for an incomplete sheet, got %+v", screened)
	}
}

func TestCheckAlleleProfileUpdateReportsOmittedFields(t *testing.T) {
	var update AlleleProfileUpdate
	if err := json.Unmarshal([]byte(`{"qc_metrics":{"cgmlst_missing_fraction":0.1}}`), &update); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := CheckAlleleProfileUpdate(update)
	if len(got) != 1 || got[0].Path() != "cgmlst" || got[0].Type != ViolationMissing {
		t.Fatalf("expected missing cgmlst, got %+v", got)
	}

	full := AlleleProfileUpdate{
		QCMetrics: MissingLociQC{CGMLSTMissingFraction: new(float64)},
		CGMLST: &CGMLST{
			AlleleProfile: []LocusInfo{{Locus: "lmo0001", AlleleCRC32: 7}},
			AlleleStats:   AlleleStats{EXC: 10},
		},
	}
	for _, field := range []string{
		"cgmlst.allele_profile", "cgmlst.allele_stats",
		"cgmlst.allele_stats.EXC", "cgmlst.allele_stats.INF", "cgmlst.allele_stats.LNF",
		"cgmlst.allele_stats.PLOT", "cgmlst.allele_stats.NIPH", "cgmlst.allele_stats.ALM",
		"cgmlst.allele_stats.ASM",
	} {
		var u AlleleProfileUpdate
		decodeWithout(t, full, &u, field)
		got := CheckAlleleProfileUpdate(u)
		if len(got) != 1 || got[0].Path() != field || got[0].Type != ViolationMissing {
			t.Fatalf("%s: expected a missing violation, got %+v", field, got)
		}
	}
}

func TestCheckAlleleProfileUpdate(t *testing.T) {
	missing := 0.02
	update := AlleleProfileUpdate{
		QCMetrics: MissingLociQC{CGMLSTMissingFraction: &missing},
		CGMLST: &CGMLST{
			AlleleProfile: []LocusInfo{{Locus: "lmo0001", AlleleCRC32: 3141592653}},
			AlleleStats:   AlleleStats{EXC: 1700},
		},
	}
	if vs := CheckAlleleProfileUpdate(update); len(vs) != 0 {
		t.Fatalf("expected valid update, got %+v", vs)
	}

	update.QCMetrics.CGMLSTMissingFraction = nil
	update.CGMLST.AlleleStats.LNF = -3
	update.CGMLST.AlleleProfile = append(update.CGMLST.AlleleProfile, LocusInfo{})
	got := paths(CheckAlleleProfileUpdate(update))
	for _, path := range []string{"qc_metrics.cgmlst_missing_fraction", "cgmlst.allele_stats.LNF", "cgmlst.allele_profile.1.locus"} {
		if _, ok := got[path]; !ok {
			t.Fatalf("expected violation at %s, got %+v", path, got)
		}
	}
}

func TestCheckSecondaryRecords(t *testing.T) {
	if vs := CheckSequence(Sequence{IsolateID: "a", SequenceType: SequenceTypeFasta, Sequence: ">c\nACGT\n"}); len(vs) != 0 {
		t.Fatalf("expected valid sequence, got %+v", vs)
	}
	if got := paths(CheckSequence(Sequence{IsolateID: "a", SequenceType: "fastq", Sequence: "x"})); got["sequence_type"].Type != ViolationEnum {
		t.Fatalf("expected sequence_type enum violation, got %+v", got)
	}

	cluster := Cluster{
		ClusterID:     "RRW_SA-34",
		ClusterNumber: 34,
		Organism:      OrganismSalmonella,
		Priority:      Priority{Level: 3, User: "system"},
		Size:          3,
		ADThreshold:   10,
		Subclusters:   []Subcluster{{SubclusterID: "SA-34.1", SubclusterNumber: 1, Size: -1, ADThreshold: 5}},
	}
	got := paths(CheckCluster(cluster))
	if len(got) != 1 {
		t.Fatalf("expected a single cluster violation, got %+v", got)
	}
	if _, ok := got["subclusters.0.size"]; !ok {
		t.Fatalf("expected subcluster size violation, got %+v", got)
	}

	run := RunReport{
		RunMetadata: RunMetadata{Name: "run-1", GeuebtVersion: "1.0.0", User: "system"},
		Samples:     []SampleQC{{IsolateID: "a", Status: StatusPass}, {IsolateID: "b", Status: "MAYBE"}},
	}
	got = paths(CheckRunReport(run))
	if v, ok := got["samples.1.STATUS"]; !ok || v.Type != ViolationEnum {
		t.Fatalf("expected STATUS violation, got %+v", got)
	}
}

func TestAsError(t *testing.T) {
	if err := AsError(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	err := AsError([]FieldViolation{{Msg: "bad"}})
	var verr ValidationError
	if !errors.As(err, &verr) || len(verr.Violations) != 1 {
		t.Fatalf("expected validation error, got %v", err)
	}
}
