package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDateJSON(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"2024-05-17"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"2024-05-17"` {
		t.Fatalf("unexpected date encoding %s", out)
	}
	if err := json.Unmarshal([]byte(`"17.05.2024"`), &d); err == nil {
		t.Fatalf("expected error for malformed date")
	}
	if err := json.Unmarshal([]byte(`20240517`), &d); err == nil {
		t.Fatalf("expected error for non-string date")
	}
}

func TestEpidataDefaults(t *testing.T) {
	place := "Berlin"
	e := Epidata{CollectionPlace: &place}
	e.ApplyDefaults()
	if !e.CollectionDate.Equal(DefaultCollectionDate.Time) {
		t.Fatalf("expected default collection date, got %v", e.CollectionDate)
	}
	if *e.Customer != DefaultCustomer || *e.Manufacturer != DefaultUnknown || *e.Description != DefaultUnknown {
		t.Fatalf("unexpected defaults %+v", e)
	}
	if *e.CollectionPlace != "Berlin" {
		t.Fatalf("expected supplied value to be kept")
	}
	if e.Matrix != nil {
		t.Fatalf("expected optional fields without default to stay nil")
	}
}

func TestIsolateJSONFieldNames(t *testing.T) {
	raw, err := json.Marshal(validIsolate())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, key := range []string{`"isolate_id"`, `"qc_metrics"`, `"N50"`, `"GC_perc"`, `"n_contigs_1kbp"`, `"collection_date":"2024-05-17"`} {
		if !strings.Contains(body, key) {
			t.Fatalf("expected %s in %s", key, body)
		}
	}
	if strings.Contains(body, `"cgmlst"`) {
		t.Fatalf("expected cgmlst to be omitted when unset")
	}
}

func TestEnumerations(t *testing.T) {
	if !OrganismCampylobacter.Valid() || Organism("Campylobacter jejuni").Valid() {
		t.Fatalf("unexpected organism validity")
	}
	c := Cluster{ClusterNumber: OrphanClusterNumber}
	if !c.IsOrphan() {
		t.Fatalf("expected orphan cluster")
	}
}

func TestThresholdsForReturnsCopy(t *testing.T) {
	b, ok := ThresholdsFor(OrganismEscherichia)
	if !ok {
		t.Fatalf("expected thresholds")
	}
	if !b.GenusAllowed("Shigella") || b.GenusAllowed("Salmonella") {
		t.Fatalf("unexpected genus membership")
	}
	b.AllowedGenera[0] = "Mutated"
	again, _ := ThresholdsFor(OrganismEscherichia)
	if again.AllowedGenera[0] != "Escherichia" {
		t.Fatalf("static table mutated through copy")
	}
	if _, ok := ThresholdsFor("unknown"); ok {
		t.Fatalf("expected no thresholds for unknown organism")
	}
	for _, org := range Organisms {
		b, _ := ThresholdsFor(org)
		if b.MaxSeqDepth != MaxSeqDepth {
			t.Fatalf("%s: expected shared depth ceiling", org)
		}
	}
}

func TestErrorTypes(t *testing.T) {
	var err error = ErrNotFound{Collection: CollectionIsolates, Key: "x"}
	var nf ErrNotFound
	if !errors.As(err, &nf) || nf.Key != "x" {
		t.Fatalf("expected ErrNotFound")
	}
	conflict := ErrConflict{Collection: CollectionRuns, Key: "run-1"}
	v := conflict.Violation()
	if v.Msg != ConflictMessage || v.Path() != "run_metadata.name" || v.Input != "run-1" {
		t.Fatalf("unexpected conflict violation %+v", v)
	}
	if got := strings.Join(v.Loc, "|"); got != "body|run_metadata|name" {
		t.Fatalf("expected one loc element per segment, got %v", v.Loc)
	}
	if got := (ErrConflict{Collection: CollectionIsolates, Key: "i"}).Violation().Loc; len(got) != 2 || got[1] != "isolate_id" {
		t.Fatalf("unexpected isolate conflict loc %v", got)
	}
	if KeyField(CollectionClusters) != "cluster_id" {
		t.Fatalf("unexpected key field")
	}
}

func TestQueryMatches(t *testing.T) {
	doc := Document{Key: "c1", Organism: OrganismSalmonella, Number: IntPtr(3)}
	cases := []struct {
		q    Query
		want bool
	}{
		{Query{}, true},
		{Query{Organism: OrganismSalmonella}, true},
		{Query{Organism: OrganismListeria}, false},
		{Query{Number: IntPtr(3)}, true},
		{Query{Number: IntPtr(0)}, false},
		{Query{MinNumber: IntPtr(1)}, true},
		{Query{MinNumber: IntPtr(4)}, false},
	}
	for i, tc := range cases {
		if got := tc.q.Matches(doc); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
	if (Query{MinNumber: IntPtr(0)}).Matches(Document{Key: "i1"}) {
		t.Fatalf("expected documents without number to fail number predicates")
	}
}
