package domain

import (
	"encoding/json"
	"strings"
)

// Keys a decoded isolate sheet must carry. Numeric QC values have no usable
// zero, so an omitted key is reported instead of read as 0. Children are only
// checked when their parent object is present.
var isolateRequiredKeys = []string{
	"sample_info",
	"qc_metrics",
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

var profileRequiredKeys = []string{
	"cgmlst.allele_profile",
	"cgmlst.allele_stats",
	"cgmlst.allele_stats.EXC",
	"cgmlst.allele_stats.INF",
	"cgmlst.allele_stats.LNF",
	"cgmlst.allele_stats.PLOT",
	"cgmlst.allele_stats.NIPH",
	"cgmlst.allele_stats.ALM",
	"cgmlst.allele_stats.ASM",
}

// UnmarshalJSON decodes an isolate sheet and remembers which required keys
// were absent or null.
func (iso *Isolate) UnmarshalJSON(data []byte) error {
	type plain Isolate
	if err := json.Unmarshal(data, (*plain)(iso)); err != nil {
		return err
	}
	absent, err := absentKeys(data, isolateRequiredKeys)
	if err != nil {
		return err
	}
	iso.absent = absent
	return nil
}

// UnmarshalJSON decodes an allele-profile payload and remembers which
// required keys were absent or null.
func (u *AlleleProfileUpdate) UnmarshalJSON(data []byte) error {
	type plain AlleleProfileUpdate
	if err := json.Unmarshal(data, (*plain)(u)); err != nil {
		return err
	}
	absent, err := absentKeys(data, profileRequiredKeys)
	if err != nil {
		return err
	}
	u.absent = absent
	return nil
}

// absentKeys walks dotted paths through a JSON object and returns the ones
// that are missing or null. A path whose parent is missing is skipped.
func absentKeys(data []byte, paths []string) (map[string]bool, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	var absent map[string]bool
	for _, path := range paths {
		parts := strings.Split(path, ".")
		node := root
		for i, part := range parts {
			v, ok := node[part]
			if !ok || v == nil {
				if i == len(parts)-1 {
					if absent == nil {
						absent = make(map[string]bool)
					}
					absent[path] = true
				}
				break
			}
			next, isObject := v.(map[string]any)
			if !isObject {
				break
			}
			node = next
		}
	}
	return absent, nil
}

// present reports whether loc was supplied, recording a missing-field
// violation when it was not.
func (s *schemaCheck) present(absent map[string]bool, loc ...string) bool {
	if !absent[strings.Join(loc, ".")] {
		return true
	}
	s.add(FieldViolation{Type: ViolationMissing, Loc: bodyLoc(loc), Msg: "Field required"})
	return false
}

// qcIncomplete reports whether any QC key was missing from the decoded sheet.
func (iso Isolate) qcIncomplete() bool {
	for key := range iso.absent {
		if strings.HasPrefix(key, "qc_metrics") {
			return true
		}
	}
	return false
}
