package domain

// MaxSeqDepth is the sequencing depth ceiling shared by every organism.
const MaxSeqDepth = 200

// Thresholds holds the organism-specific QC admission bounds.
type Thresholds struct {
	MinSeqDepth              float64
	MaxSeqDepth              float64
	MinAssemblySize          int64
	MaxAssemblySize          int64
	MinOrthologsFound        float64
	MaxDuplicatedOrthologs   float64
	MinFractionMajorityGenus float64
	AllowedGenera            []string
}

var thresholds = map[Organism]Thresholds{
	OrganismListeria: {
		MinSeqDepth:              20,
		MaxSeqDepth:              MaxSeqDepth,
		MinAssemblySize:          2_700_000,
		MaxAssemblySize:          3_200_000,
		MinOrthologsFound:        95,
		MaxDuplicatedOrthologs:   5,
		MinFractionMajorityGenus: 0.9,
		AllowedGenera:            []string{"Listeria"},
	},
	OrganismSalmonella: {
		MinSeqDepth:              30,
		MaxSeqDepth:              MaxSeqDepth,
		MinAssemblySize:          4_300_000,
		MaxAssemblySize:          5_200_000,
		MinOrthologsFound:        95,
		MaxDuplicatedOrthologs:   5,
		MinFractionMajorityGenus: 0.9,
		AllowedGenera:            []string{"Salmonella"},
	},
	OrganismEscherichia: {
		MinSeqDepth:              40,
		MaxSeqDepth:              MaxSeqDepth,
		MinAssemblySize:          4_500_000,
		MaxAssemblySize:          5_900_000,
		MinOrthologsFound:        95,
		MaxDuplicatedOrthologs:   5,
		MinFractionMajorityGenus: 0.9,
		AllowedGenera:            []string{"Escherichia", "Shigella"},
	},
	OrganismCampylobacter: {
		MinSeqDepth:              20,
		MaxSeqDepth:              MaxSeqDepth,
		MinAssemblySize:          1_500_000,
		MaxAssemblySize:          1_900_000,
		MinOrthologsFound:        80,
		MaxDuplicatedOrthologs:   5,
		MinFractionMajorityGenus: 0.9,
		AllowedGenera:            []string{"Campylobacter"},
	},
}

// ThresholdsFor returns a copy of the bounds for organism.
func ThresholdsFor(organism Organism) (Thresholds, bool) {
	t, ok := thresholds[organism]
	if !ok {
		return Thresholds{}, false
	}
	t.AllowedGenera = append([]string(nil), t.AllowedGenera...)
	return t, true
}

// GenusAllowed reports whether genus is admitted for the organism.
func (t Thresholds) GenusAllowed(genus string) bool {
	return oneOf(genus, t.AllowedGenera)
}
