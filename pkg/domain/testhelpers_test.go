package domain

import "time"

var fixedNow = time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)

func validIsolate() Isolate {
	collected := NewDate(2024, time.May, 17)
	return Isolate{
		IsolateID:  "2024-12345678-01",
		SampleID:   "2024-12345678",
		Organism:   OrganismListeria,
		SampleType: SampleTypeFood,
		FastaName:  "2024-12345678-01.fasta",
		FastaMD5:   "9e107d9d372bb6826bd81d3542a419d6",
		SampleInfo: SampleInfo{IsolationOrg: UserOWL, SequencingOrg: UserRRW, BioinformaticsOrg: UserRRW},
		Epidata:    Epidata{CollectionDate: &collected},
		QCMetrics: QCMetrics{
			SeqDepth:                50,
			RefCoverage:             0.95,
			Q30:                     0.92,
			N50:                     450_000,
			L50:                     3,
			NContigs1kbp:            15,
			AssemblySize:            3_000_000,
			GCPerc:                  38,
			OrthologsFound:          98.5,
			DuplicatedOrthologs:     0.5,
			MajorityGenus:           "Listeria",
			FractionMajorityGenus:   0.98,
			MajoritySpecies:         "Listeria monocytogenes",
			FractionMajoritySpecies: 0.97,
		},
	}
}
