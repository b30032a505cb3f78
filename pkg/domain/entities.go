// Package domain defines the registry records, closed enumerations, static
// QC threshold tables, schema checks and the record validator used by geuebt.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CollectionName identifies a flat per-entity document collection.
type CollectionName string

// Registry collections. Each one is keyed by the natural key of its record type.
const (
	// CollectionIsolates holds isolate sheets keyed by isolate_id.
	CollectionIsolates CollectionName = "isolates"
	// CollectionSequences holds sequence records keyed by isolate_id.
	CollectionSequences CollectionName = "sequences"
	// CollectionClusters holds cluster sheets keyed by cluster_id.
	CollectionClusters CollectionName = "clusters"
	// CollectionRuns holds run reports keyed by run_metadata.name.
	CollectionRuns CollectionName = "runs"
)

// Collections lists every registry collection in a stable order.
var Collections = []CollectionName{CollectionIsolates, CollectionSequences, CollectionClusters, CollectionRuns}

// Organism is the closed set of supported species, exchanged as scientific names.
type Organism string

// Supported organisms.
const (
	OrganismListeria      Organism = "Listeria monocytogenes"
	OrganismSalmonella    Organism = "Salmonella enterica"
	OrganismEscherichia   Organism = "Escherichia coli"
	OrganismCampylobacter Organism = "Campylobacter spp."
)

// Organisms lists the supported organisms in declaration order.
var Organisms = []Organism{OrganismListeria, OrganismSalmonella, OrganismEscherichia, OrganismCampylobacter}

// Valid reports whether o is one of the supported organisms.
func (o Organism) Valid() bool {
	return oneOf(o, Organisms)
}

// UserOrg identifies the lab that handled a processing step.
type UserOrg string

// Accepted processing organisations.
const (
	UserOWL   UserOrg = "OWL"
	UserRRW   UserOrg = "RRW"
	UserMEL   UserOrg = "MEL"
	UserWFL   UserOrg = "WFL"
	UserRLD   UserOrg = "RLD"
	UserOther UserOrg = "other"
)

// UserOrgs lists the accepted processing organisations.
var UserOrgs = []UserOrg{UserOWL, UserRRW, UserMEL, UserWFL, UserRLD, UserOther}

// SampleType describes the sampling context of an isolate.
type SampleType string

// Accepted sample types. Labels are the German terms used by the submitting labs.
const (
	SampleTypeFood      SampleType = "Lebensmittel"
	SampleTypeFeed      SampleType = "Futtermittel"
	SampleTypeEnv       SampleType = "Umfeld"
	SampleTypeVet       SampleType = "Tiergesundheit"
	SampleTypeHuman     SampleType = "Human"
	SampleTypeRingtrial SampleType = "Ringtrial"
	SampleTypeOther     SampleType = "unknown"
)

// SampleTypes lists the accepted sample types.
var SampleTypes = []SampleType{SampleTypeFood, SampleTypeFeed, SampleTypeEnv, SampleTypeVet, SampleTypeHuman, SampleTypeRingtrial, SampleTypeOther}

// SequenceType enumerates stored sequence file formats.
type SequenceType string

// SequenceTypeFasta is the only stored format.
const SequenceTypeFasta SequenceType = "fasta"

// SequenceTypes lists the accepted sequence formats.
var SequenceTypes = []SequenceType{SequenceTypeFasta}

// StatusFlag is the per-sample outcome of a QC run.
type StatusFlag string

// Run sample outcomes.
const (
	StatusPass StatusFlag = "PASS"
	StatusFail StatusFlag = "FAIL"
	StatusWarn StatusFlag = "WARN"
)

// StatusFlags lists the accepted run sample outcomes.
var StatusFlags = []StatusFlag{StatusPass, StatusFail, StatusWarn}

func oneOf[T comparable](v T, set []T) bool {
	for _, candidate := range set {
		if candidate == v {
			return true
		}
	}
	return false
}

// Date is a calendar date exchanged as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate returns the date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// MarshalJSON renders the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

// UnmarshalJSON parses a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", raw, err)
	}
	d.Time = t
	return nil
}

// SampleInfo records who processed the sample and how.
type SampleInfo struct {
	IsolationOrg         UserOrg `json:"isolation_org"`
	SequencingOrg        UserOrg `json:"sequencing_org"`
	BioinformaticsOrg    UserOrg `json:"bioinformatics_org"`
	ExtractionMethod     *string `json:"extraction_method,omitempty"`
	LibraryKit           *string `json:"library_kit,omitempty"`
	SequencingKit        *string `json:"sequencing_kit,omitempty"`
	SequencingInstrument *string `json:"sequencing_instrument,omitempty"`
	AssemblyMethod       *string `json:"assembly_method,omitempty"`
}

// Epidata carries free-form epidemiological context. No cross-field invariants apply.
type Epidata struct {
	CollectionDate       *Date   `json:"collection_date,omitempty"`
	Customer             *string `json:"customer,omitempty"`
	Manufacturer         *string `json:"manufacturer,omitempty"`
	CollectionPlace      *string `json:"collection_place,omitempty"`
	Description          *string `json:"description,omitempty"`
	ManufacturerType     *string `json:"manufacturer_type,omitempty"`
	ManufacturerTypeCode *string `json:"manufacturer_type_code,omitempty"`
	Matrix               *string `json:"matrix,omitempty"`
	MatrixCode           *string `json:"matrix_code,omitempty"`
	CollectionCause      *string `json:"collection_cause,omitempty"`
	CollectionCauseCode  *string `json:"collection_cause_code,omitempty"`
	LotNumber            *string `json:"lot_number,omitempty"`
}

// Epidata defaults applied when a submitted sheet omits the field.
const (
	DefaultCustomer = "NNNNN"
	DefaultUnknown  = "unknown"
)

// DefaultCollectionDate is used when no collection date is submitted.
var DefaultCollectionDate = NewDate(1970, time.January, 1)

// ApplyDefaults fills omitted epidata fields with their registry defaults.
func (e *Epidata) ApplyDefaults() {
	if e.CollectionDate == nil {
		d := DefaultCollectionDate
		e.CollectionDate = &d
	}
	setDefault(&e.Customer, DefaultCustomer)
	setDefault(&e.Manufacturer, DefaultUnknown)
	setDefault(&e.CollectionPlace, DefaultUnknown)
	setDefault(&e.Description, DefaultUnknown)
}

func setDefault(field **string, value string) {
	if *field == nil {
		v := value
		*field = &v
	}
}

// QCMetrics bundles the sequencing and assembly quality measurements of an isolate.
type QCMetrics struct {
	SeqDepth                float64  `json:"seq_depth"`
	RefCoverage             float64  `json:"ref_coverage"`
	Q30                     float64  `json:"q30"`
	N50                     int64    `json:"N50"`
	L50                     int64    `json:"L50"`
	NContigs1kbp            int64    `json:"n_contigs_1kbp"`
	AssemblySize            int64    `json:"assembly_size"`
	GCPerc                  float64  `json:"GC_perc"`
	OrthologsFound          float64  `json:"orthologs_found"`
	DuplicatedOrthologs     float64  `json:"duplicated_orthologs"`
	MajorityGenus           string   `json:"majority_genus"`
	FractionMajorityGenus   float64  `json:"fraction_majority_genus"`
	MajoritySpecies         string   `json:"majority_species"`
	FractionMajoritySpecies float64  `json:"fraction_majority_species"`
	CGMLSTMissingFraction   *float64 `json:"cgmlst_missing_fraction,omitempty"`
}

// LocusInfo is one locus of a cgMLST allele profile.
type LocusInfo struct {
	Locus       string `json:"locus"`
	AlleleCRC32 int64  `json:"allele_crc32"`
}

// AlleleStats summarises allele-call outcomes of a cgMLST run.
type AlleleStats struct {
	EXC  int `json:"EXC"`
	INF  int `json:"INF"`
	LNF  int `json:"LNF"`
	PLOT int `json:"PLOT"`
	NIPH int `json:"NIPH"`
	ALM  int `json:"ALM"`
	ASM  int `json:"ASM"`
}

// CGMLST holds the typed allele profile attached to an isolate after creation.
type CGMLST struct {
	AlleleProfile []LocusInfo `json:"allele_profile"`
	AlleleStats   AlleleStats `json:"allele_stats"`
}

// Isolate is the isolate sheet: sample metadata plus the QC bundle gated by the validator.
type Isolate struct {
	IsolateID       string     `json:"isolate_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	SampleID        string     `json:"sample_id"`
	AltIsolateID    *string    `json:"alt_isolate_id,omitempty"`
	Organism        Organism   `json:"organism"`
	ThirdPartyOwner *string    `json:"third_party_owner,omitempty"`
	SampleType      SampleType `json:"sample_type"`
	FastaName       string     `json:"fasta_name"`
	FastaMD5        string     `json:"fasta_md5"`
	SampleInfo      SampleInfo `json:"sample_info"`
	Epidata         Epidata    `json:"epidata"`
	QCMetrics       QCMetrics  `json:"qc_metrics"`
	CGMLST          *CGMLST    `json:"cgmlst,omitempty"`

	absent map[string]bool
}

// MissingLociQC is the QC fragment written together with an allele profile.
type MissingLociQC struct {
	CGMLSTMissingFraction *float64 `json:"cgmlst_missing_fraction"`
}

// AlleleProfileUpdate is the only partial update an isolate accepts.
type AlleleProfileUpdate struct {
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
	QCMetrics MissingLociQC `json:"qc_metrics"`
	CGMLST    *CGMLST       `json:"cgmlst"`

	absent map[string]bool
}

// Sequence stores the raw assembly text of an isolate.
type Sequence struct {
	IsolateID    string       `json:"isolate_id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    *time.Time   `json:"updated_at,omitempty"`
	SequenceType SequenceType `json:"sequence_type"`
	Sequence     string       `json:"sequence"`
}

// Subcluster is a nested group inside a cluster.
type Subcluster struct {
	SubclusterID     string   `json:"subcluster_id"`
	SubclusterNumber int      `json:"subcluster_number"`
	Size             int      `json:"size"`
	Representative   string   `json:"representative"`
	ADThreshold      int      `json:"AD_threshold"`
	Members          []string `json:"members"`
}

// PublicAnnotation is a user note attached to a cluster.
type PublicAnnotation struct {
	User    string     `json:"user"`
	Date    *time.Time `json:"date,omitempty"`
	Message string     `json:"message"`
}

// Priority is the triage level of a cluster; History keeps the previous level.
type Priority struct {
	Level   int        `json:"level"`
	Date    *time.Time `json:"date,omitempty"`
	User    string     `json:"user"`
	History *Priority  `json:"history,omitempty"`
}

// Tag links a cluster to an external identifier.
type Tag struct {
	TagID     string     `json:"tag_id"`
	TagOrigin string     `json:"tag_origin"`
	Date      *time.Time `json:"date,omitempty"`
}

// OrphanClusterNumber is the reserved cluster number of the per-organism orphan grouping.
const OrphanClusterNumber = 0

// Cluster is a named group of genetically related isolates.
type Cluster struct {
	ClusterID        string             `json:"cluster_id"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	ClusterNumber    int                `json:"cluster_number"`
	Organism         Organism           `json:"organism"`
	Priority         Priority           `json:"priority"`
	Tags             []Tag              `json:"tags,omitempty"`
	PublicAnnotation []PublicAnnotation `json:"public_annotation,omitempty"`
	Size             int                `json:"size"`
	Representative   *string            `json:"representative,omitempty"`
	ADThreshold      int                `json:"AD_threshold"`
	RootMembers      []string           `json:"root_members,omitempty"`
	Subclusters      []Subcluster       `json:"subclusters,omitempty"`
	DistanceMatrix   []map[string]int   `json:"distance_matrix"`
	Tree             string             `json:"tree"`
}

// IsOrphan reports whether the cluster is the organism's orphan placeholder.
func (c Cluster) IsOrphan() bool { return c.ClusterNumber == OrphanClusterNumber }

// RunMetadata identifies a QC run.
type RunMetadata struct {
	Name          string     `json:"name"`
	Date          *time.Time `json:"date,omitempty"`
	GeuebtVersion string     `json:"geuebt_version"`
	User          string     `json:"user"`
}

// SampleQC is the outcome of one isolate within a run.
type SampleQC struct {
	IsolateID string     `json:"isolate_id"`
	Status    StatusFlag `json:"STATUS"`
	Messages  []string   `json:"MESSAGES"`
}

// RunReport summarises a batch of isolates processed together.
type RunReport struct {
	RunMetadata RunMetadata `json:"run_metadata"`
	Samples     []SampleQC  `json:"samples"`
}

// IsolateRef is the list projection of isolates.
type IsolateRef struct {
	IsolateID string `json:"isolate_id"`
}

// ClusterRef is the list projection of clusters.
type ClusterRef struct {
	ClusterID string `json:"cluster_id"`
}

// RunRef is the list projection of run reports.
type RunRef struct {
	RunName string `json:"run_name"`
}

// AlleleProfileView projects an isolate onto its allele profile.
type AlleleProfileView struct {
	IsolateID string      `json:"isolate_id"`
	Profile   []LocusInfo `json:"profile"`
}
