package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Decision is the outcome of validating an isolate candidate. It is either
// Accepted or Rejected.
type Decision interface {
	decision()
}

// Accepted admits the candidate.
type Accepted struct{}

// Rejected carries the first failing QC check.
type Rejected struct {
	Violation FieldViolation
}

func (Accepted) decision() {}
func (Rejected) decision() {}

// ErrFromDecision converts a rejection into a ValidationError; Accepted yields nil.
func ErrFromDecision(d Decision) error {
	if r, ok := d.(Rejected); ok {
		return ValidationError{Violations: []FieldViolation{r.Violation}}
	}
	return nil
}

// Check is a single organism-specific QC rule.
type Check interface {
	Name() string
	Evaluate(organism Organism, qc QCMetrics, bounds Thresholds) (FieldViolation, bool)
}

// CheckFunc adapts a function into a Check.
type CheckFunc struct {
	CheckName string
	Fn        func(organism Organism, qc QCMetrics, bounds Thresholds) (FieldViolation, bool)
}

// Name returns the check identifier.
func (c CheckFunc) Name() string { return c.CheckName }

// Evaluate runs the wrapped function.
func (c CheckFunc) Evaluate(organism Organism, qc QCMetrics, bounds Thresholds) (FieldViolation, bool) {
	return c.Fn(organism, qc, bounds)
}

// Validator evaluates registered checks in registration order against the
// static threshold table.
type Validator struct {
	checks []Check
}

// NewValidator returns a validator loaded with the six admission checks in
// their fixed order: depth, assembly size, orthologs, duplicated orthologs,
// genus fraction, genus identity.
func NewValidator() *Validator {
	v := &Validator{}
	for _, c := range DefaultChecks() {
		v.Register(c)
	}
	return v
}

// Register appends a check to the validator.
func (v *Validator) Register(c Check) {
	v.checks = append(v.checks, c)
}

// Checks returns the registered check names in evaluation order.
func (v *Validator) Checks() []string {
	names := make([]string, 0, len(v.checks))
	for _, c := range v.checks {
		names = append(names, c.Name())
	}
	return names
}

// Decide returns Accepted or the first violated check.
func (v *Validator) Decide(iso Isolate) Decision {
	bounds, ok := ThresholdsFor(iso.Organism)
	if !ok {
		return Rejected{Violation: unknownOrganism(iso.Organism)}
	}
	for _, c := range v.checks {
		if violation, failed := c.Evaluate(iso.Organism, iso.QCMetrics, bounds); failed {
			return Rejected{Violation: violation}
		}
	}
	return Accepted{}
}

// Audit evaluates every check and returns all violations in check order.
func (v *Validator) Audit(iso Isolate) []FieldViolation {
	bounds, ok := ThresholdsFor(iso.Organism)
	if !ok {
		return []FieldViolation{unknownOrganism(iso.Organism)}
	}
	var out []FieldViolation
	for _, c := range v.checks {
		if violation, failed := c.Evaluate(iso.Organism, iso.QCMetrics, bounds); failed {
			out = append(out, violation)
		}
	}
	return out
}

// Screen reports every reason iso would be refused at creation: schema
// violations, a supplied allele profile, then each failing QC check. QC checks
// are skipped when the sheet omitted QC values. Epidata defaults are applied
// to a copy first.
func (v *Validator) Screen(iso Isolate, now time.Time) []FieldViolation {
	iso.Epidata.ApplyDefaults()
	out := CheckIsolate(iso, now)
	if fv, ok := SuppliedProfile(iso); ok {
		out = append(out, fv)
	}
	if iso.Organism.Valid() && !iso.qcIncomplete() {
		out = append(out, v.Audit(iso)...)
	}
	return out
}

// DefaultChecks returns the admission checks in evaluation order.
func DefaultChecks() []Check {
	return []Check{
		CheckFunc{CheckName: "seq_depth", Fn: checkDepth},
		CheckFunc{CheckName: "assembly_size", Fn: checkAssemblySize},
		CheckFunc{CheckName: "orthologs_found", Fn: checkOrthologs},
		CheckFunc{CheckName: "duplicated_orthologs", Fn: checkDuplicated},
		CheckFunc{CheckName: "fraction_majority_genus", Fn: checkGenusFraction},
		CheckFunc{CheckName: "majority_genus", Fn: checkGenus},
	}
}

func checkDepth(org Organism, qc QCMetrics, b Thresholds) (FieldViolation, bool) {
	if qc.SeqDepth >= b.MinSeqDepth && qc.SeqDepth <= b.MaxSeqDepth {
		return FieldViolation{}, false
	}
	msg := fmt.Sprintf("Value error: 'coverage' for '%s' must be between '%s' and %s, got %s.",
		org, formatFloat(b.MinSeqDepth), formatFloat(b.MaxSeqDepth), formatFloat(qc.SeqDepth))
	return qcViolation("seq_depth", org, msg, qc.SeqDepth, fmt.Sprintf("[%s, %s]", formatFloat(b.MinSeqDepth), formatFloat(b.MaxSeqDepth))), true
}

func checkAssemblySize(org Organism, qc QCMetrics, b Thresholds) (FieldViolation, bool) {
	if qc.AssemblySize >= b.MinAssemblySize && qc.AssemblySize <= b.MaxAssemblySize {
		return FieldViolation{}, false
	}
	msg := fmt.Sprintf("Value error: 'assembly_size' for '%s' must be between %d and %d, got: %d",
		org, b.MinAssemblySize, b.MaxAssemblySize, qc.AssemblySize)
	return qcViolation("assembly_size", org, msg, qc.AssemblySize, fmt.Sprintf("[%d, %d]", b.MinAssemblySize, b.MaxAssemblySize)), true
}

func checkOrthologs(org Organism, qc QCMetrics, b Thresholds) (FieldViolation, bool) {
	if qc.OrthologsFound >= b.MinOrthologsFound {
		return FieldViolation{}, false
	}
	msg := fmt.Sprintf("Value error: 'orthologs_found' for '%s' must be at least %s, got: %s",
		org, formatFloat(b.MinOrthologsFound), formatFloat(qc.OrthologsFound))
	return qcViolation("orthologs_found", org, msg, qc.OrthologsFound, ">= "+formatFloat(b.MinOrthologsFound)), true
}

func checkDuplicated(org Organism, qc QCMetrics, b Thresholds) (FieldViolation, bool) {
	if qc.DuplicatedOrthologs <= b.MaxDuplicatedOrthologs {
		return FieldViolation{}, false
	}
	msg := fmt.Sprintf("Value error: 'duplicated_orthologs' for '%s' must be at most %s, got: %s",
		org, formatFloat(b.MaxDuplicatedOrthologs), formatFloat(qc.DuplicatedOrthologs))
	return qcViolation("duplicated_orthologs", org, msg, qc.DuplicatedOrthologs, "<= "+formatFloat(b.MaxDuplicatedOrthologs)), true
}

func checkGenusFraction(org Organism, qc QCMetrics, b Thresholds) (FieldViolation, bool) {
	if qc.FractionMajorityGenus >= b.MinFractionMajorityGenus {
		return FieldViolation{}, false
	}
	msg := fmt.Sprintf("Value error: 'fraction_majority_genus' for '%s' must be at least %s, got: %s",
		org, formatFloat(b.MinFractionMajorityGenus), formatFloat(qc.FractionMajorityGenus))
	return qcViolation("fraction_majority_genus", org, msg, qc.FractionMajorityGenus, ">= "+formatFloat(b.MinFractionMajorityGenus)), true
}

func checkGenus(org Organism, qc QCMetrics, b Thresholds) (FieldViolation, bool) {
	if b.GenusAllowed(qc.MajorityGenus) {
		return FieldViolation{}, false
	}
	allowed := formatGenera(b.AllowedGenera)
	msg := fmt.Sprintf("Value error: 'majority_genus' for '%s' must be in %s, got: %s", org, allowed, qc.MajorityGenus)
	return qcViolation("majority_genus", org, msg, qc.MajorityGenus, allowed), true
}

func qcViolation(field string, org Organism, msg string, input any, expected string) FieldViolation {
	return FieldViolation{
		Type:  ViolationValue,
		Loc:   []string{"body", "qc_metrics", field},
		Msg:   msg,
		Input: input,
		Ctx:   map[string]any{"organism": string(org), "expected": expected},
	}
}

func unknownOrganism(org Organism) FieldViolation {
	return FieldViolation{
		Type:  ViolationEnum,
		Loc:   []string{"body", "organism"},
		Msg:   fmt.Sprintf("Input should be %s", enumList(Organisms)),
		Input: string(org),
		Ctx:   map[string]any{"expected": enumList(Organisms)},
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatGenera(genera []string) string {
	quoted := make([]string, 0, len(genera))
	for _, g := range genera {
		quoted = append(quoted, "'"+g+"'")
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func enumList[T ~string](values []T) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, "'"+string(v)+"'")
	}
	if len(quoted) <= 1 {
		return strings.Join(quoted, "")
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
}
