package domain

import (
	"fmt"
	"strings"
)

// Violation types reported in FieldViolation.Type.
const (
	ViolationValue    = "value_error"
	ViolationMissing  = "missing"
	ViolationEnum     = "enum"
	ViolationRange    = "range"
	ViolationDate     = "date_past"
	ViolationConflict = "str"
	ViolationJSON     = "json_invalid"
	ViolationExtra    = "extra_forbidden"
)

// ConflictMessage is reported when a natural key is already taken.
const ConflictMessage = "A document with this ID already exists in the collection"

// FieldViolation describes a single rejected input field.
type FieldViolation struct {
	Type  string         `json:"type"`
	Loc   []string       `json:"loc"`
	Msg   string         `json:"msg"`
	Input any            `json:"input"`
	Ctx   map[string]any `json:"ctx,omitempty"`
}

// Path renders the location without the leading "body" segment, e.g. qc_metrics.seq_depth.
func (v FieldViolation) Path() string {
	loc := v.Loc
	if len(loc) > 0 && loc[0] == "body" {
		loc = loc[1:]
	}
	return strings.Join(loc, ".")
}

// ValidationError aggregates schema or QC violations for a submitted record.
type ValidationError struct {
	Violations []FieldViolation
}

func (e ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Msg)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// ErrNotFound reports a missing record.
type ErrNotFound struct {
	Collection CollectionName
	Key        string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Collection, e.Key)
}

// ErrConflict reports a create against an existing natural key.
type ErrConflict struct {
	Collection CollectionName
	Key        string
	// KeyField names the body field carrying the natural key, dotted when
	// nested.
	KeyField string
}

func (e ErrConflict) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Collection, e.Key)
}

// Violation renders the conflict as a field violation on the key field.
func (e ErrConflict) Violation() FieldViolation {
	field := e.KeyField
	if field == "" {
		field = keyFields[e.Collection]
	}
	return FieldViolation{
		Type:  ViolationConflict,
		Loc:   append([]string{"body"}, strings.Split(field, ".")...),
		Msg:   ConflictMessage,
		Input: e.Key,
		Ctx:   map[string]any{"expected": ""},
	}
}

var keyFields = map[CollectionName]string{
	CollectionIsolates:  "isolate_id",
	CollectionSequences: "isolate_id",
	CollectionClusters:  "cluster_id",
	CollectionRuns:      "run_metadata.name",
}

// KeyField returns the natural key field of a collection.
func KeyField(c CollectionName) string { return keyFields[c] }
