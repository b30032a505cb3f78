package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"geuebt/pkg/domain"
)

type errorBody struct {
	Detail any `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorBody{Detail: "Item not found"})
}

func writeViolations(w http.ResponseWriter, violations []domain.FieldViolation) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: violations})
}

// writeError maps registry errors onto status codes.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		nf       domain.ErrNotFound
		conflict domain.ErrConflict
		invalid  domain.ValidationError
	)
	switch {
	case errors.As(err, &nf):
		writeNotFound(w)
	case errors.As(err, &conflict):
		writeViolations(w, []domain.FieldViolation{conflict.Violation()})
	case errors.As(err, &invalid):
		writeViolations(w, invalid.Violations)
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "Internal Server Error"})
	}
}

// decodeViolation turns a JSON decoding failure into a body-level violation.
// Type mismatches point at the offending field.
func decodeViolation(err error) domain.FieldViolation {
	loc := []string{"body"}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field != "" {
			loc = append(loc, strings.Split(typeErr.Field, ".")...)
		}
		return domain.FieldViolation{
			Type:  domain.ViolationJSON,
			Loc:   loc,
			Msg:   fmt.Sprintf("Input should be a valid %s", typeErr.Type),
			Input: typeErr.Value,
		}
	}
	return domain.FieldViolation{
		Type: domain.ViolationJSON,
		Loc:  loc,
		Msg:  "JSON decode error: " + err.Error(),
	}
}
