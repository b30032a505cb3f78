package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"geuebt/pkg/domain"
)

// ValidateOptions holds options for the validate command.
type ValidateOptions struct {
	JSON bool
	now  func() time.Time
}

// SheetReport is the verdict for one isolate sheet.
type SheetReport struct {
	File       string                  `json:"file"`
	Index      int                     `json:"index"`
	IsolateID  string                  `json:"isolate_id,omitempty"`
	Accepted   bool                    `json:"accepted"`
	Violations []domain.FieldViolation `json:"violations,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	opts := &ValidateOptions{now: func() time.Time { return time.Now().UTC() }}

	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check isolate sheets against the schema and QC thresholds",
		Long: `Decode isolate sheets from JSON or YAML files and report every schema and QC
violation without touching storage. A file may hold a single sheet or a list
of sheets. The command fails when any sheet would be rejected.`,
		Example: `  geuebt validate sheets/*.json
  geuebt validate --json batch.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the reports as JSON")
	return cmd
}

func runValidate(w io.Writer, files []string, opts *ValidateOptions) error {
	validator := domain.NewValidator()
	now := opts.now()

	var reports []SheetReport
	for _, file := range files {
		sheets, err := readSheets(file)
		if err != nil {
			return err
		}
		for i, sheet := range sheets {
			report := SheetReport{File: file, Index: i}
			var iso domain.Isolate
			if err := json.Unmarshal(sheet, &iso); err != nil {
				report.Violations = []domain.FieldViolation{{
					Type:  domain.ViolationJSON,
					Loc:   []string{"body"},
					Msg:   err.Error(),
					Input: string(sheet),
				}}
			} else {
				report.IsolateID = iso.IsolateID
				report.Violations = validator.Screen(iso, now)
			}
			report.Accepted = len(report.Violations) == 0
			reports = append(reports, report)
		}
	}

	rejected := 0
	for _, r := range reports {
		if !r.Accepted {
			rejected++
		}
	}

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		printReports(w, reports)
	}

	if rejected > 0 {
		return fmt.Errorf("%d of %d isolate sheets rejected", rejected, len(reports))
	}
	return nil
}

func printReports(w io.Writer, reports []SheetReport) {
	for _, r := range reports {
		label := r.IsolateID
		if label == "" {
			label = fmt.Sprintf("#%d", r.Index)
		}
		if r.Accepted {
			_, _ = fmt.Fprintf(w, "PASS  %s  %s\n", r.File, label)
			continue
		}
		_, _ = fmt.Fprintf(w, "FAIL  %s  %s\n", r.File, label)
		for _, v := range r.Violations {
			_, _ = fmt.Fprintf(w, "      %s: %s\n", v.Path(), v.Msg)
		}
	}
}

// readSheets decodes file as YAML (a superset of JSON) and returns each
// sheet re-encoded as JSON so the registry's JSON decoding applies.
func readSheets(file string) ([]json.RawMessage, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	var items []any
	switch v := doc.(type) {
	case nil:
		return nil, fmt.Errorf("%s: no isolate sheet found", file)
	case []any:
		items = v
	default:
		items = []any{v}
	}

	out := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("%s: sheet %d: %w", file, i, err)
		}
		out = append(out, b)
	}
	return out, nil
}
