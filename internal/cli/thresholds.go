package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"geuebt/pkg/domain"
)

// NewThresholdsCommand creates the thresholds command.
func NewThresholdsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "thresholds",
		Short: "Print the organism QC admission thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printThresholds(cmd.OutOrStdout())
		},
	}
}

func printThresholds(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ORGANISM\tDEPTH\tASSEMBLY SIZE\tORTHOLOGS\tDUPLICATED\tGENUS FRACTION\tGENERA")
	for _, org := range domain.Organisms {
		t, ok := domain.ThresholdsFor(org)
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s-%sx\t%s\t>= %s%%\t<= %s%%\t>= %s\t%s\n",
			org,
			humanize.Ftoa(t.MinSeqDepth), humanize.Ftoa(t.MaxSeqDepth),
			assemblyRange(t.MinAssemblySize, t.MaxAssemblySize),
			humanize.Ftoa(t.MinOrthologsFound),
			humanize.Ftoa(t.MaxDuplicatedOrthologs),
			humanize.Ftoa(t.MinFractionMajorityGenus),
			strings.Join(t.AllowedGenera, ", "),
		)
	}
	return tw.Flush()
}

// assemblyRange renders e.g. "2.7 Mbp - 3.2 Mbp (2,700,000-3,200,000)".
func assemblyRange(lo, hi int64) string {
	return fmt.Sprintf("%s - %s (%s-%s)",
		humanize.SIWithDigits(float64(lo), 1, "bp"),
		humanize.SIWithDigits(float64(hi), 1, "bp"),
		humanize.Comma(lo), humanize.Comma(hi),
	)
}
