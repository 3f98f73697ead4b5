package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var correlateJSON bool

var correlateCmd = &cobra.Command{
	Use:   "correlate [case-session]",
	Short: "Correlate agent behaviour within a case session",
	Long: `Computes pairwise evidence overlap, per-field decision agreement
rates, and the confidence trend across all agents in a case session.`,
	Args: cobra.ExactArgs(1),
	RunE: runCorrelate,
}

func init() {
	correlateCmd.Flags().BoolVar(&correlateJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(correlateCmd)
}

func runCorrelate(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	report, err := queryService.Correlate(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("correlate failed: %w", err)
	}

	if correlateJSON {
		return outputJSON(cmd, report)
	}

	cmd.Printf("Correlation for case session %s:\n\n", report.CaseSession)
	if len(report.Pairs) == 0 {
		cmd.Println("  No agent pairs to compare.")
		return nil
	}

	cmd.Println("  Evidence overlap:")
	for _, pair := range report.Pairs {
		cmd.Printf("    %s / %s: %.1f%%\n", pair.AgentA, pair.AgentB, pair.EvidenceOverlapPct)
	}

	if len(report.AgreementRates) > 0 {
		cmd.Println("\n  Field agreement:")
		for _, field := range sortedRateKeys(report.AgreementRates) {
			cmd.Printf("    %s: %.0f%%\n", field, report.AgreementRates[field]*100)
		}
	}

	cmd.Printf("\n  Confidence trend: %s\n", report.ConfidenceTrend)
	return nil
}

func sortedRateKeys(rates map[string]float64) []string {
	keys := make([]string, 0, len(rates))
	for k := range rates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
