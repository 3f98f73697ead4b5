package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

var (
	perfFrom string
	perfTo   string
	perfJSON bool
)

var performanceCmd = &cobra.Command{
	Use:   "performance [agent-type]",
	Short: "Aggregate an agent type's performance over a time window",
	Long: `Computes success rate, escalation rate, average latency, and average
confidence over an agent type's ledger records. The window bounds are
RFC 3339 timestamps; omitting one leaves that side unbounded.`,
	Args: cobra.ExactArgs(1),
	RunE: runPerformance,
}

func init() {
	performanceCmd.Flags().StringVar(&perfFrom, "from", "", "window start (RFC 3339)")
	performanceCmd.Flags().StringVar(&perfTo, "to", "", "window end (RFC 3339)")
	performanceCmd.Flags().BoolVar(&perfJSON, "json", false, "output the aggregate as JSON")
	rootCmd.AddCommand(performanceCmd)
}

func runPerformance(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	window, err := parseCmdWindow(perfFrom, perfTo)
	if err != nil {
		return err
	}

	perf, err := queryService.AgentPerformance(context.Background(), args[0], window)
	if err != nil {
		return fmt.Errorf("performance query failed: %w", err)
	}

	if perfJSON {
		return outputJSON(cmd, perf)
	}

	cmd.Printf("Performance for %s (%d records):\n", perf.AgentType, perf.Records)
	if perf.Records == 0 {
		return nil
	}
	cmd.Printf("  success rate:    %.1f%%\n", perf.SuccessRate*100)
	cmd.Printf("  escalation rate: %.1f%%\n", perf.EscalationRate*100)
	cmd.Printf("  avg latency:     %.0f ms\n", perf.AvgLatencyMS)
	cmd.Printf("  avg confidence:  %.2f\n", perf.AvgConfidence)
	return nil
}

func parseCmdWindow(from, to string) (domain.Window, error) {
	var window domain.Window

	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return window, fmt.Errorf("malformed --from: %w", err)
		}
		window.From = t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return window, fmt.Errorf("malformed --to: %w", err)
		}
		window.To = t
	}
	return window, nil
}
