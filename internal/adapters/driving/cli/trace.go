package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var traceJSON bool

var traceCmd = &cobra.Command{
	Use:   "trace [analysis-id]",
	Short: "Trace the decision pathway behind an analysis record",
	Long: `Walks the ancestor chain from the root record to the given one,
showing how confidence evolved and how much distinct evidence
accumulated at each step.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().BoolVar(&traceJSON, "json", false, "output the trace as JSON")
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	trace, err := queryService.TracePathway(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("trace failed: %w", err)
	}

	if traceJSON {
		return outputJSON(cmd, trace)
	}

	cmd.Printf("Pathway for %s (case session %s):\n\n", trace.AnalysisID, trace.CaseSession)
	for i, step := range trace.Steps {
		cmd.Printf("  %d. %s  %s\n", i+1, step.AnalysisID, step.AgentType)
		if overall, ok := step.Confidence["overall"]; ok {
			cmd.Printf("     confidence: %.2f\n", overall)
		}
		cmd.Printf("     evidence so far: %d\n", step.CumulativeEvidence)
	}
	return nil
}
