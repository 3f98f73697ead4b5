package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

var chainJSON bool

var chainCmd = &cobra.Command{
	Use:   "chain [case-session]",
	Short: "Show a case session's analysis chain",
	Long: `Retrieves all analysis records for a case session, topologically
sorted so every parent precedes its children.`,
	Args: cobra.ExactArgs(1),
	RunE: runChain,
}

func init() {
	chainCmd.Flags().BoolVar(&chainJSON, "json", false, "output records as JSON")
	rootCmd.AddCommand(chainCmd)
}

func runChain(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	records, err := queryService.GetChain(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("chain query failed: %w", err)
	}

	if chainJSON {
		return outputJSON(cmd, records)
	}
	return outputChainTable(cmd, records)
}

func outputJSON(cmd *cobra.Command, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputChainTable(cmd *cobra.Command, records []domain.AnalysisRecord) error {
	if len(records) == 0 {
		cmd.Println("No records found.")
		return nil
	}

	cmd.Printf("Chain (%d records):\n\n", len(records))
	for i := range records {
		record := &records[i]
		cmd.Printf("  [%d] %s  %s\n", i+1, record.ID, record.AgentType)
		if record.ParentID != nil {
			cmd.Printf("      parent: %s\n", *record.ParentID)
		}
		cmd.Printf("      at: %s\n", record.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		if len(record.EscalationTriggers) > 0 {
			cmd.Printf("      escalated: %v\n", record.EscalationTriggers)
		}
		cmd.Println()
	}
	return nil
}
