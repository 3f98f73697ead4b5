package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent tokenization boundary calls",
	Long: `Lists recent calls into the tokenization boundary, newest first.
Entries carry caller realm, operation, and outcome only; audit output
never contains identity content.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "maximum number of entries")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, _ []string) error {
	if auditLogService == nil {
		return errors.New("audit log not configured")
	}

	entries, err := auditLogService.List(context.Background(), auditLimit)
	if err != nil {
		return fmt.Errorf("audit query failed: %w", err)
	}

	if len(entries) == 0 {
		cmd.Println("No audit entries.")
		return nil
	}

	for _, entry := range entries {
		cmd.Printf("%s  %-10s %-10s %s\n",
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			entry.Caller, entry.Purpose, entry.Outcome)
	}
	return nil
}
