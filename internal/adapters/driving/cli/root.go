// Package cli provides the veilmed command line interface. Commands
// talk to the core through the driving ports only; the composition
// root injects concrete services before Execute runs.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driving"
	"github.com/veilmed-labs/veilmed-core/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services injected by the composition root before Execute.
var (
	tokenizerService driving.Tokenizer
	queryService     driving.ChainQuery
	auditLogService  driven.AuditLog
	serveFunc        func(ctx context.Context, addr string) error
)

// SetTokenizer injects the tokenization service.
func SetTokenizer(s driving.Tokenizer) { tokenizerService = s }

// SetQuery injects the chain query engine.
func SetQuery(s driving.ChainQuery) { queryService = s }

// SetAuditLog injects the tokenization audit log.
func SetAuditLog(s driven.AuditLog) { auditLogService = s }

// SetServeFunc injects the pipeline runner started by the serve command.
func SetServeFunc(fn func(ctx context.Context, addr string) error) { serveFunc = fn }

// SetVersion overrides the build version string.
func SetVersion(v string) { version = v }

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "veilmed",
	Short: "Privacy-preserving medical analysis pipeline",
	Long: `veilmed runs a medical analysis pipeline behind a strict privacy
boundary: identity is tokenized at the edge, every analysis is an
append-only ledger record keyed by opaque token, and decision chains
are queryable without ever touching a real identity.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		logger.SetVerbose(verboseFlag)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
