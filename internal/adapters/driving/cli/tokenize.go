package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
)

var tokenizeAttrs []string

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize",
	Short: "Issue or look up the opaque token for an identity",
	Long: `Maps identity attributes to a stable opaque token, issuing one if
none exists. Runs in the hospital realm: this command is the only CLI
surface that handles raw identity, and nothing it prints beyond the
token may be passed downstream.`,
	RunE: runTokenize,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [token]",
	Short: "Resolve a token back to identity attributes",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate [token]",
	Short: "Deactivate a token mapping on discharge or retention expiry",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeactivate,
}

func init() {
	tokenizeCmd.Flags().StringArrayVarP(&tokenizeAttrs, "attr", "a", nil,
		"identity attribute as name=value (repeatable)")
	rootCmd.AddCommand(tokenizeCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(deactivateCmd)
}

// hospitalContext marks CLI tokenization commands as hospital-side
// callers. The processing realm never runs these commands.
func hospitalContext() context.Context {
	return domain.WithCallerRealm(context.Background(), domain.RealmHospital)
}

func runTokenize(cmd *cobra.Command, _ []string) error {
	if tokenizerService == nil {
		return errors.New("tokenizer service not configured")
	}

	attrs, err := parseAttrs(tokenizeAttrs)
	if err != nil {
		return err
	}

	token, err := tokenizerService.Tokenize(hospitalContext(), attrs)
	if err != nil {
		return fmt.Errorf("tokenize failed: %w", err)
	}

	cmd.Println(string(token))
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	if tokenizerService == nil {
		return errors.New("tokenizer service not configured")
	}

	attrs, err := tokenizerService.Resolve(hospitalContext(), domain.Token(args[0]))
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	for _, name := range sortedKeys(attrs) {
		cmd.Printf("%s: %s\n", name, attrs[name])
	}
	return nil
}

func runDeactivate(cmd *cobra.Command, args []string) error {
	if tokenizerService == nil {
		return errors.New("tokenizer service not configured")
	}

	if err := tokenizerService.Deactivate(hospitalContext(), domain.Token(args[0])); err != nil {
		return fmt.Errorf("deactivate failed: %w", err)
	}

	cmd.Printf("Deactivated %s\n", args[0])
	return nil
}

// parseAttrs converts repeated name=value flags into identity attributes.
func parseAttrs(pairs []string) (domain.IdentityAttributes, error) {
	if len(pairs) == 0 {
		return nil, errors.New("at least one --attr name=value is required")
	}

	attrs := make(domain.IdentityAttributes, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("malformed attribute %q, expected name=value", pair)
		}
		attrs[name] = value
	}
	return attrs, nil
}

func sortedKeys(attrs domain.IdentityAttributes) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
