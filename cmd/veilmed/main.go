package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/config/file"
	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/crypto"
	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/engine/deterministic"
	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/engine/remote"
	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/escalation"
	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/queue"
	"github.com/veilmed-labs/veilmed-core/internal/adapters/driven/storage/sqlite"
	"github.com/veilmed-labs/veilmed-core/internal/adapters/driving/api"
	"github.com/veilmed-labs/veilmed-core/internal/adapters/driving/cli"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driven"
	"github.com/veilmed-labs/veilmed-core/internal/core/services"
	"github.com/veilmed-labs/veilmed-core/internal/logger"
)

func main() {
	dataDir := os.Getenv("VEILMED_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		dataDir = filepath.Join(home, ".veilmed")
	}

	cfg, err := file.NewConfigStore(os.Getenv("VEILMED_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := wire(dataDir, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cli.Execute()
}

// wire builds the services and injects them into the CLI. The identity
// store and the processing store are separate database files; nothing
// past the tokenizer ever holds a reference to the identity side.
func wire(dataDir string, cfg *file.ConfigStore) error {
	identityKey, err := loadOrCreateKey(filepath.Join(dataDir, "identity.key"), 32)
	if err != nil {
		return fmt.Errorf("identity key: %w", err)
	}

	cipher, err := crypto.NewAESGCM(identityKey)
	if err != nil {
		return fmt.Errorf("identity cipher: %w", err)
	}

	identityDB, err := sqlite.OpenIdentityDB(dataDir)
	if err != nil {
		return fmt.Errorf("opening identity store: %w", err)
	}
	ledgerDB, err := sqlite.OpenLedgerDB(dataDir)
	if err != nil {
		return fmt.Errorf("opening ledger store: %w", err)
	}

	tokenizer := services.NewTokenizerService(
		identityDB.IdentityStore(), cipher, identityDB.AuditLog(), cfg.KeyAttributes())
	querySvc := services.NewQueryService(ledgerDB.LedgerStore())

	cli.SetTokenizer(tokenizer)
	cli.SetQuery(querySvc)
	cli.SetAuditLog(identityDB.AuditLog())
	cli.SetServeFunc(func(ctx context.Context, addr string) error {
		return serve(ctx, addr, dataDir, cfg, ledgerDB, querySvc)
	})
	return nil
}

// serve runs the processing pipeline: queue consumers, the escalation
// broker with a logging consumer, config hot reload, and the HTTP
// surface. Blocks until ctx is cancelled.
func serve(
	ctx context.Context,
	addr string,
	dataDir string,
	cfg *file.ConfigStore,
	ledgerDB *sqlite.LedgerDB,
	querySvc *services.QueryService,
) error {
	senderKey, err := loadOrCreateKey(filepath.Join(dataDir, "sender.key"), 32)
	if err != nil {
		return fmt.Errorf("sender key: %w", err)
	}

	broker := escalation.NewBroker()
	defer broker.Shutdown()

	fallback, err := escalation.NewFileSink(filepath.Join(dataDir, "escalations.jsonl"))
	if err != nil {
		return fmt.Errorf("escalation fallback: %w", err)
	}

	// Escalation consumer: logs each event once. Real deployments hang a
	// notification adapter here instead.
	go consumeEscalations(ctx, broker)

	recorder := services.NewRecorderService(
		ledgerDB.LedgerStore(), broker, fallback,
		cfg.TriggerRules, services.DefaultRetryPolicy())

	engines, err := buildEngines(cfg)
	if err != nil {
		return err
	}
	pipeline := services.NewPipelineService(recorder, engines...)

	q := queue.NewQueue(int64(maxConcurrent(cfg)))
	q.SetProcessor(pipeline.Process)
	q.Start(ctx)
	defer q.Stop()

	intake := services.NewIntakeService(
		q, cfg.IntakePolicy, senderKey, services.DefaultRetryPolicy())

	if err := cfg.Watch(ctx, func() {
		logger.Info("Policy configuration reloaded")
	}); err != nil {
		logger.Warn("Config watch unavailable: %v", err)
	}

	server := api.NewServer(querySvc)
	server.EnableIngest(intake, pipeline, intake.SenderHash)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving on %s", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// consumeEscalations drains the broker, logging each event on first
// delivery. At-least-once transport makes redeliveries normal.
func consumeEscalations(ctx context.Context, broker *escalation.Broker) {
	dedup := escalation.NewDeduper(10 * time.Minute)
	for event := range broker.Subscribe(ctx) {
		if !dedup.FirstDelivery(event.AnalysisID) {
			continue
		}
		logger.Info("ESCALATION [%s] analysis=%s case=%s reasons=%v",
			event.Severity, event.AnalysisID, event.CaseSession, event.TriggerReasons)
	}
}

// buildEngines assembles the agent chain from configuration. The default
// is the deterministic engine pair, so a fresh install analyses without
// a model endpoint.
func buildEngines(cfg *file.ConfigStore) ([]driven.AnalysisEngine, error) {
	agents := cfg.GetStringSlice("engine.agents")
	if len(agents) == 0 {
		agents = []string{"image_analysis", "risk_assessment"}
	}

	mode := cfg.GetString("engine.mode")
	if mode == "" {
		mode = "deterministic"
	}

	engines := make([]driven.AnalysisEngine, 0, len(agents))
	for _, agent := range agents {
		switch mode {
		case "deterministic":
			engines = append(engines, deterministic.New(agent))
		case "remote":
			eng, err := remote.New(remote.Config{
				BaseURL:   cfg.GetString("engine.remote.base_url"),
				AgentType: agent,
			})
			if err != nil {
				return nil, fmt.Errorf("remote engine %s: %w", agent, err)
			}
			engines = append(engines, eng)
		default:
			return nil, fmt.Errorf("unknown engine mode %q", mode)
		}
	}
	return engines, nil
}

func maxConcurrent(cfg *file.ConfigStore) int {
	if n := cfg.GetInt("queue.max_concurrent"); n > 0 {
		return n
	}
	return 8
}

// loadOrCreateKey reads a raw key file, generating it on first run.
func loadOrCreateKey(path string, size int) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != size {
			return nil, fmt.Errorf("key file %s: expected %d bytes, got %d", path, size, len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key = make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, err
	}
	return key, nil
}
