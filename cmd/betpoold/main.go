package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"betpool/cmd/internal/passphrase"
	"betpool/config"
	"betpool/core"
	"betpool/core/genesis"
	"betpool/crypto"
	"betpool/observability/logging"
	"betpool/observability/otel"
	"betpool/rpc"
	"betpool/services/indexer"
	"betpool/storage"
)

const signerPassEnv = "BETPOOL_SIGNER_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.SetupWithSink("betpoold", cfg.Logging.Environment, logging.FileSink{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Endpoint != "" {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "betpoold",
			Environment: cfg.Logging.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	genesisPath := strings.TrimSpace(*genesisFlag)
	if genesisPath == "" {
		genesisPath = strings.TrimSpace(cfg.GenesisFile)
	}
	var spec *genesis.Spec
	if genesisPath != "" {
		spec, err = genesis.Load(genesisPath)
		if err != nil {
			panic(fmt.Sprintf("Failed to load genesis spec: %v", err))
		}
	}

	node, err := core.NewNode(db, spec)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialise node: %v", err))
	}

	signerKey, err := loadSignerKey(cfg)
	if err != nil {
		logger.Error("Failed to load odds signer key", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("odds signer key loaded",
		slog.String("address", signerKey.PubKey().Address().String()))

	if dsn := strings.TrimSpace(cfg.IndexerDSN); dsn != "" {
		idxDB, err := indexer.Open(dsn)
		if err != nil {
			logger.Error("Failed to open indexer store", slog.Any("error", err))
			os.Exit(1)
		}
		ix := indexer.New(idxDB, logger)
		go func() {
			if err := ix.Run(ctx, node.Events()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Indexer stopped", slog.Any("error", err))
			}
		}()
	}

	server := rpc.NewServer(node, rpc.Config{
		AuthToken: cfg.RPCToken,
		JWTSecret: cfg.RPCJWTSecret,
	}, logger)
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting JSON-RPC server", slog.String("addr", cfg.RPCAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down RPC server", slog.Any("error", err))
	}
}

// loadSignerKey opens the odds signer keystore. The passphrase comes from the
// environment when set; keystores generated by the config loader are
// unprotected.
func loadSignerKey(cfg *config.Config) (*crypto.PrivateKey, error) {
	pass := ""
	if _, ok := os.LookupEnv(signerPassEnv); ok {
		source := passphrase.NewSource(signerPassEnv)
		resolved, err := source.Get()
		if err != nil {
			return nil, err
		}
		pass = resolved
	}
	return crypto.LoadFromKeystore(cfg.OddsSignerKeystorePath, pass)
}
