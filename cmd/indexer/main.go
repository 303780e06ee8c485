// Package main provides the stream indexer daemon:
// - Poll loop (continuous): getEvents -> classify -> apply -> checkpoint
// - WebSocket fan-out of applied events at /ws
// - Health, metrics, and status endpoints
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"soroban-stream-indexer/internal/indexer"
	"soroban-stream-indexer/internal/notify"
	"soroban-stream-indexer/internal/observability"
	"soroban-stream-indexer/internal/soroban"
	"soroban-stream-indexer/internal/storage"
	chstore "soroban-stream-indexer/internal/storage/clickhouse"
	"soroban-stream-indexer/internal/storage/memory"
	"soroban-stream-indexer/internal/storage/migrations"
	pgstore "soroban-stream-indexer/internal/storage/postgres"
)

// Server holds the daemon's components and the state behind /status.
type Server struct {
	logger      *log.Logger
	worker      *indexer.Worker
	hub         *notify.Hub
	checkpoints storage.CheckpointStore
	started     time.Time
}

// daemonStores holds the storage backends the daemon runs on.
type daemonStores struct {
	uow         storage.UnitOfWork
	checkpoints storage.CheckpointStore
	activity    storage.ActivityStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOROBAN_RPC_ENDPOINT"), "Soroban RPC HTTP endpoint")
	contractID := flag.String("contract-id", os.Getenv("STREAM_CONTRACT_ID"), "Payment streaming contract ID to index")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (empty disables analytics)")
	startLedger := flag.Uint("start-ledger", 1, "Ledger to scan from before the first checkpoint exists")
	pollInterval := flag.Duration("poll-interval", 5*time.Second, "getEvents poll interval")
	pageLimit := flag.Int("page-limit", 100, "getEvents page size")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	httpAddr := flag.String("http-addr", ":8080", "HTTP address for /ws, /health, /metrics, /status")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if *contractID == "" {
		logger.Println("No --contract-id configured, the indexer will stay idle")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create components
	hub := notify.NewHub(nil, log.New(os.Stdout, "[notify] ", log.LstdFlags|log.Lshortfile))
	indexLogger := log.New(os.Stdout, "[indexer] ", log.LstdFlags|log.Lshortfile)

	applier := indexer.NewApplier(indexer.ApplierOptions{
		UnitOfWork: stores.uow,
		Sink:       hub,
		Activity:   stores.activity,
		Logger:     indexLogger,
	})

	worker := indexer.NewWorker(indexer.WorkerOptions{
		Client:       soroban.NewHTTPClient(*rpcEndpoint),
		Applier:      applier,
		Checkpoints:  stores.checkpoints,
		ContractID:   *contractID,
		StartLedger:  uint32(*startLedger),
		PollInterval: *pollInterval,
		PageLimit:    *pageLimit,
		Logger:       indexLogger,
	})

	server := &Server{
		logger:      logger,
		worker:      worker,
		hub:         hub,
		checkpoints: stores.checkpoints,
		started:     time.Now(),
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*httpAddr)

	// Run until cancelled
	worker.Start()
	<-ctx.Done()

	worker.Stop()
	hub.Close()
	close(done)

	logger.Println("Shutdown complete")
}

// createStores creates the storage backends for the daemon.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*daemonStores, func(), error) {
	if useMemory {
		stores := &daemonStores{
			uow:         memory.NewUnitOfWork(memory.NewStreamStore(), memory.NewStreamEventStore(), memory.NewUserStore()),
			checkpoints: memory.NewCheckpointStore(),
			activity:    memory.NewActivityStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	stores := &daemonStores{
		uow:         pgstore.NewUnitOfWork(pool),
		checkpoints: pgstore.NewCheckpointStore(pool),
	}
	cleanup := func() { pool.Close() }

	// ClickHouse is optional; without it the applier skips activity
	// writes.
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		stores.activity = chstore.NewActivityStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return stores, cleanup, nil
}

// startHTTPServer serves the ws hub and the operational endpoints.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	// WebSocket notification fan-out
	mux.Handle("/ws", s.hub)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status            string `json:"status"`
	Uptime            string `json:"uptime"`
	IndexerRunning    bool   `json:"indexer_running"`
	CheckpointLedger  uint32 `json:"checkpoint_ledger,omitempty"`
	CheckpointCursor  string `json:"checkpoint_cursor,omitempty"`
	CheckpointUpdated int64  `json:"checkpoint_updated_at,omitempty"`
	Subscribers       int    `json:"subscribers"`
}

// handleStatus returns daemon status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:         "running",
		Uptime:         time.Since(s.started).String(),
		IndexerRunning: s.worker.Running(),
		Subscribers:    s.hub.Subscribers(),
	}

	if cp, err := s.checkpoints.Get(r.Context()); err == nil {
		resp.CheckpointLedger = cp.LastLedger
		resp.CheckpointCursor = cp.LastCursor
		resp.CheckpointUpdated = cp.UpdatedAt
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
