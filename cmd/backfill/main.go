// Package main provides one-shot ledger-range backfill through the
// same classify/apply path as the daemon. Deduplication makes reruns
// over already-indexed ranges safe.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"soroban-stream-indexer/internal/indexer"
	"soroban-stream-indexer/internal/soroban"
	"soroban-stream-indexer/internal/storage"
	chstore "soroban-stream-indexer/internal/storage/clickhouse"
	"soroban-stream-indexer/internal/storage/memory"
	"soroban-stream-indexer/internal/storage/migrations"
	pgstore "soroban-stream-indexer/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOROBAN_RPC_ENDPOINT"), "Soroban RPC HTTP endpoint")
	contractID := flag.String("contract-id", os.Getenv("STREAM_CONTRACT_ID"), "Payment streaming contract ID to index")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (empty disables analytics)")
	fromLedger := flag.Uint("from-ledger", 0, "First ledger of the range (required)")
	toLedger := flag.Uint("to-ledger", 0, "Last ledger of the range (0 = to latest)")
	pageLimit := flag.Int("page-limit", 100, "getEvents page size")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (dry run)")

	flag.Parse()

	// Validate required flags
	if *rpcEndpoint == "" || *contractID == "" {
		fmt.Fprintln(os.Stderr, "Error: --rpc-endpoint and --contract-id are required")
		os.Exit(1)
	}
	if *fromLedger == 0 {
		fmt.Fprintln(os.Stderr, "Error: --from-ledger is required (ledger sequences start at 1)")
		os.Exit(1)
	}
	if !*useMemory && *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required (use --use-memory for a dry run)")
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "[backfill] ", log.LstdFlags|log.Lshortfile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal aborts the next fetch; the page in flight still
	// applies event by event.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, stopping", sig)
		cancel()
	}()

	uow, activity, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to storage: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	applier := indexer.NewApplier(indexer.ApplierOptions{
		UnitOfWork: uow,
		Activity:   activity,
		Logger:     logger,
	})

	backfiller := indexer.NewBackfiller(indexer.BackfillOptions{
		Client:     soroban.NewHTTPClient(*rpcEndpoint),
		Applier:    applier,
		ContractID: *contractID,
		PageLimit:  *pageLimit,
		Logger:     logger,
	})

	result, err := backfiller.BackfillRange(ctx, uint32(*fromLedger), uint32(*toLedger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running backfill: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Backfill finished in %v:\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("  pages:    %d\n", result.Pages)
	fmt.Printf("  events:   %d\n", result.Events)
	fmt.Printf("  applied:  %d\n", result.Applied)
	fmt.Printf("  replayed: %d\n", result.Replayed)
	fmt.Printf("  skipped:  %d\n", result.Skipped)
	fmt.Printf("  failed:   %d\n", result.Failed)

	if result.Failed > 0 {
		os.Exit(1)
	}
}

// createStores creates the storage backends for the backfill run.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.UnitOfWork, storage.ActivityStore, func(), error) {
	if useMemory {
		uow := memory.NewUnitOfWork(memory.NewStreamStore(), memory.NewStreamEventStore(), memory.NewUserStore())
		return uow, memory.NewActivityStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	uow := pgstore.NewUnitOfWork(pool)
	cleanup := func() { pool.Close() }

	var activity storage.ActivityStore
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		activity = chstore.NewActivityStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return uow, activity, cleanup, nil
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
