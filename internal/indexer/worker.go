package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"soroban-stream-indexer/internal/domain"
	"soroban-stream-indexer/internal/observability"
	"soroban-stream-indexer/internal/soroban"
	"soroban-stream-indexer/internal/storage"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPageLimit    = 100
)

// Worker polls getEvents for one contract and feeds each page through
// the applier, advancing the checkpoint behind it.
type Worker struct {
	client      soroban.RPCClient
	applier     *Applier
	checkpoints storage.CheckpointStore
	contractID  string
	startLedger uint32
	interval    time.Duration
	pageLimit   int
	logger      *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// WorkerOptions contains configuration for creating a Worker.
type WorkerOptions struct {
	Client      soroban.RPCClient
	Applier     *Applier
	Checkpoints storage.CheckpointStore
	ContractID  string
	// StartLedger is where polling begins before the first checkpoint
	// exists. Ledger sequences start at 1.
	StartLedger  uint32
	PollInterval time.Duration
	PageLimit    int
	Logger       *log.Logger
}

// NewWorker creates a new Worker with defaults applied.
func NewWorker(opts WorkerOptions) *Worker {
	interval := opts.PollInterval
	if interval == 0 {
		interval = defaultPollInterval
	}

	pageLimit := opts.PageLimit
	if pageLimit == 0 {
		pageLimit = defaultPageLimit
	}

	startLedger := opts.StartLedger
	if startLedger == 0 {
		startLedger = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Worker{
		client:      opts.Client,
		applier:     opts.Applier,
		checkpoints: opts.Checkpoints,
		contractID:  opts.ContractID,
		startLedger: startLedger,
		interval:    interval,
		pageLimit:   pageLimit,
		logger:      logger,
	}
}

// Start launches the poll loop. Without a configured contract ID the
// worker logs and stays stopped; indexing is disabled, not broken.
// Starting a running worker is a no-op.
func (w *Worker) Start() {
	if w.contractID == "" {
		w.logger.Println("No contract ID configured, stream indexing disabled")
		return
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run()

	w.logger.Printf("Indexer started: contract=%s interval=%v limit=%d",
		w.contractID, w.interval, w.pageLimit)
}

// Stop halts polling and waits for the in-flight cycle. Idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Println("Indexer stopped")
}

// Running reports whether the poll loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) run() {
	defer w.wg.Done()

	// First poll happens immediately, then on the interval.
	w.cycle()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.cycle()
		}
	}
}

// cycle runs one fetch-apply-checkpoint round. A failing cycle logs
// and leaves the next tick scheduled; errors never escape.
func (w *Worker) cycle() {
	start := time.Now()

	if err := w.poll(context.Background()); err != nil {
		w.logger.Printf("Poll cycle failed: %v", err)
		observability.RecordPollCycle("error", time.Since(start).Seconds())
		return
	}
	observability.RecordPollCycle("success", time.Since(start).Seconds())
}

func (w *Worker) poll(ctx context.Context) error {
	cp, err := w.checkpoints.Get(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		cp = &domain.Checkpoint{LastLedger: w.startLedger}
	}

	req := soroban.GetEventsRequest{
		Filters:    []soroban.EventFilter{{Type: "contract", ContractIDs: []string{w.contractID}}},
		Pagination: &soroban.Pagination{Limit: w.pageLimit},
	}
	// The cursor supersedes the start ledger once any event has been
	// processed.
	if cp.LastCursor != "" {
		req.Pagination.Cursor = cp.LastCursor
	} else {
		req.StartLedger = cp.LastLedger
	}

	rpcStart := time.Now()
	page, err := w.client.GetEvents(ctx, req)
	observability.RecordRPCLatency("getEvents", time.Since(rpcStart).Seconds())
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	observability.UpdateLatestLedger(page.LatestLedger)

	next, processed, failed := w.processPage(ctx, page, cp)

	if next.LastLedger != cp.LastLedger || next.LastCursor != cp.LastCursor {
		next.UpdatedAt = time.Now().Unix()
		if err := w.checkpoints.Put(ctx, next); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		observability.UpdateCheckpointLedger(next.LastLedger)
	}

	if len(page.Events) > 0 {
		w.logger.Printf("Processed %d events (%d ok, %d failed), checkpoint at ledger %d",
			len(page.Events), processed, failed, next.LastLedger)
	}
	return nil
}

// processPage applies events in source order. The returned checkpoint
// stops at the last event that processed cleanly before the first
// failure: later successes still commit, but the cursor stays behind
// the failed event so it is refetched and retried next cycle.
func (w *Worker) processPage(ctx context.Context, page *soroban.EventsPage, cp *domain.Checkpoint) (*domain.Checkpoint, int, int) {
	next := *cp
	advance := true
	processed := 0
	failed := 0

	for i := range page.Events {
		ev := &page.Events[i]

		if err := w.processEvent(ctx, ev); err != nil {
			w.logger.Printf("Event %s failed: %v", ev.ID, err)
			failed++
			advance = false
			continue
		}

		processed++
		if advance {
			next.LastLedger = ev.Ledger
			next.LastCursor = ev.PagingToken
		}
	}

	// An empty page still advances the scan position when the node
	// returned a cursor, so polling does not rescan settled ledgers.
	if len(page.Events) == 0 && page.Cursor != "" {
		next.LastCursor = page.Cursor
		if page.LatestLedger > next.LastLedger {
			next.LastLedger = page.LatestLedger
		}
	}

	return &next, processed, failed
}

// processEvent classifies and applies one event. A nil error means the
// checkpoint may move past it.
func (w *Worker) processEvent(ctx context.Context, ev *soroban.ContractEvent) error {
	decoded, err := Classify(ev)
	if err != nil {
		observability.RecordEventError("decode")
		return err
	}
	if decoded == nil {
		// Failed invocations and foreign event names are not ours.
		if !ev.InSuccessfulContractCall {
			observability.RecordEventSkipped("failed_call")
		} else {
			observability.RecordEventSkipped("unknown_event")
		}
		return nil
	}

	if _, err := w.applier.Apply(ctx, decoded); err != nil {
		observability.RecordEventError("apply")
		return err
	}
	return nil
}
