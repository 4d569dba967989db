// Package worker runs the periodic snapshot loop. It rebuilds and persists
// portfolio snapshots for a configured watch list so delta history exists
// even when nobody is hitting the API.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/types"
)

// snapshotBuilder builds one portfolio snapshot per address.
type snapshotBuilder interface {
	BuildPortfolioSnapshot(ctx context.Context, evmAddress, coreAddress string) (*types.PortfolioSnapshot, error)
}

// snapshotStore persists snapshots and prunes old ones.
type snapshotStore interface {
	Save(ctx context.Context, snapshot *types.PortfolioSnapshot) (uuid.UUID, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// SnapshotWorkerConfig holds configuration for a snapshot worker.
type SnapshotWorkerConfig struct {
	Portfolio      snapshotBuilder
	Store          snapshotStore
	WatchAddresses []string
	PollInterval   time.Duration
	// AddressTimeout bounds one address's snapshot build. Defaults to 60s.
	AddressTimeout time.Duration
	// Retention is how long persisted snapshots are kept. Zero disables
	// pruning.
	Retention time.Duration
}

// SnapshotWorker periodically snapshots every watched address.
type SnapshotWorker struct {
	portfolio      snapshotBuilder
	store          snapshotStore
	watchAddresses []string
	pollInterval   time.Duration
	addressTimeout time.Duration
	retention      time.Duration
	log            zerolog.Logger

	mu       sync.Mutex
	running  bool
	lastPoll time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSnapshotWorker creates a snapshot worker.
func NewSnapshotWorker(cfg *SnapshotWorkerConfig, log zerolog.Logger) (*SnapshotWorker, error) {
	if cfg.Portfolio == nil {
		return nil, fmt.Errorf("portfolio service cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("snapshot store cannot be nil")
	}
	if len(cfg.WatchAddresses) == 0 {
		return nil, fmt.Errorf("watch address list cannot be empty")
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	addressTimeout := cfg.AddressTimeout
	if addressTimeout <= 0 {
		addressTimeout = 60 * time.Second
	}

	return &SnapshotWorker{
		portfolio:      cfg.Portfolio,
		store:          cfg.Store,
		watchAddresses: cfg.WatchAddresses,
		pollInterval:   pollInterval,
		addressTimeout: addressTimeout,
		retention:      cfg.Retention,
		log:            logging.Component(log, "snapshot_worker"),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

// Start begins the polling loop. The first cycle runs immediately rather
// than waiting a full interval.
func (w *SnapshotWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("snapshot worker is already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info().
		Int("addresses", len(w.watchAddresses)).
		Dur("poll_interval", w.pollInterval).
		Msg("starting snapshot worker")

	go w.pollLoop(ctx)
	return nil
}

// Stop signals the loop to exit and waits for the current cycle to finish.
func (w *SnapshotWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("snapshot worker is not running")
	}
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		w.log.Info().Msg("snapshot worker stopped")
	case <-ctx.Done():
		w.log.Warn().Msg("snapshot worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *SnapshotWorker) pollLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// runCycle snapshots every watched address once. A failing address is
// logged and skipped so the rest of the list still gets fresh data.
func (w *SnapshotWorker) runCycle(ctx context.Context) {
	w.mu.Lock()
	w.lastPoll = time.Now()
	w.mu.Unlock()

	start := time.Now()
	saved := 0
	for _, addr := range w.watchAddresses {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		if err := w.snapshotAddress(ctx, addr); err != nil {
			w.log.Error().Err(err).Str("address", addr).Msg("snapshot cycle: address failed")
			continue
		}
		saved++
	}

	w.pruneOld(ctx)

	w.log.Info().
		Int("saved", saved).
		Int("addresses", len(w.watchAddresses)).
		Dur("elapsed", time.Since(start)).
		Msg("snapshot cycle complete")
}

func (w *SnapshotWorker) snapshotAddress(ctx context.Context, addr string) error {
	cctx, cancel := context.WithTimeout(ctx, w.addressTimeout)
	defer cancel()

	snapshot, err := w.portfolio.BuildPortfolioSnapshot(cctx, addr, "")
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}
	if snapshot.Degraded() {
		w.log.Warn().
			Str("address", addr).
			Int("venue_errors", len(snapshot.VenueErrors)).
			Msg("persisting degraded snapshot")
	}

	id, err := w.store.Save(cctx, snapshot)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	w.log.Debug().Str("address", addr).Str("snapshot_id", id.String()).Msg("snapshot saved")
	return nil
}

func (w *SnapshotWorker) pruneOld(ctx context.Context) {
	if w.retention <= 0 {
		return
	}

	pruned, err := w.store.Prune(ctx, time.Now().Add(-w.retention))
	if err != nil {
		w.log.Error().Err(err).Msg("snapshot prune failed")
		return
	}
	if pruned > 0 {
		w.log.Info().Int64("pruned", pruned).Msg("pruned expired snapshots")
	}
}

// LastPoll reports when the last cycle started. Zero before the first run.
func (w *SnapshotWorker) LastPoll() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastPoll
}
