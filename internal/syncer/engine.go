// Package syncer drains the durable local queue to the remote backend.
//
// Each record moves through a small state machine: pending -> in-flight
// (transient, never persisted) -> synced or failed. Failed records return to
// pending at the start of the next sweep. Sweeps are single-flight: the
// whole package has exactly one mutual-exclusion requirement, the guard that
// prevents two concurrent sweeps from transmitting the same records twice.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conformly/fieldsync/internal/domain"
	"github.com/conformly/fieldsync/internal/evidence"
	"github.com/conformly/fieldsync/internal/gateway"
	"github.com/conformly/fieldsync/internal/metrics"
	"github.com/conformly/fieldsync/internal/queue"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds the tunable parameters of the sync engine.
type Config struct {
	// RecordTimeout caps the push of a single record, so a hung remote
	// call cannot wedge the single-flight lock. Default: 60 seconds.
	RecordTimeout time.Duration

	// Uploader, when set, moves raw evidence bytes to object storage
	// before a record is pushed.
	Uploader *evidence.Uploader

	// Notify, when set, is called after every persisted status
	// transition. It must be fast; it runs on the sweep goroutine.
	Notify func(Event)
}

// Event describes a persisted sync status transition.
type Event struct {
	LocalID  string
	Status   domain.SyncStatus
	ServerID string
	Err      error
}

// SweepResult summarizes one SyncAll pass.
type SweepResult struct {
	// Skipped is true when the sweep did not run because another sweep
	// was already in flight.
	Skipped bool

	Attempted int
	Synced    int
	Failed    int
}

const defaultRecordTimeout = 60 * time.Second

// =============================================================================
// Engine
// =============================================================================

// Engine moves captured forms from the local queue to the remote gateway.
//
// Construct one Engine per agent and share it by reference; the single-flight
// lock and the auto-sync timer are fields here, not package state.
type Engine struct {
	store   queue.Store
	gateway gateway.Gateway
	config  Config
	logger  *slog.Logger

	// sweepMu is the single-flight guard for SyncAll.
	sweepMu sync.Mutex

	// online mirrors the device connectivity signal. Manual syncs ignore
	// it; the auto-sync loop consults it.
	online atomic.Bool

	// Auto-sync lifecycle.
	autoMu  sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates a sync engine. The device is assumed online until the first
// connectivity signal says otherwise.
func New(store queue.Store, gw gateway.Gateway, config Config, logger *slog.Logger) *Engine {
	if config.RecordTimeout <= 0 {
		config.RecordTimeout = defaultRecordTimeout
	}
	e := &Engine{
		store:   store,
		gateway: gw,
		config:  config,
		logger:  logger,
	}
	e.online.Store(true)
	return e
}

// Online reports the last known connectivity state.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// SetOnline records a connectivity transition. Coming back online triggers
// an immediate sweep while auto-sync is running.
func (e *Engine) SetOnline(online bool) {
	wasOnline := e.online.Swap(online)
	if online && !wasOnline {
		e.logger.Info("connectivity restored")
		e.autoMu.Lock()
		running := e.running
		e.autoMu.Unlock()
		if running {
			go func() {
				if _, err := e.SyncAll(context.Background()); err != nil {
					e.logger.Error("connectivity-triggered sweep failed", "error", err)
				}
			}()
		}
	}
}

// =============================================================================
// SyncOne
// =============================================================================

// SyncOne pushes a single record through the gateway and persists the
// resulting status transition.
//
// The base write and the form-type-specific writes are one atomic logical
// operation: any failure marks the whole record failed. A record that is
// already synced with a server ID is left alone, so re-syncing after a crash
// between remote-accept and local-update never fabricates a new submission.
func (e *Engine) SyncOne(ctx context.Context, form *domain.CapturedForm) error {
	const op = "syncer.sync_one"

	if form.SyncStatus == domain.SyncStatusSynced && form.ServerID != "" {
		return nil
	}

	// Evidence bytes move to object storage first; their URLs travel with
	// the base record.
	if e.config.Uploader != nil && form.PendingEvidence() {
		changed, err := e.config.Uploader.UploadPending(ctx, form)
		if changed {
			if _, saveErr := e.store.Save(ctx, form); saveErr != nil {
				return saveErr
			}
		}
		if err != nil {
			return e.markFailed(ctx, form, err)
		}
	}

	pushCtx, cancel := context.WithTimeout(ctx, e.config.RecordTimeout)
	defer cancel()

	res, err := e.gateway.Submit(pushCtx, form)
	if err != nil {
		return e.markFailed(ctx, form, err)
	}

	if err := e.store.UpdateSyncStatus(ctx, queue.UpdateSyncStatusParams{
		LocalID:  form.LocalID,
		Status:   domain.SyncStatusSynced,
		ServerID: res.ServerID,
	}); err != nil {
		return domain.Internal(err, op, "remote write succeeded but local status update failed")
	}

	metrics.SyncAttemptsTotal.WithLabelValues("synced").Inc()
	e.notify(Event{LocalID: form.LocalID, Status: domain.SyncStatusSynced, ServerID: res.ServerID})
	e.logger.Info("form synced", "local_id", form.LocalID, "server_id", res.ServerID)
	return nil
}

// markFailed persists the failed status, keeping the human-readable detail
// for display. The original error is returned for the caller.
func (e *Engine) markFailed(ctx context.Context, form *domain.CapturedForm, cause error) error {
	outcome := "transient"
	if gateway.IsRejected(cause) {
		outcome = "rejected"
	}
	metrics.SyncAttemptsTotal.WithLabelValues(outcome).Inc()

	if err := e.store.UpdateSyncStatus(ctx, queue.UpdateSyncStatusParams{
		LocalID:   form.LocalID,
		Status:    domain.SyncStatusFailed,
		LastError: cause.Error(),
	}); err != nil {
		e.logger.Error("failed to persist sync failure", "local_id", form.LocalID, "error", err)
	}

	e.notify(Event{LocalID: form.LocalID, Status: domain.SyncStatusFailed, Err: cause})
	e.logger.Warn("form sync failed",
		"local_id", form.LocalID,
		"outcome", outcome,
		"error", cause,
	)
	return cause
}

// =============================================================================
// SyncAll
// =============================================================================

// SyncAll drains all pending records plus previously failed records from
// the queue, oldest first.
//
// Single-flight: a second SyncAll while one is running returns immediately
// with Skipped set and transmits nothing. One record's failure never aborts
// the sweep; each record's outcome is independent.
func (e *Engine) SyncAll(ctx context.Context) (SweepResult, error) {
	if !e.sweepMu.TryLock() {
		metrics.SyncSweepsSkipped.Inc()
		return SweepResult{Skipped: true}, nil
	}
	defer e.sweepMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.SyncSweepDuration.Observe(time.Since(start).Seconds())
	}()

	// Previously failed records become eligible again for this sweep.
	failed, err := e.store.List(ctx, queue.ListFilter{SyncStatus: domain.SyncStatusFailed})
	if err != nil {
		return SweepResult{}, err
	}
	for _, form := range failed {
		if err := e.store.UpdateSyncStatus(ctx, queue.UpdateSyncStatusParams{
			LocalID: form.LocalID,
			Status:  domain.SyncStatusPending,
		}); err != nil {
			e.logger.Error("failed to requeue failed record", "local_id", form.LocalID, "error", err)
		} else {
			e.notify(Event{LocalID: form.LocalID, Status: domain.SyncStatusPending})
		}
	}

	pending, err := e.store.ListUnsynced(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Attempted: len(pending)}
	for i := range pending {
		if ctx.Err() != nil {
			metrics.QueuePending.Set(float64(result.Attempted - result.Synced))
			return result, ctx.Err()
		}
		if err := e.SyncOne(ctx, &pending[i]); err != nil {
			result.Failed++
			continue
		}
		result.Synced++
	}

	metrics.QueuePending.Set(float64(result.Attempted - result.Synced))

	if result.Attempted > 0 {
		e.logger.Info("sync sweep finished",
			"attempted", result.Attempted,
			"synced", result.Synced,
			"failed", result.Failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return result, nil
}

func (e *Engine) notify(ev Event) {
	if e.config.Notify != nil {
		e.config.Notify(ev)
	}
}
