package syncer

import (
	"context"
	"time"
)

// StartAutoSync triggers an immediate sweep and then sweeps every interval
// until StopAutoSync is called. Calling it while already running is a no-op.
//
// Sweeps are skipped while the device is offline; the offline-to-online
// transition in SetOnline triggers its own sweep.
func (e *Engine) StartAutoSync(ctx context.Context, interval time.Duration) {
	e.autoMu.Lock()
	if e.running {
		e.autoMu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.autoMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		e.logger.Info("auto-sync started", "interval", interval)

		if e.Online() {
			if _, err := e.SyncAll(ctx); err != nil {
				e.logger.Error("initial sweep failed", "error", err)
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				e.logger.Info("auto-sync stopped")
				return
			case <-ctx.Done():
				e.logger.Info("auto-sync context canceled")
				return
			case <-ticker.C:
				if !e.Online() {
					continue
				}
				if _, err := e.SyncAll(ctx); err != nil {
					e.logger.Error("scheduled sweep failed", "error", err)
				}
			}
		}
	}()
}

// StopAutoSync cancels the periodic timer and waits for the loop to exit.
// Idempotent: safe to call when auto-sync is not running. An in-flight
// sweep runs to completion rather than being force-cancelled.
func (e *Engine) StopAutoSync() {
	e.autoMu.Lock()
	if !e.running {
		e.autoMu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.autoMu.Unlock()

	e.wg.Wait()
}
