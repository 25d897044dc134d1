// Package watchdog shuts the service down after a period with no user
// activity. Intended for single-tenant deployments that are spawned on
// demand and should not linger.
package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Watchdog fires a callback once no activity has been recorded for a
// configured idle timeout. Touch resets the clock.
type Watchdog struct {
	idleTimeout   time.Duration
	checkInterval time.Duration
	onExpire      func()
	logger        *slog.Logger

	mu           sync.Mutex
	lastActivity time.Time
	fired        bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a watchdog. onExpire is invoked at most once, from the
// watchdog's own goroutine.
func New(idleTimeout, checkInterval time.Duration, onExpire func(), logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		idleTimeout:   idleTimeout,
		checkInterval: checkInterval,
		onExpire:      onExpire,
		logger:        logger.With(slog.String("component", "watchdog")),
		lastActivity:  time.Now(),
	}
}

// Start launches the background check loop. Calling Start twice is a
// programming error.
func (w *Watchdog) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if w.check() {
					return
				}
			}
		}
	}()

	w.logger.Info("watchdog started",
		slog.Duration("idle_timeout", w.idleTimeout),
		slog.Duration("check_interval", w.checkInterval))
}

// Stop terminates the check loop without firing the callback.
func (w *Watchdog) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Touch records activity, pushing the expiry out by the idle timeout.
func (w *Watchdog) Touch() {
	w.mu.Lock()
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

// IdleFor reports how long the service has been without activity.
func (w *Watchdog) IdleFor() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Since(w.lastActivity)
}

// check fires onExpire when the idle timeout has elapsed. Returns true
// once fired so the loop can exit.
func (w *Watchdog) check() bool {
	w.mu.Lock()
	idle := time.Since(w.lastActivity)
	expired := idle >= w.idleTimeout && !w.fired
	if expired {
		w.fired = true
	}
	w.mu.Unlock()

	if !expired {
		return false
	}

	w.logger.Info("idle timeout reached, triggering shutdown",
		slog.Duration("idle", idle))
	if w.onExpire != nil {
		w.onExpire()
	}
	return true
}
