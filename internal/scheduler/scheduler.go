// Package scheduler drives the agent's two reconciliation triggers: a
// periodic timer and a desired-state directory watcher. Signal handling is
// not done here; the caller stops the loop with Scheduler.Stop.
package scheduler

import (
	"context"
	"path/filepath"
	"time"

	"github.com/chimera-project/chimerad/internal/engine"
	"github.com/chimera-project/chimerad/internal/store"
	"github.com/fsnotify/fsnotify"
	hclog "github.com/hashicorp/go-hclog"
)

// minInterval mirrors model.AgentConfig.Validate's reconciliation-interval
// lower bound; the scheduler is the thing that would hot-loop if handed a
// smaller value, so it clamps again here.
const minInterval = 5 * time.Second

// Scheduler owns the periodic reconciliation ticker and the config
// directory watcher. Both triggers funnel into the same engine.Reconcile
// call; the watcher additionally reloads the store first since a changed
// file means the catalog itself is stale.
type Scheduler struct {
	logger   hclog.Logger
	engine   *engine.Engine
	store    *store.Store
	interval time.Duration
	watchDir string

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Scheduler. interval is clamped to minInterval.
func New(logger hclog.Logger, eng *engine.Engine, st *store.Store, interval time.Duration, watchDir string) *Scheduler {
	if interval < minInterval {
		interval = minInterval
	}
	return &Scheduler{
		logger:   logger.Named("scheduler"),
		engine:   eng,
		store:    st,
		interval: interval,
		watchDir: watchDir,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop in the background. The directory
// watcher is best-effort: if it can't be set up (e.g. the directory doesn't
// exist yet), the scheduler logs a warning and falls back to the periodic
// timer alone.
func (s *Scheduler) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("failed to create config watcher, periodic reconciliation only", "error", err)
	} else if err := watcher.Add(s.watchDir); err != nil {
		s.logger.Warn("failed to watch config directory, periodic reconciliation only", "dir", s.watchDir, "error", err)
		_ = watcher.Close()
	} else {
		// fsnotify does not recurse: the resource-kind subdirectories
		// holding the actual YAML files must each be watched explicitly.
		for _, sub := range []string{"images", "profiles", "cloud-init", "nodes"} {
			dir := filepath.Join(s.watchDir, sub)
			if err := watcher.Add(dir); err != nil {
				s.logger.Debug("not watching resource subdirectory", "dir", dir, "error", err)
			}
		}
		s.watcher = watcher
	}

	go s.run(ctx)
	return nil
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	if s.watcher != nil {
		defer s.watcher.Close()
	}

	s.logger.Info("scheduler started", "interval", s.interval.String())

	var events <-chan fsnotify.Event
	var errs <-chan error
	if s.watcher != nil {
		events = s.watcher.Events
		errs = s.watcher.Errors
	}

	for {
		select {
		case <-ticker.C:
			s.reconcile(ctx, "periodic timer")

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.logger.Debug("config directory changed", "event", event.String())
			before := s.store.ChangeToken()
			if err := s.store.Load(); err != nil {
				s.logger.Error("failed to reload desired state after config change", "error", err)
				continue
			}
			if before != "" && s.store.ChangeToken() == before {
				s.logger.Debug("config file contents unchanged, skipping reconciliation")
				continue
			}
			s.reconcile(ctx, "config change")

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Error("config watcher error", "error", err)

		case <-s.stopCh:
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) reconcile(ctx context.Context, trigger string) {
	if err := s.engine.Reconcile(ctx); err != nil {
		s.logger.Error("reconciliation cycle failed", "trigger", trigger, "error", err)
	}
}
