package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chimera-project/chimerad/internal/engine"
	"github.com/chimera-project/chimerad/internal/model"
	"github.com/chimera-project/chimerad/internal/provider"
	"github.com/chimera-project/chimerad/internal/store"
	"github.com/chimera-project/chimerad/internal/systemdhost"
	hclog "github.com/hashicorp/go-hclog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestNew_ClampsIntervalToMinimum(t *testing.T) {
	logger := hclog.NewNullLogger()
	dir := t.TempDir()
	st := store.New(logger, dir)
	host := systemdhost.New(logger)
	reg := provider.New(logger, host, model.AgentConfig{}.Defaults())
	eng := engine.New(logger, st, reg)

	s := New(logger, eng, st, 1*time.Second, dir)
	if s.interval != minInterval {
		t.Fatalf("interval = %s, want clamped to %s", s.interval, minInterval)
	}
}

func TestScheduler_StartAndStopIsClean(t *testing.T) {
	logger := hclog.NewNullLogger()
	dir := t.TempDir()
	st := store.New(logger, dir)
	if err := st.Load(); err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	host := systemdhost.New(logger)
	reg := provider.New(logger, host, model.AgentConfig{}.Defaults())
	eng := engine.New(logger, st, reg)

	s := New(logger, eng, st, minInterval, dir)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()
}

func TestScheduler_ReloadsStoreOnConfigDirectoryChange(t *testing.T) {
	logger := hclog.NewNullLogger()
	dir := t.TempDir()
	imagesFile := filepath.Join(dir, "images", "base.yaml")
	writeFile(t, imagesFile, "img-a:\n  type: tar\n  source: https://example.com/a.tar\n")

	st := store.New(logger, dir)
	if err := st.Load(); err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	before := st.ChangeToken()

	host := systemdhost.New(logger)
	reg := provider.New(logger, host, model.AgentConfig{}.Defaults())
	eng := engine.New(logger, st, reg)

	s := New(logger, eng, st, minInterval, dir)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if s.watcher == nil {
		t.Skip("fsnotify watcher unavailable in this environment")
	}

	writeFile(t, imagesFile, "img-a:\n  type: tar\n  source: https://example.com/a-v2.tar\n")

	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if st.ChangeToken() != before {
				return
			}
		case <-deadline:
			t.Fatalf("store was not reloaded after config directory change")
		}
	}
}
