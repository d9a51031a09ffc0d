// Package engine implements the reconciliation engine: the full-fleet
// convergence pass plus the imperative operators the control server drives.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chimera-project/chimerad/internal/model"
	"github.com/chimera-project/chimerad/internal/provider"
	"github.com/chimera-project/chimerad/internal/store"
	"github.com/google/uuid"
	hclog "github.com/hashicorp/go-hclog"
)

// NotFoundError reports a name absent from the catalog.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// InvalidError reports a spec that failed enrichment or validation.
type InvalidError struct {
	Name   string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("container %q invalid: %s", e.Name, e.Reason)
}

// NotRunningError reports an exec attempted against a stopped container.
type NotRunningError struct {
	Name string
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("container %q is not running", e.Name)
}

// ContainerStatus is the detailed, denormalised view of one container the
// control server exposes.
type ContainerStatus struct {
	Name         string
	Exists       bool
	Running      bool
	DesiredState model.RunState
	Ensure       model.Ensure
	Image        string
	Profile      string
}

// Engine drives convergence between the spec store and the host, through
// the provider registry. Only one reconciliation pass runs at a time; an
// imperative call that mutates a single container takes the same lock for
// the duration of its provider call so it can't race a concurrent pass.
type Engine struct {
	logger   hclog.Logger
	store    *store.Store
	registry *provider.Registry

	mu sync.Mutex

	// lastReconciliation has its own lock so status reads don't serialise
	// behind an in-progress pass holding mu.
	lastMu             sync.Mutex
	lastReconciliation time.Time
}

// New constructs an Engine over the given store and provider registry.
func New(logger hclog.Logger, st *store.Store, registry *provider.Registry) *Engine {
	return &Engine{
		logger:   logger.Named("engine"),
		store:    st,
		registry: registry,
	}
}

// Reconcile runs one full-fleet convergence pass: images before containers,
// each resource's failure logged and skipped rather than aborting the pass.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	passID := uuid.NewString()
	logger := e.logger.With("pass_id", passID)
	start := time.Now()
	logger.Info("starting reconciliation pass")

	e.reconcileImages(ctx, logger)
	e.reconcileContainers(ctx, logger)

	e.lastMu.Lock()
	e.lastReconciliation = time.Now()
	e.lastMu.Unlock()
	logger.Info("reconciliation pass completed", "duration", time.Since(start).String())
	return nil
}

func (e *Engine) reconcileImages(ctx context.Context, logger hclog.Logger) {
	images := e.store.ListImages()
	for _, img := range images {
		if err := e.registry.Image().Validate(img); err != nil {
			logger.Warn("skipping invalid image spec", "name", img.Name, "error", err)
			continue
		}

		status := e.registry.Image().Status(ctx, img)
		switch status {
		case provider.StatusAbsent:
			logger.Info("image is absent, pulling", "name", img.Name)
			if err := e.registry.Image().Present(ctx, img); err != nil {
				logger.Error("failed to reconcile image", "name", img.Name, "error", err)
			}
		case provider.StatusPresent:
			logger.Debug("image already present", "name", img.Name)
		default:
			logger.Warn("image in unknown state", "name", img.Name, "status", status)
		}
	}
}

func (e *Engine) reconcileContainers(ctx context.Context, logger hclog.Logger) {
	containers := e.store.ListContainers()
	for _, c := range containers {
		ec, err := e.enrich(c)
		if err != nil {
			logger.Warn("skipping container with unresolved reference", "name", c.Name, "error", err)
			continue
		}

		if err := e.registry.Container().Validate(ec); err != nil {
			logger.Warn("skipping invalid container spec", "name", c.Name, "error", err)
			continue
		}

		status := e.registry.Container().Status(ctx, ec)

		switch ec.Spec.EnsureOrDefault() {
		case model.EnsurePresent:
			switch status {
			case provider.StatusAbsent:
				logger.Info("container is absent, creating", "name", c.Name)
				if err := e.registry.Container().Present(ctx, ec); err != nil {
					logger.Error("failed to reconcile container", "name", c.Name, "error", err)
				}
			case provider.StatusPresent:
				e.ensureRunState(ctx, logger, ec)
			default:
				logger.Warn("container in unknown state", "name", c.Name, "status", status)
			}
		case model.EnsureAbsent:
			if status == provider.StatusPresent {
				logger.Info("container should be absent, removing", "name", c.Name)
				if err := e.registry.Container().Absent(ctx, ec); err != nil {
					logger.Error("failed to remove container", "name", c.Name, "error", err)
				}
			}
		}
	}
}

func (e *Engine) ensureRunState(ctx context.Context, logger hclog.Logger, ec provider.EnrichedContainer) {
	running, err := e.registry.Container().IsRunning(ctx, ec)
	if err != nil {
		logger.Error("failed to check running state", "name", ec.Spec.Name, "error", err)
		return
	}

	switch ec.Spec.StateOrDefault() {
	case model.StateRunning:
		if !running {
			logger.Info("container should be running, starting", "name", ec.Spec.Name)
			if err := e.registry.Container().Start(ctx, ec); err != nil {
				logger.Error("failed to start container", "name", ec.Spec.Name, "error", err)
			}
		}
	case model.StateStopped:
		if running {
			logger.Info("container should be stopped, stopping", "name", ec.Spec.Name)
			if err := e.registry.Container().Stop(ctx, ec); err != nil {
				logger.Error("failed to stop container", "name", ec.Spec.Name, "error", err)
			}
		}
	}
}

// enrich resolves a container's image and profile references, and its
// cloud-init template if one is named, returning an EnrichedContainer the
// providers can act on. The store's own records are never mutated.
func (e *Engine) enrich(c model.Container) (provider.EnrichedContainer, error) {
	img, ok := e.store.GetImage(c.Image)
	if !ok {
		return provider.EnrichedContainer{}, fmt.Errorf("image %q not found for container %q", c.Image, c.Name)
	}

	profileName := c.ProfileOrDefault()
	profile, ok := e.store.GetProfile(profileName)
	if !ok {
		return provider.EnrichedContainer{}, fmt.Errorf("profile %q not found for container %q", profileName, c.Name)
	}

	if c.CloudInit != nil && c.CloudInit.Template != "" {
		tmpl, ok := e.store.GetCloudInitTemplate(c.CloudInit.Template)
		if !ok {
			return provider.EnrichedContainer{}, fmt.Errorf("cloud-init template %q not found for container %q", c.CloudInit.Template, c.Name)
		}
		merged := model.MergeCloudInit(tmpl, *c.CloudInit)
		c.CloudInit = &merged
	}

	return provider.EnrichedContainer{Spec: c, Image: img, Profile: profile}, nil
}

func (e *Engine) lookupEnriched(name string) (provider.EnrichedContainer, error) {
	c, ok := e.store.GetContainer(name)
	if !ok {
		return provider.EnrichedContainer{}, &NotFoundError{Kind: "container", Name: name}
	}
	ec, err := e.enrich(c)
	if err != nil {
		return provider.EnrichedContainer{}, &InvalidError{Name: name, Reason: err.Error()}
	}
	return ec, nil
}

// GetContainerStatus returns the observed/desired status view for one
// container, or nil if the name isn't in the catalog.
func (e *Engine) GetContainerStatus(ctx context.Context, name string) (*ContainerStatus, error) {
	ec, err := e.lookupEnriched(name)
	if err != nil {
		return nil, err
	}

	status := e.registry.Container().Status(ctx, ec)
	running := false
	if status == provider.StatusPresent {
		running, _ = e.registry.Container().IsRunning(ctx, ec)
	}

	return &ContainerStatus{
		Name:         name,
		Exists:       status == provider.StatusPresent,
		Running:      running,
		DesiredState: ec.Spec.StateOrDefault(),
		Ensure:       ec.Spec.EnsureOrDefault(),
		Image:        ec.Spec.Image,
		Profile:      ec.Spec.ProfileOrDefault(),
	}, nil
}

// GetAllContainerStatuses returns a status view for every declared
// container.
func (e *Engine) GetAllContainerStatuses(ctx context.Context) map[string]*ContainerStatus {
	out := make(map[string]*ContainerStatus)
	for _, c := range e.store.ListContainers() {
		status, err := e.GetContainerStatus(ctx, c.Name)
		if err != nil {
			e.logger.Warn("failed to get container status", "name", c.Name, "error", err)
			continue
		}
		out[c.Name] = status
	}
	return out
}

// CreateContainer ensures the declared image is present, then drives the
// container to present.
func (e *Engine) CreateContainer(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ec, err := e.lookupEnriched(name)
	if err != nil {
		return err
	}
	if err := e.registry.Container().Validate(ec); err != nil {
		return &InvalidError{Name: name, Reason: err.Error()}
	}

	if e.registry.Image().Status(ctx, ec.Image) != provider.StatusPresent {
		e.logger.Info("pulling required image", "image", ec.Image.Name, "container", name)
		if err := e.registry.Image().Present(ctx, ec.Image); err != nil {
			return err
		}
	}

	return e.registry.Container().Present(ctx, ec)
}

// StartContainer starts a single declared container.
func (e *Engine) StartContainer(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ec, err := e.lookupEnriched(name)
	if err != nil {
		return err
	}
	if err := e.registry.Container().Validate(ec); err != nil {
		return &InvalidError{Name: name, Reason: err.Error()}
	}
	return e.registry.Container().Start(ctx, ec)
}

// StopContainer stops a single declared container.
func (e *Engine) StopContainer(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ec, err := e.lookupEnriched(name)
	if err != nil {
		return err
	}
	return e.registry.Container().Stop(ctx, ec)
}

// RestartContainer stops then starts a single declared container.
func (e *Engine) RestartContainer(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ec, err := e.lookupEnriched(name)
	if err != nil {
		return err
	}
	if err := e.registry.Container().Stop(ctx, ec); err != nil {
		return err
	}
	return e.registry.Container().Start(ctx, ec)
}

// RemoveContainer drives a single declared container to absent.
func (e *Engine) RemoveContainer(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ec, err := e.lookupEnriched(name)
	if err != nil {
		return err
	}
	return e.registry.Container().Absent(ctx, ec)
}

// ExecuteInContainer runs argv inside a running, present container.
func (e *Engine) ExecuteInContainer(ctx context.Context, name string, argv []string) (string, string, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ec, err := e.lookupEnriched(name)
	if err != nil {
		return "", "", 0, err
	}

	if e.registry.Container().Status(ctx, ec) != provider.StatusPresent {
		return "", "", 0, &NotFoundError{Kind: "container", Name: name}
	}
	running, err := e.registry.Container().IsRunning(ctx, ec)
	if err != nil {
		return "", "", 0, err
	}
	if !running {
		return "", "", 0, &NotRunningError{Name: name}
	}

	result, err := e.registry.Container().Execute(ctx, ec, argv)
	if err != nil {
		return "", "", 0, err
	}
	return result.Stdout, result.Stderr, result.ExitCode, nil
}

// LastReconciliation returns the end-of-pass timestamp of the most recent
// completed reconciliation, or the zero time if none has run yet.
func (e *Engine) LastReconciliation() time.Time {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	return e.lastReconciliation
}
