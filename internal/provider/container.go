package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chimera-project/chimerad/internal/model"
	"github.com/chimera-project/chimerad/internal/systemdhost"
	tmpl "github.com/chimera-project/chimerad/internal/template"
	hclog "github.com/hashicorp/go-hclog"
)

const unitTemplate = "systemd-nspawn@"

// EnrichedContainer is the engine's transient, per-pass view of a container:
// the declared spec plus its resolved image and profile. Providers never
// see an unenriched Container.
type EnrichedContainer struct {
	Spec    model.Container
	Image   model.Image
	Profile model.Profile
}

func serviceName(containerName string) string {
	return fmt.Sprintf("systemd-nspawn@%s.service", containerName)
}

// ContainerProvider manages the container lifecycle: clone, custom-file
// application, cloud-init seeding, config materialisation, and unit
// activation.
type ContainerProvider struct {
	host   *systemdhost.Host
	logger hclog.Logger
	cfg    model.AgentConfig

	cloudInit *CloudInitProvider
}

// Init resolves the cloud-init provider handle via the registry, matching
// the two-phase construction contract: by the time Init runs, every
// provider has already been constructed.
func (p *ContainerProvider) Init(registry *Registry) error {
	p.cloudInit = registry.CloudInit()
	return nil
}

// Validate checks that the enriched container's image and profile
// references actually resolved, beyond the shape checks the spec already
// enforces.
func (p *ContainerProvider) Validate(ec EnrichedContainer) error {
	if err := ec.Spec.ValidateShape(); err != nil {
		return err
	}
	if ec.Image.Name == "" {
		return fmt.Errorf("container %q: image %q did not resolve", ec.Spec.Name, ec.Spec.Image)
	}
	if err := ec.Profile.Validate(); err != nil {
		return err
	}
	return nil
}

// Status queries the host machine facility for ec.Spec.Name. If unknown,
// it checks for a partial-state layout (a leftover directory or raw file)
// without mutating anything: cleanup is the job of Present/Absent.
func (p *ContainerProvider) Status(ctx context.Context, ec EnrichedContainer) Status {
	machines, err := p.host.ListMachines(ctx)
	if err != nil {
		p.logger.Error("error listing machines", "error", err)
		return StatusError
	}
	for _, m := range machines {
		if m.Name == ec.Spec.Name {
			return StatusPresent
		}
	}

	containerDir := filepath.Join(p.cfg.Systemd.MachinesDir, ec.Spec.Name)
	containerRaw := filepath.Join(p.cfg.Systemd.MachinesDir, ec.Spec.Name+".raw")
	_, dirErr := os.Stat(containerDir)
	_, rawErr := os.Stat(containerRaw)
	dirExists := dirErr == nil
	rawExists := rawErr == nil

	if rawExists && ec.Image.Kind == model.ImageKindRaw {
		return StatusPresent
	}
	if dirExists || rawExists {
		p.logger.Warn("container has partial creation", "name", ec.Spec.Name)
	}
	return StatusAbsent
}

// Present clones the image, applies custom files and cloud-init for
// tar-kind images, materialises config, and brings the container to its
// declared state. Idempotent: an already-present container skips cloning
// and just re-ensures configs.
func (p *ContainerProvider) Present(ctx context.Context, ec EnrichedContainer) error {
	if p.Status(ctx, ec) == StatusPresent {
		p.logger.Debug("container already present", "name", ec.Spec.Name)
		return p.ensureConfigs(ctx, ec)
	}

	p.logger.Info("creating container", "name", ec.Spec.Name)

	if err := p.cleanupPartial(ec.Spec.Name); err != nil {
		p.logger.Warn("partial cleanup before clone failed", "name", ec.Spec.Name, "error", err)
	}

	if err := p.host.CloneMachine(ctx, ec.Image.Name, ec.Spec.Name); err != nil {
		p.logger.Error("failed to clone image", "image", ec.Image.Name, "container", ec.Spec.Name, "error", err)
		return err
	}
	p.logger.Debug("cloned image to container", "image", ec.Image.Name, "container", ec.Spec.Name)

	if ec.Image.Kind == model.ImageKindRaw {
		p.logger.Info("container uses raw image, skipping custom_files and cloud-init", "name", ec.Spec.Name)
	} else {
		if err := p.applyCustomFiles(ec.Spec.Name, ec.Image.CustomFiles); err != nil {
			return err
		}
		if ec.Spec.CloudInit != nil {
			if p.cloudInit == nil {
				p.logger.Warn("cloudinit provider not found in registry")
			} else if err := p.cloudInit.Prepare(ec.Spec.Name, ec.Spec.CloudInit); err != nil {
				return err
			}
		}
	}

	return p.ensureConfigs(ctx, ec)
}

// ensureConfigs materialises the profile's rendered bodies, reloads the host
// init, and brings the unit to its declared enable/run state. Called both
// right after a fresh clone and on every Present of an already-present
// container, so config drift self-heals without a re-clone.
func (p *ContainerProvider) ensureConfigs(ctx context.Context, ec EnrichedContainer) error {
	bindings := map[string]string{
		"container_name":    ec.Spec.Name,
		"proxy_http_proxy":  p.cfg.Proxy.HTTPProxy,
		"proxy_https_proxy": p.cfg.Proxy.HTTPSProxy,
		"proxy_no_proxy":    p.cfg.Proxy.NoProxy,
	}

	if ec.Profile.MachineConfigBody != "" {
		if err := p.writeMachineConfig(ec.Spec.Name, ec.Profile, bindings); err != nil {
			return err
		}
	}
	if ec.Profile.UnitOverrideBody != "" {
		if err := p.writeUnitOverride(ec.Spec.Name, ec.Profile, bindings); err != nil {
			return err
		}
	}

	if err := p.host.ReloadDaemon(ctx); err != nil {
		p.logger.Error("failed to reload daemon", "error", err)
		return err
	}

	if ec.Spec.AutostartOrDefault() {
		if err := p.host.EnableUnit(ctx, serviceName(ec.Spec.Name)); err != nil {
			p.logger.Error("failed to enable unit", "name", ec.Spec.Name, "error", err)
		}
	}
	if ec.Spec.StateOrDefault() == model.StateRunning {
		if err := p.Start(ctx, ec); err != nil {
			return err
		}
	}
	return nil
}

func (p *ContainerProvider) writeMachineConfig(containerName string, profile model.Profile, bindings map[string]string) error {
	content, err := tmpl.Render(profile.MachineConfigBody, bindings)
	if err != nil {
		return fmt.Errorf("render machine config for %q: %w", containerName, err)
	}
	if err := os.MkdirAll(p.cfg.Systemd.NspawnDir, 0o755); err != nil {
		return fmt.Errorf("create nspawn config dir: %w", err)
	}
	path := filepath.Join(p.cfg.Systemd.NspawnDir, containerName+".nspawn")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write machine config %q: %w", path, err)
	}
	p.logger.Debug("created machine config", "path", path)
	return nil
}

func (p *ContainerProvider) writeUnitOverride(containerName string, profile model.Profile, bindings map[string]string) error {
	content, err := tmpl.Render(profile.UnitOverrideBody, bindings)
	if err != nil {
		return fmt.Errorf("render unit override for %q: %w", containerName, err)
	}
	overrideDir := filepath.Join(p.cfg.Systemd.SystemDir, unitTemplate+containerName+".service.d")
	if err := os.MkdirAll(overrideDir, 0o755); err != nil {
		return fmt.Errorf("create unit override dir: %w", err)
	}
	path := filepath.Join(overrideDir, "override.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write unit override %q: %w", path, err)
	}
	p.logger.Debug("created unit override", "path", path)
	return nil
}

// Absent stops, disables, and removes the container, then runs partial-state
// cleanup unconditionally so the call is idempotent and self-healing even
// when status already reported absent.
func (p *ContainerProvider) Absent(ctx context.Context, ec EnrichedContainer) error {
	if p.Status(ctx, ec) == StatusPresent {
		p.logger.Info("removing container", "name", ec.Spec.Name)

		if err := p.Stop(ctx, ec); err != nil {
			p.logger.Error("failed to stop container before removal", "name", ec.Spec.Name, "error", err)
		}
		if err := p.host.DisableUnit(ctx, serviceName(ec.Spec.Name)); err != nil {
			p.logger.Warn("failed to disable unit", "name", ec.Spec.Name, "error", err)
		}
		if err := p.host.RemoveMachine(ctx, ec.Spec.Name); err != nil {
			p.logger.Error("failed to remove machine", "name", ec.Spec.Name, "error", err)
			return err
		}
	} else {
		p.logger.Debug("container already absent, checking for residuals", "name", ec.Spec.Name)
	}

	if err := p.cleanupPartial(ec.Spec.Name); err != nil {
		p.logger.Warn("residual cleanup failed", "name", ec.Spec.Name, "error", err)
	}
	return nil
}

// Start starts the container's unit and waits for a shell probe to succeed.
// No-op if already running.
func (p *ContainerProvider) Start(ctx context.Context, ec EnrichedContainer) error {
	running, err := p.IsRunning(ctx, ec)
	if err != nil {
		return err
	}
	if running {
		p.logger.Debug("container already running", "name", ec.Spec.Name)
		return nil
	}

	p.logger.Info("starting container", "name", ec.Spec.Name)
	if err := p.host.StartUnit(ctx, serviceName(ec.Spec.Name)); err != nil {
		p.logger.Error("failed to start container", "name", ec.Spec.Name, "error", err)
		return err
	}
	if err := p.host.WaitShellReady(ctx, ec.Spec.Name); err != nil {
		p.logger.Warn("container did not become ready in time", "name", ec.Spec.Name, "error", err)
	}
	return nil
}

// Stop stops the container's unit. No-op if not running.
func (p *ContainerProvider) Stop(ctx context.Context, ec EnrichedContainer) error {
	running, err := p.IsRunning(ctx, ec)
	if err != nil {
		return err
	}
	if !running {
		p.logger.Debug("container already stopped", "name", ec.Spec.Name)
		return nil
	}

	p.logger.Info("stopping container", "name", ec.Spec.Name)
	if err := p.host.StopUnit(ctx, serviceName(ec.Spec.Name)); err != nil {
		p.logger.Error("failed to stop container", "name", ec.Spec.Name, "error", err)
		return err
	}
	return nil
}

// IsRunning reports whether the container's unit is active.
func (p *ContainerProvider) IsRunning(ctx context.Context, ec EnrichedContainer) (bool, error) {
	state, err := p.host.UnitState(ctx, serviceName(ec.Spec.Name))
	if err != nil {
		p.logger.Error("error checking container state", "name", ec.Spec.Name, "error", err)
		return false, err
	}
	return state == "active", nil
}

// Execute runs argv inside the container via the host's shell facility,
// quoting argv so that arguments containing spaces or shell metacharacters
// can't inject additional commands.
func (p *ContainerProvider) Execute(ctx context.Context, ec EnrichedContainer, argv []string) (systemdhost.RunResult, error) {
	joined := shellJoin(argv)
	return p.host.Shell(ctx, ec.Spec.Name, []string{"/bin/bash", "-c", joined})
}

func (p *ContainerProvider) applyCustomFiles(containerName string, files []model.CustomFile) error {
	containerRoot := filepath.Join(p.cfg.Systemd.MachinesDir, containerName)

	for _, f := range files {
		target := filepath.Join(containerRoot, f.Path)

		switch f.Op {
		case model.CustomFileAbsent:
			if err := removeIfExists(target); err != nil {
				p.logger.Error("error removing custom file", "path", target, "error", err)
				continue
			}
			p.logger.Debug("removed custom file", "path", target, "container", containerName)

		case model.CustomFileLink:
			if err := removeIfExists(target); err != nil {
				p.logger.Error("error clearing custom file target", "path", target, "error", err)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				p.logger.Error("error creating parent directory", "path", target, "error", err)
				continue
			}
			if err := os.Symlink(f.Target, target); err != nil {
				p.logger.Error("error creating symlink", "path", target, "target", f.Target, "error", err)
				continue
			}
			p.logger.Debug("created symlink", "path", target, "target", f.Target, "container", containerName)
		}
	}
	return nil
}

func (p *ContainerProvider) cleanupPartial(containerName string) error {
	containerDir := filepath.Join(p.cfg.Systemd.MachinesDir, containerName)
	if _, err := os.Stat(containerDir); err == nil {
		p.logger.Info("cleaning up container directory", "name", containerName)
		if err := os.RemoveAll(containerDir); err != nil {
			return fmt.Errorf("remove container dir %q: %w", containerDir, err)
		}
	}

	containerRaw := filepath.Join(p.cfg.Systemd.MachinesDir, containerName+".raw")
	if _, err := os.Stat(containerRaw); err == nil {
		p.logger.Info("cleaning up container raw file", "name", containerName)
		if err := os.Remove(containerRaw); err != nil {
			return fmt.Errorf("remove container raw %q: %w", containerRaw, err)
		}
	}

	nspawnFile := filepath.Join(p.cfg.Systemd.NspawnDir, containerName+".nspawn")
	if err := removeIfExists(nspawnFile); err != nil {
		return fmt.Errorf("remove nspawn config %q: %w", nspawnFile, err)
	}

	overrideDir := filepath.Join(p.cfg.Systemd.SystemDir, unitTemplate+containerName+".service.d")
	if _, err := os.Stat(overrideDir); err == nil {
		if err := os.RemoveAll(overrideDir); err != nil {
			return fmt.Errorf("remove unit override dir %q: %w", overrideDir, err)
		}
	}

	return nil
}

func removeIfExists(path string) error {
	if _, err := os.Lstat(path); err != nil {
		return nil
	}
	return os.RemoveAll(path)
}
