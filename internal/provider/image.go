package provider

import (
	"context"

	"github.com/chimera-project/chimerad/internal/model"
	"github.com/chimera-project/chimerad/internal/systemdhost"
	hclog "github.com/hashicorp/go-hclog"
)

// ImageProvider manages images in the host's image store: pulling from
// source, cleaning transient download files, and marking the image
// read-only once pulled.
type ImageProvider struct {
	host   *systemdhost.Host
	logger hclog.Logger
}

// Init satisfies the Provider contract; the image provider needs no peer.
func (p *ImageProvider) Init(_ *Registry) error {
	return nil
}

// Validate performs the cheap structural checks layered on top of the spec
// store's own validation.
func (p *ImageProvider) Validate(spec model.Image) error {
	return spec.Validate()
}

// Status queries the host image store for spec.Name. It never mutates host
// state.
func (p *ImageProvider) Status(ctx context.Context, spec model.Image) Status {
	exists, err := p.host.ImageExists(ctx, spec.Name)
	if err != nil {
		p.logger.Error("error checking image status", "name", spec.Name, "error", err)
		return StatusError
	}
	if exists {
		return StatusPresent
	}
	return StatusAbsent
}

// Present pulls the image if absent, then cleans transient files and marks
// it read-only. It is idempotent: already-present images are left alone.
func (p *ImageProvider) Present(ctx context.Context, spec model.Image) error {
	if p.Status(ctx, spec) == StatusPresent {
		p.logger.Debug("image already present", "name", spec.Name)
		return nil
	}

	p.logger.Info("pulling image", "name", spec.Name, "source", spec.Source)
	if err := p.host.PullImage(ctx, string(spec.Kind), spec.Source, spec.Name, string(spec.VerifyOrDefault())); err != nil {
		p.logger.Error("failed to pull image", "name", spec.Name, "error", err)
		return err
	}
	p.logger.Info("image pulled", "name", spec.Name)

	if err := p.host.CleanImage(ctx); err != nil {
		p.logger.Warn("failed to clean temporary image files", "error", err)
	}

	readOnly, err := p.host.ImageIsReadOnly(ctx, spec.Name)
	if err != nil {
		p.logger.Warn("failed to check image read-only state", "name", spec.Name, "error", err)
	} else if readOnly {
		p.logger.Debug("image already read-only", "name", spec.Name)
		return nil
	}

	if err := p.host.MarkImageReadOnly(ctx, spec.Name); err != nil {
		p.logger.Error("failed to mark image read-only", "name", spec.Name, "error", err)
		return err
	}
	return nil
}

// Absent removes the image from the host image store; no-op if already
// absent.
func (p *ImageProvider) Absent(ctx context.Context, spec model.Image) error {
	if p.Status(ctx, spec) == StatusAbsent {
		p.logger.Debug("image already absent", "name", spec.Name)
		return nil
	}

	p.logger.Info("removing image", "name", spec.Name)
	if err := p.host.RemoveImage(ctx, spec.Name); err != nil {
		p.logger.Error("failed to remove image", "name", spec.Name, "error", err)
		return err
	}
	return nil
}
