package provider

import (
	"fmt"

	"github.com/chimera-project/chimerad/internal/model"
	"github.com/chimera-project/chimerad/internal/systemdhost"
	hclog "github.com/hashicorp/go-hclog"
)

// Registry holds one instance of each concrete provider. Construction is
// two-phase: New builds every provider (cheap, no host contact); Init then
// calls each provider's Init in turn, by which point any provider may call
// registry.Image()/Container()/CloudInit()/Profile() to resolve a peer
// without the peer needing to exist yet at construction time.
type Registry struct {
	logger hclog.Logger

	image     *ImageProvider
	container *ContainerProvider
	cloudInit *CloudInitProvider
	profile   *ProfileProvider
}

// New constructs every provider. None of them touch the host yet.
func New(logger hclog.Logger, host *systemdhost.Host, cfg model.AgentConfig) *Registry {
	r := &Registry{logger: logger.Named("provider")}

	r.image = &ImageProvider{host: host, logger: r.logger.Named("image")}
	r.container = &ContainerProvider{host: host, logger: r.logger.Named("container"), cfg: cfg}
	r.cloudInit = &CloudInitProvider{host: host, logger: r.logger.Named("cloudinit"), cfg: cfg}
	r.profile = &ProfileProvider{logger: r.logger.Named("profile")}

	return r
}

// Init runs the second phase: every provider's Init in a fixed order. One
// provider failing to initialize does not stop the others; a broken
// cloud-init provider should not keep the image provider from working. The
// first failure is still returned so the caller can log it.
func (r *Registry) Init() error {
	providers := []struct {
		name string
		p    Provider
	}{
		{"image", r.image},
		{"profile", r.profile},
		{"cloudinit", r.cloudInit},
		{"container", r.container},
	}

	var firstErr error
	for _, entry := range providers {
		if err := entry.p.Init(r); err != nil {
			r.logger.Error("failed to initialize provider", "name", entry.name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("init provider %s: %w", entry.name, err)
			}
			continue
		}
		r.logger.Debug("initialized provider", "name", entry.name)
	}
	return firstErr
}

// Image returns the image provider.
func (r *Registry) Image() *ImageProvider { return r.image }

// Container returns the container provider.
func (r *Registry) Container() *ContainerProvider { return r.container }

// CloudInit returns the cloud-init provider.
func (r *Registry) CloudInit() *CloudInitProvider { return r.cloudInit }

// Profile returns the profile provider.
func (r *Registry) Profile() *ProfileProvider { return r.profile }
