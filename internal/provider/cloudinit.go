package provider

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chimera-project/chimerad/internal/model"
	"github.com/chimera-project/chimerad/internal/systemdhost"
	tmpl "github.com/chimera-project/chimerad/internal/template"
	hclog "github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

const (
	seedRelDir         = "var/lib/cloud/seed/nocloud"
	networkDisableRel  = "etc/cloud/cloud.cfg.d/99-disable-network-config.cfg"
	networkDisableBody = "network: {config: disabled}\n"
)

// CloudInitProvider writes the nocloud seed (meta-data, user-data,
// network-config) into a cloned container's root. It is invoked standalone
// by status/absent, and embedded into the container provider's present flow.
type CloudInitProvider struct {
	host   *systemdhost.Host
	logger hclog.Logger
	cfg    model.AgentConfig
}

// Init satisfies the Provider contract; the cloud-init provider needs no peer.
func (p *CloudInitProvider) Init(_ *Registry) error {
	return nil
}

// Validate is a no-op beyond what the spec store already enforces: any
// mapping is a legal meta_data value, any string a legal user_data/
// network_config value.
func (p *CloudInitProvider) Validate(_ model.CloudInit) error {
	return nil
}

func (p *CloudInitProvider) seedDir(containerName string) string {
	return filepath.Join(p.cfg.Systemd.MachinesDir, containerName, seedRelDir)
}

// Status reports present iff the container's nocloud seed directory exists.
func (p *CloudInitProvider) Status(containerName string, ci *model.CloudInit) Status {
	if ci == nil {
		return StatusAbsent
	}
	if _, err := os.Stat(p.seedDir(containerName)); err == nil {
		return StatusPresent
	}
	return StatusAbsent
}

// Prepare writes the nocloud seed for the named container's resolved
// cloud-init configuration into its cloned root. ci must already be fully
// resolved (template merged in) by the caller.
func (p *CloudInitProvider) Prepare(containerName string, ci *model.CloudInit) error {
	if ci == nil {
		p.logger.Debug("no cloud-init config for container", "container", containerName)
		return nil
	}

	containerRoot := filepath.Join(p.cfg.Systemd.MachinesDir, containerName)
	seedDir := p.seedDir(containerName)
	if err := os.MkdirAll(seedDir, 0o755); err != nil {
		return fmt.Errorf("cloud-init: create seed dir for %q: %w", containerName, err)
	}

	metaData := p.prepareMetaData(containerName, ci)
	metaBytes, err := yaml.Marshal(metaData)
	if err != nil {
		return fmt.Errorf("cloud-init: marshal meta-data for %q: %w", containerName, err)
	}
	if err := os.WriteFile(filepath.Join(seedDir, "meta-data"), metaBytes, 0o644); err != nil {
		return fmt.Errorf("cloud-init: write meta-data for %q: %w", containerName, err)
	}
	p.logger.Debug("created meta-data", "container", containerName)

	if ci.UserData != "" {
		rendered, err := tmpl.Render(ci.UserData, p.proxyBindings())
		if err != nil {
			return fmt.Errorf("cloud-init: render user-data for %q: %w", containerName, err)
		}
		if err := os.WriteFile(filepath.Join(seedDir, "user-data"), []byte(rendered), 0o644); err != nil {
			return fmt.Errorf("cloud-init: write user-data for %q: %w", containerName, err)
		}
		p.logger.Debug("created user-data", "container", containerName)
	}

	if ci.NetworkConfig != "" {
		if err := os.WriteFile(filepath.Join(seedDir, "network-config"), []byte(ci.NetworkConfig), 0o644); err != nil {
			return fmt.Errorf("cloud-init: write network-config for %q: %w", containerName, err)
		}
		p.logger.Debug("created network-config", "container", containerName)
		return nil
	}

	disablePath := filepath.Join(containerRoot, networkDisableRel)
	if err := os.MkdirAll(filepath.Dir(disablePath), 0o755); err != nil {
		return fmt.Errorf("cloud-init: create cloud.cfg.d for %q: %w", containerName, err)
	}
	if err := os.WriteFile(disablePath, []byte(networkDisableBody), 0o644); err != nil {
		return fmt.Errorf("cloud-init: write network-disable stanza for %q: %w", containerName, err)
	}
	p.logger.Debug("disabled network config", "container", containerName)
	return nil
}

// Present delegates to Prepare; cloud-init has no independent present path,
// it is always driven by the container provider's clone flow.
func (p *CloudInitProvider) Present(containerName string, ci *model.CloudInit) error {
	return p.Prepare(containerName, ci)
}

// Absent removes the entire cloud-init directory tree from the container
// root.
func (p *CloudInitProvider) Absent(containerName string) error {
	cloudDir := filepath.Join(p.cfg.Systemd.MachinesDir, containerName, "var/lib/cloud")
	if _, err := os.Stat(cloudDir); err != nil {
		return nil
	}
	if err := os.RemoveAll(cloudDir); err != nil {
		return fmt.Errorf("cloud-init: remove cloud dir for %q: %w", containerName, err)
	}
	p.logger.Debug("removed cloud-init directory", "container", containerName)
	return nil
}

// prepareMetaData copies the resolved meta_data, always forces
// local-hostname to the container name, and sets instance-id to
// iid-<container name> when it is unset.
func (p *CloudInitProvider) prepareMetaData(containerName string, ci *model.CloudInit) map[string]any {
	metaData := make(map[string]any, len(ci.MetaData)+2)
	for k, v := range ci.MetaData {
		metaData[k] = v
	}
	metaData["local-hostname"] = containerName
	if _, ok := metaData["instance-id"]; !ok {
		metaData["instance-id"] = fmt.Sprintf("iid-%s", containerName)
	}
	return metaData
}

func (p *CloudInitProvider) proxyBindings() map[string]string {
	return map[string]string{
		"proxy_http_proxy":  p.cfg.Proxy.HTTPProxy,
		"proxy_https_proxy": p.cfg.Proxy.HTTPSProxy,
		"proxy_no_proxy":    p.cfg.Proxy.NoProxy,
	}
}
