package model

import "fmt"

// AgentConfig is the top-level agent settings record.
type AgentConfig struct {
	SocketPath             string       `yaml:"socket_path"`
	TCPAddr                string       `yaml:"tcp_addr,omitempty"`
	ReconciliationInterval Seconds      `yaml:"reconciliation_interval"`
	LogLevel               string       `yaml:"log_level"`
	LogJSON                bool         `yaml:"log_json"`
	ConfigDir              string       `yaml:"config_dir"`
	StateDir               string       `yaml:"state_dir"`
	Proxy                  ProxyConfig  `yaml:"proxy"`
	Systemd                SystemdPaths `yaml:"systemd"`
}

// Seconds is a plain integer duration in seconds, as written in the agent
// config file.
type Seconds int

// ProxyConfig carries the proxy bindings exposed to rendered templates.
type ProxyConfig struct {
	HTTPProxy  string `yaml:"http_proxy,omitempty"`
	HTTPSProxy string `yaml:"https_proxy,omitempty"`
	NoProxy    string `yaml:"no_proxy,omitempty"`
}

// SystemdPaths are the host directories the agent mutates.
type SystemdPaths struct {
	MachinesDir string `yaml:"machines_dir"`
	NspawnDir   string `yaml:"nspawn_dir"`
	SystemDir   string `yaml:"system_dir"`
}

// minReconciliationInterval keeps a misconfigured agent from hot-looping
// reconciliation passes.
const minReconciliationInterval = 5

// Defaults fills in the zero-value fields with the agent's documented
// defaults, mirroring original_source's AgentConfig/SystemdConfig defaults.
func (c AgentConfig) Defaults() AgentConfig {
	if c.SocketPath == "" {
		c.SocketPath = "./state/chimerad.sock"
	}
	if c.ReconciliationInterval == 0 {
		c.ReconciliationInterval = 30
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.ConfigDir == "" {
		c.ConfigDir = "./configs"
	}
	if c.StateDir == "" {
		c.StateDir = "./state"
	}
	if c.Proxy.NoProxy == "" {
		c.Proxy.NoProxy = "localhost,127.0.0.1"
	}
	if c.Systemd.MachinesDir == "" {
		c.Systemd.MachinesDir = "/var/lib/machines"
	}
	if c.Systemd.NspawnDir == "" {
		c.Systemd.NspawnDir = "/etc/systemd/nspawn"
	}
	if c.Systemd.SystemDir == "" {
		c.Systemd.SystemDir = "/etc/systemd/system"
	}
	return c
}

// Validate enforces the reconciliation-interval lower bound and a known
// log level.
func (c AgentConfig) Validate() error {
	if c.ReconciliationInterval < minReconciliationInterval {
		return fmt.Errorf("agent config: reconciliation_interval must be >= %ds, got %ds", minReconciliationInterval, c.ReconciliationInterval)
	}
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("agent config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
