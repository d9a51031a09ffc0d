package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chimera-project/chimerad/internal/model"
	"gopkg.in/yaml.v3"
)

// agentConfigFile is the top-level settings file inside the desired-state
// directory, alongside the resource-kind subdirectories.
const agentConfigFile = "config.yaml"

// LoadAgentConfig reads <dir>/config.yaml into an AgentConfig. The file is
// the main configuration record: socket path, reconciliation interval, log
// level, host storage paths, and proxy settings all live here. A missing
// file is an error; the agent does not guess its host directories. The
// returned config has ConfigDir pinned to dir regardless of what the file
// says, since dir is where the agent actually found it.
func LoadAgentConfig(dir string) (model.AgentConfig, error) {
	path := filepath.Join(dir, agentConfigFile)
	content, err := os.ReadFile(path)
	if err != nil {
		return model.AgentConfig{}, fmt.Errorf("read agent config %q: %w", path, err)
	}

	var cfg model.AgentConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return model.AgentConfig{}, fmt.Errorf("parse agent config %q: %w", path, err)
	}
	cfg.ConfigDir = dir
	return cfg, nil
}
