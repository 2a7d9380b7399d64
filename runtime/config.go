// Package runtime wires the whole host together: the wazero engine,
// the provider set, the outgoing HTTP bridge, the process table, and
// the JSON-RPC endpoint. One Host per guest deployment; no
// package-level singletons.
package runtime

import (
	"os"
	"strconv"

	"github.com/goccy/go-yaml"

	"github.com/tidewave/wasmhost/errors"
)

// PortEnvVar overrides the configured listen port when set.
const PortEnvVar = "WASMHOST_PORT"

// Config is the YAML-backed host configuration.
type Config struct {
	// ListenPort is the JSON-RPC TCP port. 0 binds an ephemeral port.
	ListenPort int `yaml:"listen_port"`
	// LoopbackPort is where guest mcp:// requests are rerouted. 0
	// means the bound JSON-RPC port.
	LoopbackPort int `yaml:"loopback_port"`
	// Guest is the path to the primary guest module. Optional: with no
	// guest the host still serves CLI tools.
	Guest string `yaml:"guest"`
	// ModulesDir holds <module>.wasm command modules.
	ModulesDir string `yaml:"modules_dir"`
	// Commands maps CLI command names to module names.
	Commands map[string]string `yaml:"commands"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		ModulesDir: "modules",
	}
}

// LoadConfig reads path, overlays it on the defaults, then applies
// environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Entity(path).Cause(err).Build()
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Load(path, err)
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// ApplyEnv overlays environment overrides onto the configuration.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(PortEnvVar); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.ListenPort = port
		}
	}
}

// Validate rejects configurations the host cannot start with.
func (c Config) Validate() error {
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return errors.InvalidInput(errors.PhaseLoad, "listen_port out of range")
	}
	if c.LoopbackPort < 0 || c.LoopbackPort > 65535 {
		return errors.InvalidInput(errors.PhaseLoad, "loopback_port out of range")
	}
	if c.ModulesDir == "" {
		return errors.InvalidInput(errors.PhaseLoad, "modules_dir must not be empty")
	}
	return nil
}
