// Package config loads the OTG MCP server configuration: the set of
// reachable traffic generator targets and the optional custom schema
// directory.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// PortConfig describes a single port on a traffic generator target.
type PortConfig struct {
	// Location is where the port physically terminates, e.g. "eth1" or
	// "localhost:5555".
	Location string `json:"location,omitempty"`
	// Name is the port name used in OTG configurations. Falls back to
	// Location when unset.
	Name string `json:"name,omitempty"`
}

// TargetConfig describes one traffic generator target.
type TargetConfig struct {
	// Ports maps port names to their configuration.
	Ports map[string]PortConfig `json:"ports"`
	// SkipTLSVerify disables certificate verification for this target.
	// Lab devices commonly present self-signed certificates.
	SkipTLSVerify bool `json:"skip_tls_verify,omitempty"`
}

// Config is the full server configuration.
type Config struct {
	// Targets maps "host:port" target names to their configuration.
	Targets map[string]TargetConfig `json:"targets"`
	// SchemaPath is an optional directory of custom schema artifacts that
	// override the built-in ones at equal version keys.
	SchemaPath string `json:"schema_path,omitempty"`
	// CaptureDir is where retrieved pcap files are written.
	CaptureDir string `json:"capture_dir,omitempty"`
}

// Default returns a configuration with a single local development target,
// used when no config file is given.
func Default() *Config {
	return &Config{
		Targets: map[string]TargetConfig{
			"localhost:8443": {
				Ports: map[string]PortConfig{
					"p1": {Location: "localhost:5555", Name: "p1"},
					"p2": {Location: "localhost:5556", Name: "p2"},
				},
			},
		},
		CaptureDir: DefaultCaptureDir,
	}
}

// LoadFile reads and validates a JSON configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	cfg.applyDefaults()

	zap.L().Info("configuration loaded",
		zap.String("path", path),
		zap.Int("targets", len(cfg.Targets)),
		zap.String("schema_path", cfg.SchemaPath))
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("config must define at least one target")
	}
	for name, target := range c.Targets {
		if len(target.Ports) == 0 {
			return fmt.Errorf("target %q must define at least one port", name)
		}
	}
	if c.SchemaPath != "" {
		info, err := os.Stat(c.SchemaPath)
		if err != nil {
			return fmt.Errorf("schema_path %q: %w", c.SchemaPath, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("schema_path %q is not a directory", c.SchemaPath)
		}
	}
	return nil
}

// applyDefaults fills unset fields. Port names fall back to the map key,
// then to the location, matching how operators tend to write minimal
// target entries.
func (c *Config) applyDefaults() {
	if c.CaptureDir == "" {
		c.CaptureDir = DefaultCaptureDir
	}
	for targetName, target := range c.Targets {
		for portName, port := range target.Ports {
			if port.Name == "" {
				if portName != "" {
					port.Name = portName
				} else {
					port.Name = port.Location
				}
			}
			target.Ports[portName] = port
		}
		c.Targets[targetName] = target
	}
}

// TargetNames returns the configured target names.
func (c *Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	return names
}
