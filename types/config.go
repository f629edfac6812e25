package types

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	DefaultAddressSpaceSize     = uint64(1) << 32
	DefaultBackingSize          = uint64(256) << 20
	DefaultCodeMemorySize       = uint64(64) << 20
	DefaultMaxBlockInstructions = 256
	DefaultDispatchBudget       = 1 << 16
)

// Config carries everything needed to build a guest context.
type Config struct {
	Arch                 Architecture `json:"arch"`
	AddressSpaceSize     uint64       `json:"address_space_size"`
	BackingSize          uint64       `json:"backing_size"`
	CodeMemorySize       uint64       `json:"code_memory_size"`
	MaxBlockInstructions int          `json:"max_block_instructions"`
	DispatchBudget       int64        `json:"dispatch_budget"`
	DetectSelfModifying  bool         `json:"detect_self_modifying"`
	ProfilePath          string       `json:"profile_path,omitempty"`
	TelemetryEndpoint    string       `json:"telemetry_endpoint,omitempty"`
	LogLevel             string       `json:"log_level"`
	LogModules           string       `json:"log_modules,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Arch:                 HostArchitecture(),
		AddressSpaceSize:     DefaultAddressSpaceSize,
		BackingSize:          DefaultBackingSize,
		CodeMemorySize:       DefaultCodeMemorySize,
		MaxBlockInstructions: DefaultMaxBlockInstructions,
		DispatchBudget:       DefaultDispatchBudget,
		LogLevel:             "info",
	}
}

// LoadConfig overlays the JSON file at path on DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.AddressSpaceSize == 0 || c.AddressSpaceSize > DefaultAddressSpaceSize {
		return fmt.Errorf("address_space_size must be in (0, 4GiB], got %d", c.AddressSpaceSize)
	}
	if c.BackingSize == 0 {
		return fmt.Errorf("backing_size must be positive")
	}
	if c.MaxBlockInstructions <= 0 {
		return fmt.Errorf("max_block_instructions must be positive, got %d", c.MaxBlockInstructions)
	}
	if c.DispatchBudget <= 0 {
		return fmt.Errorf("dispatch_budget must be positive, got %d", c.DispatchBudget)
	}
	return nil
}

// String method returns the Config as a formatted JSON string
func (c *Config) String() string {
	jsonData, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error marshaling JSON: %v", err)
	}
	return string(jsonData)
}
