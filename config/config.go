package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config holds the emulator's tunables (spec.md §3/§9): memory size, trap
// table depths, terminal ring size and count, the tube write address, and
// fetch-history depth. main passes the memory size, trap table depths and
// tube address to the VM (and so to WHOAMI's memory segment). The Terminal
// and Debug fields are loaded and saved but not applied: the VM always uses
// its compiled-in ring size, terminal count and fetch-history depth.
type Config struct {
	Memory struct {
		Bytes       uint32 `toml:"bytes"`
		TubeAddress uint32 `toml:"tube_address"`
	} `toml:"memory"`

	Traps struct {
		Breakpoints int `toml:"breakpoints"`
		Watchpoints int `toml:"watchpoints"`
	} `toml:"traps"`

	Terminal struct {
		RingSize int `toml:"ring_size"`
		Count    int `toml:"count"`
	} `toml:"terminal"`

	Debug struct {
		FetchHistoryDepth int `toml:"fetch_history_depth"`
	} `toml:"debug"`
}

// DefaultConfig returns the compiled-in defaults from spec.md §3.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Memory.Bytes = 1 << 22 // 4 MiB
	cfg.Memory.TubeAddress = 0 // 0 = tube routing disabled

	cfg.Traps.Breakpoints = 32
	cfg.Traps.Watchpoints = 4

	cfg.Terminal.RingSize = 64
	cfg.Terminal.Count = 16

	cfg.Debug.FetchHistoryDepth = 32

	return cfg
}

// GetConfigPath returns the platform-specific config file path.
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "arm-monitor")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "arm-monitor")

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// GetLogPath returns the platform-specific log directory path.
func GetLogPath() string {
	var logDir string

	switch runtime.GOOS {
	case "windows":
		logDir = os.Getenv("APPDATA")
		if logDir == "" {
			logDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		logDir = filepath.Join(logDir, "arm-monitor", "logs")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "logs"
		}
		logDir = filepath.Join(homeDir, ".local", "share", "arm-monitor", "logs")

	default:
		return "logs"
	}

	if err := os.MkdirAll(logDir, 0750); err != nil {
		return "logs"
	}

	return logDir
}

// Load loads configuration from the default config file.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from the specified file, returning defaults
// unchanged if the file does not exist.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to the specified file.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", closeErr)
		}
	}()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
