package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Memory.Bytes != 1<<22 {
		t.Errorf("Expected Memory.Bytes=%d, got %d", 1<<22, cfg.Memory.Bytes)
	}
	if cfg.Memory.TubeAddress != 0 {
		t.Errorf("Expected Memory.TubeAddress=0, got %d", cfg.Memory.TubeAddress)
	}
	if cfg.Traps.Breakpoints != 32 {
		t.Errorf("Expected Traps.Breakpoints=32, got %d", cfg.Traps.Breakpoints)
	}
	if cfg.Traps.Watchpoints != 4 {
		t.Errorf("Expected Traps.Watchpoints=4, got %d", cfg.Traps.Watchpoints)
	}
	if cfg.Terminal.RingSize != 64 {
		t.Errorf("Expected Terminal.RingSize=64, got %d", cfg.Terminal.RingSize)
	}
	if cfg.Terminal.Count != 16 {
		t.Errorf("Expected Terminal.Count=16, got %d", cfg.Terminal.Count)
	}
	if cfg.Debug.FetchHistoryDepth != 32 {
		t.Errorf("Expected Debug.FetchHistoryDepth=32, got %d", cfg.Debug.FetchHistoryDepth)
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()

	if path == "" {
		t.Error("GetConfigPath returned empty string")
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("Expected path to end with config.toml, got %s", path)
	}

	switch runtime.GOOS {
	case "windows":
		if !filepath.IsAbs(path) && path != "config.toml" {
			t.Errorf("Expected absolute path on Windows, got %s", path)
		}
	case "darwin", "linux":
		dir := filepath.Dir(path)
		if filepath.Base(dir) != "arm-monitor" && path != "config.toml" {
			t.Errorf("Expected path in arm-monitor directory or fallback, got %s", path)
		}
	}
}

func TestGetLogPath(t *testing.T) {
	path := GetLogPath()

	if path == "" {
		t.Error("GetLogPath returned empty string")
	}

	switch runtime.GOOS {
	case "windows":
		if !filepath.IsAbs(path) && path != "logs" {
			t.Errorf("Expected absolute path on Windows, got %s", path)
		}
	case "darwin", "linux":
		if filepath.Base(path) != "logs" {
			t.Errorf("Expected path to end with logs, got %s", path)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config.toml")

	cfg := DefaultConfig()
	cfg.Memory.Bytes = 1 << 20
	cfg.Memory.TubeAddress = 0x20000
	cfg.Traps.Breakpoints = 8
	cfg.Terminal.Count = 4

	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}

	loaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Memory.Bytes != 1<<20 {
		t.Errorf("Expected Memory.Bytes=%d, got %d", 1<<20, loaded.Memory.Bytes)
	}
	if loaded.Memory.TubeAddress != 0x20000 {
		t.Errorf("Expected Memory.TubeAddress=0x20000, got 0x%X", loaded.Memory.TubeAddress)
	}
	if loaded.Traps.Breakpoints != 8 {
		t.Errorf("Expected Traps.Breakpoints=8, got %d", loaded.Traps.Breakpoints)
	}
	if loaded.Terminal.Count != 4 {
		t.Errorf("Expected Terminal.Count=4, got %d", loaded.Terminal.Count)
	}
}

func TestLoadNonExistent(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "nonexistent.toml")

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom should not error on non-existent file: %v", err)
	}

	if cfg.Memory.Bytes != 1<<22 {
		t.Error("Expected default config when file doesn't exist")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "invalid.toml")

	invalidTOML := `
[memory]
bytes = "not a number"
`
	if err := os.WriteFile(configPath, []byte(invalidTOML), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	_, err := LoadFrom(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid TOML")
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	tempDir := t.TempDir()

	configPath := filepath.Join(tempDir, "subdir1", "subdir2", "config.toml")

	cfg := DefaultConfig()
	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	dir := filepath.Dir(configPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("Parent directories were not created")
	}
}
