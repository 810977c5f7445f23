package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ewest/midea/internal/midea"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if configDir == "" {
		t.Error("GetConfigDir() returned empty string")
	}

	if !strings.Contains(configDir, "mideactl") {
		t.Errorf("GetConfigDir() = %v, should contain 'mideactl'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin", "linux":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("Unix config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Version != 1 {
		t.Errorf("NewConfig().Version = %v, want 1", cfg.Version)
	}
	if cfg.App != midea.DefaultApp {
		t.Errorf("NewConfig().App = %v, want %v", cfg.App, midea.DefaultApp)
	}
	if cfg.Devices == nil {
		t.Error("NewConfig().Devices should not be nil")
	}
	if cfg.Preferences == nil {
		t.Fatal("NewConfig().Preferences should not be nil")
	}
	if len(cfg.Preferences.BroadcastAddresses) == 0 {
		t.Error("NewConfig() should have a default broadcast address")
	}
}

func TestConfigProfile(t *testing.T) {
	tests := []struct {
		name    string
		app     string
		wantErr bool
	}{
		{name: "default when empty", app: "", wantErr: false},
		{name: "known app", app: "MSmartHome", wantErr: false},
		{name: "unknown app", app: "NoSuchApp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.App = tt.app
			profile, err := cfg.Profile()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Profile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && profile.AppKey == "" {
				t.Error("Profile() returned empty app key")
			}
		})
	}
}

func TestConfigEnsureDevice(t *testing.T) {
	cfg := NewConfig()

	device1 := cfg.EnsureDevice("123456")
	if device1 == nil {
		t.Fatal("EnsureDevice() returned nil")
	}

	device2 := cfg.EnsureDevice("123456")
	if device1 != device2 {
		t.Error("EnsureDevice() should return same instance for same id")
	}

	device3 := cfg.EnsureDevice("789012")
	if device1 == device3 {
		t.Error("EnsureDevice() should create new instance for different id")
	}
}

func TestConfigRememberDevice(t *testing.T) {
	cfg := NewConfig()

	before := time.Now()
	cfg.RememberDevice("123456", "t0k3n", "k3y", "192.168.1.100", "0xa1")
	after := time.Now()

	device := cfg.GetDevice("123456")
	if device == nil {
		t.Fatal("Device should exist after RememberDevice()")
	}
	if device.Token != "t0k3n" || device.Key != "k3y" {
		t.Errorf("credentials = %q/%q", device.Token, device.Key)
	}
	if device.LastIP != "192.168.1.100" {
		t.Errorf("LastIP = %v, want 192.168.1.100", device.LastIP)
	}
	if device.LastSeen.Before(before) || device.LastSeen.After(after) {
		t.Errorf("LastSeen = %v, should be between %v and %v", device.LastSeen, before, after)
	}

	// Empty credentials must not erase stored ones.
	cfg.RememberDevice("123456", "", "", "192.168.1.101", "")
	if device.Token != "t0k3n" || device.Key != "k3y" {
		t.Errorf("credentials after empty update = %q/%q", device.Token, device.Key)
	}
	if device.LastIP != "192.168.1.101" {
		t.Errorf("LastIP = %v, want updated address", device.LastIP)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	testConfigPath := filepath.Join(tmpDir, "config.yaml")

	cfg := NewConfig()
	cfg.App = "MSmartHome"
	cfg.Account = "user@example.com"
	cfg.SetDeviceName("123456", "Cellar")
	cfg.RememberDevice("123456", "t0k3n", "k3y", "192.168.1.100", "0xa1")

	if err := cfg.saveTo(testConfigPath); err != nil {
		t.Fatalf("saveTo() error = %v", err)
	}

	loaded, err := loadFromFile(testConfigPath)
	if err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}

	if loaded.App != "MSmartHome" || loaded.Account != "user@example.com" {
		t.Errorf("loaded account settings = %q/%q", loaded.App, loaded.Account)
	}

	device := loaded.GetDevice("123456")
	if device == nil {
		t.Fatal("Device should exist in loaded config")
	}
	if device.Name != "Cellar" {
		t.Errorf("loaded name = %v, want 'Cellar'", device.Name)
	}
	if device.Token != "t0k3n" || device.Key != "k3y" {
		t.Errorf("loaded credentials = %q/%q", device.Token, device.Key)
	}
	if device.Type != "0xa1" {
		t.Errorf("loaded type = %v, want 0xa1", device.Type)
	}
}

func TestLoadFromFileRejectsUnknownVersion(t *testing.T) {
	tmpDir := t.TempDir()
	testConfigPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(testConfigPath, []byte("version: 2\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := loadFromFile(testConfigPath); err == nil {
		t.Error("loadFromFile() should reject unsupported versions")
	}
}
