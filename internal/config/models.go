package config

import (
	"fmt"
	"time"

	"github.com/ewest/midea/internal/midea"
)

// Config represents the entire user configuration file.
type Config struct {
	Version int    `yaml:"version"`
	App     string `yaml:"app,omitempty"`     // Cloud app profile name (see midea.SupportedApps)
	Account string `yaml:"account,omitempty"` // Cloud account email
	// Devices is keyed by appliance id.
	Devices     map[string]*Device `yaml:"devices,omitempty"`
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device holds the per-appliance credentials and metadata learned during
// discovery. Token and key come from the cloud and are required for v3
// appliances; storing them here lets later commands skip the cloud entirely.
type Device struct {
	Name     string    `yaml:"name,omitempty"`
	Type     string    `yaml:"type,omitempty"`      // Appliance type tag (e.g. "0xa1")
	Token    string    `yaml:"token,omitempty"`     // Hex v3 handshake token
	Key      string    `yaml:"key,omitempty"`       // Hex v3 handshake key
	LastIP   string    `yaml:"last_ip,omitempty"`   // Last known IP address
	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last discovery/connection time
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	BroadcastAddresses []string `yaml:"broadcast_addresses,omitempty"` // Discovery broadcast targets
	ScanTimeout        int      `yaml:"scan_timeout"`                  // Discovery timeout in seconds
	ScanRounds         int      `yaml:"scan_rounds"`                   // Broadcast rounds per scan
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		App:     midea.DefaultApp,
		Devices: make(map[string]*Device),
		Preferences: &Preferences{
			BroadcastAddresses: []string{"255.255.255.255"},
			ScanTimeout:        2,
			ScanRounds:         midea.DefaultRetries,
		},
	}
}

// Profile resolves the configured app name to its cloud identity.
func (c *Config) Profile() (midea.AppProfile, error) {
	name := c.App
	if name == "" {
		name = midea.DefaultApp
	}
	profile, ok := midea.SupportedApps[name]
	if !ok {
		return midea.AppProfile{}, fmt.Errorf("unknown app %q (supported: NetHome Plus, Midea Air, Ariston Clima, MSmartHome)", name)
	}
	return profile, nil
}

// GetDevice retrieves device credentials by appliance id.
// Returns nil if the device doesn't exist in the configuration.
func (c *Config) GetDevice(applianceID string) *Device {
	return c.Devices[applianceID]
}

// EnsureDevice ensures a device entry exists for the appliance id.
// Returns the entry (existing or newly created).
func (c *Config) EnsureDevice(applianceID string) *Device {
	if c.Devices == nil {
		c.Devices = make(map[string]*Device)
	}

	if device, exists := c.Devices[applianceID]; exists {
		return device
	}

	device := &Device{}
	c.Devices[applianceID] = device
	return device
}

// RememberDevice records the credentials and address of an appliance after a
// successful exchange. Empty token/key values do not overwrite stored ones.
func (c *Config) RememberDevice(applianceID, token, key, ip, applianceType string) {
	device := c.EnsureDevice(applianceID)
	if token != "" {
		device.Token = token
	}
	if key != "" {
		device.Key = key
	}
	if ip != "" {
		device.LastIP = ip
	}
	if applianceType != "" {
		device.Type = applianceType
	}
	device.LastSeen = time.Now()
}

// SetDeviceName sets a user-friendly name for an appliance.
func (c *Config) SetDeviceName(applianceID, name string) {
	device := c.EnsureDevice(applianceID)
	device.Name = name
}
