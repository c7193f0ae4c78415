package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// defaultConfigPath is the default filename for persisted configuration.
const defaultConfigPath = "config.json"

// ConfigManager wraps the loaded configuration and a mutex for concurrent access.
// When modifying configuration through the HTTP API, always call Save() to
// persist changes.
type ConfigManager struct {
	// Path is the config file location. If empty, defaultConfigPath is used.
	Path string

	mu     sync.RWMutex
	cfg    Config
	loaded bool
}

func (cm *ConfigManager) path() string {
	if cm.Path == "" {
		return defaultConfigPath
	}
	return cm.Path
}

// defaultConfig is what gets written on first run: plain HTTP on 8080, a
// single admin user (password "admin", change it), the Pi's hardware PWM pin
// for the servo and the first SPI port for the LED. The strike motion is a
// conservative 90 degree sweep.
func defaultConfig() Config {
	return Config{
		HTTPPort: 8080,
		LogFile:  "events.log",
		WiFi: WiFiConfig{
			Interface:       "wlan0",
			AssocTimeoutSec: 30,
		},
		LED: LEDConfig{SPIPort: "SPI0.0"},
		Servo: ServoConfig{
			Driver:      "pwm",
			Pin:         "GPIO18",
			RestAngle:   20,
			ImpactAngle: 110,
			SweepMs:     250,
			SettleMs:    400,
		},
		Users: []User{
			{Username: "admin", PasswordHash: hashPassword("admin"), Admin: true},
		},
	}
}

// Load reads configuration from disk. If the file does not exist, a default
// configuration is created and persisted. WiFi credentials from the
// environment override the file in either case.
func (cm *ConfigManager) Load() error {
	cm.mu.Lock()
	// If the config is already loaded in memory, release the lock and return.
	if cm.loaded {
		cm.mu.Unlock()
		return nil
	}
	data, err := os.ReadFile(cm.path())
	if err != nil {
		if os.IsNotExist(err) {
			cm.cfg = defaultConfig()
			cm.applyEnv()
			cm.loaded = true
			// Release the write lock before saving to avoid deadlock: Save
			// acquires a read lock on the same mutex.
			cm.mu.Unlock()
			return cm.Save()
		}
		cm.mu.Unlock()
		return fmt.Errorf("unable to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cm.cfg); err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("invalid %s: %w", cm.path(), err)
	}
	cm.applyEnv()
	cm.loaded = true
	cm.mu.Unlock()
	return nil
}

// applyEnv overrides WiFi credentials from the environment so the config
// file never has to hold a plaintext PSK. Caller holds the lock.
func (cm *ConfigManager) applyEnv() {
	if ssid := os.Getenv("GONG_WIFI_SSID"); ssid != "" {
		cm.cfg.WiFi.SSID = ssid
	}
	if psk := os.Getenv("GONG_WIFI_PSK"); psk != "" {
		cm.cfg.WiFi.PSK = psk
	}
}

// Save writes the configuration to disk atomically.
func (cm *ConfigManager) Save() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	bytes, err := json.MarshalIndent(cm.cfg, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := cm.path() + ".tmp"
	if err := os.WriteFile(tmpPath, bytes, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, cm.path())
}

// Get returns a copy of the current configuration. Callers must treat the
// returned Config as immutable.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.cfg
}

// Update applies a user supplied function to modify the configuration. It
// holds the write lock, calls the supplied function with a pointer to the
// internal config, and then persists the change. The updater must not
// capture the pointer beyond the scope of the function.
func (cm *ConfigManager) Update(fn func(*Config) error) error {
	cm.mu.Lock()
	if err := fn(&cm.cfg); err != nil {
		cm.mu.Unlock()
		return err
	}
	// Release the lock before saving to avoid deadlock: Save acquires a read
	// lock on the same mutex.
	cm.mu.Unlock()
	return cm.Save()
}

// FindUser returns a user and its index by username. If not found, index
// will be -1.
func (cm *ConfigManager) FindUser(username string) (User, int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for i, u := range cm.cfg.Users {
		if u.Username == username {
			return u, i
		}
	}
	return User{}, -1
}

// Authenticate checks whether the provided username and password are valid.
// It returns the user object if authentication succeeds.
func (cm *ConfigManager) Authenticate(username, password string) (User, error) {
	user, _ := cm.FindUser(username)
	if user.Username == "" {
		return User{}, errors.New("invalid credentials")
	}
	if err := checkPasswordHash(password, user.PasswordHash); err != nil {
		return User{}, errors.New("invalid credentials")
	}
	return user, nil
}
