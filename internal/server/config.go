package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/codec"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/radio"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/transport"
)

// Config holds all tool configuration.
type Config struct {
	mu sync.RWMutex

	// Serial link to the radio
	Radio RadioConfig `yaml:"radio" json:"radio"`

	// Where exports land
	Export ExportConfig `yaml:"export" json:"export"`

	// Web UI / API
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	path string // file path for save/load
}

type RadioConfig struct {
	Type          string `yaml:"type" json:"type"`          // "serial" or "sim"
	PortPath      string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyUSB0
	BaudRate      int    `yaml:"baud_rate" json:"baudRate"`
	Retries       int    `yaml:"retries" json:"retries"`
	BackoffMs     int    `yaml:"backoff_ms" json:"backoffMs"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" json:"readTimeoutMs"`
	VoltageWindow string `yaml:"voltage_window" json:"voltageWindow"` // "default" or "legacy"
}

type ExportConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr" json:"listenAddr"`
	PollSeconds int    `yaml:"poll_seconds" json:"pollSeconds"` // battery poll interval
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" json:"format"` // "console" or "json"
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Radio: RadioConfig{
			Type:          "serial",
			PortPath:      "/dev/ttyUSB0",
			BaudRate:      transport.DefaultBaudRate,
			Retries:       3,
			BackoffMs:     100,
			ReadTimeoutMs: 500,
			VoltageWindow: "default",
		},
		Export: ExportConfig{
			Dir: "exports",
		},
		Server: ServerConfig{
			ListenAddr:  ":8080",
			PollSeconds: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		// Strip surrounding quotes
		val = strings.Trim(val, `"'`)
		// Only set if not already set in real env (real env takes precedence)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: RADIO_TYPE, RADIO_PORT, RADIO_BAUD, RADIO_RETRIES,
// VOLTAGE_WINDOW, EXPORT_DIR, LISTEN_ADDR, LOG_LEVEL, LOG_FORMAT
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RADIO_TYPE"); v != "" {
		c.Radio.Type = v
	}
	if v := os.Getenv("RADIO_PORT"); v != "" {
		c.Radio.PortPath = v
	}
	if v := os.Getenv("RADIO_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Radio.BaudRate = n
		}
	}
	if v := os.Getenv("RADIO_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Radio.Retries = n
		}
	}
	if v := os.Getenv("VOLTAGE_WINDOW"); v != "" {
		c.Radio.VoltageWindow = v
	}
	if v := os.Getenv("EXPORT_DIR"); v != "" {
		c.Export.Dir = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Transport returns the serial settings for opening the port.
func (c *Config) Transport() transport.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return transport.Config{
		PortPath: c.Radio.PortPath,
		BaudRate: c.Radio.BaudRate,
	}
}

// SessionOptions translates the radio section into session options.
func (c *Config) SessionOptions() []radio.Option {
	c.mu.RLock()
	defer c.mu.RUnlock()

	opts := []radio.Option{
		radio.WithRetries(c.Radio.Retries),
		radio.WithBackoffStep(time.Duration(c.Radio.BackoffMs) * time.Millisecond),
		radio.WithReadTimeout(time.Duration(c.Radio.ReadTimeoutMs) * time.Millisecond),
	}
	if strings.EqualFold(c.Radio.VoltageWindow, "legacy") {
		opts = append(opts, radio.WithVoltageWindow(codec.LegacyVoltageWindow))
	}
	return opts
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := c.path
	if path == "" {
		path = "config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved (e.g. port path, baud rate, export dir).
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current config to a generic map
	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	// Unmarshal incoming partial update to a map
	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	// Deep merge patch into base
	deepMerge(base, patch)

	// Marshal merged result and unmarshal back into the config struct
	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
