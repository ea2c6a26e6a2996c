// Package config provides YAML-based configuration loading for carpool.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zulandar/carpool/internal/models"
	"gopkg.in/yaml.v3"
)

// Config is the top-level carpool configuration, loaded from carpool.yaml.
type Config struct {
	User      UserConfig      `yaml:"user"`
	Backend   BackendConfig   `yaml:"backend"`
	Channel   ChannelConfig   `yaml:"channel"`
	Cache     CacheConfig     `yaml:"cache"`
	Sync      SyncConfig      `yaml:"sync"`
	AutoStart AutoStartConfig `yaml:"autostart"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// UserConfig identifies the local user and which side of a trip they are on.
type UserConfig struct {
	ID   int64       `yaml:"id"`
	Name string      `yaml:"name"`
	Role models.Role `yaml:"role"`
}

// BackendConfig holds settings for the remote trip backend.
type BackendConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ChannelConfig holds settings for the chat messaging channel.
type ChannelConfig struct {
	URL              string `yaml:"url"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	HeartbeatMs      int    `yaml:"heartbeat_ms"`
}

// CacheConfig selects the local cache backend.
type CacheConfig struct {
	Driver string      `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path   string      `yaml:"path"`   // sqlite file path
	MySQL  MySQLConfig `yaml:"mysql"`
}

// MySQLConfig holds connection settings for a shared MySQL cache.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// SyncConfig controls the trip lifecycle synchronizer cadence.
type SyncConfig struct {
	PassengerIntervalSec int `yaml:"passenger_interval_sec"`
	DriverIntervalSec    int `yaml:"driver_interval_sec"`
	NotFoundThreshold    int `yaml:"not_found_threshold"`
}

// AutoStartConfig controls the driver-side auto-start monitor.
type AutoStartConfig struct {
	IntervalSec int `yaml:"interval_sec"`
}

// DashboardConfig holds settings for the local status server.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// NotifyConfig holds optional transition notifier sinks.
type NotifyConfig struct {
	Slack   SinkConfig `yaml:"slack"`
	Discord SinkConfig `yaml:"discord"`
}

// SinkConfig is a bot token plus the channel to post to.
type SinkConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether the sink has enough settings to post.
func (s SinkConfig) Enabled() bool {
	return s.BotToken != "" && s.Channel != ""
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:8080"
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.TimeoutSec == 0 {
		c.Backend.TimeoutSec = 40
	}
	if c.Channel.URL == "" {
		c.Channel.URL = "ws://localhost:8080/chats"
	}
	if c.Channel.ReconnectDelayMs == 0 {
		c.Channel.ReconnectDelayMs = 5000
	}
	if c.Channel.HeartbeatMs == 0 {
		c.Channel.HeartbeatMs = 4000
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "sqlite"
	}
	if c.Cache.Driver == "sqlite" && c.Cache.Path == "" {
		c.Cache.Path = "carpool.db"
	}
	if c.Cache.Driver == "mysql" {
		if c.Cache.MySQL.Host == "" {
			c.Cache.MySQL.Host = "127.0.0.1"
		}
		if c.Cache.MySQL.Port == 0 {
			c.Cache.MySQL.Port = 3306
		}
		if c.Cache.MySQL.User == "" {
			c.Cache.MySQL.User = "root"
		}
		if c.Cache.MySQL.Database == "" && c.User.ID != 0 {
			c.Cache.MySQL.Database = fmt.Sprintf("carpool_%d", c.User.ID)
		}
	}
	if c.Sync.PassengerIntervalSec == 0 {
		c.Sync.PassengerIntervalSec = 4
	}
	if c.Sync.DriverIntervalSec == 0 {
		c.Sync.DriverIntervalSec = 15
	}
	if c.Sync.NotFoundThreshold == 0 {
		c.Sync.NotFoundThreshold = 2
	}
	if c.AutoStart.IntervalSec == 0 {
		c.AutoStart.IntervalSec = 15
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8090
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.User.ID <= 0 {
		errs = append(errs, "user.id is required")
	}
	if !c.User.Role.Valid() {
		errs = append(errs, fmt.Sprintf("user.role must be driver or passenger, got %q", c.User.Role))
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		errs = append(errs, "backend.base_url must be an http(s) URL")
	}
	if !strings.HasPrefix(c.Channel.URL, "ws://") && !strings.HasPrefix(c.Channel.URL, "wss://") {
		errs = append(errs, "channel.url must be a ws(s) URL")
	}
	switch c.Cache.Driver {
	case "sqlite":
	case "mysql":
		if c.Cache.MySQL.Database == "" {
			errs = append(errs, "cache.mysql.database is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.driver must be sqlite or mysql, got %q", c.Cache.Driver))
	}
	if c.Sync.NotFoundThreshold < 0 {
		errs = append(errs, "sync.not_found_threshold must not be negative")
	}
	if c.Sync.PassengerIntervalSec < 0 || c.Sync.DriverIntervalSec < 0 || c.AutoStart.IntervalSec < 0 {
		errs = append(errs, "intervals must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SyncInterval returns the synchronizer cadence for the configured role.
func (c *Config) SyncInterval() time.Duration {
	if c.User.Role == models.RoleDriver {
		return time.Duration(c.Sync.DriverIntervalSec) * time.Second
	}
	return time.Duration(c.Sync.PassengerIntervalSec) * time.Second
}

// BackendTimeout returns the HTTP timeout for backend calls.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSec) * time.Second
}

// ReconnectDelay returns the fixed messaging channel reconnect delay.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Channel.ReconnectDelayMs) * time.Millisecond
}

// Heartbeat returns the messaging channel heartbeat interval.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.Channel.HeartbeatMs) * time.Millisecond
}

// AutoStartInterval returns the auto-start monitor cadence.
func (c *Config) AutoStartInterval() time.Duration {
	return time.Duration(c.AutoStart.IntervalSec) * time.Second
}
