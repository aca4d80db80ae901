package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Access     AccessConfig     `yaml:"access"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Aqualink   AqualinkConfig   `yaml:"aqualink"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Location   LocationConfig   `yaml:"location"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

// AccessConfig holds guest-access settings: the admin key and the
// check-in/checkout offsets that bound each reservation's active window.
// The hours are pointers so an explicit 0 (midnight) stays distinct from
// an unset field.
type AccessConfig struct {
	AdminKey     string `yaml:"admin_key"`
	CheckinHour  *int   `yaml:"checkin_hour"`
	CheckoutHour *int   `yaml:"checkout_hour"`
	Timezone     string `yaml:"timezone"`
}

// CalendarConfig holds the reservation feed settings. An empty FeedURL
// disables reservation-based access entirely.
type CalendarConfig struct {
	FeedURL                string        `yaml:"feed_url"`
	RefreshIntervalMinutes int           `yaml:"refresh_interval_minutes"`
	RefreshInterval        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// AqualinkConfig holds the vendor API credentials and endpoints.
type AqualinkConfig struct {
	Username            string        `yaml:"username"`
	Password            string        `yaml:"password"`
	DeviceSerial        string        `yaml:"device_serial"`
	APIBase             string        `yaml:"api_base"`
	DevicesURL          string        `yaml:"devices_url"`
	SessionURL          string        `yaml:"session_url"`
	SessionTimeoutHours int           `yaml:"session_timeout_hours"`
	SessionTimeout      time.Duration `yaml:"-"`
	JetPumpDevice       string        `yaml:"jet_pump_device"`
	SettleDelayMS       int           `yaml:"settle_delay_ms"`
	SettleDelay         time.Duration `yaml:"-"`
	PacingDelayMS       int           `yaml:"pacing_delay_ms"`
	PacingDelay         time.Duration `yaml:"-"`
}

// ShutdownConfig holds the nightly safety-net schedule.
type ShutdownConfig struct {
	NightlySpec string `yaml:"nightly_spec"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications. Keys are
// optional; without them the notify timer degrades to a log line.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LocationConfig holds the optional allowed-location gate. An empty list
// disables location checks.
type LocationConfig struct {
	Allowed  []string `yaml:"allowed"` // "lat,lon" pairs
	RadiusKM float64  `yaml:"radius_km"`
}

// Load reads the configuration from the given path and applies defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills in defaulted fields and derives the time.Duration
// values from their integer counterparts.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}

	if cfg.Access.CheckinHour == nil {
		cfg.Access.CheckinHour = hourPtr(15)
	}
	if cfg.Access.CheckoutHour == nil {
		cfg.Access.CheckoutHour = hourPtr(13)
	}
	if cfg.Access.Timezone == "" {
		cfg.Access.Timezone = "America/Los_Angeles"
	}

	if cfg.Calendar.RefreshIntervalMinutes <= 0 {
		cfg.Calendar.RefreshIntervalMinutes = 60
	}
	cfg.Calendar.RefreshInterval = time.Duration(cfg.Calendar.RefreshIntervalMinutes) * time.Minute

	if cfg.Aqualink.APIBase == "" {
		cfg.Aqualink.APIBase = "https://prod.zodiac-io.com"
	}
	if cfg.Aqualink.DevicesURL == "" {
		cfg.Aqualink.DevicesURL = "https://r-api.iaqualink.net/devices.json"
	}
	if cfg.Aqualink.SessionURL == "" {
		cfg.Aqualink.SessionURL = "https://p-api.iaqualink.net/v1/mobile/session.json"
	}
	if cfg.Aqualink.SessionTimeoutHours <= 0 {
		cfg.Aqualink.SessionTimeoutHours = 12
	}
	cfg.Aqualink.SessionTimeout = time.Duration(cfg.Aqualink.SessionTimeoutHours) * time.Hour
	if cfg.Aqualink.JetPumpDevice == "" {
		cfg.Aqualink.JetPumpDevice = "aux_1"
	}
	if cfg.Aqualink.SettleDelayMS <= 0 {
		cfg.Aqualink.SettleDelayMS = 1500
	}
	cfg.Aqualink.SettleDelay = time.Duration(cfg.Aqualink.SettleDelayMS) * time.Millisecond
	if cfg.Aqualink.PacingDelayMS <= 0 {
		cfg.Aqualink.PacingDelayMS = 1000
	}
	cfg.Aqualink.PacingDelay = time.Duration(cfg.Aqualink.PacingDelayMS) * time.Millisecond

	if cfg.Shutdown.NightlySpec == "" {
		cfg.Shutdown.NightlySpec = "0 0 * * *"
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "spa-gateway.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	if cfg.Location.RadiusKM <= 0 {
		cfg.Location.RadiusKM = 0.2
	}
}

// Validate rejects configurations that would silently disable protection or
// leave the vendor client unable to authenticate.
func (cfg *Config) Validate() error {
	if cfg.Access.AdminKey == "" {
		return fmt.Errorf("access.admin_key must be set")
	}
	if cfg.Aqualink.Username == "" || cfg.Aqualink.Password == "" {
		return fmt.Errorf("aqualink.username and aqualink.password must be set")
	}
	if _, err := time.LoadLocation(cfg.Access.Timezone); err != nil {
		return fmt.Errorf("invalid access.timezone %q: %w", cfg.Access.Timezone, err)
	}
	if h := *cfg.Access.CheckinHour; h < 0 || h > 23 {
		return fmt.Errorf("access.checkin_hour must be between 0 and 23, got %d", h)
	}
	if h := *cfg.Access.CheckoutHour; h < 0 || h > 23 {
		return fmt.Errorf("access.checkout_hour must be between 0 and 23, got %d", h)
	}
	return nil
}

func hourPtr(h int) *int {
	return &h
}

// TimeLocation returns the configured local timezone. Validate guarantees it
// resolves, so failures here fall back to UTC.
func (cfg *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(cfg.Access.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
