// Package config loads the service configuration: a JSON file, then an
// optional .env file and QUEUE_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/queue.report/internal/queue"
	"github.com/banshee-data/queue.report/internal/timeutil"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/queue.defaults.json"

// Config is the service configuration. Unset fields fall back to the
// defaults returned by the Get* methods, so partial files are safe.
type Config struct {
	DBPath     *string `json:"db_path,omitempty"`
	Listen     *string `json:"listen,omitempty"`
	APIURL     *string `json:"api_url,omitempty"`
	LocationID *string `json:"location_id,omitempty"`
	// CameraID selects the record in multi-camera API responses.
	CameraID *string `json:"camera_id,omitempty"`
	Timezone *string `json:"timezone,omitempty"`

	PollInterval *string `json:"poll_interval,omitempty"` // duration string like "10s"
	Heartbeat    *string `json:"sse_heartbeat,omitempty"`

	Capacity     *int    `json:"capacity,omitempty"`
	Empty        *int    `json:"empty,omitempty"`
	MaxEpisode   *string `json:"max_episode,omitempty"` // "0s" disables
	Estimator    *string `json:"estimator,omitempty"`
	OrphanPolicy *string `json:"orphan_policy,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// LoadConfig reads and validates a JSON config file.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, returning an empty config when path is the
// default location and does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if path == DefaultConfigPath && errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return nil, err
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or a parent. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *Config {
	for _, path := range []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	} {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from QUEUE_* variables found by lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strVars := map[string]**string{
		"QUEUE_DB_PATH":       &c.DBPath,
		"QUEUE_LISTEN":        &c.Listen,
		"QUEUE_API_URL":       &c.APIURL,
		"QUEUE_LOCATION_ID":   &c.LocationID,
		"QUEUE_CAMERA_ID":     &c.CameraID,
		"QUEUE_TIMEZONE":      &c.Timezone,
		"QUEUE_POLL_INTERVAL": &c.PollInterval,
		"QUEUE_MAX_EPISODE":   &c.MaxEpisode,
		"QUEUE_ESTIMATOR":     &c.Estimator,
		"QUEUE_ORPHAN_POLICY": &c.OrphanPolicy,
	}
	for name, field := range strVars {
		if v, ok := lookup(name); ok && v != "" {
			*field = ptrString(v)
		}
	}
	intVars := map[string]**int{
		"QUEUE_CAPACITY": &c.Capacity,
		"QUEUE_EMPTY":    &c.Empty,
	}
	for name, field := range intVars {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", name, v)
		}
		*field = ptrInt(n)
	}
	return c.Validate()
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	for name, v := range map[string]*string{
		"poll_interval": c.PollInterval,
		"sse_heartbeat": c.Heartbeat,
		"max_episode":   c.MaxEpisode,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, *v)
		}
	}
	if c.PollInterval != nil && *c.PollInterval != "" && c.GetPollInterval() < time.Second {
		return fmt.Errorf("poll_interval must be at least 1s, got %s", *c.PollInterval)
	}
	if c.Timezone != nil {
		if _, err := timeutil.LoadLocation(*c.Timezone); err != nil {
			return err
		}
	}
	switch c.GetOrphanPolicy() {
	case queue.OrphanDelete, queue.OrphanClose:
	default:
		return fmt.Errorf("orphan_policy must be %q or %q, got %q", queue.OrphanDelete, queue.OrphanClose, c.GetOrphanPolicy())
	}
	if c.GetLocationID() == "" {
		return fmt.Errorf("location_id must not be empty")
	}
	return c.Thresholds().Validate()
}

func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "queue.db"
	}
	return *c.DBPath
}

func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetAPIURL returns the camera API endpoint. Empty disables polling.
func (c *Config) GetAPIURL() string {
	if c.APIURL == nil {
		return ""
	}
	return *c.APIURL
}

func (c *Config) GetLocationID() string {
	if c.LocationID == nil {
		return "default"
	}
	return *c.LocationID
}

func (c *Config) GetCameraID() string {
	if c.CameraID == nil || *c.CameraID == "" {
		return c.GetLocationID()
	}
	return *c.CameraID
}

func (c *Config) GetTimezone() string {
	if c.Timezone == nil || *c.Timezone == "" {
		return timeutil.DefaultLocation
	}
	return *c.Timezone
}

// Location resolves GetTimezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := timeutil.LoadLocation(c.GetTimezone())
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func (c *Config) GetPollInterval() time.Duration {
	return parseDurationOr(c.PollInterval, 10*time.Second)
}

func (c *Config) GetHeartbeat() time.Duration {
	return parseDurationOr(c.Heartbeat, 30*time.Second)
}

func (c *Config) GetMaxEpisode() time.Duration {
	return parseDurationOr(c.MaxEpisode, 0)
}

func (c *Config) GetOrphanPolicy() queue.OrphanPolicy {
	if c.OrphanPolicy == nil || *c.OrphanPolicy == "" {
		return queue.OrphanDelete
	}
	return queue.OrphanPolicy(*c.OrphanPolicy)
}

// Thresholds returns the detector thresholds.
func (c *Config) Thresholds() queue.Thresholds {
	th := queue.DefaultThresholds()
	if c.Capacity != nil {
		th.Capacity = *c.Capacity
	}
	if c.Empty != nil {
		th.Empty = *c.Empty
	}
	if c.Estimator != nil && *c.Estimator != "" {
		th.Estimator = queue.Estimator(*c.Estimator)
	}
	th.MaxEpisode = c.GetMaxEpisode()
	return th
}
