package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Route is an origin/destination pair whose connections are recorded.
type Route struct {
	From string `yaml:"from" validate:"required"`
	To   string `yaml:"to" validate:"required,nefield=From"`
}

func (r Route) String() string {
	return r.From + " -> " + r.To
}

// Registry backends for train id deduplication
const (
	RegistryCSV    = "csv"
	RegistrySQLite = "sqlite"
)

// Config holds all configuration for the pipeline
type Config struct {
	// iRail API
	APIBaseURL     string        `validate:"required,url"`
	RequestTimeout time.Duration `validate:"gt=0"`
	UserAgent      string        `validate:"required"`
	Language       string        `validate:"oneof=en nl fr de"`

	// Output
	OutputDirectory string `validate:"required"`
	ExportGTFSRT    bool

	// What to record
	Stations         []string `validate:"dive,required"`
	Routes           []Route  `validate:"dive"`
	Vehicles         []string `validate:"dive,required"`
	FollowDepartures int      `validate:"gte=0"`

	// Train registry and run log
	RegistryBackend   string `validate:"oneof=csv sqlite"`
	DatabasePath      string
	RetentionDuration time.Duration `validate:"gte=0"`

	// Triggers
	RunInterval time.Duration `validate:"gte=0"`
	HTTPPort    string        `validate:"required,numeric"`
}

// DefaultStations are the stations tracked when no config file overrides them.
var DefaultStations = []string{
	"Gent-Sint-Pieters",
	"Brussels-Central",
	"Antwerpen-Centraal",
}

// DefaultRoutes are the routes tracked when no config file overrides them.
var DefaultRoutes = []Route{
	{From: "Gent-Sint-Pieters", To: "Brussels-Central"},
}

// fileConfig is the shape of the optional YAML file named by PIPELINE_CONFIG.
type fileConfig struct {
	Stations []string `yaml:"stations"`
	Routes   []Route  `yaml:"routes"`
	Vehicles []string `yaml:"vehicles"`
}

// Load reads .env files, environment variables and the optional YAML file,
// validates the result and creates the output directory.
func Load() (*Config, error) {
	// .env.local overrides .env for local development
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := FromEnv()

	if path := os.Getenv("PIPELINE_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.OutputDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDirectory, err)
	}

	return cfg, nil
}

// FromEnv builds a configuration from environment variables with defaults.
// It does not validate or touch the filesystem.
func FromEnv() *Config {
	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		// iRail API
		APIBaseURL:     strings.TrimRight(getEnv("IRAIL_BASE_URL", "https://api.irail.be"), "/"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
		UserAgent:      getEnv("IRAIL_USER_AGENT", "iRail CSV Pipeline"),
		Language:       getEnv("IRAIL_LANG", "en"),

		// Output
		OutputDirectory: dataDir,
		ExportGTFSRT:    getEnvBool("EXPORT_GTFSRT", false),

		// What to record
		Stations:         append([]string(nil), DefaultStations...),
		Routes:           append([]Route(nil), DefaultRoutes...),
		FollowDepartures: getEnvInt("FOLLOW_DEPARTURES", 0),

		// Train registry and run log
		RegistryBackend:   getEnv("REGISTRY_BACKEND", RegistryCSV),
		DatabasePath:      getEnv("SQLITE_DATABASE", filepath.Join(dataDir, "pipeline.db")),
		RetentionDuration: time.Duration(getEnvInt("RETENTION_DAYS", 30)) * 24 * time.Hour,

		// Triggers
		RunInterval: time.Duration(getEnvInt("RUN_INTERVAL_SECONDS", 0)) * time.Second,
		HTTPPort:    getEnv("PORT", "8081"),
	}

	// SQLITE_DATABASE=off runs without the run log
	if strings.EqualFold(cfg.DatabasePath, "off") {
		cfg.DatabasePath = ""
	}

	return cfg
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.RegistryBackend == RegistrySQLite && c.DatabasePath == "" {
		return errors.New("invalid configuration: sqlite registry backend needs SQLITE_DATABASE")
	}
	return nil
}

// DatabaseEnabled reports whether the SQLite run log is configured.
func (c *Config) DatabaseEnabled() bool {
	return c.DatabasePath != ""
}

// OutputPath returns the path of name inside the output directory.
func (c *Config) OutputPath(name string) string {
	return filepath.Join(c.OutputDirectory, name)
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to unmarshal config file %s: %w", path, err)
	}

	// Lists present in the file replace the compiled-in defaults
	if fc.Stations != nil {
		c.Stations = fc.Stations
	}
	if fc.Routes != nil {
		c.Routes = fc.Routes
	}
	if fc.Vehicles != nil {
		c.Vehicles = fc.Vehicles
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
