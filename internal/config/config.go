package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alecgard/cloudtally/internal/pricing"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Log            LogConfig            `yaml:"log"`
	Backend        BackendConfig        `yaml:"backend"`
	Auth           AuthConfig           `yaml:"auth"`
	Pricing        PricingConfig        `yaml:"pricing"`
	LoginRateLimit LoginRateLimitConfig `yaml:"login_rate_limit"`
	Database       DatabaseConfig       `yaml:"database"`
	History        HistoryConfig        `yaml:"history"`
	CORS           CORSConfig           `yaml:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"` // default: [] (same-origin only when empty; ["*"] for dev)
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// BackendConfig points at the identity service of the cloud being
// inventoried. Username and Password are the service account used for
// resource listings.
type BackendConfig struct {
	AuthURL         string        `yaml:"auth_url"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	ProjectName     string        `yaml:"project_name"`
	Region          string        `yaml:"region"`
	UserDomainID    string        `yaml:"user_domain_id"`
	ProjectDomainID string        `yaml:"project_domain_id"`
	Insecure        bool          `yaml:"insecure"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type PricingConfig struct {
	Currency string             `yaml:"currency"`
	Rates    map[string]float64 `yaml:"rates"`
}

type LoginRateLimitConfig struct {
	Attempts int           `yaml:"attempts"`
	Window   time.Duration `yaml:"window"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // empty disables cost history
}

type HistoryConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxList       int           `yaml:"max_list"`
}

// Load reads .env from the working directory if present, then the YAML file
// at path over the defaults, then environment overrides.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := expandEnvVars(string(data))

		// A rates block in the file replaces the default table rather than
		// merging into it.
		defaultRates := cfg.Pricing.Rates
		cfg.Pricing.Rates = nil
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if cfg.Pricing.Rates == nil {
			cfg.Pricing.Rates = defaultRates
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadDotEnv sets variables from a dotenv file without overriding ones
// already in the environment. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Backend: BackendConfig{
			ProjectName:     "admin",
			Region:          "RegionOne",
			UserDomainID:    "default",
			ProjectDomainID: "default",
			RequestTimeout:  30 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Pricing: PricingConfig{
			Currency: "INR",
			Rates: map[string]float64{
				"m1.tiny":          5,
				"m1.small":         10,
				"m1.medium":        20,
				"m1.large":         40,
				pricing.DefaultKey: 15,
			},
		},
		LoginRateLimit: LoginRateLimitConfig{
			Attempts: 10,
			Window:   time.Minute,
		},
		History: HistoryConfig{
			BatchSize:     50,
			FlushInterval: 5 * time.Second,
			MaxList:       100,
		},
	}
}

func expandEnvVars(s string) string {
	return os.ExpandEnv(s)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLOUDTALLY_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("CLOUDTALLY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CLOUDTALLY_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CLOUDTALLY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("CLOUDTALLY_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	// Standard OpenStack client variables, so an openrc file works as is.
	overrideString(&cfg.Backend.AuthURL, "OS_AUTH_URL")
	overrideString(&cfg.Backend.Username, "OS_USERNAME")
	overrideString(&cfg.Backend.Password, "OS_PASSWORD")
	overrideString(&cfg.Backend.ProjectName, "OS_PROJECT_NAME")
	overrideString(&cfg.Backend.Region, "OS_REGION_NAME")
	overrideString(&cfg.Backend.UserDomainID, "OS_USER_DOMAIN_ID")
	overrideString(&cfg.Backend.ProjectDomainID, "OS_PROJECT_DOMAIN_ID")
	if v := os.Getenv("OS_INSECURE"); v != "" {
		if insecure, err := strconv.ParseBool(v); err == nil {
			cfg.Backend.Insecure = insecure
		}
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Backend.AuthURL == "" {
		errs = append(errs, "backend.auth_url is required")
	}
	if c.Backend.RequestTimeout <= 0 {
		errs = append(errs, "backend.request_timeout must be positive")
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, "auth.token_ttl must be positive")
	}
	if _, err := c.PricingTable(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.LoginRateLimit.Attempts < 1 {
		errs = append(errs, "login_rate_limit.attempts must be at least 1")
	}
	if c.LoginRateLimit.Window <= 0 {
		errs = append(errs, "login_rate_limit.window must be positive")
	}
	if c.History.BatchSize < 1 {
		errs = append(errs, "history.batch_size must be at least 1")
	}
	if c.History.FlushInterval <= 0 {
		errs = append(errs, "history.flush_interval must be positive")
	}
	if c.History.MaxList < 1 {
		errs = append(errs, "history.max_list must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PricingTable converts the pricing section into the immutable table used
// for every aggregation.
func (c *Config) PricingTable() (*pricing.Table, error) {
	t, err := pricing.NewTable(c.Pricing.Currency, c.Pricing.Rates)
	if err != nil {
		return nil, fmt.Errorf("pricing: %w", err)
	}
	return t, nil
}

// SlogLevel parses log.level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	return level, nil
}

// HistoryEnabled reports whether a database is configured for cost history.
func (c *Config) HistoryEnabled() bool {
	return c.Database.URL != ""
}

func (c *Config) MigrationsSource() string {
	return "file://migrations"
}

func (c *Config) DatabaseURLForMigrate() string {
	url := c.Database.URL
	if !strings.Contains(url, "sslmode=") {
		if strings.Contains(url, "?") {
			url += "&sslmode=disable"
		} else {
			url += "?sslmode=disable"
		}
	}
	return url
}
