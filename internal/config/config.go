package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bookfront/internal/models"
	"bookfront/internal/timegrid"

	"github.com/joho/godotenv"
	"golang.org/x/text/currency"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Wizard     WizardConfig     `yaml:"wizard"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Tenants    []TenantConfig   `yaml:"tenants"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type PricingConfig struct {
	ServiceFeeRate    string `yaml:"service_fee_rate"`
	ServiceFeeMinimum string `yaml:"service_fee_minimum"`
}

type CalendarConfig struct {
	DayStart        string `yaml:"day_start"`
	DayEnd          string `yaml:"day_end"`
	RowHeight       int    `yaml:"row_height"`
	DefaultTimezone string `yaml:"default_timezone"`
}

type WizardConfig struct {
	SessionTTL       int `yaml:"session_ttl"`
	SubmitRateLimit  int `yaml:"submit_rate_limit"`
	SubmitRateWindow int `yaml:"submit_rate_window"`
	SubmitTimeout    int `yaml:"submit_timeout"`
}

type UpstreamConfig struct {
	CatalogURL  string `yaml:"catalog_url"`
	BookingURL  string `yaml:"booking_url"`
	CalendarURL string `yaml:"calendar_url"`
	APIKey      string `yaml:"api_key"`
	APIExtra    string `yaml:"api_extra"`
	Timeout     int    `yaml:"timeout"`
	CacheTTL    int    `yaml:"cache_ttl"`
	MaxRetries  int    `yaml:"max_retries"`
	CatalogFile string `yaml:"catalog_file"`
}

// TenantConfig describes one business. Timezone is the business reference zone
// used for booking-window messages and calendar display.
type TenantConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
	Currency string `yaml:"currency"`
	DayStart string `yaml:"day_start"`
	DayEnd   string `yaml:"day_end"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if len(c.Tenants) == 0 {
		return errors.New("at least one tenant is required")
	}
	if c.Upstream.CatalogURL == "" && c.Upstream.CatalogFile == "" {
		return errors.New("upstream.catalog_url or upstream.catalog_file is required")
	}
	if _, err := time.LoadLocation(c.Calendar.DefaultTimezone); err != nil {
		return fmt.Errorf("calendar.default_timezone: %w", err)
	}
	return ValidateTenants(c.Tenants)
}

func ValidateTenants(tenants []TenantConfig) error {
	ids := make(map[string]bool)
	for _, t := range tenants {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("tenant '%s' has empty ID", t.Name)
		}
		if ids[t.ID] {
			return fmt.Errorf("duplicate tenant ID found: %s", t.ID)
		}
		ids[t.ID] = true

		if _, err := time.LoadLocation(t.Timezone); err != nil {
			return fmt.Errorf("tenant %s: invalid timezone %q: %w", t.ID, t.Timezone, err)
		}
		if _, err := currency.ParseISO(t.Currency); err != nil {
			return fmt.Errorf("tenant %s: invalid currency %q: %w", t.ID, t.Currency, err)
		}
		// пустые границы заполняет applyDefaults
		if t.DayStart != "" || t.DayEnd != "" {
			if _, err := timegrid.BuildAxis(timegrid.AxisConfig{Start: t.DayStart, End: t.DayEnd}); err != nil {
				return fmt.Errorf("tenant %s: calendar day: %w", t.ID, err)
			}
		}
	}
	return nil
}

// Tenant looks up a configured business by id.
func (c *Config) Tenant(id string) (TenantConfig, bool) {
	for _, t := range c.Tenants {
		if t.ID == id {
			return t, true
		}
	}
	return TenantConfig{}, false
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Pricing.ServiceFeeRate == "" {
		c.Pricing.ServiceFeeRate = "0.10"
	}
	if c.Pricing.ServiceFeeMinimum == "" {
		c.Pricing.ServiceFeeMinimum = "1.00"
	}

	if c.Calendar.DayStart == "" {
		c.Calendar.DayStart = "08:00"
	}
	if c.Calendar.DayEnd == "" {
		c.Calendar.DayEnd = "20:00"
	}
	if c.Calendar.RowHeight == 0 {
		c.Calendar.RowHeight = models.DefaultRowHeight
	}
	if c.Calendar.DefaultTimezone == "" {
		c.Calendar.DefaultTimezone = "UTC"
	}

	if c.Wizard.SessionTTL == 0 {
		c.Wizard.SessionTTL = models.DefaultSessionTTL
	}
	if c.Wizard.SubmitRateLimit == 0 {
		c.Wizard.SubmitRateLimit = models.SubmitRateLimit
	}
	if c.Wizard.SubmitRateWindow == 0 {
		c.Wizard.SubmitRateWindow = models.SubmitRateWindow
	}
	if c.Wizard.SubmitTimeout == 0 {
		c.Wizard.SubmitTimeout = 30
	}

	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 10
	}
	if c.Upstream.CacheTTL == 0 {
		c.Upstream.CacheTTL = models.DefaultCatalogCacheTTL
	}
	if c.Upstream.MaxRetries == 0 {
		c.Upstream.MaxRetries = 2
	}

	for i := range c.Tenants {
		if c.Tenants[i].Timezone == "" {
			c.Tenants[i].Timezone = c.Calendar.DefaultTimezone
		}
		if c.Tenants[i].Currency == "" {
			c.Tenants[i].Currency = "USD"
		}
		if c.Tenants[i].DayStart == "" {
			c.Tenants[i].DayStart = c.Calendar.DayStart
		}
		if c.Tenants[i].DayEnd == "" {
			c.Tenants[i].DayEnd = c.Calendar.DayEnd
		}
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
