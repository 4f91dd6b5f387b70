package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Catalog      CatalogConfig      `yaml:"catalog" mapstructure:"catalog"`
	Gemini       GeminiConfig       `yaml:"gemini" mapstructure:"gemini"`
	Grok         GrokConfig         `yaml:"grok" mapstructure:"grok"`
	WordPress    WordPressConfig    `yaml:"wordpress" mapstructure:"wordpress"`
	Enrich       EnrichConfig       `yaml:"enrich" mapstructure:"enrich"`
	Schedule     ScheduleConfig     `yaml:"schedule" mapstructure:"schedule"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	RateLimits   RateLimitsConfig   `yaml:"rate_limits" mapstructure:"rate_limits"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver          string `yaml:"driver" mapstructure:"driver"`
	Path            string `yaml:"path" mapstructure:"path"`
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	SpreadsheetID   string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// CatalogConfig holds catalog API credentials and endpoints.
type CatalogConfig struct {
	APIID       string `yaml:"api_id" mapstructure:"api_id"`
	AffiliateID string `yaml:"affiliate_id" mapstructure:"affiliate_id"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Site        string `yaml:"site" mapstructure:"site"`
	Service     string `yaml:"service" mapstructure:"service"`
}

// GeminiConfig holds the primary analysis provider settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GrokConfig holds the secondary analysis provider settings.
type GrokConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// WordPressConfig holds publishing platform credentials.
type WordPressConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Username    string `yaml:"username" mapstructure:"username"`
	AppPassword string `yaml:"app_password" mapstructure:"app_password"`
	CategoryID  int    `yaml:"category_id" mapstructure:"category_id"`
}

// EnrichConfig configures the two-provider merge policy. Thresholds are
// 0-100 confidence values.
type EnrichConfig struct {
	ThresholdHigh    int `yaml:"threshold_high" mapstructure:"threshold_high"`
	ThresholdPublish int `yaml:"threshold_publish" mapstructure:"threshold_publish"`
	ThresholdName    int `yaml:"threshold_name" mapstructure:"threshold_name"`
	AgreementBonus   int `yaml:"agreement_bonus" mapstructure:"agreement_bonus"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ScheduleConfig configures the publication timetable.
type ScheduleConfig struct {
	Timezone      string `yaml:"timezone" mapstructure:"timezone"`
	SlotsPerDay   int    `yaml:"slots_per_day" mapstructure:"slots_per_day"`
	CadenceMins   int    `yaml:"cadence_mins" mapstructure:"cadence_mins"`
	FirstSlotMins int    `yaml:"first_slot_mins" mapstructure:"first_slot_mins"`
}

// OrchestratorConfig configures the processing pass.
type OrchestratorConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
	ErrorBudget int `yaml:"error_budget" mapstructure:"error_budget"`
}

// ProviderLimit is one provider's rate ceiling pair.
type ProviderLimit struct {
	PerSecond float64 `yaml:"per_second" mapstructure:"per_second"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
	PerDay    int     `yaml:"per_day" mapstructure:"per_day"`
}

// RateLimitsConfig holds per-provider budgets.
type RateLimitsConfig struct {
	Catalog   ProviderLimit `yaml:"catalog" mapstructure:"catalog"`
	Gemini    ProviderLimit `yaml:"gemini" mapstructure:"gemini"`
	Grok      ProviderLimit `yaml:"grok" mapstructure:"grok"`
	WordPress ProviderLimit `yaml:"wordpress" mapstructure:"wordpress"`
}

// MonitoringConfig configures webhook notifications.
type MonitoringConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "poster.db")
	v.SetDefault("catalog.base_url", "https://api.dmm.com/affiliate/v3")
	v.SetDefault("catalog.site", "FANZA")
	v.SetDefault("catalog.service", "digital")
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("grok.base_url", "https://api.x.ai/v1")
	v.SetDefault("grok.model", "grok-2-latest")
	v.SetDefault("enrich.threshold_high", 80)
	v.SetDefault("enrich.threshold_publish", 50)
	v.SetDefault("enrich.threshold_name", 30)
	v.SetDefault("enrich.agreement_bonus", 10)
	v.SetDefault("enrich.max_attempts", 3)
	v.SetDefault("schedule.timezone", "Asia/Tokyo")
	v.SetDefault("schedule.slots_per_day", 48)
	v.SetDefault("schedule.cadence_mins", 30)
	v.SetDefault("schedule.first_slot_mins", 30)
	v.SetDefault("orchestrator.concurrency", 2)
	v.SetDefault("orchestrator.batch_size", 10)
	v.SetDefault("orchestrator.error_budget", 10)
	v.SetDefault("rate_limits.catalog.per_second", 1)
	v.SetDefault("rate_limits.catalog.burst", 1)
	v.SetDefault("rate_limits.catalog.per_day", 5000)
	v.SetDefault("rate_limits.gemini.per_second", 0.25)
	v.SetDefault("rate_limits.gemini.burst", 1)
	v.SetDefault("rate_limits.gemini.per_day", 1500)
	v.SetDefault("rate_limits.grok.per_second", 0.8)
	v.SetDefault("rate_limits.grok.burst", 1)
	v.SetDefault("rate_limits.grok.per_day", 2000)
	v.SetDefault("rate_limits.wordpress.per_second", 2)
	v.SetDefault("rate_limits.wordpress.burst", 2)
	v.SetDefault("rate_limits.wordpress.per_day", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks invariants once at startup so point-of-use code can trust
// the configuration.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres", "sheets":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Enrich.ThresholdHigh < 0 || c.Enrich.ThresholdHigh > 100 {
		return eris.Errorf("config: enrich.threshold_high %d outside [0,100]", c.Enrich.ThresholdHigh)
	}
	if c.Enrich.ThresholdPublish < 0 || c.Enrich.ThresholdPublish > c.Enrich.ThresholdHigh {
		return eris.Errorf("config: enrich.threshold_publish %d outside [0,%d]", c.Enrich.ThresholdPublish, c.Enrich.ThresholdHigh)
	}
	if c.Schedule.SlotsPerDay <= 0 || c.Schedule.CadenceMins <= 0 {
		return eris.New("config: schedule slots_per_day and cadence_mins must be positive")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return eris.Wrapf(err, "config: invalid schedule.timezone %q", c.Schedule.Timezone)
	}
	if c.Orchestrator.Concurrency < 1 {
		return eris.New("config: orchestrator.concurrency must be >= 1")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
