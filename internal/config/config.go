// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Anchor     AnchorConfig     `yaml:"anchor" mapstructure:"anchor"`
	Roster     RosterConfig     `yaml:"roster" mapstructure:"roster"`
	Firms      FirmsConfig      `yaml:"firms" mapstructure:"firms"`
	Suppress   SuppressConfig   `yaml:"suppress" mapstructure:"suppress"`
	Serp       SerpConfig       `yaml:"serp" mapstructure:"serp"`
	PeopleData PeopleDataConfig `yaml:"peopledata" mapstructure:"peopledata"`
	Budget     BudgetConfig     `yaml:"budget" mapstructure:"budget"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Quota      QuotaConfig      `yaml:"quota" mapstructure:"quota"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the regulatory archives and run artifacts.
type DataConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	ArtifactDir  string `yaml:"artifact_dir" mapstructure:"artifact_dir"`
	MainURL      string `yaml:"main_url" mapstructure:"main_url"`
	ScheduleAURL string `yaml:"schedule_a_url" mapstructure:"schedule_a_url"`
	ScheduleCURL string `yaml:"schedule_c_url" mapstructure:"schedule_c_url"`
}

// AnchorConfig configures the anchor stage filters and caps.
type AnchorConfig struct {
	TargetStates    []string `yaml:"target_states" mapstructure:"target_states"`
	WelfareCode     string   `yaml:"welfare_code" mapstructure:"welfare_code"`
	MinLives        int      `yaml:"min_lives" mapstructure:"min_lives"`
	MinLivesInsured int      `yaml:"min_lives_insured" mapstructure:"min_lives_insured"`
	MaxAnchors      int      `yaml:"max_anchors" mapstructure:"max_anchors"`
	MaxRows         int      `yaml:"max_rows" mapstructure:"max_rows"`
}

// RosterConfig locates the internal broker roster.
type RosterConfig struct {
	Path           string  `yaml:"path" mapstructure:"path"`
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
}

// FirmsConfig locates the canonical firm alias table.
type FirmsConfig struct {
	AliasPath string `yaml:"alias_path" mapstructure:"alias_path"`
}

// SuppressConfig locates the suppression CSVs.
type SuppressConfig struct {
	ClientPath string `yaml:"client_path" mapstructure:"client_path"`
	DNCPath    string `yaml:"dnc_path" mapstructure:"dnc_path"`
}

// SerpConfig holds the web-search endpoint settings.
type SerpConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PeopleDataConfig holds the people-data endpoint settings.
type PeopleDataConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// BudgetConfig caps paid-API spend per run.
type BudgetConfig struct {
	Credits int `yaml:"credits" mapstructure:"credits"`
}

// CacheConfig locates the per-provider response caches.
type CacheConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LedgerConfig configures the allocation ledger backend.
type LedgerConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"` // file | sqlite | postgres
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// QuotaConfig holds the per-run claim quotas.
type QuotaConfig struct {
	PersonsPerSponsor int `yaml:"persons_per_sponsor" mapstructure:"persons_per_sponsor"`
	SponsorsPerFirm   int `yaml:"sponsors_per_firm" mapstructure:"sponsors_per_firm"`
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
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.artifact_dir", "artifacts")
	v.SetDefault("anchor.welfare_code", "4A")
	v.SetDefault("anchor.min_lives", 50)
	v.SetDefault("anchor.min_lives_insured", 1000)
	v.SetDefault("anchor.max_anchors", 25)
	v.SetDefault("anchor.max_rows", 500000)
	v.SetDefault("roster.path", "roster.json")
	v.SetDefault("roster.fuzzy_threshold", 0.6)
	v.SetDefault("firms.alias_path", "firm_aliases.yaml")
	v.SetDefault("suppress.client_path", "client_suppression.csv")
	v.SetDefault("suppress.dnc_path", "dnc_list.csv")
	v.SetDefault("serp.base_url", "https://serpapi.example.com")
	v.SetDefault("peopledata.base_url", "https://api.peopledatalabs.example.com")
	v.SetDefault("budget.credits", 100)
	v.SetDefault("cache.dir", ".cache")
	v.SetDefault("ledger.backend", "file")
	v.SetDefault("ledger.path", "allocation_ledger.csv")
	v.SetDefault("quota.persons_per_sponsor", 2)
	v.SetDefault("quota.sponsors_per_firm", 5)
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

	return &cfg, nil
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
