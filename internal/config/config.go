// Package config loads and validates the application configuration from
// config.yaml and TALENTID_-prefixed environment variables.
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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Standards StandardsConfig `yaml:"standards" mapstructure:"standards"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FetchConfig configures the resilient fetcher and its strategy ladder.
type FetchConfig struct {
	MinHostIntervalMs int     `yaml:"min_host_interval_ms" mapstructure:"min_host_interval_ms"`
	JitterFraction    float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CooldownSecs      int     `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	CacheTTLMins      int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	RenderEnabled     bool    `yaml:"render_enabled" mapstructure:"render_enabled"`
	RenderTimeoutSecs int     `yaml:"render_timeout_secs" mapstructure:"render_timeout_secs"`
}

// MatchConfig consolidates every scoring threshold and bonus constant so
// none are re-declared at call sites.
type MatchConfig struct {
	NameWeight             float64 `yaml:"name_weight" mapstructure:"name_weight"`
	RejectThreshold        int     `yaml:"reject_threshold" mapstructure:"reject_threshold"`
	FuzzyThreshold         int     `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	HometownExactBonus     int     `yaml:"hometown_exact_bonus" mapstructure:"hometown_exact_bonus"`
	HometownFuzzyBonus     int     `yaml:"hometown_fuzzy_bonus" mapstructure:"hometown_fuzzy_bonus"`
	BirthYearExactBonus    int     `yaml:"birth_year_exact_bonus" mapstructure:"birth_year_exact_bonus"`
	BirthYearOffByOneBonus int     `yaml:"birth_year_off_by_one_bonus" mapstructure:"birth_year_off_by_one_bonus"`
	AffiliationFuzzyBonus  int     `yaml:"affiliation_fuzzy_bonus" mapstructure:"affiliation_fuzzy_bonus"`
	AutoVerifyThreshold    int     `yaml:"auto_verify_threshold" mapstructure:"auto_verify_threshold"`
	ManualReviewThreshold  int     `yaml:"manual_review_threshold" mapstructure:"manual_review_threshold"`
}

// PipelineConfig bounds a batch run.
type PipelineConfig struct {
	Workers       int `yaml:"workers" mapstructure:"workers"`
	MaxRecords    int `yaml:"max_records" mapstructure:"max_records"`
	BudgetMins    int `yaml:"budget_mins" mapstructure:"budget_mins"`
	UpsertRetries int `yaml:"upsert_retries" mapstructure:"upsert_retries"`
}

// ExtractConfig configures the HTML record extractor.
type ExtractConfig struct {
	MaxPerEvent  int    `yaml:"max_per_event" mapstructure:"max_per_event"`
	DualTimeSide string `yaml:"dual_time_side" mapstructure:"dual_time_side"` // "first" or "second"
}

// StandardsConfig locates the benchmark feed.
type StandardsConfig struct {
	Path         string `yaml:"path" mapstructure:"path"`
	DualTimeSide string `yaml:"dual_time_side" mapstructure:"dual_time_side"`
}

// ServerConfig configures the read-only audit API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TALENTID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "talentid.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)

	v.SetDefault("fetch.min_host_interval_ms", 2000)
	v.SetDefault("fetch.jitter_fraction", 0.5)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.timeout_secs", 20)
	v.SetDefault("fetch.cooldown_secs", 15)
	v.SetDefault("fetch.cache_ttl_mins", 60)
	v.SetDefault("fetch.render_enabled", true)
	v.SetDefault("fetch.render_timeout_secs", 30)

	v.SetDefault("match.name_weight", 0.9)
	v.SetDefault("match.reject_threshold", 75)
	v.SetDefault("match.fuzzy_threshold", 80)
	v.SetDefault("match.hometown_exact_bonus", 20)
	v.SetDefault("match.hometown_fuzzy_bonus", 10)
	v.SetDefault("match.birth_year_exact_bonus", 15)
	v.SetDefault("match.birth_year_off_by_one_bonus", 5)
	v.SetDefault("match.affiliation_fuzzy_bonus", 10)
	v.SetDefault("match.auto_verify_threshold", 90)
	v.SetDefault("match.manual_review_threshold", 70)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.max_records", 0)
	v.SetDefault("pipeline.budget_mins", 0)
	v.SetDefault("pipeline.upsert_retries", 3)

	v.SetDefault("extract.max_per_event", 500)
	v.SetDefault("extract.dual_time_side", "first")

	v.SetDefault("standards.path", "data/tri_standards.csv")
	v.SetDefault("standards.dual_time_side", "first")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks for values the pipeline cannot run with. Validation
// failures are fatal at startup, never per-record.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}

	m := c.Match
	if m.NameWeight <= 0 || m.NameWeight > 1 {
		errs = append(errs, "match.name_weight must be in (0, 1]")
	}
	if m.RejectThreshold < 0 || m.RejectThreshold > 100 {
		errs = append(errs, "match.reject_threshold must be in [0, 100]")
	}
	if m.FuzzyThreshold < 0 || m.FuzzyThreshold > 100 {
		errs = append(errs, "match.fuzzy_threshold must be in [0, 100]")
	}
	if m.AutoVerifyThreshold <= m.ManualReviewThreshold {
		errs = append(errs, "match.auto_verify_threshold must exceed match.manual_review_threshold")
	}
	if m.ManualReviewThreshold < 0 || m.AutoVerifyThreshold > 100 {
		errs = append(errs, "match thresholds must be in [0, 100]")
	}
	for name, bonus := range map[string]int{
		"match.hometown_exact_bonus":        m.HometownExactBonus,
		"match.hometown_fuzzy_bonus":        m.HometownFuzzyBonus,
		"match.birth_year_exact_bonus":      m.BirthYearExactBonus,
		"match.birth_year_off_by_one_bonus": m.BirthYearOffByOneBonus,
		"match.affiliation_fuzzy_bonus":     m.AffiliationFuzzyBonus,
	} {
		if bonus < 0 {
			errs = append(errs, name+" must be >= 0")
		}
	}

	if c.Fetch.MaxRetries < 1 {
		errs = append(errs, "fetch.max_retries must be >= 1")
	}
	if c.Fetch.MinHostIntervalMs < 0 {
		errs = append(errs, "fetch.min_host_interval_ms must be >= 0")
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, "pipeline.workers must be >= 1")
	}

	switch c.Extract.DualTimeSide {
	case "first", "second":
	default:
		errs = append(errs, "extract.dual_time_side must be first or second")
	}
	switch c.Standards.DualTimeSide {
	case "first", "second":
	default:
		errs = append(errs, "standards.dual_time_side must be first or second")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
