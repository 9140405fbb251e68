package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Redis       RedisConfig       `yaml:"redis" mapstructure:"redis"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Scoring     ScoringConfig     `yaml:"scoring" mapstructure:"scoring"`
	Obligations ObligationsConfig `yaml:"obligations" mapstructure:"obligations"`
	Override    OverrideConfig    `yaml:"override" mapstructure:"override"`
	Dwell       DwellConfig       `yaml:"dwell" mapstructure:"dwell"`
	Places      PlacesConfig      `yaml:"places" mapstructure:"places"`
	Notify      NotifyConfig      `yaml:"notify" mapstructure:"notify"`
	Catalog     CatalogConfig     `yaml:"catalog" mapstructure:"catalog"`
	Seed        SeedConfig        `yaml:"seed" mapstructure:"seed"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // memory | sqlite | postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig enables the shared token and dwell backend when Addr is set.
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	DB        int    `yaml:"db" mapstructure:"db"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ScoringConfig configures the avoidability scorer.
type ScoringConfig struct {
	Model          string             `yaml:"model" mapstructure:"model"` // prior | logistic
	ModelPath      string             `yaml:"model_path" mapstructure:"model_path"`
	DefaultProfile string             `yaml:"default_profile" mapstructure:"default_profile"`
	DefaultIncome  float64            `yaml:"default_income" mapstructure:"default_income"`
	Thresholds     map[string]float64 `yaml:"thresholds" mapstructure:"thresholds"`
	Timezone       string             `yaml:"timezone" mapstructure:"timezone"`
}

// ObligationsConfig configures income reservation and the optional-obligation solver.
type ObligationsConfig struct {
	EssentialsRatio float64 `yaml:"essentials_ratio" mapstructure:"essentials_ratio"`
	SavingsRatio    float64 `yaml:"savings_ratio" mapstructure:"savings_ratio"`
	BufferRatio     float64 `yaml:"buffer_ratio" mapstructure:"buffer_ratio"`
	HorizonDays     int     `yaml:"horizon_days" mapstructure:"horizon_days"`
	Solver          string  `yaml:"solver" mapstructure:"solver"` // greedy | exact
	ExactMaxCells   int     `yaml:"exact_max_cells" mapstructure:"exact_max_cells"`
}

// OverrideConfig configures override tokens.
type OverrideConfig struct {
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// DwellConfig holds global dwell detector defaults.
type DwellConfig struct {
	StationarySpeedMPS   float64 `yaml:"stationary_speed_mps" mapstructure:"stationary_speed_mps"`
	MaxStationaryGapSecs float64 `yaml:"max_stationary_gap_secs" mapstructure:"max_stationary_gap_secs"`
	BlockPingThreshold   int     `yaml:"block_ping_threshold" mapstructure:"block_ping_threshold"`
	DwellWindowMinutes   int     `yaml:"dwell_window_minutes" mapstructure:"dwell_window_minutes"`
	SearchRadiusM        float64 `yaml:"search_radius_m" mapstructure:"search_radius_m"`
	RestaurantRadiusM    float64 `yaml:"restaurant_radius_m" mapstructure:"restaurant_radius_m"`
}

// PlacesConfig selects and tunes the places provider.
type PlacesConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"` // static | google
	GoogleAPIKey     string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS     float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	StaticPath       string  `yaml:"static_path" mapstructure:"static_path"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// NotifyConfig configures notification delivery.
type NotifyConfig struct {
	WebhookURL    string `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	TemplatesPath string `yaml:"templates_path" mapstructure:"templates_path"`
}

// CatalogConfig points at an optional merchant/category override file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SeedConfig points at an optional fixtures file.
type SeedConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GUARDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "guardian.db")
	v.SetDefault("redis.key_prefix", "guardian")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("scoring.model", "prior")
	v.SetDefault("scoring.default_profile", "Average")
	v.SetDefault("scoring.default_income", 3000.0)
	// One key per profile so a partial file or env override merges with the rest.
	v.SetDefault("scoring.thresholds.saver", 0.4)
	v.SetDefault("scoring.thresholds.average", 0.6)
	v.SetDefault("scoring.thresholds.spender", 0.75)
	v.SetDefault("scoring.timezone", "UTC")

	v.SetDefault("obligations.essentials_ratio", 0.30)
	v.SetDefault("obligations.savings_ratio", 0.15)
	v.SetDefault("obligations.buffer_ratio", 0.10)
	v.SetDefault("obligations.horizon_days", 30)
	v.SetDefault("obligations.solver", "greedy")
	v.SetDefault("obligations.exact_max_cells", 5_000_000)

	v.SetDefault("override.ttl", 5*time.Minute)
	v.SetDefault("override.sweep_interval", time.Duration(0))

	v.SetDefault("dwell.stationary_speed_mps", 1.0)
	v.SetDefault("dwell.max_stationary_gap_secs", 600.0)
	v.SetDefault("dwell.block_ping_threshold", 3)
	v.SetDefault("dwell.dwell_window_minutes", 30)
	v.SetDefault("dwell.search_radius_m", 100.0)
	v.SetDefault("dwell.restaurant_radius_m", 50.0)

	v.SetDefault("places.provider", "static")
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.timeout_secs", 5)
	v.SetDefault("places.rate_limit_rps", 10.0)
	v.SetDefault("places.failure_threshold", 5)
	v.SetDefault("places.reset_timeout_secs", 30)

	v.SetDefault("notify.timeout_secs", 5)
}

// Validate checks cross-field consistency. mode is the command being run;
// "serve" additionally checks the listen port.
func (c *Config) Validate(mode string) error {
	var errs []string
	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be memory, sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}
	switch c.Scoring.Model {
	case "prior":
	case "logistic":
		if c.Scoring.ModelPath == "" {
			errs = append(errs, "scoring.model_path is required for the logistic model")
		}
	default:
		errs = append(errs, "scoring.model must be prior or logistic")
	}
	if _, err := time.LoadLocation(c.Scoring.Timezone); err != nil {
		errs = append(errs, "scoring.timezone is not a valid IANA zone")
	}
	switch c.Obligations.Solver {
	case "greedy", "exact":
	default:
		errs = append(errs, "obligations.solver must be greedy or exact")
	}
	if c.Obligations.HorizonDays <= 0 {
		errs = append(errs, "obligations.horizon_days must be positive")
	}
	switch c.Places.Provider {
	case "static":
	case "google":
		if c.Places.GoogleAPIKey == "" {
			errs = append(errs, "places.google_api_key is required for the google provider")
		}
	default:
		errs = append(errs, "places.provider must be static or google")
	}
	if c.Dwell.BlockPingThreshold <= 0 || c.Dwell.DwellWindowMinutes <= 0 {
		errs = append(errs, "dwell thresholds must be positive")
	}
	if len(errs) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(errs, "; "))
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
