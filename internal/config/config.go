package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	DB           DBConfig           `mapstructure:"db"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Pool         PoolConfig         `mapstructure:"pool"`
	Tiers        TiersConfig        `mapstructure:"tiers"`
	Dropper      DropperConfig      `mapstructure:"dropper"`
	Distribution DistributionConfig `mapstructure:"distribution"`
	Intake       IntakeConfig       `mapstructure:"intake"`
	Feed         FeedConfig         `mapstructure:"feed"`
	Sweeper      SweeperConfig      `mapstructure:"sweeper"`
	Query        QueryConfig        `mapstructure:"query"`
	Cron         CronConfig         `mapstructure:"cron"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

type AuthConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AdminToken string `mapstructure:"admin_token"`
}

// WeightsConfig holds the named ranking coefficients. They must sum
// to 1.0; every component of the composite score lies in [0,1].
type WeightsConfig struct {
	Confidence float64 `mapstructure:"confidence"`
	Quality    float64 `mapstructure:"quality"`
	Freshness  float64 `mapstructure:"freshness"`
	Diversity  float64 `mapstructure:"diversity"`
}

type PoolConfig struct {
	MaxSize int `mapstructure:"max_size"`
	// MinQuality is the pool admission floor. Zero means "use the
	// lowest per-tier minimum" so that by default the pool only holds
	// candidates at least one tier could be shown.
	MinQuality float64 `mapstructure:"min_quality"`
	// FreshnessHalfLife is how long a candidate takes to lose half of
	// its freshness contribution to the composite score.
	FreshnessHalfLife time.Duration `mapstructure:"freshness_half_life"`
	// RepeatPenaltyHalfLife controls how fast the diversity penalty on
	// a recently dropped (symbol, strategy) pair fades.
	RepeatPenaltyHalfLife time.Duration `mapstructure:"repeat_penalty_half_life"`
	Weights               WeightsConfig `mapstructure:"weights"`
}

type TierConfig struct {
	MinQuality   float64       `mapstructure:"min_quality"`
	DropInterval time.Duration `mapstructure:"drop_interval"`
	DailyQuota   int           `mapstructure:"daily_quota"`
	FullDetails  bool          `mapstructure:"full_details"`
}

type TiersConfig struct {
	Free TierConfig `mapstructure:"free"`
	Pro  TierConfig `mapstructure:"pro"`
	Max  TierConfig `mapstructure:"max"`
}

// For returns the tier config by tier name (FREE/PRO/MAX).
func (t TiersConfig) For(name string) (TierConfig, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "FREE":
		return t.Free, true
	case "PRO":
		return t.Pro, true
	case "MAX":
		return t.Max, true
	}
	return TierConfig{}, false
}

// MinQualityFloor is the pool-wide admission floor: the lowest
// per-tier quality threshold.
func (t TiersConfig) MinQualityFloor() float64 {
	floor := t.Free.MinQuality
	if t.Pro.MinQuality < floor {
		floor = t.Pro.MinQuality
	}
	if t.Max.MinQuality < floor {
		floor = t.Max.MinQuality
	}
	return floor
}

type DropperConfig struct {
	Tick time.Duration `mapstructure:"tick"`
}

type DistributionConfig struct {
	IncludeHigherTiers bool          `mapstructure:"include_higher_tiers"`
	PerUserTimeout     time.Duration `mapstructure:"per_user_timeout"`
	PersistRetries     int           `mapstructure:"persist_retries"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`
}

type IntakeConfig struct {
	Buffer      int           `mapstructure:"buffer"`
	DedupWindow time.Duration `mapstructure:"dedup_window"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
}

type FeedConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	BackoffMin   time.Duration `mapstructure:"backoff_min"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PingTimeout  time.Duration `mapstructure:"ping_timeout"`
}

type SweeperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Grace    time.Duration `mapstructure:"grace"`
}

type QueryConfig struct {
	DefaultLimit  int           `mapstructure:"default_limit"`
	HistoryWindow time.Duration `mapstructure:"history_window"`
}

type CronConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Janitor  string `mapstructure:"janitor"`
	StatsLog string `mapstructure:"stats_log"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "signaldrop")
	v.SetDefault("redis.cache_ttl", "5s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.admin_token", "")

	v.SetDefault("pool.max_size", 200)
	v.SetDefault("pool.min_quality", 0)
	v.SetDefault("pool.freshness_half_life", "15m")
	v.SetDefault("pool.repeat_penalty_half_life", "10m")
	v.SetDefault("pool.weights.confidence", 0.35)
	v.SetDefault("pool.weights.quality", 0.35)
	v.SetDefault("pool.weights.freshness", 0.20)
	v.SetDefault("pool.weights.diversity", 0.10)

	v.SetDefault("tiers.free.min_quality", 75)
	v.SetDefault("tiers.free.drop_interval", "10m")
	v.SetDefault("tiers.free.daily_quota", 2)
	v.SetDefault("tiers.free.full_details", false)
	v.SetDefault("tiers.pro.min_quality", 60)
	v.SetDefault("tiers.pro.drop_interval", "2m")
	v.SetDefault("tiers.pro.daily_quota", 15)
	v.SetDefault("tiers.pro.full_details", true)
	v.SetDefault("tiers.max.min_quality", 50)
	v.SetDefault("tiers.max.drop_interval", "30s")
	v.SetDefault("tiers.max.daily_quota", 30)
	v.SetDefault("tiers.max.full_details", true)

	v.SetDefault("dropper.tick", "1s")

	v.SetDefault("distribution.include_higher_tiers", false)
	v.SetDefault("distribution.per_user_timeout", "3s")
	v.SetDefault("distribution.persist_retries", 2)
	v.SetDefault("distribution.retry_backoff", "200ms")

	v.SetDefault("intake.buffer", 128)
	v.SetDefault("intake.dedup_window", "5m")
	v.SetDefault("intake.default_ttl", "30m")

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.read_limit", 1048576)
	v.SetDefault("feed.backoff_min", "1s")
	v.SetDefault("feed.backoff_max", "30s")
	v.SetDefault("feed.ping_interval", "20s")
	v.SetDefault("feed.ping_timeout", "5s")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", "1m")
	v.SetDefault("sweeper.grace", "5m")

	v.SetDefault("query.default_limit", 50)
	v.SetDefault("query.history_window", "24h")

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.janitor", "@every 30s")
	v.SetDefault("cron.stats_log", "@every 6h")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	w := c.Pool.Weights
	for name, val := range map[string]float64{
		"confidence": w.Confidence,
		"quality":    w.Quality,
		"freshness":  w.Freshness,
		"diversity":  w.Diversity,
	} {
		if val < 0 {
			return fmt.Errorf("pool.weights.%s must be non-negative, got %v", name, val)
		}
	}
	sum := w.Confidence + w.Quality + w.Freshness + w.Diversity
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("pool weight coefficients must sum to 1.0, got %v", sum)
	}
	if c.Pool.MinQuality < 0 || c.Pool.MinQuality > 100 {
		return fmt.Errorf("pool.min_quality must be within [0,100], got %v", c.Pool.MinQuality)
	}
	if c.Pool.FreshnessHalfLife <= 0 {
		return fmt.Errorf("pool.freshness_half_life must be positive")
	}
	if c.Pool.RepeatPenaltyHalfLife <= 0 {
		return fmt.Errorf("pool.repeat_penalty_half_life must be positive")
	}
	if c.Dropper.Tick <= 0 {
		return fmt.Errorf("dropper.tick must be positive")
	}
	for name, tc := range map[string]TierConfig{"free": c.Tiers.Free, "pro": c.Tiers.Pro, "max": c.Tiers.Max} {
		if tc.MinQuality < 0 || tc.MinQuality > 100 {
			return fmt.Errorf("tiers.%s.min_quality must be within [0,100], got %v", name, tc.MinQuality)
		}
		if tc.DropInterval <= 0 {
			return fmt.Errorf("tiers.%s.drop_interval must be positive", name)
		}
		if tc.DailyQuota < 1 {
			return fmt.Errorf("tiers.%s.daily_quota must be at least 1", name)
		}
	}
	return nil
}
