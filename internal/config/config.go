package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Upstream  UpstreamConfig  `mapstructure:"openweather"`
	Geocoding GeocodingConfig `mapstructure:"geocoding"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Session   SessionConfig   `mapstructure:"session"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// Timezone names the location used to format report dates.
	Timezone string `mapstructure:"timezone"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// UpstreamConfig holds the OpenWeatherMap credentials and endpoints.
// The API key is only ever read by the proxy.
type UpstreamConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	GeoURL      string        `mapstructure:"geo_url"`
	DataURL     string        `mapstructure:"data_url"`
	ProURL      string        `mapstructure:"pro_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

type GeocodingConfig struct {
	// Backend is one of openweather, openmeteo, weatherapi or google.
	Backend       string `mapstructure:"backend"`
	OpenMeteoURL  string `mapstructure:"openmeteo_url"`
	WeatherAPIKey string `mapstructure:"weatherapi_key"`
	WeatherAPIURL string `mapstructure:"weatherapi_url"`
	GoogleAPIKey  string `mapstructure:"google_api_key"`
}

// ProxyConfig is how the session core reaches the proxy. An empty URL means
// the proxy mounted on this server.
type ProxyConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Rate    float64       `mapstructure:"rate"`
	Burst   int           `mapstructure:"burst"`
	MaxIdle time.Duration `mapstructure:"max_idle"`

	// ExemptLoopback skips the limit for loopback callers such as the in-process session core.
	ExemptLoopback bool `mapstructure:"exempt_loopback"`
}

type SessionConfig struct {
	MaxSessions   int           `mapstructure:"max_sessions"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	FutureCount   int           `mapstructure:"future_count"`
	GeocodeLimit  int           `mapstructure:"geocode_limit"`
	// Home is the "lat,lon" position reported when locating from the CLI.
	Home string `mapstructure:"home"`
}

// Load reads configuration from an optional .env file, an optional YAML file and the
// environment, in increasing order of precedence. Keys map to env vars by upper-casing
// and replacing dots with underscores, e.g. redis.addr -> REDIS_ADDR.
func Load(configPath string) (*AppConfig, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is honoured as well as SERVER_PORT.
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.timezone", "UTC")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("openweather.api_key", "")
	v.SetDefault("openweather.geo_url", "https://api.openweathermap.org/geo/1.0")
	v.SetDefault("openweather.data_url", "https://api.openweathermap.org/data/2.5")
	v.SetDefault("openweather.pro_url", "https://pro.openweathermap.org/data/2.5")
	v.SetDefault("openweather.http_timeout", "10s")

	v.SetDefault("geocoding.backend", "openweather")
	v.SetDefault("geocoding.openmeteo_url", "")
	v.SetDefault("geocoding.weatherapi_key", "")
	v.SetDefault("geocoding.weatherapi_url", "")
	v.SetDefault("geocoding.google_api_key", "")

	v.SetDefault("proxy.url", "")
	v.SetDefault("proxy.timeout", "15s")
	v.SetDefault("proxy.retry_count", 0)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "10m")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rate", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.max_idle", "3m")
	v.SetDefault("rate_limit.exempt_loopback", true)

	v.SetDefault("session.max_sessions", 1000)
	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("session.future_count", 9)
	v.SetDefault("session.geocode_limit", 5)
	v.SetDefault("session.home", "")
}

// Validate checks values that cannot be defaulted.
func (c *AppConfig) Validate() error {
	switch c.Geocoding.Backend {
	case "openweather", "openmeteo":
	case "weatherapi":
		if c.Geocoding.WeatherAPIKey == "" {
			return fmt.Errorf("invalid config: geocoding.weatherapi_key is required for the weatherapi backend")
		}
	case "google":
		if c.Geocoding.GoogleAPIKey == "" {
			return fmt.Errorf("invalid config: geocoding.google_api_key is required for the google backend")
		}
	default:
		return fmt.Errorf("invalid config: unknown geocoding backend %q", c.Geocoding.Backend)
	}
	if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
		return fmt.Errorf("invalid config: server.timezone: %w", err)
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("invalid config: session.idle_timeout must be positive")
	}
	if c.Session.Home != "" {
		if _, _, err := parseHome(c.Session.Home); err != nil {
			return fmt.Errorf("invalid config: session.home: %w", err)
		}
	}
	return nil
}

// HomePosition returns the configured home coordinate, if any.
func (c *AppConfig) HomePosition() (lat, lon float64, ok bool) {
	if c.Session.Home == "" {
		return 0, 0, false
	}
	lat, lon, err := parseHome(c.Session.Home)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func parseHome(s string) (lat, lon float64, err error) {
	latStr, lonStr, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, fmt.Errorf("want \"lat,lon\", got %q", s)
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64); err != nil {
		return 0, 0, err
	}
	if lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64); err != nil {
		return 0, 0, err
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("%q is out of range", s)
	}
	return lat, lon, nil
}

// Location returns the configured report timezone.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ProxyURL returns the proxy base URL, defaulting to this server.
func (c *AppConfig) ProxyURL() string {
	if c.Proxy.URL != "" {
		return strings.TrimRight(c.Proxy.URL, "/")
	}
	return "http://127.0.0.1:" + c.Server.Port
}
