package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Provider  ProviderConfig
	Billing   BillingConfig
	Engine    EngineConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	RunsPerMin  int
	EditsPerMin int
}

// ProviderConfig points at the model gateway fronting the generative
// providers.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout int // seconds
}

type BillingConfig struct {
	APIKey  string
	BaseURL string
}

// EngineConfig tunes the execution engine.
type EngineConfig struct {
	PollIntervalSec int
	CostText        int
	CostImage       int
	CostVideo       int
	CostAudio       int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("PROVIDER_API_KEY")
	readSecret("BILLING_API_KEY")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.runs_per_min", "RATELIMIT_RUNS_PER_MIN")
	_ = viper.BindEnv("ratelimit.edits_per_min", "RATELIMIT_EDITS_PER_MIN")
	_ = viper.BindEnv("provider.api_key", "PROVIDER_API_KEY")
	_ = viper.BindEnv("provider.base_url", "PROVIDER_BASE_URL")
	_ = viper.BindEnv("provider.timeout", "PROVIDER_TIMEOUT")
	_ = viper.BindEnv("billing.api_key", "BILLING_API_KEY")
	_ = viper.BindEnv("billing.base_url", "BILLING_BASE_URL")
	_ = viper.BindEnv("engine.poll_interval_sec", "ENGINE_POLL_INTERVAL_SEC")
	_ = viper.BindEnv("engine.cost_text", "ENGINE_COST_TEXT")
	_ = viper.BindEnv("engine.cost_image", "ENGINE_COST_IMAGE")
	_ = viper.BindEnv("engine.cost_video", "ENGINE_COST_VIDEO")
	_ = viper.BindEnv("engine.cost_audio", "ENGINE_COST_AUDIO")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.runs_per_min", 60)
	viper.SetDefault("ratelimit.edits_per_min", 240)

	// Provider defaults
	viper.SetDefault("provider.base_url", "http://localhost:8090")
	viper.SetDefault("provider.timeout", 120)

	// Billing defaults (empty base_url disables credit accounting)
	viper.SetDefault("billing.base_url", "")

	// Engine defaults
	viper.SetDefault("engine.poll_interval_sec", 5)
	viper.SetDefault("engine.cost_text", 1)
	viper.SetDefault("engine.cost_image", 5)
	viper.SetDefault("engine.cost_video", 20)
	viper.SetDefault("engine.cost_audio", 5)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			RunsPerMin:  viper.GetInt("ratelimit.runs_per_min"),
			EditsPerMin: viper.GetInt("ratelimit.edits_per_min"),
		},
		Provider: ProviderConfig{
			APIKey:  viper.GetString("provider.api_key"),
			BaseURL: viper.GetString("provider.base_url"),
			Timeout: viper.GetInt("provider.timeout"),
		},
		Billing: BillingConfig{
			APIKey:  viper.GetString("billing.api_key"),
			BaseURL: viper.GetString("billing.base_url"),
		},
		Engine: EngineConfig{
			PollIntervalSec: viper.GetInt("engine.poll_interval_sec"),
			CostText:        viper.GetInt("engine.cost_text"),
			CostImage:       viper.GetInt("engine.cost_image"),
			CostVideo:       viper.GetInt("engine.cost_video"),
			CostAudio:       viper.GetInt("engine.cost_audio"),
		},
	}

	return cfg, nil
}
