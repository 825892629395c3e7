package config

import "time"

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int            `yaml:"port"`
	Env            string         `yaml:"env"` // "development" | "production"
	Database       DatabaseConfig `yaml:"database"`
	Redis          RedisConfig    `yaml:"redis"`
	JWTSecret      string         `yaml:"jwt_secret"`
	SessionTTL     time.Duration  `yaml:"session_ttl"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	StaticDir      string         `yaml:"static_dir"`
	AI             AIConfig       `yaml:"ai"`
	Usage          UsageConfig    `yaml:"usage"`
	Guard          GuardConfig    `yaml:"guard"`
	Cache          CacheConfig    `yaml:"cache"`
	Tracing        TracingConfig  `yaml:"tracing"`
}

type DatabaseConfig struct {
	Driver       string            `yaml:"driver"` // postgres | mysql
	URL          string            `yaml:"url"`
	Host         string            `yaml:"host"`
	Port         int               `yaml:"port"`
	User         string            `yaml:"user"`
	Password     string            `yaml:"password"`
	Name         string            `yaml:"name"`
	SSLMode      string            `yaml:"sslmode"`
	Params       map[string]string `yaml:"params"`
	MaxOpenConns int               `yaml:"max_open_conns"`
	MaxIdleConns int               `yaml:"max_idle_conns"`
	AutoMigrate  bool              `yaml:"auto_migrate"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

type AIConfig struct {
	DefaultProvider string        `yaml:"default_provider"`
	Providers       []AIProvider  `yaml:"providers"`
	EmbeddingModel  string        `yaml:"embedding_model"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

type AIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // openai | openai-compatible | anthropic | openrouter
	APIKey       string `yaml:"api_key"`
	APIKeyEnv    string `yaml:"api_key_env"`
	Endpoint     string `yaml:"endpoint"`
	DefaultModel string `yaml:"default_model"`
	Enabled      bool   `yaml:"enabled"`
}

// UsageConfig bounds AI consumption per user and fixed window.
type UsageConfig struct {
	Window      time.Duration         `yaml:"window"`
	DefaultTier string                `yaml:"default_tier"`
	Tiers       map[string]TierConfig `yaml:"tiers"`
}

type TierConfig struct {
	Requests int64    `yaml:"requests"`
	Tokens   int64    `yaml:"tokens"`
	Features []string `yaml:"features"`
}

type GuardConfig struct {
	ProtectedPrefixes []string `yaml:"protected_prefixes"`
	AuthOnlyPaths     []string `yaml:"auth_only_paths"`
	ExemptPrefixes    []string `yaml:"exempt_prefixes"`
	SignInPath        string   `yaml:"sign_in_path"`
	HomePath          string   `yaml:"home_path"`
	LandingPath       string   `yaml:"landing_path"`
}

type CacheConfig struct {
	Disable bool          `yaml:"disable"`
	TTL     time.Duration `yaml:"ttl"`
	Retry   RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}
