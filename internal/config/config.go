package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at configPath on top of the built-in defaults.
// A missing file is an error; an empty path falls back to DefaultConfigPath.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw YAML, applies environment overrides and validates the result.
func Parse(content []byte) (*AppConfig, error) {
	cfg := Default()
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file overrides a field.
func Default() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseConfig{
			Driver:      defaultDBDriver,
			Host:        defaultDBHost,
			User:        defaultDBUser,
			Password:    defaultDBPassword,
			Name:        defaultDBName,
			SSLMode:     defaultDBSSLMode,
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
		},
		SessionTTL: defaultSessionTTL,
		AI: AIConfig{
			EmbeddingModel:  "text-embedding-3-small",
			MaxOutputTokens: 1200,
			Timeout:         60 * time.Second,
		},
		Usage: UsageConfig{
			Window:      defaultUsageWindow,
			DefaultTier: defaultUsageTier,
			Tiers: map[string]TierConfig{
				"free": {
					Requests: 50,
					Tokens:   100_000,
					Features: []string{"word", "sentence", "paragraph"},
				},
				"pro": {
					Requests: 1000,
					Tokens:   2_000_000,
					Features: []string{"word", "sentence", "paragraph", "generate", "embedding"},
				},
			},
		},
		Guard: GuardConfig{
			ProtectedPrefixes: []string{"/dashboard", "/vocabulary", "/sessions", "/analyze", "/settings", "/profile"},
			AuthOnlyPaths:     []string{"/auth/signin", "/auth/signup"},
			ExemptPrefixes:    []string{"/api/", "/static/", "/assets/", "/_next/", "/favicon.ico", "/robots.txt"},
			SignInPath:        "/auth/signin",
			HomePath:          "/dashboard",
			LandingPath:       "/",
		},
		Cache: CacheConfig{
			TTL: defaultCacheTTL,
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     2 * time.Second,
			},
		},
		Tracing: TracingConfig{
			ServiceName: defaultServiceName,
			SampleRatio: 0.1,
		},
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Database.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisURL)); v != "" {
		cfg.Redis.URL = v
	}
	for i := range cfg.AI.Providers {
		p := &cfg.AI.Providers[i]
		if p.APIKeyEnv == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(p.APIKeyEnv)); v != "" {
			p.APIKey = v
		}
	}
}

func normalize(cfg *AppConfig) {
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaultDBDriver
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = defaultPGPort
		if cfg.Database.Driver == "mysql" {
			cfg.Database.Port = defaultMySQLPort
		}
	}
	cfg.AllowedOrigins = normalizeOrigins(cfg.AllowedOrigins)
	if strings.TrimSpace(cfg.StaticDir) != "" {
		cfg.StaticDir = ResolveRuntimePath(cfg.StaticDir)
	}
	for i := range cfg.AI.Providers {
		p := &cfg.AI.Providers[i]
		p.ID = strings.TrimSpace(p.ID)
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		if p.ID == "" {
			p.ID = p.Type
		}
	}
	if cfg.Usage.Window <= 0 {
		cfg.Usage.Window = defaultUsageWindow
	}
	if strings.TrimSpace(cfg.Usage.DefaultTier) == "" {
		cfg.Usage.DefaultTier = defaultUsageTier
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = defaultCacheTTL
	}
	if cfg.Cache.Retry.MaxAttempts <= 0 {
		cfg.Cache.Retry.MaxAttempts = 1
	}
	if strings.TrimSpace(cfg.Tracing.ServiceName) == "" {
		cfg.Tracing.ServiceName = defaultServiceName
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" && cfg.Env != "production" {
		cfg.JWTSecret = devJWTSecret
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	if len(cfg.JWTSecret) < 16 {
		return fmt.Errorf("jwt_secret must be at least 16 characters (or set %s)", EnvJWTSecret)
	}
	switch cfg.Database.Driver {
	case "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database.driver %q, expected postgres or mysql", cfg.Database.Driver)
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", cfg.Database.Port)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", cfg.Redis.DB)
	}
	if _, ok := cfg.Usage.Tiers[cfg.Usage.DefaultTier]; !ok {
		return fmt.Errorf("usage.default_tier %q has no entry in usage.tiers", cfg.Usage.DefaultTier)
	}
	for name, tier := range cfg.Usage.Tiers {
		if tier.Requests < 0 || tier.Tokens < 0 {
			return fmt.Errorf("usage.tiers.%s: limits must be >= 0", name)
		}
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return fmt.Errorf("invalid tracing.sample_ratio %v, expected 0-1", cfg.Tracing.SampleRatio)
	}
	seen := make(map[string]struct{}, len(cfg.AI.Providers))
	for _, p := range cfg.AI.Providers {
		if p.ID == "" {
			return errors.New("ai.providers: every provider needs an id or type")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("ai.providers: duplicate provider id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// IsDev reports whether the server runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env == "development" }

// DSNValue renders a connection string for the configured driver.
func (c DatabaseConfig) DSNValue() string {
	if v := strings.TrimSpace(c.URL); v != "" {
		return v
	}

	if c.Driver == "mysql" {
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		mc.DBName = c.Name
		mc.ParseTime = true
		mc.Params = copyStringMap(c.Params)
		if mc.Params == nil {
			mc.Params = map[string]string{}
		}
		if _, ok := mc.Params["charset"]; !ok {
			mc.Params["charset"] = "utf8mb4"
		}
		return mc.FormatDSN()
	}

	u := neturl.URL{
		Scheme: "postgres",
		User:   neturl.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	params := neturl.Values{}
	for k, v := range c.Params {
		if strings.TrimSpace(k) != "" {
			params.Set(k, v)
		}
	}
	if params.Get("sslmode") == "" && c.SSLMode != "" {
		params.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = params.Encode()
	return u.String()
}

// URLValue renders a redis:// (or rediss://) URL.
func (c RedisConfig) URLValue() string {
	if u := strings.TrimSpace(c.URL); u != "" {
		if !strings.Contains(u, "://") {
			return "redis://" + u
		}
		return u
	}
	scheme := "redis"
	if c.TLS {
		scheme = "rediss"
	}
	u := neturl.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + strconv.Itoa(c.DB),
	}
	if c.Password != "" {
		u.User = neturl.UserPassword("", c.Password)
	}
	return u.String()
}

// Provider returns the provider with the given id, if configured.
func (c AIConfig) Provider(id string) (AIProvider, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return AIProvider{}, false
}

// Tier returns the limits of the named tier, falling back to the default tier.
func (c UsageConfig) Tier(name string) (string, TierConfig) {
	if t, ok := c.Tiers[name]; ok {
		return name, t
	}
	return c.DefaultTier, c.Tiers[c.DefaultTier]
}

// ResolveRuntimePath resolves a relative directory against the executable directory.
func ResolveRuntimePath(raw string) string {
	target := strings.TrimSpace(raw)
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(executableDir(), target))
}

func executableDir() string {
	exe, err := os.Executable()
	if err == nil && strings.TrimSpace(exe) != "" {
		if resolved, resolveErr := filepath.EvalSymlinks(exe); resolveErr == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, wdErr := os.Getwd(); wdErr == nil {
		return wd
	}
	return "."
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if v := strings.TrimSpace(o); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return "production"
	case "test":
		return "test"
	default:
		return defaultEnv
	}
}

func copyStringMap(input map[string]string) map[string]string {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]string, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out
}
