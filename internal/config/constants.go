package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort        = 3030
	defaultEnv         = "development"
	defaultDBDriver    = "postgres"
	defaultDBHost      = "127.0.0.1"
	defaultPGPort      = 5432
	defaultMySQLPort   = 3306
	defaultDBUser      = "postgres"
	defaultDBPassword  = "postgres"
	defaultDBName      = "lexiflow"
	defaultDBSSLMode   = "disable"
	defaultRedisHost   = "localhost"
	defaultRedisPort   = 6379
	defaultSessionTTL  = 14 * 24 * time.Hour
	defaultUsageWindow = 24 * time.Hour
	defaultUsageTier   = "free"
	defaultCacheTTL    = 60 * time.Second
	defaultServiceName = "lexiflow-core"
	devJWTSecret       = "lexiflow-dev-secret-change-me"
)

// Environment variables that override secrets from the YAML file.
const (
	EnvJWTSecret   = "LEXIFLOW_JWT_SECRET"
	EnvDatabaseURL = "LEXIFLOW_DATABASE_URL"
	EnvRedisURL    = "LEXIFLOW_REDIS_URL"
)
