// package config provides functions and values
// for reading and validating rpc gateway configuration
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LogLevel                       string
	RPCConfigFile                  string
	UpstreamURL                    string
	UpstreamRequestTimeout         time.Duration
	UpstreamDialTimeout            time.Duration
	UpstreamSubscriptionBufferSize int
	ChainStateFlavor               string
	CacheBackend                   string
	RedisEndpointURL               string
	RedisPassword                  string
	CachePrefix                    string
	MetricDatabaseEnabled          bool
	DatabaseName                   string
	DatabaseEndpointURL            string
	DatabaseUsername               string
	DatabasePassword               string
	DatabaseSSLEnabled             bool
	DatabaseQueryLoggingEnabled    bool
	DatabaseReadTimeoutSeconds     int64
	DatabaseMaxIdleConnections     int64
	DatabaseMaxOpenConnections     int64
	RunDatabaseMigrations          bool
	MetricPruningEnabled           bool
	MetricPruningRoutineInterval   time.Duration
	MetricPruningMaxHistoryDays    int
	ShutdownTimeout                time.Duration
}

const (
	LOG_LEVEL_ENVIRONMENT_KEY                          = "LOG_LEVEL"
	DEFAULT_LOG_LEVEL                                  = "INFO"
	RPC_CONFIG_FILE_ENVIRONMENT_KEY                    = "GATEWAY_RPC_CONFIG_FILE"
	DEFAULT_RPC_CONFIG_FILE                            = "config.yml"
	UPSTREAM_URL_ENVIRONMENT_KEY                       = "UPSTREAM_URL"
	DEFAULT_UPSTREAM_URL                               = "ws://localhost:9944"
	UPSTREAM_REQUEST_TIMEOUT_ENVIRONMENT_KEY           = "UPSTREAM_REQUEST_TIMEOUT"
	DEFAULT_UPSTREAM_REQUEST_TIMEOUT                   = 30 * time.Second
	UPSTREAM_DIAL_TIMEOUT_ENVIRONMENT_KEY              = "UPSTREAM_DIAL_TIMEOUT"
	DEFAULT_UPSTREAM_DIAL_TIMEOUT                      = 30 * time.Second
	UPSTREAM_SUBSCRIPTION_BUFFER_SIZE_ENVIRONMENT_KEY  = "UPSTREAM_SUBSCRIPTION_BUFFER_SIZE"
	DEFAULT_UPSTREAM_SUBSCRIPTION_BUFFER_SIZE          = 256
	CHAIN_STATE_FLAVOR_ENVIRONMENT_KEY                 = "CHAIN_STATE_FLAVOR"
	DEFAULT_CHAIN_STATE_FLAVOR                         = "substrate"
	CACHE_BACKEND_ENVIRONMENT_KEY                      = "CACHE_BACKEND"
	DEFAULT_CACHE_BACKEND                              = CacheBackendMemory
	REDIS_ENDPOINT_URL_ENVIRONMENT_KEY                 = "REDIS_ENDPOINT_URL"
	REDIS_PASSWORD_ENVIRONMENT_KEY                     = "REDIS_PASSWORD"
	CACHE_PREFIX_ENVIRONMENT_KEY                       = "CACHE_PREFIX"
	DEFAULT_CACHE_PREFIX                               = "gateway"
	METRIC_DATABASE_ENABLED_ENVIRONMENT_KEY            = "METRIC_DATABASE_ENABLED"
	DATABASE_NAME_ENVIRONMENT_KEY                      = "DATABASE_NAME"
	DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY              = "DATABASE_ENDPOINT_URL"
	DATABASE_USERNAME_ENVIRONMENT_KEY                  = "DATABASE_USERNAME"
	DATABASE_PASSWORD_ENVIRONMENT_KEY                  = "DATABASE_PASSWORD"
	DATABASE_SSL_ENABLED_ENVIRONMENT_KEY               = "DATABASE_SSL_ENABLED"
	DATABASE_QUERY_LOGGING_ENABLED_ENVIRONMENT_KEY     = "DATABASE_QUERY_LOGGING_ENABLED"
	DATABASE_READ_TIMEOUT_SECONDS_ENVIRONMENT_KEY      = "DATABASE_READ_TIMEOUT_SECONDS"
	DEFAULT_DATABASE_READ_TIMEOUT_SECONDS              = 60
	DATABASE_MAX_IDLE_CONNECTIONS_ENVIRONMENT_KEY      = "DATABASE_MAX_IDLE_CONNECTIONS"
	DEFAULT_DATABASE_MAX_IDLE_CONNECTIONS              = 5
	DATABASE_MAX_OPEN_CONNECTIONS_ENVIRONMENT_KEY      = "DATABASE_MAX_OPEN_CONNECTIONS"
	DEFAULT_DATABASE_MAX_OPEN_CONNECTIONS              = 20
	RUN_DATABASE_MIGRATIONS_ENVIRONMENT_KEY            = "RUN_DATABASE_MIGRATIONS"
	METRIC_PRUNING_ENABLED_ENVIRONMENT_KEY             = "METRIC_PRUNING_ENABLED"
	METRIC_PRUNING_ROUTINE_INTERVAL_ENVIRONMENT_KEY    = "METRIC_PRUNING_ROUTINE_INTERVAL"
	DEFAULT_METRIC_PRUNING_ROUTINE_INTERVAL            = 24 * time.Hour
	METRIC_PRUNING_MAX_HISTORY_DAYS_ENVIRONMENT_KEY    = "METRIC_PRUNING_MAX_REQUEST_METRICS_HISTORY_DAYS"
	DEFAULT_METRIC_PRUNING_MAX_HISTORY_DAYS            = 45
	SHUTDOWN_TIMEOUT_ENVIRONMENT_KEY                   = "SHUTDOWN_TIMEOUT"
	DEFAULT_SHUTDOWN_TIMEOUT                           = 10 * time.Second
	CacheBackendMemory                                 = "memory"
	CacheBackendRedis                                  = "redis"
)

// EnvOrDefault fetches an environment variable value, or if not set returns the fallback value
func EnvOrDefault(key string, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// EnvOrDefaultBool fetches a boolean environment variable value,
// or if not set or not parseable returns the fallback value
func EnvOrDefaultBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}

// EnvOrDefaultInt fetches an integer environment variable value,
// or if not set or not parseable returns the fallback value
func EnvOrDefaultInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}

// EnvOrDefaultInt64 fetches an int64 environment variable value,
// or if not set or not parseable returns the fallback value
func EnvOrDefaultInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}

// EnvOrDefaultDuration fetches a duration environment variable value (e.g. "30s"),
// or if not set or not parseable returns the fallback value
func EnvOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}

// ReadConfig attempts to parse service config from environment values
// the returned config may be invalid and should be validated via the `Validate`
// function of the Config package before use
func ReadConfig() Config {
	return Config{
		LogLevel:                       EnvOrDefault(LOG_LEVEL_ENVIRONMENT_KEY, DEFAULT_LOG_LEVEL),
		RPCConfigFile:                  EnvOrDefault(RPC_CONFIG_FILE_ENVIRONMENT_KEY, DEFAULT_RPC_CONFIG_FILE),
		UpstreamURL:                    EnvOrDefault(UPSTREAM_URL_ENVIRONMENT_KEY, DEFAULT_UPSTREAM_URL),
		UpstreamRequestTimeout:         EnvOrDefaultDuration(UPSTREAM_REQUEST_TIMEOUT_ENVIRONMENT_KEY, DEFAULT_UPSTREAM_REQUEST_TIMEOUT),
		UpstreamDialTimeout:            EnvOrDefaultDuration(UPSTREAM_DIAL_TIMEOUT_ENVIRONMENT_KEY, DEFAULT_UPSTREAM_DIAL_TIMEOUT),
		UpstreamSubscriptionBufferSize: EnvOrDefaultInt(UPSTREAM_SUBSCRIPTION_BUFFER_SIZE_ENVIRONMENT_KEY, DEFAULT_UPSTREAM_SUBSCRIPTION_BUFFER_SIZE),
		ChainStateFlavor:               EnvOrDefault(CHAIN_STATE_FLAVOR_ENVIRONMENT_KEY, DEFAULT_CHAIN_STATE_FLAVOR),
		CacheBackend:                   EnvOrDefault(CACHE_BACKEND_ENVIRONMENT_KEY, DEFAULT_CACHE_BACKEND),
		RedisEndpointURL:               EnvOrDefault(REDIS_ENDPOINT_URL_ENVIRONMENT_KEY, ""),
		RedisPassword:                  EnvOrDefault(REDIS_PASSWORD_ENVIRONMENT_KEY, ""),
		CachePrefix:                    EnvOrDefault(CACHE_PREFIX_ENVIRONMENT_KEY, DEFAULT_CACHE_PREFIX),
		MetricDatabaseEnabled:          EnvOrDefaultBool(METRIC_DATABASE_ENABLED_ENVIRONMENT_KEY, false),
		DatabaseName:                   EnvOrDefault(DATABASE_NAME_ENVIRONMENT_KEY, ""),
		DatabaseEndpointURL:            EnvOrDefault(DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY, ""),
		DatabaseUsername:               EnvOrDefault(DATABASE_USERNAME_ENVIRONMENT_KEY, ""),
		DatabasePassword:               EnvOrDefault(DATABASE_PASSWORD_ENVIRONMENT_KEY, ""),
		DatabaseSSLEnabled:             EnvOrDefaultBool(DATABASE_SSL_ENABLED_ENVIRONMENT_KEY, false),
		DatabaseQueryLoggingEnabled:    EnvOrDefaultBool(DATABASE_QUERY_LOGGING_ENABLED_ENVIRONMENT_KEY, false),
		DatabaseReadTimeoutSeconds:     EnvOrDefaultInt64(DATABASE_READ_TIMEOUT_SECONDS_ENVIRONMENT_KEY, DEFAULT_DATABASE_READ_TIMEOUT_SECONDS),
		DatabaseMaxIdleConnections:     EnvOrDefaultInt64(DATABASE_MAX_IDLE_CONNECTIONS_ENVIRONMENT_KEY, DEFAULT_DATABASE_MAX_IDLE_CONNECTIONS),
		DatabaseMaxOpenConnections:     EnvOrDefaultInt64(DATABASE_MAX_OPEN_CONNECTIONS_ENVIRONMENT_KEY, DEFAULT_DATABASE_MAX_OPEN_CONNECTIONS),
		RunDatabaseMigrations:          EnvOrDefaultBool(RUN_DATABASE_MIGRATIONS_ENVIRONMENT_KEY, false),
		MetricPruningEnabled:           EnvOrDefaultBool(METRIC_PRUNING_ENABLED_ENVIRONMENT_KEY, false),
		MetricPruningRoutineInterval:   EnvOrDefaultDuration(METRIC_PRUNING_ROUTINE_INTERVAL_ENVIRONMENT_KEY, DEFAULT_METRIC_PRUNING_ROUTINE_INTERVAL),
		MetricPruningMaxHistoryDays:    EnvOrDefaultInt(METRIC_PRUNING_MAX_HISTORY_DAYS_ENVIRONMENT_KEY, DEFAULT_METRIC_PRUNING_MAX_HISTORY_DAYS),
		ShutdownTimeout:                EnvOrDefaultDuration(SHUTDOWN_TIMEOUT_ENVIRONMENT_KEY, DEFAULT_SHUTDOWN_TIMEOUT),
	}
}

const redactedValue = "<redacted>"

// Redacted returns a copy of config with secrets replaced, for logging
func (config Config) Redacted() Config {
	if config.RedisPassword != "" {
		config.RedisPassword = redactedValue
	}
	if config.DatabasePassword != "" {
		config.DatabasePassword = redactedValue
	}
	return config
}
