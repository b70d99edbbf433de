package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/kava-labs/kava-rpc-gateway/chainstate"
)

var (
	ValidLogLevels     = [4]string{"TRACE", "DEBUG", "INFO", "ERROR"}
	ValidCacheBackends = [2]string{CacheBackendMemory, CacheBackendRedis}
	ValidInjectKinds   = [2]string{InjectKindBlockHash, InjectKindBlockNumber}
)

// Validate validates the provided config
// returning a list of errors that can be unwrapped with `errors.Unwrap`
// or nil if the config is valid
func Validate(config Config) error {
	var validLogLevel bool
	var allErrs error

	for _, validLevel := range ValidLogLevels {
		if config.LogLevel == validLevel {
			validLogLevel = true
			break
		}
	}

	if !validLogLevel {
		allErrs = fmt.Errorf("invalid %s specified %s, supported values are %v", LOG_LEVEL_ENVIRONMENT_KEY, config.LogLevel, ValidLogLevels)
	}

	upstreamURL, err := url.Parse(config.UpstreamURL)
	if err != nil || (upstreamURL.Scheme != "ws" && upstreamURL.Scheme != "wss") {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must be a ws:// or wss:// url", UPSTREAM_URL_ENVIRONMENT_KEY, config.UpstreamURL))
	}

	if config.UpstreamRequestTimeout <= 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must be greater than zero", UPSTREAM_REQUEST_TIMEOUT_ENVIRONMENT_KEY, config.UpstreamRequestTimeout))
	}

	if config.UpstreamDialTimeout <= 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must be greater than zero", UPSTREAM_DIAL_TIMEOUT_ENVIRONMENT_KEY, config.UpstreamDialTimeout))
	}

	if config.UpstreamSubscriptionBufferSize <= 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be greater than zero", UPSTREAM_SUBSCRIPTION_BUFFER_SIZE_ENVIRONMENT_KEY, config.UpstreamSubscriptionBufferSize))
	}

	if _, err := chainstate.ParseFlavor(config.ChainStateFlavor); err != nil {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s: %w", CHAIN_STATE_FLAVOR_ENVIRONMENT_KEY, config.ChainStateFlavor, err))
	}

	switch config.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if config.RedisEndpointURL == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty when %s is %s", REDIS_ENDPOINT_URL_ENVIRONMENT_KEY, config.RedisEndpointURL, CACHE_BACKEND_ENVIRONMENT_KEY, CacheBackendRedis))
		}
	default:
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, supported values are %v", CACHE_BACKEND_ENVIRONMENT_KEY, config.CacheBackend, ValidCacheBackends))
	}

	if strings.Contains(config.CachePrefix, ":") {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not contain colon symbol", CACHE_PREFIX_ENVIRONMENT_KEY, config.CachePrefix))
	}
	if config.CachePrefix == "" {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty", CACHE_PREFIX_ENVIRONMENT_KEY, config.CachePrefix))
	}

	if config.MetricDatabaseEnabled {
		for key, value := range map[string]string{
			DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY: config.DatabaseEndpointURL,
			DATABASE_NAME_ENVIRONMENT_KEY:         config.DatabaseName,
			DATABASE_USERNAME_ENVIRONMENT_KEY:     config.DatabaseUsername,
		} {
			if value == "" {
				allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified, must not be empty when %s is set", key, METRIC_DATABASE_ENABLED_ENVIRONMENT_KEY))
			}
		}
	}

	if config.MetricPruningEnabled {
		if !config.MetricDatabaseEnabled {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified, metric pruning requires %s", METRIC_PRUNING_ENABLED_ENVIRONMENT_KEY, METRIC_DATABASE_ENABLED_ENVIRONMENT_KEY))
		}
		if config.MetricPruningRoutineInterval <= 0 {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must be greater than zero", METRIC_PRUNING_ROUTINE_INTERVAL_ENVIRONMENT_KEY, config.MetricPruningRoutineInterval))
		}
		if config.MetricPruningMaxHistoryDays < 1 {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be at least 1", METRIC_PRUNING_MAX_HISTORY_DAYS_ENVIRONMENT_KEY, config.MetricPruningMaxHistoryDays))
		}
	}

	return allErrs
}

// ValidateRPCConfig validates the rpc surface read from the rpc config file,
// returning every problem found joined into one error or nil if the config is valid.
// Anything reported here is a startup time configuration error.
func ValidateRPCConfig(rpcConfig RPCConfig) error {
	var allErrs error

	if rpcConfig.Server.Port < 1 || rpcConfig.Server.Port > 65535 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid server port %d", rpcConfig.Server.Port))
	}
	if rpcConfig.Server.MaxConnections < 1 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid server max_connections %d, must be greater than zero", rpcConfig.Server.MaxConnections))
	}

	for i, method := range rpcConfig.RPCs.Methods {
		if method.Method == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("method #%d has an empty name", i))
			continue
		}

		if method.Cache < 0 {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid cache size %d for method %s, must be 0 (disabled) or positive", method.Cache, method.Method))
		}

		seenIndexes := make(map[int]string)
		for _, inject := range method.Injections() {
			if !isValidInjectKind(inject.Kind) {
				allErrs = errors.Join(allErrs, fmt.Errorf("undefined injection kind %q for method %s, supported values are %v", inject.Kind, method.Method, ValidInjectKinds))
			}
			if inject.Index < 0 {
				allErrs = errors.Join(allErrs, fmt.Errorf("invalid injection index %d for method %s, must not be negative", inject.Index, method.Method))
			}
			if other, exists := seenIndexes[inject.Index]; exists {
				allErrs = errors.Join(allErrs, fmt.Errorf("method %s injects both %s and %s at index %d", method.Method, other, inject.Kind, inject.Index))
			}
			seenIndexes[inject.Index] = inject.Kind
		}
	}

	for i, subscription := range rpcConfig.RPCs.Subscriptions {
		if subscription.Subscribe == "" || subscription.Unsubscribe == "" || subscription.Name == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("subscription #%d must set name, subscribe and unsubscribe", i))
		}
	}

	canonical := make(map[string]bool)
	for _, method := range rpcConfig.RPCs.Methods {
		canonical[method.Method] = true
	}
	for _, subscription := range rpcConfig.RPCs.Subscriptions {
		canonical[subscription.Subscribe] = true
		canonical[subscription.Unsubscribe] = true
	}
	for _, alias := range rpcConfig.RPCs.Aliases {
		if alias.Old == "" || alias.New == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("alias [%q, %q] must name two methods", alias.Old, alias.New))
			continue
		}
		if !canonical[alias.Old] {
			allErrs = errors.Join(allErrs, fmt.Errorf("alias %s refers to unknown name %s", alias.New, alias.Old))
		}
	}

	seen := map[string]bool{RPCMethodsName: true}
	for _, name := range rpcConfig.RPCs.ExternalNames() {
		if name == "" {
			continue
		}
		if seen[name] {
			allErrs = errors.Join(allErrs, fmt.Errorf("name %s is registered more than once", name))
		}
		seen[name] = true
	}

	return allErrs
}

func isValidInjectKind(kind string) bool {
	for _, valid := range ValidInjectKinds {
		if kind == valid {
			return true
		}
	}
	return false
}
