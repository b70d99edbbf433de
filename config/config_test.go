package config_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/kava-labs/kava-rpc-gateway/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	randomEnvironmentVariableKey = "TEST_KAVA_RANDOM_VALUE"
	upstreamURL                  = "ws://localhost:9944"
)

func TestUnitTestEnvODefaultReturnsDefaultIfEnvironmentVariableNotSet(t *testing.T) {
	err := os.Unsetenv(randomEnvironmentVariableKey)

	assert.Nil(t, err, "error clearing environment variable")

	defaultValue := "default"

	value := config.EnvOrDefault(randomEnvironmentVariableKey, defaultValue)

	assert.Equal(t, defaultValue, value)
}

func TestUnitTestEnvODefaultReturnsSetValue(t *testing.T) {
	setValue := "default"
	t.Setenv(randomEnvironmentVariableKey, setValue)

	value := config.EnvOrDefault(randomEnvironmentVariableKey, "")

	assert.Equal(t, setValue, value)
}

func TestUnitTestEnvOrDefaultTypedHelpers(t *testing.T) {
	t.Setenv(randomEnvironmentVariableKey, "42")
	assert.Equal(t, 42, config.EnvOrDefaultInt(randomEnvironmentVariableKey, 1))
	assert.Equal(t, int64(42), config.EnvOrDefaultInt64(randomEnvironmentVariableKey, 1))

	t.Setenv(randomEnvironmentVariableKey, "true")
	assert.True(t, config.EnvOrDefaultBool(randomEnvironmentVariableKey, false))

	t.Setenv(randomEnvironmentVariableKey, "1m30s")
	assert.Equal(t, 90*time.Second, config.EnvOrDefaultDuration(randomEnvironmentVariableKey, time.Second))

	// unparseable values fall back
	t.Setenv(randomEnvironmentVariableKey, "not-a-value")
	assert.Equal(t, 7, config.EnvOrDefaultInt(randomEnvironmentVariableKey, 7))
	assert.False(t, config.EnvOrDefaultBool(randomEnvironmentVariableKey, false))
	assert.Equal(t, time.Second, config.EnvOrDefaultDuration(randomEnvironmentVariableKey, time.Second))
}

func TestUnitTestReadConfigReturnsConfigWithValuesFromEnv(t *testing.T) {
	setDefaultEnv(t)

	readConfig := config.ReadConfig()

	assert.Equal(t, config.DEFAULT_LOG_LEVEL, readConfig.LogLevel)
	assert.Equal(t, upstreamURL, readConfig.UpstreamURL)
	assert.Equal(t, config.DEFAULT_UPSTREAM_REQUEST_TIMEOUT, readConfig.UpstreamRequestTimeout)
	assert.Equal(t, config.CacheBackendMemory, readConfig.CacheBackend)
	assert.False(t, readConfig.MetricDatabaseEnabled)
}

const testRPCConfig = `
server:
  listen_address: 127.0.0.1
  port: 9955
rpcs:
  methods:
    - method: chain_getHeader
      cache: 2000
    - method: state_getStorage
      with_block_hash: 1
      cache: 2000
    - method: state_call
      inject:
        - kind: block_hash
          index: 2
        - kind: block_number
          index: 3
    - method: system_health
  subscriptions:
    - name: chain_newHead
      subscribe: chain_subscribeNewHeads
      unsubscribe: chain_unsubscribeNewHeads
  aliases:
    - [chain_subscribeNewHeads, chain_subscribeNewHead]
`

func TestUnitTestParseRPCConfig(t *testing.T) {
	rpcConfig, err := config.ParseRPCConfig([]byte(testRPCConfig))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9955", rpcConfig.Server.Addr())
	require.Equal(t, config.DefaultMaxConnections, rpcConfig.Server.MaxConnections)

	require.Len(t, rpcConfig.RPCs.Methods, 4)
	require.Equal(t, 2000, rpcConfig.RPCs.Methods[0].Cache)
	require.Empty(t, rpcConfig.RPCs.Methods[0].Injections())

	require.Equal(t, []config.InjectConfig{{Kind: config.InjectKindBlockHash, Index: 1}}, rpcConfig.RPCs.Methods[1].Injections())
	require.Equal(t, []config.InjectConfig{
		{Kind: config.InjectKindBlockHash, Index: 2},
		{Kind: config.InjectKindBlockNumber, Index: 3},
	}, rpcConfig.RPCs.Methods[2].Injections())

	require.Equal(t, []config.Alias{{Old: "chain_subscribeNewHeads", New: "chain_subscribeNewHead"}}, rpcConfig.RPCs.Aliases)

	require.Equal(t, []string{
		"chain_getHeader",
		"state_getStorage",
		"state_call",
		"system_health",
		"chain_subscribeNewHeads",
		"chain_unsubscribeNewHeads",
		"chain_subscribeNewHead",
	}, rpcConfig.RPCs.ExternalNames())

	require.NoError(t, config.ValidateRPCConfig(rpcConfig))
}

func TestUnitTestParseRPCConfigRejectsMalformedAlias(t *testing.T) {
	_, err := config.ParseRPCConfig([]byte(`
rpcs:
  aliases:
    - [only_one_name]
`))
	require.ErrorContains(t, err, "alias must be a list of two names")
}

func TestUnitTestParseRPCConfigRejectsUnknownKeys(t *testing.T) {
	_, err := config.ParseRPCConfig([]byte(`
rpcs:
  methods:
    - method: state_getStorage
      with_block_hsh: 1
`))
	require.ErrorContains(t, err, "with_block_hsh")
}

func TestUnitTestParseRPCConfigAcceptsEmptyDocument(t *testing.T) {
	rpcConfig, err := config.ParseRPCConfig(nil)
	require.NoError(t, err)
	require.Equal(t, config.DefaultPort, rpcConfig.Server.Port)
}

func TestUnitTestLoadRPCConfigReturnsErrorForMissingFile(t *testing.T) {
	_, err := config.LoadRPCConfig("/does/not/exist.yml")
	require.Error(t, err)
}

func setDefaultEnv(t *testing.T) {
	t.Helper()

	t.Setenv(config.LOG_LEVEL_ENVIRONMENT_KEY, config.DEFAULT_LOG_LEVEL)
	t.Setenv(config.UPSTREAM_URL_ENVIRONMENT_KEY, upstreamURL)
	t.Setenv(config.CACHE_BACKEND_ENVIRONMENT_KEY, config.CacheBackendMemory)
	t.Setenv(config.METRIC_DATABASE_ENABLED_ENVIRONMENT_KEY, "false")
	t.Setenv(config.METRIC_PRUNING_ENABLED_ENVIRONMENT_KEY, "false")
}

func TestUnitTestRedactedHidesSecrets(t *testing.T) {
	serviceConfig := config.Config{
		RedisPassword:    "redis-secret",
		DatabasePassword: "database-secret",
		DatabaseUsername: "gateway",
	}

	redacted := serviceConfig.Redacted()

	formatted := fmt.Sprintf("%+v", redacted)
	assert.NotContains(t, formatted, "redis-secret")
	assert.NotContains(t, formatted, "database-secret")
	assert.Equal(t, "gateway", redacted.DatabaseUsername)
	// the original is untouched
	assert.Equal(t, "database-secret", serviceConfig.DatabasePassword)
	assert.Empty(t, config.Config{}.Redacted().RedisPassword)
}
