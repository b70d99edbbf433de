package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// InjectKindBlockHash injects the hash of the current chain head
	InjectKindBlockHash = "block_hash"
	// InjectKindBlockNumber injects the number of the current chain head
	InjectKindBlockNumber = "block_number"

	// RPCMethodsName is the introspection method registered by the gateway itself
	RPCMethodsName = "rpc_methods"

	DefaultListenAddress  = "0.0.0.0"
	DefaultPort           = 9944
	DefaultMaxConnections = 100
)

// RPCConfig is the rpc surface of the gateway, read from a yaml file
type RPCConfig struct {
	Server ServerConfig `yaml:"server"`
	RPCs   RPCs         `yaml:"rpcs"`
}

// ServerConfig contains the values the client facing transport listens with
type ServerConfig struct {
	ListenAddress  string `yaml:"listen_address"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
}

// Addr returns the host:port the server should listen on
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.ListenAddress, s.Port)
}

// RPCs lists every method, subscription and alias exposed by the gateway
type RPCs struct {
	Methods       []MethodConfig       `yaml:"methods"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Aliases       []Alias              `yaml:"aliases"`
}

// MethodConfig configures the middleware chain of a single method.
// WithBlockHash and WithBlockNumber are shorthands for entries of Inject,
// they are applied first (hash, then number) followed by Inject in declared order.
type MethodConfig struct {
	Method          string         `yaml:"method"`
	WithBlockHash   *int           `yaml:"with_block_hash,omitempty"`
	WithBlockNumber *int           `yaml:"with_block_number,omitempty"`
	Inject          []InjectConfig `yaml:"inject,omitempty"`
	// Cache is the capacity of the method's response cache, 0 disables caching
	Cache int `yaml:"cache"`
}

// InjectConfig describes one parameter injection stage
type InjectConfig struct {
	Kind  string `yaml:"kind"`
	Index int    `yaml:"index"`
}

// Injections returns the injection stages of the method in the order they run
func (m MethodConfig) Injections() []InjectConfig {
	injections := make([]InjectConfig, 0, len(m.Inject)+2)

	if m.WithBlockHash != nil {
		injections = append(injections, InjectConfig{Kind: InjectKindBlockHash, Index: *m.WithBlockHash})
	}
	if m.WithBlockNumber != nil {
		injections = append(injections, InjectConfig{Kind: InjectKindBlockNumber, Index: *m.WithBlockNumber})
	}

	return append(injections, m.Inject...)
}

// SubscriptionConfig describes a subscription relayed to the upstream.
// Name is the method name used for notifications pushed to the client.
type SubscriptionConfig struct {
	Name        string `yaml:"name"`
	Subscribe   string `yaml:"subscribe"`
	Unsubscribe string `yaml:"unsubscribe"`
}

// Alias exposes the existing name Old under the additional name New.
// In yaml an alias is written as a two element list: [old, new]
type Alias struct {
	Old string
	New string
}

// UnmarshalYAML implements yaml.Unmarshaler
func (a *Alias) UnmarshalYAML(value *yaml.Node) error {
	var pair []string
	if err := value.Decode(&pair); err != nil {
		return fmt.Errorf("alias must be a list of two names: %w", err)
	}

	if len(pair) != 2 {
		return fmt.Errorf("alias must be a list of two names, got %d at line %d", len(pair), value.Line)
	}

	a.Old, a.New = pair[0], pair[1]

	return nil
}

// MarshalYAML implements yaml.Marshaler
func (a Alias) MarshalYAML() (interface{}, error) {
	return []string{a.Old, a.New}, nil
}

// ExternalNames returns every externally visible name in registration order:
// methods, subscribe names, unsubscribe names and then alias names
func (r RPCs) ExternalNames() []string {
	names := make([]string, 0, len(r.Methods)+2*len(r.Subscriptions)+len(r.Aliases))

	for _, method := range r.Methods {
		names = append(names, method.Method)
	}
	for _, subscription := range r.Subscriptions {
		names = append(names, subscription.Subscribe)
	}
	for _, subscription := range r.Subscriptions {
		names = append(names, subscription.Unsubscribe)
	}
	for _, alias := range r.Aliases {
		names = append(names, alias.New)
	}

	return names
}

// ParseRPCConfig decodes the yaml encoded rpc config and applies server defaults.
// Unknown keys are rejected.
func ParseRPCConfig(data []byte) (RPCConfig, error) {
	var rpcConfig RPCConfig

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&rpcConfig); err != nil && !errors.Is(err, io.EOF) {
		return RPCConfig{}, fmt.Errorf("error %w decoding rpc config", err)
	}

	if rpcConfig.Server.ListenAddress == "" {
		rpcConfig.Server.ListenAddress = DefaultListenAddress
	}
	if rpcConfig.Server.Port == 0 {
		rpcConfig.Server.Port = DefaultPort
	}
	if rpcConfig.Server.MaxConnections == 0 {
		rpcConfig.Server.MaxConnections = DefaultMaxConnections
	}

	return rpcConfig, nil
}

// LoadRPCConfig reads and decodes the rpc config file at path.
// The returned config may be invalid and should be validated via `ValidateRPCConfig`
func LoadRPCConfig(path string) (RPCConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RPCConfig{}, fmt.Errorf("error %w reading rpc config file %s", err, path)
	}

	return ParseRPCConfig(data)
}
