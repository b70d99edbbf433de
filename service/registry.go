package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kava-labs/kava-rpc-gateway/chainstate"
	"github.com/kava-labs/kava-rpc-gateway/clients/cache"
	"github.com/kava-labs/kava-rpc-gateway/clients/upstream"
	"github.com/kava-labs/kava-rpc-gateway/config"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service/cachemdw"
	"github.com/kava-labs/kava-rpc-gateway/service/callmdw"
	"github.com/kava-labs/kava-rpc-gateway/service/injectmdw"
	"github.com/kava-labs/kava-rpc-gateway/service/metricmdw"
	"github.com/kava-labs/kava-rpc-gateway/service/rpcserver"
	"github.com/kava-labs/kava-rpc-gateway/service/submdw"
)

// Upstream is the node client shared by every chain
type Upstream interface {
	upstream.Caller
	upstream.Subscriber
}

// RegistryDependencies are the shared clients chains are built from
type RegistryDependencies struct {
	Upstream   Upstream
	ChainState chainstate.API
	Flavor     chainstate.Flavor
	// NewCache creates the cache of each caching method
	NewCache    cache.Factory
	CachePrefix string
	// Metrics, if set, is the outermost stage of every call chain
	Metrics *metricmdw.MetricMiddleware
	Logger  *logging.ServiceLogger
}

type registeredMethod struct {
	config config.MethodConfig
	cache  *cachemdw.CacheMiddleware
}

type registeredSubscription struct {
	config config.SubscriptionConfig
	chain  *submdw.Chain
}

// MethodRegistry holds the chain of every method and subscription exposed by
// the gateway and the aliases naming them. It is built once and read only afterwards.
type MethodRegistry struct {
	methods       []registeredMethod
	byName        map[string]*callmdw.Chain
	subscriptions []registeredSubscription
	aliases       []config.Alias
	rpcMethods    []string
	logger        *logging.ServiceLogger
}

// NewMethodRegistry validates rpcs and builds every chain it describes
func NewMethodRegistry(rpcConfig config.RPCConfig, deps RegistryDependencies) (*MethodRegistry, error) {
	if err := config.ValidateRPCConfig(rpcConfig); err != nil {
		return nil, err
	}

	registry := &MethodRegistry{
		byName:     make(map[string]*callmdw.Chain),
		aliases:    rpcConfig.RPCs.Aliases,
		rpcMethods: rpcConfig.RPCs.ExternalNames(),
		logger:     deps.Logger,
	}

	forwarder := callmdw.NewUpstreamMiddleware(deps.Upstream, deps.Logger)
	for _, method := range rpcConfig.RPCs.Methods {
		chain, cacheStage, err := buildCallChain(method, deps, forwarder)
		if err != nil {
			return nil, err
		}

		registry.methods = append(registry.methods, registeredMethod{config: method, cache: cacheStage})
		registry.byName[method.Method] = chain
	}

	subscriber := submdw.NewUpstreamMiddleware(deps.Upstream, deps.Logger)
	for _, subscription := range rpcConfig.RPCs.Subscriptions {
		registry.subscriptions = append(registry.subscriptions, registeredSubscription{
			config: subscription,
			chain:  submdw.NewChain(subscriber),
		})
	}

	for _, alias := range registry.aliases {
		if chain, exists := registry.byName[alias.Old]; exists {
			registry.byName[alias.New] = chain
		}
	}

	return registry, nil
}

// buildCallChain returns the chain of method:
// [metrics] -> injections in declared order -> [cache] -> upstream
func buildCallChain(method config.MethodConfig, deps RegistryDependencies, forwarder *callmdw.UpstreamMiddleware) (*callmdw.Chain, *cachemdw.CacheMiddleware, error) {
	var stages []callmdw.Middleware

	if deps.Metrics != nil {
		stages = append(stages, deps.Metrics)
	}

	for _, inject := range method.Injections() {
		kind, err := injectmdw.ParseKind(inject.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("method %s: %w", method.Method, err)
		}

		stage, err := injectmdw.New(kind, inject.Index, deps.ChainState, deps.Flavor, deps.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("method %s: %w", method.Method, err)
		}

		stages = append(stages, stage)
	}

	var cacheStage *cachemdw.CacheMiddleware
	if method.Cache > 0 {
		methodCache, err := deps.NewCache(method.Method, method.Cache)
		if err != nil {
			return nil, nil, fmt.Errorf("error %w creating cache for method %s", err, method.Method)
		}

		cacheStage, err = cachemdw.NewCacheMiddleware(methodCache, deps.CachePrefix, deps.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("error %w creating cache stage for method %s", err, method.Method)
		}

		stages = append(stages, cacheStage)
	}

	stages = append(stages, forwarder)

	return callmdw.NewChain(stages...), cacheStage, nil
}

// RPCMethods lists every name exposed to clients: methods, subscribe names,
// unsubscribe names and alias names, each once
func (r *MethodRegistry) RPCMethods() []string {
	return append([]string(nil), r.rpcMethods...)
}

// Call runs the chain registered under method, alias names included
func (r *MethodRegistry) Call(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	chain, exists := r.byName[method]
	if !exists {
		return nil, fmt.Errorf("%w: %s", rpcserver.ErrUnknownMethod, method)
	}

	return chain.Call(ctx, callmdw.CallRequest{Method: canonicalName(r.aliases, method), Params: params})
}

// canonicalName returns the configured name behind an alias, upstream only knows those
func canonicalName(aliases []config.Alias, name string) string {
	for _, alias := range aliases {
		if alias.New == name {
			return alias.Old
		}
	}
	return name
}

// Register exposes every method, subscription and alias on server,
// along with rpc_methods
func (r *MethodRegistry) Register(server *rpcserver.Server) error {
	for _, method := range r.methods {
		name := method.config.Method

		err := server.RegisterMethod(name, func(ctx context.Context, params []json.RawMessage) (json.RawMessage, error) {
			return r.Call(ctx, name, params)
		})
		if err != nil {
			return err
		}
	}

	rpcMethods, err := json.Marshal(RPCMethodsResponse{Methods: r.RPCMethods()})
	if err != nil {
		return err
	}
	err = server.RegisterMethod(config.RPCMethodsName, func(context.Context, []json.RawMessage) (json.RawMessage, error) {
		return rpcMethods, nil
	})
	if err != nil {
		return err
	}

	for _, subscription := range r.subscriptions {
		chain, subscribe, unsubscribe := subscription.chain, subscription.config.Subscribe, subscription.config.Unsubscribe

		err := server.RegisterSubscription(subscribe, subscription.config.Name, unsubscribe,
			func(ctx context.Context, params []json.RawMessage, sink submdw.Sink) error {
				_, err := chain.Call(ctx, submdw.SubscriptionRequest{
					Subscribe:   subscribe,
					Unsubscribe: unsubscribe,
					Params:      params,
					Sink:        sink,
				})
				return err
			})
		if err != nil {
			return err
		}
	}

	for _, alias := range r.aliases {
		if err := server.RegisterAlias(alias.New, alias.Old); err != nil {
			return err
		}
	}

	r.logger.Info().
		Int("methods", len(r.methods)).
		Int("subscriptions", len(r.subscriptions)).
		Int("aliases", len(r.aliases)).
		Msg("registered rpc methods")

	return nil
}

// Status describes every registered method and subscription
func (r *MethodRegistry) Status(ctx context.Context) MethodsStatusResponse {
	status := MethodsStatusResponse{
		Methods:       make([]MethodStatus, 0, len(r.methods)),
		Subscriptions: make([]SubscriptionStatus, 0, len(r.subscriptions)),
		Aliases:       make(map[string]string, len(r.aliases)),
	}

	for _, method := range r.methods {
		methodStatus := MethodStatus{
			Name:      method.config.Method,
			CacheSize: method.config.Cache,
		}
		for _, inject := range method.config.Injections() {
			methodStatus.Injections = append(methodStatus.Injections, fmt.Sprintf("%s@%d", inject.Kind, inject.Index))
		}
		if method.cache != nil {
			entries, err := method.cache.Len(ctx)
			if err != nil {
				r.logger.Debug().Str("method", method.config.Method).Err(err).Msg("error counting cache entries")
			} else {
				methodStatus.CachedEntries = &entries
			}
		}
		status.Methods = append(status.Methods, methodStatus)
	}

	for _, subscription := range r.subscriptions {
		status.Subscriptions = append(status.Subscriptions, SubscriptionStatus{
			Name:        subscription.config.Name,
			Subscribe:   subscription.config.Subscribe,
			Unsubscribe: subscription.config.Unsubscribe,
		})
	}

	for _, alias := range r.aliases {
		status.Aliases[alias.New] = alias.Old
	}

	return status
}
