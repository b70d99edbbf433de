// package service provides functions and methods
// for creating and running the rpc gateway
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kava-labs/kava-rpc-gateway/chainstate"
	"github.com/kava-labs/kava-rpc-gateway/clients/cache"
	"github.com/kava-labs/kava-rpc-gateway/clients/database"
	"github.com/kava-labs/kava-rpc-gateway/clients/database/noop"
	"github.com/kava-labs/kava-rpc-gateway/clients/database/postgres"
	"github.com/kava-labs/kava-rpc-gateway/clients/database/postgres/migrations"
	"github.com/kava-labs/kava-rpc-gateway/clients/upstream"
	"github.com/kava-labs/kava-rpc-gateway/config"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/routines"
	"github.com/kava-labs/kava-rpc-gateway/service/metricmdw"
	"github.com/kava-labs/kava-rpc-gateway/service/rpcserver"
)

const (
	HealthcheckPath   = "/healthcheck"
	ServicecheckPath  = "/servicecheck"
	MethodsStatusPath = "/status/methods"
)

// GatewayService represents an instance of the rpc gateway
type GatewayService struct {
	config    config.Config
	rpcConfig config.RPCConfig

	Upstream *upstream.Client
	Database database.MetricsDatabase
	Redis    *cache.RedisClient
	Registry *MethodRegistry

	server  *rpcserver.Server
	metrics *metricmdw.MetricMiddleware
	pruning *routines.MetricPruningRoutine
	*logging.ServiceLogger
}

// New connects to the upstream node and every other dependency named by
// serviceConfig and builds the method chains of rpcConfig, returning the
// service and error (if any). Configuration errors are returned before
// anything is dialed.
func New(ctx context.Context, serviceConfig config.Config, rpcConfig config.RPCConfig, serviceLogger *logging.ServiceLogger) (*GatewayService, error) {
	if err := config.Validate(serviceConfig); err != nil {
		return nil, err
	}
	if err := config.ValidateRPCConfig(rpcConfig); err != nil {
		return nil, err
	}

	flavor, err := chainstate.ParseFlavor(serviceConfig.ChainStateFlavor)
	if err != nil {
		return nil, err
	}

	service := &GatewayService{
		config:        serviceConfig,
		rpcConfig:     rpcConfig,
		Database:      noop.New(),
		ServiceLogger: serviceLogger,
	}

	if serviceConfig.MetricDatabaseEnabled {
		db, err := createDatabaseClient(ctx, serviceConfig, serviceLogger)
		if err != nil {
			return nil, err
		}
		service.Database = db
		service.metrics = metricmdw.NewMetricMiddleware(db, serviceLogger)

		if serviceConfig.MetricPruningEnabled {
			service.pruning, err = routines.NewMetricPruningRoutine(routines.MetricPruningRoutineConfig{
				Interval:       serviceConfig.MetricPruningRoutineInterval,
				MaxHistoryDays: int64(serviceConfig.MetricPruningMaxHistoryDays),
				Database:       db,
				Logger:         serviceLogger,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	newCache := cache.NewLRUFactory()
	if serviceConfig.CacheBackend == config.CacheBackendRedis {
		service.Redis = cache.NewRedisClient(&cache.RedisConfig{
			Address:  serviceConfig.RedisEndpointURL,
			Password: serviceConfig.RedisPassword,
			Prefix:   serviceConfig.CachePrefix,
		}, serviceLogger)
		newCache = service.Redis.Factory()
	}

	service.Upstream, err = upstream.Dial(ctx, upstream.Config{
		URL:                    serviceConfig.UpstreamURL,
		RequestTimeout:         serviceConfig.UpstreamRequestTimeout,
		DialTimeout:            serviceConfig.UpstreamDialTimeout,
		SubscriptionBufferSize: serviceConfig.UpstreamSubscriptionBufferSize,
	}, serviceLogger)
	if err != nil {
		service.closeClients()
		return nil, fmt.Errorf("error %w connecting to upstream %s", err, serviceConfig.UpstreamURL)
	}

	service.Registry, err = NewMethodRegistry(rpcConfig, RegistryDependencies{
		Upstream:    service.Upstream,
		ChainState:  chainstate.New(flavor, service.Upstream, serviceLogger),
		Flavor:      flavor,
		NewCache:    newCache,
		CachePrefix: serviceConfig.CachePrefix,
		Metrics:     service.metrics,
		Logger:      serviceLogger,
	})
	if err != nil {
		service.closeClients()
		return nil, err
	}

	service.server = rpcserver.New(rpcserver.Config{MaxConnections: rpcConfig.Server.MaxConnections}, serviceLogger)
	if err := service.Registry.Register(service.server); err != nil {
		service.closeClients()
		return nil, err
	}

	service.server.HandleFunc(HealthcheckPath, createHealthcheckHandler(service))
	service.server.HandleFunc(ServicecheckPath, createServicecheckHandler(service))
	service.server.HandleFunc(MethodsStatusPath, createMethodsStatusHandler(service))

	return service, nil
}

func createDatabaseClient(ctx context.Context, serviceConfig config.Config, logger *logging.ServiceLogger) (*postgres.Client, error) {
	db, err := postgres.NewClient(postgres.DatabaseConfig{
		DatabaseName:               serviceConfig.DatabaseName,
		DatabaseEndpointURL:        serviceConfig.DatabaseEndpointURL,
		DatabaseUsername:           serviceConfig.DatabaseUsername,
		DatabasePassword:           serviceConfig.DatabasePassword,
		ReadTimeoutSeconds:         serviceConfig.DatabaseReadTimeoutSeconds,
		DatabaseMaxIdleConnections: serviceConfig.DatabaseMaxIdleConnections,
		DatabaseMaxOpenConnections: serviceConfig.DatabaseMaxOpenConnections,
		SSLEnabled:                 serviceConfig.DatabaseSSLEnabled,
		QueryLoggingEnabled:        serviceConfig.DatabaseQueryLoggingEnabled,
		Logger:                     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error %w creating database client", err)
	}

	if serviceConfig.RunDatabaseMigrations {
		// wait for database to be reachable before running migrations
		if err := db.HealthCheck(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("error %w connecting to database", err)
		}

		migrationStatus, err := db.Migrate(ctx, migrations.Migrations)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("error %w running database migrations", err)
		}

		logger.Debug().Msg(fmt.Sprintf("database migrations status %s", migrationStatus.String()))
	}

	return db, nil
}

// Run serves the gateway on the configured address until Shutdown
// is called, returning error (if any) in the event it stops
func (s *GatewayService) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.rpcConfig.Server.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves the gateway on listener, see Run
func (s *GatewayService) Serve(ctx context.Context, listener net.Listener) error {
	if s.pruning != nil {
		errs, err := s.pruning.Run(ctx)
		if err != nil {
			return err
		}
		go func() {
			for range errs {
				// failures are logged by the routine
			}
		}()
	}

	err := s.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops serving, waits for pending request metrics
// and closes every client of the service
func (s *GatewayService) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)

	if s.metrics != nil {
		s.metrics.Wait()
	}

	return errors.Join(err, s.closeClients())
}

func (s *GatewayService) closeClients() error {
	var errs error

	if s.Upstream != nil {
		errs = errors.Join(errs, s.Upstream.Close())
	}
	if s.Redis != nil {
		errs = errors.Join(errs, s.Redis.Close())
	}
	if db, ok := s.Database.(*postgres.Client); ok {
		errs = errors.Join(errs, db.Close())
	}

	return errs
}
