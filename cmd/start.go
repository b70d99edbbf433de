package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kava-labs/kava-rpc-gateway/config"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service"
)

// StartCmd reads & validates configuration for the gateway
// and if the config is valid starts and monitors an instance of the gateway
var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceConfig := config.ReadConfig()

		if err := config.Validate(serviceConfig); err != nil {
			return err
		}

		serviceLogger, err := logging.New(serviceConfig.LogLevel)
		if err != nil {
			return err
		}

		serviceLogger.Debug().Msg(fmt.Sprintf("initial config: %+v", serviceConfig.Redacted()))

		rpcConfig, err := loadRPCConfig(rpcConfigPath(cmd, serviceConfig))
		if err != nil {
			serviceLogger.Error().Err(err).Msg("invalid rpc config")
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gateway, err := service.New(ctx, serviceConfig, rpcConfig, &serviceLogger)
		if err != nil {
			serviceLogger.Error().Err(err).Msg("error creating gateway")
			return err
		}

		served := make(chan error, 1)
		go func() {
			served <- gateway.Run(ctx)
		}()

		select {
		case err = <-served:
			serviceLogger.Error().Err(err).Msg("gateway stopped serving")
		case <-ctx.Done():
			serviceLogger.Info().Msg("shutting down gateway")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serviceConfig.ShutdownTimeout)
		defer cancel()

		if shutdownErr := gateway.Shutdown(shutdownCtx); shutdownErr != nil {
			serviceLogger.Error().Err(shutdownErr).Msg("error shutting down gateway")
		}

		return err
	},
}
