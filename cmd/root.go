// package cmd provides the command line interface of the gateway
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kava-labs/kava-rpc-gateway/config"
)

const rpcConfigFlag = "config"

// RootCmd is the root command of the gateway, it is called once in main
var RootCmd = &cobra.Command{
	Use:   "kava-rpc-gateway",
	Short: "JSON-RPC gateway relaying calls and subscriptions to a single upstream node",
	// usage is noise next to a startup error
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().String(rpcConfigFlag, "", "path of the rpc config file, overrides "+config.RPC_CONFIG_FILE_ENVIRONMENT_KEY)
	RootCmd.AddCommand(
		StartCmd,
		MethodsCmd,
		VersionCmd,
	)
}

// Execute runs the command named by the process arguments
func Execute() error {
	return RootCmd.ExecuteContext(context.Background())
}

// rpcConfigPath returns the rpc config file named by the flag,
// falling back to the one named in serviceConfig
func rpcConfigPath(cmd *cobra.Command, serviceConfig config.Config) string {
	path, err := cmd.Flags().GetString(rpcConfigFlag)
	if err != nil || path == "" {
		return serviceConfig.RPCConfigFile
	}
	return path
}

// loadRPCConfig reads and validates the rpc config file
func loadRPCConfig(path string) (config.RPCConfig, error) {
	rpcConfig, err := config.LoadRPCConfig(path)
	if err != nil {
		return rpcConfig, err
	}

	return rpcConfig, config.ValidateRPCConfig(rpcConfig)
}
