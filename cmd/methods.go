package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/kava-labs/kava-rpc-gateway/config"
	"github.com/kava-labs/kava-rpc-gateway/service"
)

// MethodsCmd prints what rpc_methods would answer for the rpc config file
var MethodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "Validate the rpc config and print every exposed method name",
	RunE: func(cmd *cobra.Command, args []string) error {
		rpcConfig, err := loadRPCConfig(rpcConfigPath(cmd, config.ReadConfig()))
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")

		return encoder.Encode(service.RPCMethodsResponse{Methods: rpcConfig.RPCs.ExternalNames()})
	},
}
