// package main runs the command line interface of the gateway
package main

import (
	"os"

	"github.com/kava-labs/kava-rpc-gateway/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
