// Command enclaved is a local demo harness for the confidential
// smart-contract execution core: it wires the enclave singleton, the
// dispatcher, and an in-memory host Context together so init/handle/query
// calls can be exercised from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/empower1/enclavecore/internal/dispatcher"
	"github.com/empower1/enclavecore/internal/enclave"
	"github.com/empower1/enclavecore/internal/envelope"
)

func readFile(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "enclaved: reading %s: %v\n", path, err)
		os.Exit(1)
	}
	return data
}

func newRootCmd(svc *dispatcher.Service, ctx *memContext) *cobra.Command {
	var apiVersionFlag string
	var gasLimit uint64

	apiVersion := func() envelope.ApiVersion {
		if apiVersionFlag == "v016" {
			return envelope.ApiVersionV016
		}
		return envelope.ApiVersionV010
	}

	root := &cobra.Command{
		Use:   "enclaved",
		Short: "Confidential smart-contract execution core demo harness.",
	}
	root.PersistentFlags().StringVar(&apiVersionFlag, "api-version", "v010", "contract API version (v010|v016)")
	root.PersistentFlags().Uint64Var(&gasLimit, "gas-limit", 1_000_000, "gas limit for this call")

	initCmd := &cobra.Command{
		Use:   "init [contract.wasm] [env.json] [msg.bin] [sig.json]",
		Short: "Drive the init entry point",
		Args:  cobra.ExactArgs(4),
		Run: func(cmd *cobra.Command, args []string) {
			var usedGas uint64
			result, err := svc.Init(ctx, gasLimit, &usedGas, apiVersion(),
				readFile(args[0]), readFile(args[1]), readFile(args[2]), readFile(args[3]))
			if err != nil {
				fmt.Fprintf(os.Stderr, "init failed (used_gas=%d): %v\n", usedGas, err)
				os.Exit(1)
			}
			out, _ := json.Marshal(map[string]interface{}{
				"output":       result.Output,
				"contract_key": result.ContractKey[:],
				"used_gas":     usedGas,
			})
			fmt.Println(string(out))
		},
	}

	handleCmd := &cobra.Command{
		Use:   "handle [contract.wasm] [env.json] [msg.bin] [sig.json]",
		Short: "Drive the handle entry point",
		Args:  cobra.ExactArgs(4),
		Run: func(cmd *cobra.Command, args []string) {
			var usedGas uint64
			result, err := svc.Handle(ctx, gasLimit, &usedGas, apiVersion(),
				readFile(args[0]), readFile(args[1]), readFile(args[2]), readFile(args[3]))
			if err != nil {
				fmt.Fprintf(os.Stderr, "handle failed (used_gas=%d): %v\n", usedGas, err)
				os.Exit(1)
			}
			out, _ := json.Marshal(map[string]interface{}{
				"output":   result.Output,
				"used_gas": usedGas,
			})
			fmt.Println(string(out))
		},
	}

	queryCmd := &cobra.Command{
		Use:   "query [contract.wasm] [msg.bin]",
		Short: "Drive the query entry point",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			var usedGas uint64
			result, err := svc.Query(ctx, gasLimit, &usedGas, apiVersion(),
				readFile(args[0]), readFile(args[1]))
			if err != nil {
				fmt.Fprintf(os.Stderr, "query failed (used_gas=%d): %v\n", usedGas, err)
				os.Exit(1)
			}
			out, _ := json.Marshal(map[string]interface{}{
				"output":   result.Output,
				"used_gas": usedGas,
			})
			fmt.Println(string(out))
		},
	}

	root.AddCommand(initCmd, handleCmd, queryCmd)
	return root
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "enclaved: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := enclave.Init(enclave.ModeSimulation); err != nil {
		logger.Fatal("enclave init failed", zap.Error(err))
	}

	svc := dispatcher.NewService(logger)
	ctx := newMemContext()

	if err := newRootCmd(svc, ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
