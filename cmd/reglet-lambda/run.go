package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/reglet-dev/reglet-lambda/domain/entities"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [payload-file]",
	Short: "Run the handler once",
	Long: `Runs one invocation. The payload is read from the named file, from stdin
when the file is "-", or is empty. On success the guest's stdout is
written to stdout; otherwise the error document goes to stdout and the
command exits non-zero.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("request-id", "", "request id passed to the guest (default: random)")
	runCmd.Flags().Bool("result", false, "print the full invocation result as JSON")
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	payload, err := readPayload(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	requestID, _ := cmd.Flags().GetString("request-id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	result, err := a.executor.Invoke(ctx, &entities.Invocation{RequestID: requestID, Payload: payload})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if full, _ := cmd.Flags().GetBool("result"); full {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else if result.Outcome.IsSuccess() {
		_, _ = out.Write(result.Stdout)
	} else {
		_ = json.NewEncoder(out).Encode(entities.FunctionErrorFor(result.Outcome))
	}

	if !result.Outcome.IsSuccess() {
		return fmt.Errorf("invocation %s: %s", requestID, result.Outcome)
	}
	return nil
}

func readPayload(stdin io.Reader, args []string) ([]byte, error) {
	switch {
	case len(args) == 0:
		return nil, nil
	case args[0] == "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(args[0])
	}
}
