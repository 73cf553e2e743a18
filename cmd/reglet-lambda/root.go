package main

import (
	"fmt"
	"os"

	"github.com/reglet-dev/reglet-lambda/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = config.NewViper()

var rootCmd = &cobra.Command{
	Use:   "reglet-lambda",
	Short: "Run WebAssembly handlers with capability-restricted HTTP",
	Long: `reglet-lambda instantiates a WebAssembly module per invocation and lets it
reach only the HTTP origins named in ALLOWED_HOSTS.

Without a subcommand it behaves as the Lambda bootstrap.`,
	SilenceUsage: true,
	RunE:         runBootstrap,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a YAML configuration file")
	flags.String("handler", "", "module and optional export, e.g. handler or handler.run (_HANDLER)")
	flags.String("task-root", "", "directory holding the module (LAMBDA_TASK_ROOT)")
	flags.StringSlice("allowed-hosts", nil, "outbound allow-list entries (ALLOWED_HOSTS)")
	flags.Duration("timeout", 0, "execution budget per invocation")
	flags.String("log-level", "", "log level or RUST_LOG directive")
	flags.String("log-format", "", "log format: text or json")

	bindFlag(v, "handler", "handler")
	bindFlag(v, "task_root", "task-root")
	bindFlag(v, "allowed_hosts", "allowed-hosts")
	bindFlag(v, "execution.timeout", "timeout")
	bindFlag(v, "logging.level", "log-level")
	bindFlag(v, "logging.format", "log-format")
}

func bindFlag(v *viper.Viper, key, flag string) {
	_ = v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
}

// loadConfig merges defaults, the config file, the environment and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(v, path)
}
