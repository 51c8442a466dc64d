package cmd

import (
	"github.com/spf13/cobra"
)

// Version is reported to metrics and tracing providers.
var Version = "0.1.0"

var (
	verbose  bool
	debug    bool
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stompws",
	Short: "STOMP over WebSocket client",
	Long: `stompws talks STOMP 1.2 to message brokers over WebSocket or SockJS.

Connections can be given on the command line or defined in HCL
configuration files, which may also declare subscriptions and
scheduled sends.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "log level (debug, info, warn, error)")
}
