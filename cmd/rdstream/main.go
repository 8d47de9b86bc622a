package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amaumene/rdstream/internal/constants"
)

var (
	flagConfigFile string
	flagPort       string
	flagLogLevel   string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "rdstream",
		Short: "SKTorrent Stremio addon with Real-Debrid playback",
		Long: `Serves a Stremio addon that lists SKTorrent results and resolves them
through Real-Debrid into direct, range-capable streams.
`,
	}

	rootCmd.PersistentFlags().StringVarP(&flagConfigFile, "config", "c", "", "Config file (JSON)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "serve",
		Short: "Run the addon HTTP server",
		Example: `  rdstream serve
  rdstream serve --port 8080 --log-level debug`,
		SilenceUsage: true,
	}

	command.Flags().StringVarP(&flagPort, "port", "p", "", "Listen port")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		overrides := map[string]interface{}{}
		if flagPort != "" {
			overrides["port"] = flagPort
		}
		if flagLogLevel != "" {
			overrides["log_level"] = flagLogLevel
		}
		return run(cmd.Context(), flagConfigFile, overrides)
	}

	return command
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s version: %s\n", constants.AddonName, constants.AddonVersion)
			return nil
		},
	}
}
