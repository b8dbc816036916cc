// Package app provides the command line entry points of the ETL process.
package app

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/whois-cat/ETL/config"
	etl "github.com/whois-cat/ETL/internal/app"
)

var rootCmd = &cobra.Command{
	Use:               "etl",
	DisableAutoGenTag: true,
	Short:             "Incremental PostgreSQL to Elasticsearch loader",
	Long: `etl keeps the movies, genres and persons search indices in step with the
content database. Each cycle loads the rows changed since the stored checkpoint
of their kind and advances the checkpoint one row at a time.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var envFile string

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(versionCmd)
	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), etl.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file read before the environment")
}

// bootstrap loads configuration and the logger shared by every command.
func bootstrap() (*config.Config, ectologger.Logger, func(), error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, sync, err := etl.NewLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, sync, nil
}
