package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/internal/common"
	"github.com/pgshift/pgshift/internal/configuration"
)

const defaultConfigPath = "./config/pgshift"

var userSpecifiedConfigs []string

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pgshift",
		Short: "pgshift re-partitions large postgres tables with bounded, resumable bulk work.",
	}

	cmd.PersistentFlags().StringSliceVar(
		&userSpecifiedConfigs,
		"config",
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)

	cmd.AddCommand(
		planCmd(),
		migrateCmd(),
		loadCmd(),
		resumeCmd(),
	)

	return cmd
}

func Execute() {
	if err := RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() *configuration.PgshiftConfig {
	var config configuration.PgshiftConfig
	common.LoadConfig(&config, defaultConfigPath, userSpecifiedConfigs)
	return &config
}
