// Package cmd implements the flare CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apiclient "github.com/oncallops/flare/internal/api/client"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "flare",
		Short: "Alert rule evaluation and lifecycle engine",
		Long: "flare evaluates boolean rule conditions against metric snapshots,\n" +
			"deduplicates alerts by fingerprint, schedules multi-level escalation,\n" +
			"and manages the alert lifecycle from firing to resolution.",
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().
		String("server", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().
		String("output", "table", "output format (table, json)")

	cobra.CheckErr(viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server")))
	cobra.CheckErr(viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output")))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCommand())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(alertsCmd())
}

func initConfig() {
	viper.SetEnvPrefix("FLARE")
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newClient() *apiclient.Client {
	return apiclient.New(viper.GetString("server"))
}

func jsonOutput() bool {
	return viper.GetString("output") == "json"
}
