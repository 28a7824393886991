package cmd

import (
	"strings"

	"github.com/Iron-Ham/stagectl/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "stagectl",
	Short: "Admission checks and staging for package change requests",
	Long: `stagectl validates change requests submitted to a package repository and
batches accepted requests into staging projects before they are promoted.

Requests may be given by id or by target package name. Stagings may be given
by their short name (A, B, adi:1) or by full project name.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/stagectl/config.yaml)")
	rootCmd.PersistentFlags().StringP("project", "p", "", "target project (default openSUSE:Factory)")
	rootCmd.PersistentFlags().Bool("wipe-cache", false, "drop cached request data before executing")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/stagectl")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("STAGECTL")
	// Replace dots with underscores for nested keys in env vars
	// e.g., STAGECTL_LOCK_TIMEOUT for lock.timeout
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
