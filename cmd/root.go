// Package cmd provides the command-line interface for marklet with
// configuration from multiple sources, in precedence order:
//
//  1. Command-line flags (--config, --port, ...)
//  2. MARKLET_CONFIG_FILE environment variable (custom config file path)
//  3. Individual environment variables (MARKLET_SERVER_PORT, ...)
//  4. Configuration file (.marklet.yml)
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/marklet/marklet/internal/config"
	"github.com/marklet/marklet/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "marklet",
	Short: "Dynamic scripting bookmarklets for local development",
	Long: `Marklet turns script assets into bookmarklets and serves freshly rebuilt
script bodies through a local delivery server, so a bookmarklet registered
once keeps working across rebuilds.

Quick start:
  marklet serve                   Start the delivery server with rebuild on change
  marklet build                   One-shot build of javascript: URI artifacts
  marklet list                    List discovered bookmarklet assets

Scripts matching the configured pattern (default *.bookmarklet.js) under the
scan paths (default ./scripts) become entries on the served index page.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .marklet.yml, can also use MARKLET_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
	})
}

// bindFlags binds each config key to the named flag on flags.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

// initConfig wires viper to the config file and MARKLET_-prefixed
// environment variables. A missing or malformed config file degrades to
// defaults rather than failing.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("MARKLET_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".marklet")
	}

	viper.SetEnvPrefix("MARKLET")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from loaded config.
func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}
