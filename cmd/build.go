package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marklet/marklet/internal/build"
	"github.com/marklet/marklet/internal/config"
	"github.com/marklet/marklet/internal/errors"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build bookmarklet artifacts once and exit",
	Long: `Discover bookmarklet scripts, wrap each one into a javascript: URI and
write the artifacts to the output directory. Useful for CI or for producing
bookmarklets without running the server.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().String("output", "", "Artifact output directory")
	bindFlags(buildCmd.Flags(), map[string]string{
		"build.output_dir": "output",
	})
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.NewEnhancedError("Failed to load configuration", err,
			errors.ConfigSuggestions(cfgFile))
	}

	logger := newLogger(cfg)

	pipeline := build.New(cfg, logger, nil)
	assets, err := pipeline.Discover()
	if err != nil {
		return fmt.Errorf("discovering scripts: %w", err)
	}
	if len(assets) == 0 {
		fmt.Println("No bookmarklet scripts found.")
		return nil
	}

	if err := pipeline.WriteArtifacts(assets); err != nil {
		return fmt.Errorf("writing artifacts: %w", err)
	}

	fmt.Printf("Built %d bookmarklet(s) into %s\n", len(assets), cfg.Build.OutputDir)
	return nil
}
