package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marklet/marklet/internal/build"
	"github.com/marklet/marklet/internal/config"
	"github.com/marklet/marklet/internal/errors"
)

var listFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered bookmarklet scripts",
	Long: `Scan the configured asset paths and list every bookmarklet script that
would be built, without building anything.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listFormat, "format", "table", "Output format (table, json, yaml)")
}

type listedAsset struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Path        string `json:"path" yaml:"path"`
}

func runList(cmd *cobra.Command, args []string) error {
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

	listed := make([]listedAsset, 0, len(assets))
	for _, a := range assets {
		listed = append(listed, listedAsset{
			Name:        a.Name,
			DisplayName: a.DisplayName,
			Path:        a.Path,
		})
	}

	switch listFormat {
	case "table":
		if len(listed) == 0 {
			fmt.Println("No bookmarklet scripts found.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDISPLAY NAME\tPATH")
		for _, a := range listed {
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.Name, a.DisplayName, a.Path)
		}
		return w.Flush()
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(listed)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(listed)
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", listFormat)
	}
}
