// Package build implements the bookmarklet compile pipeline: it discovers
// script assets matching the configured pattern, rewrites them into
// javascript: URI artifacts on disk, and installs the resulting generation
// into the delivery server.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/marklet/marklet/internal/bookmarklet"
	"github.com/marklet/marklet/internal/config"
	"github.com/marklet/marklet/internal/logging"
	"github.com/marklet/marklet/internal/server"
)

// artifactSuffix is the extension of written bookmarklet artifacts.
const artifactSuffix = ".bookmarklet.txt"

// Asset is one discovered bookmarklet source file.
type Asset struct {
	Path        string // location on disk
	Name        string // base filename, the server-facing identity
	DisplayName string // human-readable name derived from the filename
	Script      string
}

// Installer receives each completed generation. Satisfied by
// server.DeliveryServer; nil for artifact-only builds.
type Installer interface {
	SetReady(ready bool)
	SetBookmarkletSources(ctx context.Context, inputs []server.SourceInput) error
}

// Pipeline runs asset discovery, artifact output, and generation install.
type Pipeline struct {
	config    *config.Config
	logger    logging.Logger
	installer Installer
	titleCase cases.Caser
}

// New creates a pipeline. installer may be nil for one-shot builds without a
// running server.
func New(cfg *config.Config, logger logging.Logger, installer Installer) *Pipeline {
	return &Pipeline{
		config:    cfg,
		logger:    logger.WithComponent("build"),
		installer: installer,
		titleCase: cases.Title(language.English),
	}
}

// Run executes one full build cycle. With an installer attached, the server
// is marked not ready before discovery begins and becomes ready again only
// once the new generation is installed.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.installer != nil {
		p.installer.SetReady(false)
	}

	assets, err := p.Discover()
	if err != nil {
		return fmt.Errorf("discovering assets: %w", err)
	}

	if err := p.WriteArtifacts(assets); err != nil {
		return fmt.Errorf("writing artifacts: %w", err)
	}

	if p.installer != nil {
		inputs := make([]server.SourceInput, len(assets))
		for i, asset := range assets {
			inputs[i] = server.SourceInput{Filename: asset.Name, Script: asset.Script}
		}
		if err := p.installer.SetBookmarkletSources(ctx, inputs); err != nil {
			return fmt.Errorf("installing generation: %w", err)
		}
	}

	p.logger.Info(ctx, "build cycle complete", "assets", len(assets))

	return nil
}

// Discover walks the configured scan paths and returns matching assets in
// deterministic name order. Missing scan paths are skipped, not fatal: a
// project may configure directories it has not created yet.
func (p *Pipeline) Discover() ([]Asset, error) {
	var assets []Asset
	seen := map[string]string{}

	for _, root := range p.config.Assets.ScanPaths {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}

		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if name := info.Name(); strings.HasPrefix(name, ".") && name != "." {
					return filepath.SkipDir
				}
				return nil
			}

			name := info.Name()
			if !strings.HasSuffix(name, p.config.Assets.Pattern) {
				return nil
			}
			if p.excluded(name) {
				return nil
			}

			if prev, dup := seen[name]; dup {
				return fmt.Errorf("asset name %q appears at both %s and %s", name, prev, path)
			}
			seen[name] = path

			script, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			assets = append(assets, Asset{
				Path:        path,
				Name:        name,
				DisplayName: p.displayName(name),
				Script:      string(script),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })

	return assets, nil
}

// WriteArtifacts writes one javascript: URI file per asset into the output
// directory and removes artifacts whose asset disappeared.
func (p *Pipeline) WriteArtifacts(assets []Asset) error {
	outDir := p.config.Build.OutputDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	current := make(map[string]bool, len(assets))
	for _, asset := range assets {
		fileName := p.artifactName(asset.Name)
		current[fileName] = true

		artifact := bookmarklet.Wrap(asset.Script)
		if err := os.WriteFile(filepath.Join(outDir, fileName), []byte(artifact), 0o644); err != nil {
			return fmt.Errorf("writing artifact for %s: %w", asset.Name, err)
		}
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return fmt.Errorf("listing output dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, artifactSuffix) {
			continue
		}
		if !current[name] {
			if err := os.Remove(filepath.Join(outDir, name)); err != nil {
				return fmt.Errorf("removing stale artifact %s: %w", name, err)
			}
		}
	}

	return nil
}

func (p *Pipeline) excluded(name string) bool {
	for _, pattern := range p.config.Assets.ExcludePatterns {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

// displayName turns "run-audit.bookmarklet.js" into "Run Audit".
func (p *Pipeline) displayName(name string) string {
	base := strings.TrimSuffix(name, p.config.Assets.Pattern)
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return p.titleCase.String(base)
}

func (p *Pipeline) artifactName(assetName string) string {
	return strings.TrimSuffix(assetName, p.config.Assets.Pattern) + artifactSuffix
}
