// Package config provides configuration management for marklet using Viper,
// loading from .marklet.yml, MARKLET_-prefixed environment variables, and
// command-line flags.
//
// It manages the delivery server settings (port, host, fallback probing),
// filename protection parameters (salt, stretch count), asset discovery
// paths, and build output, with validation and basic security checks on
// user-supplied values.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Multi-word keys carry an explicit mapstructure tag because viper decodes
// with mapstructure, not yaml, and its default field matching is
// case-insensitive name equality only.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Protect ProtectConfig `yaml:"protect" mapstructure:"protect"`
	Assets  AssetsConfig  `yaml:"assets" mapstructure:"assets"`
	Build   BuildConfig   `yaml:"build" mapstructure:"build"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Port         int    `yaml:"port" mapstructure:"port"`
	Host         string `yaml:"host" mapstructure:"host"`
	FallbackPort bool   `yaml:"fallback_port" mapstructure:"fallback_port"`
	Open         bool   `yaml:"open" mapstructure:"open"`
	NoOpen       bool   `yaml:"no-open" mapstructure:"no-open"`
}

type ProtectConfig struct {
	Salt         string `yaml:"salt" mapstructure:"salt"`
	StretchCount int    `yaml:"stretch_count" mapstructure:"stretch_count"`
}

type AssetsConfig struct {
	ScanPaths       []string `yaml:"scan_paths" mapstructure:"scan_paths"`
	Pattern         string   `yaml:"pattern" mapstructure:"pattern"`
	ExcludePatterns []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
}

type BuildConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Server defaults. Bool handling goes through IsSet so an explicit
	// false in the file survives defaulting.
	if config.Server.Port == 0 {
		config.Server.Port = 3300
	}
	if config.Server.Host == "" {
		config.Server.Host = "127.0.0.1"
	}
	if !viper.IsSet("server.fallback_port") {
		config.Server.FallbackPort = true
	} else {
		config.Server.FallbackPort = viper.GetBool("server.fallback_port")
	}
	if !viper.IsSet("server.open") {
		config.Server.Open = true
	} else {
		config.Server.Open = viper.GetBool("server.open")
	}
	if viper.IsSet("server.no-open") && viper.GetBool("server.no-open") {
		config.Server.Open = false
	}

	// Protection defaults.
	if config.Protect.Salt == "" {
		config.Protect.Salt = "marklet"
	}
	if config.Protect.StretchCount == 0 {
		config.Protect.StretchCount = 32
	}

	// Asset discovery defaults.
	if !viper.IsSet("assets.scan_paths") && len(config.Assets.ScanPaths) == 0 {
		config.Assets.ScanPaths = []string{"./scripts"}
	}
	// Workaround for viper slice handling when values come from env.
	if viper.IsSet("assets.scan_paths") && len(config.Assets.ScanPaths) == 0 {
		if scanPaths := viper.GetStringSlice("assets.scan_paths"); len(scanPaths) > 0 {
			config.Assets.ScanPaths = scanPaths
		}
	}
	if config.Assets.Pattern == "" {
		config.Assets.Pattern = ".bookmarklet.js"
	}
	if len(config.Assets.ExcludePatterns) == 0 {
		config.Assets.ExcludePatterns = []string{"*_test.js", "*.bak"}
	}

	if config.Build.OutputDir == "" {
		config.Build.OutputDir = ".marklet/out"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values for security and correctness.
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateProtectConfig(&config.Protect); err != nil {
		return fmt.Errorf("protect config: %w", err)
	}
	if err := validateAssetsConfig(&config.Assets); err != nil {
		return fmt.Errorf("assets config: %w", err)
	}
	if err := validateBuildConfig(&config.Build); err != nil {
		return fmt.Errorf("build config: %w", err)
	}
	return nil
}

func validateServerConfig(config *ServerConfig) error {
	// Port 0 is allowed for system-assigned ports in testing.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

func validateProtectConfig(config *ProtectConfig) error {
	if config.StretchCount < 1 {
		return fmt.Errorf("stretch_count must be >= 1, got %d", config.StretchCount)
	}
	return nil
}

func validateAssetsConfig(config *AssetsConfig) error {
	for _, path := range config.ScanPaths {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid scan path '%s': %w", path, err)
		}
	}
	if !strings.HasPrefix(config.Pattern, ".") {
		return fmt.Errorf("pattern must be a filename suffix starting with '.', got %q", config.Pattern)
	}
	return nil
}

func validateBuildConfig(config *BuildConfig) error {
	if config.OutputDir != "" {
		cleanPath := filepath.Clean(config.OutputDir)
		if strings.Contains(cleanPath, "..") {
			return fmt.Errorf("output_dir contains path traversal: %s", config.OutputDir)
		}
		if filepath.IsAbs(cleanPath) {
			return fmt.Errorf("output_dir should be a relative path: %s", config.OutputDir)
		}
	}
	return nil
}

// validatePath validates a user-supplied file path.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
