package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3300, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.True(t, cfg.Server.FallbackPort)
	assert.True(t, cfg.Server.Open)

	assert.Equal(t, "marklet", cfg.Protect.Salt)
	assert.Equal(t, 32, cfg.Protect.StretchCount)

	assert.Equal(t, []string{"./scripts"}, cfg.Assets.ScanPaths)
	assert.Equal(t, ".bookmarklet.js", cfg.Assets.Pattern)
	assert.Equal(t, ".marklet/out", cfg.Build.OutputDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_ExplicitValues(t *testing.T) {
	resetViper(t)
	viper.Set("server.port", 8123)
	viper.Set("server.host", "localhost")
	viper.Set("server.fallback_port", false)
	viper.Set("protect.salt", "pepper")
	viper.Set("protect.stretch_count", 4)
	viper.Set("assets.scan_paths", []string{"./bookmarklets"})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.False(t, cfg.Server.FallbackPort)
	assert.Equal(t, "pepper", cfg.Protect.Salt)
	assert.Equal(t, 4, cfg.Protect.StretchCount)
	assert.Equal(t, []string{"./bookmarklets"}, cfg.Assets.ScanPaths)
}

func TestLoad_MultiWordKeysReachStruct(t *testing.T) {
	resetViper(t)
	viper.Set("server.fallback_port", false)
	viper.Set("protect.stretch_count", 7)
	viper.Set("assets.scan_paths", []string{"./js"})
	viper.Set("assets.exclude_patterns", []string{"*.skip.js"})
	viper.Set("build.output_dir", "dist/bookmarklets")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Server.FallbackPort)
	assert.Equal(t, 7, cfg.Protect.StretchCount)
	assert.Equal(t, []string{"./js"}, cfg.Assets.ScanPaths)
	assert.Equal(t, []string{"*.skip.js"}, cfg.Assets.ExcludePatterns)
	assert.Equal(t, "dist/bookmarklets", cfg.Build.OutputDir)
}

func TestLoad_NoOpenOverridesOpen(t *testing.T) {
	resetViper(t)
	viper.Set("server.open", true)
	viper.Set("server.no-open", true)

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Server.Open)
}

func TestLoad_RejectsInvalidPort(t *testing.T) {
	resetViper(t)
	viper.Set("server.port", 70000)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid range")
}

func TestLoad_RejectsDangerousHost(t *testing.T) {
	resetViper(t)
	viper.Set("server.host", "localhost; rm -rf /")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dangerous character")
}

func TestLoad_RejectsInvalidStretchCount(t *testing.T) {
	resetViper(t)
	viper.Set("protect.stretch_count", -1)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stretch_count")
}

func TestLoad_RejectsPathTraversalScanPath(t *testing.T) {
	resetViper(t)
	viper.Set("assets.scan_paths", []string{"../../etc"})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traversal")
}

func TestLoad_RejectsAbsoluteOutputDir(t *testing.T) {
	resetViper(t)
	viper.Set("build.output_dir", "/tmp/out")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relative path")
}

func TestLoad_RejectsNonSuffixPattern(t *testing.T) {
	resetViper(t)
	viper.Set("assets.pattern", "bookmarklet")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suffix")
}
