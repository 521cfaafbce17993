package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1_000, cfg.TraceBufferSize)
	assert.Equal(t, "127.0.0.1", cfg.OTLPHost)
	assert.Equal(t, 0, cfg.OTLPPort)
	assert.Equal(t, 4381, cfg.WebUIPort)
	assert.False(t, cfg.Verbose)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"trace_buffer_size": 500,
		"otlp_port": 4317,
		"trace_dirs": ["/var/log/gateway"],
		"verbose": true
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.TraceBufferSize)
	assert.Equal(t, 4317, cfg.OTLPPort)
	assert.Equal(t, []string{"/var/log/gateway"}, cfg.TraceDirs)
	assert.True(t, cfg.Verbose)
	// Unset fields stay zero; merging fills them from defaults.
	assert.Equal(t, "", cfg.OTLPHost)
}

func TestLoadConfigFromFileMissing(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadConfigFromFileInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadConfigFromFile(path)
	assert.Error(t, err)
}

func TestMergeConfigs(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{
		TraceBufferSize: 250,
		OTLPPort:        4317,
		TraceDirs:       []string{"/tmp/traces"},
		Verbose:         true,
	}

	merged := MergeConfigs(base, overlay)

	assert.Equal(t, 250, merged.TraceBufferSize)
	assert.Equal(t, 4317, merged.OTLPPort)
	assert.Equal(t, []string{"/tmp/traces"}, merged.TraceDirs)
	assert.True(t, merged.Verbose)
	// Base values survive when the overlay leaves them zero.
	assert.Equal(t, "127.0.0.1", merged.OTLPHost)
	assert.Equal(t, 4381, merged.WebUIPort)
}

func TestMergeConfigsNil(t *testing.T) {
	base := DefaultConfig()
	assert.Equal(t, base, MergeConfigs(base, nil))

	merged := MergeConfigs(nil, &Config{OTLPPort: 9999})
	assert.Equal(t, 9999, merged.OTLPPort)
}

func TestFindProjectConfig(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	configPath := filepath.Join(dir, ".tracelens.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{}"), 0o644))
	// Mark dir as a repo root so the walk stops there either way.
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))

	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(sub))
	t.Cleanup(func() { os.Chdir(oldWd) })

	found, err := FindProjectConfig()
	require.NoError(t, err)
	// Resolve symlinks; macOS TempDir goes through /private.
	wantResolved, _ := filepath.EvalSymlinks(configPath)
	gotResolved, _ := filepath.EvalSymlinks(found)
	assert.Equal(t, wantResolved, gotResolved)
}
