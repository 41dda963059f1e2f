package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-gen/generation"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "recipe-gen", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8501", cfg.Server.Addr())
	assert.Equal(t, 10*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "./my_model_files", cfg.Model.Dir)
	assert.Equal(t, "tensor", cfg.Model.Backend)
	assert.True(t, cfg.Model.Preload)
	assert.Equal(t, 8, cfg.Model.PrefixCache.BlockSize)
	assert.Equal(t, 30*time.Minute, cfg.Model.PrefixCache.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileWithPlaceholders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
server:
  port: ${RECIPE_TEST_PORT:9000}
model:
  dir: ${RECIPE_TEST_MODEL_DIR:/models/default}
  backend: http
  server_url: ${RECIPE_TEST_URL}
`)
	t.Setenv("RECIPE_TEST_MODEL_DIR", "/models/recipes")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/models/recipes", cfg.Model.Dir)
	assert.Equal(t, "http", cfg.Model.Backend)
	assert.Equal(t, "${RECIPE_TEST_URL}", cfg.Model.ServerURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RECIPE_MODEL_DIR", "/srv/model")
	t.Setenv("RECIPE_SERVER_PORT", "8080")
	t.Setenv("RECIPE_MODEL_PREFIX_CACHE_BLOCKS", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/model", cfg.Model.Dir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Zero(t, cfg.Model.PrefixCache.Blocks)
}

func TestLoadMergesEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "app:\n  env: test\nlog:\n  level: info\n  format: json\n")
	writeFile(t, filepath.Join(dir, "config.test.yaml"), "log:\n  level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "model: [unclosed\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestGenerationConfig(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	gc, err := cfg.Generation()
	require.NoError(t, err)
	assert.Equal(t, "./my_model_files", gc.ModelDir)
	assert.Equal(t, generation.BackendTensor, gc.Backend)
	assert.Equal(t, generation.DeviceAuto, gc.Device)
	assert.Equal(t, 256, gc.PrefixCacheBlocks)

	cfg.Model.Backend = "torch"
	_, err = cfg.Generation()
	assert.Error(t, err)

	cfg.Model.Backend = "http"
	_, err = cfg.Generation()
	assert.Error(t, err, "http backend without server_url")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("RECIPE_X", "x")

	assert.Equal(t, "a x b", expandEnv("a ${RECIPE_X} b"))
	assert.Equal(t, "x", expandEnv("${RECIPE_X:default}"))
	assert.Equal(t, "default", expandEnv("${RECIPE_UNSET_VAR:default}"))
	assert.Equal(t, "", expandEnv("${RECIPE_UNSET_VAR:}"))
	assert.Equal(t, "${RECIPE_UNSET_VAR}", expandEnv("${RECIPE_UNSET_VAR}"))
}
