package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
version = "1.2.0"

[server]
name = "fdm-pricer"
environment = "test"
[server.http]
port = 9090

[log]
level = "debug"

[engine]
scheme = "craigsneyd"
time_steps = 50
damping_steps = 2
x_grid = 120
timeout = "5s"
`

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	t.Setenv("APP_ENGINE_X_GRID", "140")
	conf := Default()
	require.NoError(t, Load(path, conf))

	assert.Equal(t, "1.2.0", conf.Version)
	assert.Equal(t, 9090, conf.Server.HTTP.Port)
	assert.Equal(t, "craigsneyd", conf.Engine.Scheme)
	assert.Equal(t, 50, conf.Engine.TimeSteps)
	assert.Equal(t, 2, conf.Engine.DampingSteps)
	assert.Equal(t, 140, conf.Engine.XGrid)
	assert.Equal(t, 5*time.Second, conf.Engine.Timeout)
	// 文件未出现的字段保持默认值.
	assert.Equal(t, 100, conf.Engine.VGrid)
	assert.Equal(t, 31, conf.Engine.RGrid)
	assert.Equal(t, "plain", conf.Engine.VarianceTransform)
	assert.Equal(t, "/metrics", conf.Metrics.Path)
}

func TestLoadRejectsInvalidEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	bad := sample + "\n" + `v_grid = 2` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))

	conf := Default()
	err := Load(path, conf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "VGrid")
	assert.Equal(t, 100, conf.Engine.VGrid)
	assert.Equal(t, 8080, conf.Server.HTTP.Port)
}

func TestLoadMissingFile(t *testing.T) {
	err := Load(filepath.Join(t.TempDir(), "absent.toml"), Default())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReloadAppliesOnlyValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	v := newViper(path)
	require.NoError(t, v.ReadInConfig())
	conf := Default()

	var seen []int
	RegisterReloadHook(func(c *Config) { seen = append(seen, c.Engine.TimeSteps) })
	t.Cleanup(func() {
		mu.Lock()
		hooks = nil
		mu.Unlock()
	})

	require.NoError(t, os.WriteFile(path, []byte(sample+"\nv_grid = 2\n"), 0o600))
	reload(v, conf, path)
	assert.Equal(t, 100, conf.Engine.TimeSteps)
	assert.Empty(t, seen)

	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	reload(v, conf, path)
	assert.Equal(t, 50, conf.Engine.TimeSteps)
	assert.Equal(t, []int{50}, seen)
}

func TestMaskHidesSecrets(t *testing.T) {
	m := map[string]any{
		"tracing": map[string]any{"otlp_endpoint": "collector:4317", "auth_token": "abc"},
		"list":    []any{map[string]any{"password": "p"}},
	}
	mask(m)
	assert.Equal(t, "******", m["tracing"].(map[string]any)["auth_token"])
	assert.Equal(t, "collector:4317", m["tracing"].(map[string]any)["otlp_endpoint"])
	assert.Equal(t, "******", m["list"].([]any)[0].(map[string]any)["password"])
}
