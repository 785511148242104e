package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_Defaults(t *testing.T) {
	b := New("fdm-pricer", "v0.1.0")
	require.NoError(t, b.Initialize(""))

	require.NotNil(t, b.Config)
	require.NotNil(t, b.Logger)
	assert.Equal(t, "v0.1.0", b.Config.Version)
	assert.Equal(t, "fdm-pricer", b.Config.Tracing.ServiceName)
	assert.Equal(t, 8080, b.Config.Server.HTTP.Port)

	shutdown := b.SetupTracing(b.Config.Tracing)
	shutdown()
}

func TestInitialize_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `version = "1.2.3"

[server]
name = "fdm-test"
environment = "test"

[server.http]
port = 9090

[engine]
scheme = "douglas"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	b := New("fdm-pricer", "v0.1.0")
	require.NoError(t, b.Initialize(path))
	assert.Equal(t, "1.2.3", b.Version)
	assert.Equal(t, "fdm-test", b.ServiceName)
	assert.Equal(t, 9090, b.Config.Server.HTTP.Port)
	assert.Equal(t, "douglas", b.Config.Engine.Scheme)
	assert.Equal(t, 200, b.Config.Engine.XGrid)
	// 文件中未出现的字段保留默认值.
	assert.Equal(t, "/metrics", b.Config.Metrics.Path)
}

func TestInitialize_MissingFile(t *testing.T) {
	b := New("fdm-pricer", "v0.1.0")
	assert.Error(t, b.Initialize(filepath.Join(t.TempDir(), "absent.toml")))
}

func TestLogConfig(t *testing.T) {
	b := New("svc", "v1")
	require.NoError(t, b.Initialize(""))
	lc := LogConfig(b.Config)
	assert.Equal(t, "svc", lc.Service)
	assert.Equal(t, "info", lc.Level)
}
