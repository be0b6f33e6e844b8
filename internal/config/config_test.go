package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thingpad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("THINGPAD_CONFIG", "")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "thingpad.db", c.Database.Path)
	assert.Equal(t, 5*time.Second, c.Eval.Timeout)
	assert.Equal(t, 4096, c.Surface.MaxWidth)
	assert.Equal(t, "localhost:5000", c.Server.Addr)
	assert.Equal(t, "default", c.Server.Namespace)
	assert.Equal(t, "warn", c.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/things.db
eval:
  timeout: 250ms
surface:
  max_width: 640
  max_height: 480
server:
  namespace: demo
log:
  format: json
`)
	t.Setenv("THINGPAD_SERVER_ADDR", ":9000")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/things.db", c.Database.Path)
	assert.Equal(t, 250*time.Millisecond, c.Eval.Timeout)
	assert.Equal(t, 640, c.Surface.MaxWidth)
	assert.Equal(t, 480, c.Surface.MaxHeight)
	assert.Equal(t, ":9000", c.Server.Addr)
	assert.Equal(t, "demo", c.Server.Namespace)
	assert.Equal(t, "json", c.Log.Format)
}

func TestLoad_ConfigEnvVar(t *testing.T) {
	path := writeConfig(t, "server:\n  namespace: fromenv\n")
	t.Setenv("THINGPAD_CONFIG", path)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "fromenv", c.Server.Namespace)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeConfig(t, "log:\n  level: loud\nsurface:\n  max_width: -1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log")
	assert.Contains(t, err.Error(), "surface")
}
