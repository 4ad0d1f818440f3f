package setup

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientConfig_Missing(t *testing.T) {
	config, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.json"))

	require.NoError(t, err)
	assert.Empty(t, config.MCPServers)
}

func TestConfigure_PreservesOtherEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client", "config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(`{
  "theme": "dark",
  "mcpServers": {"other": {"command": "/bin/other"}}
}`), 0644))

	written, err := Configure(Options{ConfigPath: path, BinaryPath: "/opt/cds/mcp-server", DataDir: "/var/lib/cds"})
	require.NoError(t, err)
	assert.Equal(t, path, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"dark"`, string(raw["theme"]))

	config, err := LoadClientConfig(path)
	require.NoError(t, err)
	require.Len(t, config.MCPServers, 2)
	assert.Equal(t, "/bin/other", config.MCPServers["other"].Command)
	assert.Equal(t, MCPServerConfig{
		Command: "/opt/cds/mcp-server",
		Env:     map[string]string{DataDirEnv: "/var/lib/cds"},
	}, config.MCPServers[ServerName])
}

func TestLoadClientConfig_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadClientConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestGetStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	status, err := GetStatus(path, "/default/data")
	require.NoError(t, err)
	assert.False(t, status.Configured)
	assert.False(t, status.OK())
	assert.Equal(t, "/default/data", status.DataDir)

	binary := filepath.Join(dir, "mcp-server")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0644))
	_, err = Configure(Options{ConfigPath: path, BinaryPath: binary, DataDir: filepath.Join(dir, "data")})
	require.NoError(t, err)

	status, err = GetStatus(path, "/default/data")
	require.NoError(t, err)
	assert.True(t, status.Configured)
	assert.Equal(t, filepath.Join(dir, "data"), status.DataDir)
	require.Len(t, status.Issues, 1)
	assert.Contains(t, status.Issues[0], "not executable")

	require.NoError(t, os.Chmod(binary, 0755))
	status, err = GetStatus(path, "/default/data")
	require.NoError(t, err)
	assert.True(t, status.OK())
}

func TestCommand_ConfigureThenStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	binary := filepath.Join(dir, "mcp-server")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755))

	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"configure", "--client-config", path, "--binary", binary})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Registered "+ServerName)

	out.Reset()
	cmd = NewCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"status", "--client-config", path})
	require.NoError(t, cmd.Execute())

	var status Status
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	assert.True(t, status.Configured)
	assert.Equal(t, binary, status.ServerPath)
}
