package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fusion/internal/config"
	"github.com/mesh-intelligence/fusion/pkg/fusion"
	"github.com/mesh-intelligence/fusion/pkg/types"
)

// workspace runs the test in an empty directory with a clean environment and
// returns the config directory to pass with --config-dir.
func workspace(t *testing.T) string {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, key := range []string{"DATABASE_TYPE", "SQLITE_DB_PATH", "LOG_FILE", "FUSION_CONFIG_DIR"} {
		t.Setenv(key, "")
	}
	return filepath.Join(".", ".fusion")
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	code = run(root, args, &errOut)
	return out.String(), errOut.String(), code
}

func TestVersion(t *testing.T) {
	out, _, code := runCLI(t, "version")
	assert.Equal(t, exitSuccess, code)
	assert.Contains(t, out, "fusion v"+fusion.Version)
	assert.Contains(t, out, modulePath)

	out, _, code = runCLI(t, "version", "--json")
	assert.Equal(t, exitSuccess, code)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, fusion.Version, v["version"])
}

func TestInit(t *testing.T) {
	dir := workspace(t)

	out, errOut, code := runCLI(t, "--config-dir", dir, "init")
	require.Equal(t, exitSuccess, code, errOut)
	assert.Contains(t, out, "fusion initialized (sqlite)")
	assert.FileExists(t, filepath.Join(dir, config.ConfigFileName))
	assert.FileExists(t, filepath.Join("data", "app.db"))

	out, _, code = runCLI(t, "--config-dir", dir, "--json", "init")
	require.Equal(t, exitSuccess, code)
	var res initResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.ConfigWritten)
	assert.Equal(t, "sqlite", res.Backend)
	assert.True(t, filepath.IsAbs(res.ConfigDir))
}

func TestHealth(t *testing.T) {
	dir := workspace(t)

	out, errOut, code := runCLI(t, "--config-dir", dir, "--json", "health")
	require.Equal(t, exitSuccess, code, errOut)
	var res healthResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "sqlite", res.Backend)
	assert.Equal(t, "connected", res.Database)
}

func TestUsersCommands(t *testing.T) {
	dir := workspace(t)

	for _, name := range []string{"alice", "bob"} {
		_, errOut, code := runCLI(t, "--config-dir", dir, "users", "create",
			"--email", name+"@example.com", "--username", name, "--password", "pw")
		require.Equal(t, exitSuccess, code, errOut)
	}

	t.Run("list", func(t *testing.T) {
		out, _, code := runCLI(t, "--config-dir", dir, "--json", "users", "list")
		require.Equal(t, exitSuccess, code)
		var users []types.User
		require.NoError(t, json.Unmarshal([]byte(out), &users))
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[0].Username)
		assert.Equal(t, "bob", users[1].Username)
		assert.NotContains(t, out, "pw")
	})

	t.Run("list paged table", func(t *testing.T) {
		out, _, code := runCLI(t, "--config-dir", dir, "users", "list", "--skip", "1")
		require.Equal(t, exitSuccess, code)
		assert.Contains(t, out, "USERNAME")
		assert.Contains(t, out, "bob")
		assert.NotContains(t, out, "alice")
	})

	t.Run("get by email", func(t *testing.T) {
		out, _, code := runCLI(t, "--config-dir", dir, "--json", "users", "get", "--email", "bob@example.com")
		require.Equal(t, exitSuccess, code)
		var u types.User
		require.NoError(t, json.Unmarshal([]byte(out), &u))
		assert.Equal(t, "bob", u.Username)
	})

	t.Run("get missing", func(t *testing.T) {
		_, errOut, code := runCLI(t, "--config-dir", dir, "users", "get", "carol")
		assert.Equal(t, exitUserError, code)
		assert.Contains(t, errOut, "carol")
	})

	t.Run("duplicate", func(t *testing.T) {
		_, errOut, code := runCLI(t, "--config-dir", dir, "users", "create",
			"--email", "alice@example.com", "--username", "alice3", "--password", "pw")
		assert.Equal(t, exitUserError, code)
		assert.Contains(t, errOut, "already registered")
	})

	t.Run("negative limit", func(t *testing.T) {
		_, _, code := runCLI(t, "--config-dir", dir, "users", "list", "--limit", "-1")
		assert.Equal(t, exitUserError, code)
	})
}

func TestBadDatabaseTypeIsUserError(t *testing.T) {
	dir := workspace(t)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte("database_type: oracle\n"), 0o644))

	_, errOut, code := runCLI(t, "--config-dir", dir, "health")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, "oracle")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{types.ErrConfig, exitUserError},
		{fmt.Errorf("open: %w", types.ErrConnect), exitSysError},
		{types.ErrPoolExhausted, exitSysError},
		{sysError(errors.New("x")), exitSysError},
		{userError(errors.New("x")), exitUserError},
		{errors.New("unknown flag"), exitUserError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), tt.err.Error())
	}
}
