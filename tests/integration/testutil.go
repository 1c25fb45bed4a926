// Package integration runs the fusion binary end to end.
package integration

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var (
	// fusionBin is the path to the built fusion binary.
	fusionBin string
	// buildErr captures any build error.
	buildErr error
)

// BuildError wraps a build error with output.
type BuildError struct {
	Err    error
	Output string
}

func (e *BuildError) Error() string {
	return e.Err.Error() + ": " + e.Output
}

// FindProjectRoot finds the project root by walking up and looking for go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// SetFusionBin sets the path to the fusion binary (called from TestMain).
func SetFusionBin(path string) {
	fusionBin = path
}

// SetBuildErr sets the build error (called from TestMain).
func SetBuildErr(err error) {
	buildErr = err
}

// TestEnv is an isolated working directory with its own config directory.
// The SQLite database and the log file live under TempDir.
type TestEnv struct {
	t       *testing.T
	TempDir string
	Config  string
	DBPath  string
}

// NewTestEnv creates a new isolated test environment. overrides are
// "key: value" lines that replace or extend the generated config.yaml.
func NewTestEnv(t *testing.T, overrides ...string) *TestEnv {
	t.Helper()

	if buildErr != nil {
		t.Fatalf("failed to build fusion: %v", buildErr)
	}
	if fusionBin == "" {
		t.Fatal("fusion binary not built (fusionBin is empty)")
	}

	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, ".fusion")
	dbPath := filepath.Join(tempDir, "data", "app.db")

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	keys := []string{"database_type", "sqlite_db_path", "log_file", "frontend_build_path"}
	values := map[string]string{
		"database_type":       "sqlite",
		"sqlite_db_path":      dbPath,
		"log_file":            filepath.Join(tempDir, "logs", "app.log"),
		"frontend_build_path": filepath.Join(tempDir, "dist"),
	}
	for _, line := range overrides {
		k, v, _ := strings.Cut(line, ":")
		k = strings.TrimSpace(k)
		if _, ok := values[k]; !ok {
			keys = append(keys, k)
		}
		values[k] = strings.TrimSpace(v)
	}
	var content strings.Builder
	for _, k := range keys {
		content.WriteString(k + ": " + values[k] + "\n")
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content.String()), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	return &TestEnv{t: t, TempDir: tempDir, Config: configDir, DBPath: dbPath}
}

// CmdResult holds the result of a fusion command execution.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Command returns an unstarted fusion command running in the environment.
// Variables that would override config.yaml are cleared.
func (e *TestEnv) Command(args ...string) *exec.Cmd {
	allArgs := append([]string{"--config-dir", e.Config}, args...)
	cmd := exec.Command(fusionBin, allArgs...)
	cmd.Dir = e.TempDir
	cmd.Env = append(os.Environ(),
		"DATABASE_TYPE=", "SQLITE_DB_PATH=", "LOG_FILE=", "PORT=", "HOST=", "FUSION_CONFIG_DIR=")
	return cmd
}

// RunFusion executes the fusion CLI with the given arguments.
func (e *TestEnv) RunFusion(args ...string) CmdResult {
	e.t.Helper()

	cmd := e.Command(args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			e.t.Fatalf("failed to run fusion: %v", err)
		}
	}

	return CmdResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
}

// MustRunFusion executes the fusion CLI and fails the test if it returns non-zero.
func (e *TestEnv) MustRunFusion(args ...string) CmdResult {
	e.t.Helper()
	result := e.RunFusion(args...)
	if result.ExitCode != 0 {
		e.t.Fatalf("fusion %v failed with exit code %d:\nstdout: %s\nstderr: %s",
			args, result.ExitCode, result.Stdout, result.Stderr)
	}
	return result
}

// ParseJSON parses JSON output into the target type.
func ParseJSON[T any](t *testing.T, jsonStr string) T {
	t.Helper()
	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", jsonStr, err)
	}
	return result
}

// FreePort returns a TCP port that was free a moment ago.
func FreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// User is the user record as printed by `fusion --json users`.
type User struct {
	ID       json.RawMessage `json:"id"`
	Email    string          `json:"email"`
	Username string          `json:"username"`
	FullName string          `json:"full_name"`
	IsActive bool            `json:"is_active"`
}
