package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

// TestMain builds the fusion binary once before running tests.
func TestMain(m *testing.M) {
	projectRoot, err := FindProjectRoot()
	if err != nil {
		SetBuildErr(err)
		os.Exit(1)
	}

	tmpDir, err := os.MkdirTemp("", "fusion-test-*")
	if err != nil {
		SetBuildErr(err)
		os.Exit(1)
	}
	binPath := filepath.Join(tmpDir, "fusion")
	SetFusionBin(binPath)

	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/fusion")
	cmd.Dir = projectRoot
	if output, err := cmd.CombinedOutput(); err != nil {
		SetBuildErr(&BuildError{Err: err, Output: string(output)})
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(tmpDir)
	os.Exit(code)
}

func TestVersion(t *testing.T) {
	env := NewTestEnv(t)
	result := env.MustRunFusion("version")
	if !strings.HasPrefix(result.Stdout, "fusion v") {
		t.Errorf("unexpected version output %q", result.Stdout)
	}
}

func TestInitCreatesDatabase(t *testing.T) {
	env := NewTestEnv(t)

	result := env.MustRunFusion("init")
	if !strings.Contains(result.Stdout, "sqlite") {
		t.Errorf("expected backend in init output, got %q", result.Stdout)
	}
	if _, err := os.Stat(env.DBPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	// A second init leaves the existing config alone.
	result = env.MustRunFusion("--json", "init")
	out := ParseJSON[map[string]any](t, result.Stdout)
	if out["config_written"] != false {
		t.Errorf("config rewritten on second init: %v", out)
	}
}

func TestHealthCommand(t *testing.T) {
	env := NewTestEnv(t)
	result := env.MustRunFusion("--json", "health")
	out := ParseJSON[map[string]string](t, result.Stdout)
	if out["database"] != "connected" {
		t.Errorf("database = %q, want connected", out["database"])
	}
}

func TestHealthUnreachableExitsWithSystemError(t *testing.T) {
	env := NewTestEnv(t, "database_type: postgresql", "postgres_host: 127.0.0.1", "postgres_port: 1")
	result := env.RunFusion("health")
	if result.ExitCode != 2 {
		t.Errorf("exit code = %d, want 2\nstderr: %s", result.ExitCode, result.Stderr)
	}
}

func TestUnknownDatabaseTypeExitsWithUserError(t *testing.T) {
	env := NewTestEnv(t, "database_type: cassandra")
	result := env.RunFusion("health")
	if result.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1\nstderr: %s", result.ExitCode, result.Stderr)
	}
}

func TestUsersLifecycle(t *testing.T) {
	env := NewTestEnv(t)
	env.MustRunFusion("users", "create", "--email", "ann@example.com", "--username", "ann", "--password", "pw", "--full-name", "Ann A")
	env.MustRunFusion("users", "create", "--email", "ben@example.com", "--username", "ben", "--password", "pw")

	dup := env.RunFusion("users", "create", "--email", "ann@example.com", "--username", "other", "--password", "pw")
	if dup.ExitCode != 1 {
		t.Errorf("duplicate create exit code = %d, want 1", dup.ExitCode)
	}

	users := ParseJSON[[]User](t, env.MustRunFusion("--json", "users", "list").Stdout)
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}
	if users[0].Username != "ann" || users[1].Username != "ben" {
		t.Errorf("unexpected order: %v", users)
	}
	if users[0].FullName != "Ann A" {
		t.Errorf("full name = %q", users[0].FullName)
	}
	if string(users[0].ID) != "1" {
		t.Errorf("first id = %s, want 1", users[0].ID)
	}

	user := ParseJSON[User](t, env.MustRunFusion("--json", "users", "get", "--email", "ben@example.com").Stdout)
	if user.Username != "ben" {
		t.Errorf("get by email returned %q", user.Username)
	}
}

// TestServeEndToEnd runs the HTTP server and drives the register, login and
// profile flow over the network, then stops the server with SIGINT.
func TestServeEndToEnd(t *testing.T) {
	port := FreePort(t)
	env := NewTestEnv(t, "host: 127.0.0.1", fmt.Sprintf("port: %d", port), "environment: production")

	cmd := env.Command("serve")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start serve: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
	})

	base := fmt.Sprintf("http://127.0.0.1:%d/api", port)
	waitHealthy(t, base+"/health", done)

	resp, err := http.Post(base+"/auth/register", "application/json",
		strings.NewReader(`{"email":"eve@example.com","username":"eve","password":"pw"}`))
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusCreated)

	resp, err = http.PostForm(base+"/auth/login", url.Values{"username": {"eve"}, "password": {"pw"}})
	if err != nil {
		t.Fatal(err)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decodeBody(t, resp, http.StatusOK, &tok)
	if tok.TokenType != "bearer" || tok.AccessToken == "" {
		t.Fatalf("unexpected token response %+v", tok)
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var me User
	decodeBody(t, resp, http.StatusOK, &me)
	if me.Username != "eve" {
		t.Errorf("me = %q, want eve", me.Username)
	}

	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		t.Fatalf("signal: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve exited with %v\nstderr: %s", err, stderr.String())
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after SIGINT")
	}
}

func waitHealthy(t *testing.T, url string, done <-chan error) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-done:
			t.Fatalf("serve exited early: %v", err)
		default:
		}
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("server never became healthy")
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, body)
	}
}

func decodeBody(t *testing.T, resp *http.Response, want int, v any) {
	t.Helper()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, body)
	}
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}
