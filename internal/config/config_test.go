package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fusion/pkg/types"
)

// isolate runs the test in an empty working directory with the environment
// variables the assertions depend on cleared.
func isolate(t *testing.T) string {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, key := range []string{"PORT", "HOST", "DATABASE_TYPE", "SQLITE_DB_PATH", "POSTGRES_HOST", "POSTGRES_PASSWORD", "MONGODB_USER", "DEBUG", "ENVIRONMENT", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}
	return t.TempDir()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	s, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, s.Environment)
	assert.True(t, s.IsDevelopment())
	assert.False(t, s.IsProduction())
	assert.True(t, s.Debug)
	assert.Equal(t, "0.0.0.0:8000", s.Addr())
	assert.Equal(t, "/api", s.APIPrefix)
	assert.Equal(t, "sqlite", s.DatabaseType)
	assert.Equal(t, "./data/app.db", s.SQLiteDBPath)
	assert.Equal(t, 30*time.Minute, s.AccessTokenTTL())
	assert.True(t, s.InsecureSecret())
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173", "http://localhost:8000"}, s.CORSOriginList())
	assert.Equal(t, ModeWeb, s.Mode)
	assert.Equal(t, DefaultAppInfo(), s.App)
	assert.Equal(t, dir, s.ConfigDir)
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)

	writeFile(t, filepath.Join(dir, ConfigFileName), "port: 9000\nhost: 127.0.0.1\nsqlite_db_path: ./yaml.db\n")
	t.Run("config.yaml overrides defaults", func(t *testing.T) {
		s, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, 9000, s.Port)
		assert.Equal(t, "127.0.0.1", s.Host)
	})

	writeFile(t, DotEnvFileName, "PORT=9100\nDEBUG=false\n")
	t.Run(".env overrides config.yaml", func(t *testing.T) {
		s, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, 9100, s.Port)
		assert.False(t, s.Debug)
		assert.Equal(t, "./yaml.db", s.SQLiteDBPath)
	})

	t.Run("environment overrides .env", func(t *testing.T) {
		t.Setenv("PORT", "9200")
		t.Setenv("ENVIRONMENT", "Production")
		s, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, 9200, s.Port)
		assert.True(t, s.IsProduction())
	})
}

func TestLoadAppConfigOverrides(t *testing.T) {
	dir := isolate(t)
	t.Setenv("DATABASE_TYPE", "postgresql")

	writeFile(t, filepath.Join(dir, AppConfigFileName), `{
  "app": {"name": "Demo", "version": "2.0.0", "description": "d", "author": {"name": "N", "email": "n@x.com", "github": "g"}},
  "mode": "desktop",
  "database": {"type": "mongodb"},
  "server": {"host": "127.0.0.1", "port": 8123}
}`)

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "mongodb", s.DatabaseType)
	assert.Equal(t, "127.0.0.1:8123", s.Addr())
	assert.Equal(t, ModeDesktop, s.Mode)
	assert.Equal(t, "Demo", s.App.Name)
	assert.Equal(t, "n@x.com", s.App.Author.Email)
}

func TestLoadAppConfigMissingFile(t *testing.T) {
	ac, err := LoadAppConfig(filepath.Join(t.TempDir(), AppConfigFileName))
	require.NoError(t, err)
	assert.Nil(t, ac)
}

func TestLoadRejectsUnknownDatabaseType(t *testing.T) {
	dir := isolate(t)
	t.Setenv("DATABASE_TYPE", "oracle")

	_, err := Load(dir)
	assert.ErrorIs(t, err, types.ErrBackendUnknown)
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestDatabaseConfig(t *testing.T) {
	base, err := Defaults()
	require.NoError(t, err)

	tests := []struct {
		dbType string
		want   types.ConnectionParams
	}{
		{
			dbType: "sqlite",
			want:   types.ConnectionParams{Path: "./data/app.db"},
		},
		{
			dbType: "postgresql",
			want:   types.ConnectionParams{Host: "localhost", Port: 5432, Database: "pyreact_fusion", User: "postgres", Password: "postgres", SSLMode: "disable"},
		},
		{
			dbType: "MySQL",
			want:   types.ConnectionParams{Host: "localhost", Port: 3306, Database: "pyreact_fusion", User: "root", Password: "root"},
		},
		{
			dbType: "mongodb",
			want:   types.ConnectionParams{Host: "localhost", Port: 27017, Database: "pyreact_fusion"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			s := *base
			s.DatabaseType = tt.dbType

			cfg, err := s.DatabaseConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Params)
			assert.Equal(t, types.DefaultPoolConfig(), cfg.Pool)
		})
	}

	t.Run("missing credentials", func(t *testing.T) {
		s := *base
		s.DatabaseType = "postgresql"
		s.PostgresPassword = ""
		_, err := s.DatabaseConfig()
		assert.ErrorIs(t, err, types.ErrParamMissing)
	})
}

func TestWriteDefault(t *testing.T) {
	isolate(t)
	dir := filepath.Join(t.TempDir(), "nested", ".fusion")

	written, err := WriteDefault(dir)
	require.NoError(t, err)
	assert.True(t, written)

	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "database_type: sqlite")
	assert.Contains(t, string(data), "port: 8000")

	written, err = WriteDefault(dir)
	require.NoError(t, err)
	assert.False(t, written, "existing file must not be rewritten")

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 8000, s.Port)
}
