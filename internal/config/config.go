// Package config loads fusion settings with Viper. Values come, in rising
// precedence, from built-in defaults, config.yaml in the config directory,
// a .env file in the working directory, and the process environment.
// app_config.json in the config directory then overrides the database type
// and the listen address, and supplies the application info and mode.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/fusion/pkg/types"
)

// File names looked up by Load.
const (
	ConfigFileName    = "config.yaml"
	AppConfigFileName = "app_config.json"
	DotEnvFileName    = ".env"
)

// Environments recognised by IsDevelopment and IsProduction.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Application modes.
const (
	ModeWeb     = "web"
	ModeDesktop = "desktop"
)

// DefaultJWTSecret is the placeholder secret shipped in the defaults.
const DefaultJWTSecret = "your-secret-key-change-in-production"

// Settings is the resolved process configuration. Keys match the
// environment variable names in lower case.
type Settings struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Debug       bool   `mapstructure:"debug" yaml:"debug"`
	AppName     string `mapstructure:"app_name" yaml:"app_name"`
	AppVersion  string `mapstructure:"app_version" yaml:"app_version"`

	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port"`
	APIPrefix string `mapstructure:"api_prefix" yaml:"api_prefix"`

	DatabaseType string `mapstructure:"database_type" yaml:"database_type"`
	SQLiteDBPath string `mapstructure:"sqlite_db_path" yaml:"sqlite_db_path"`

	PostgresHost     string `mapstructure:"postgres_host" yaml:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" yaml:"postgres_port"`
	PostgresDB       string `mapstructure:"postgres_db" yaml:"postgres_db"`
	PostgresUser     string `mapstructure:"postgres_user" yaml:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" yaml:"postgres_password"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" yaml:"postgres_sslmode"`

	MySQLHost     string `mapstructure:"mysql_host" yaml:"mysql_host"`
	MySQLPort     int    `mapstructure:"mysql_port" yaml:"mysql_port"`
	MySQLDB       string `mapstructure:"mysql_db" yaml:"mysql_db"`
	MySQLUser     string `mapstructure:"mysql_user" yaml:"mysql_user"`
	MySQLPassword string `mapstructure:"mysql_password" yaml:"mysql_password"`

	MongoDBHost     string `mapstructure:"mongodb_host" yaml:"mongodb_host"`
	MongoDBPort     int    `mapstructure:"mongodb_port" yaml:"mongodb_port"`
	MongoDBDB       string `mapstructure:"mongodb_db" yaml:"mongodb_db"`
	MongoDBUser     string `mapstructure:"mongodb_user" yaml:"mongodb_user"`
	MongoDBPassword string `mapstructure:"mongodb_password" yaml:"mongodb_password"`

	DBPoolSize    int `mapstructure:"db_pool_size" yaml:"db_pool_size"`
	DBMaxOverflow int `mapstructure:"db_max_overflow" yaml:"db_max_overflow"`
	// DBPoolTimeout is in seconds.
	DBPoolTimeout int  `mapstructure:"db_pool_timeout" yaml:"db_pool_timeout"`
	DBPoolPrePing bool `mapstructure:"db_pool_pre_ping" yaml:"db_pool_pre_ping"`

	JWTSecretKey                string `mapstructure:"jwt_secret_key" yaml:"jwt_secret_key"`
	JWTAlgorithm                string `mapstructure:"jwt_algorithm" yaml:"jwt_algorithm"`
	JWTAccessTokenExpireMinutes int    `mapstructure:"jwt_access_token_expire_minutes" yaml:"jwt_access_token_expire_minutes"`

	CORSOrigins       string `mapstructure:"cors_origins" yaml:"cors_origins"`
	FrontendBuildPath string `mapstructure:"frontend_build_path" yaml:"frontend_build_path"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`

	// App and Mode come from app_config.json only.
	App  AppInfo `mapstructure:"-" yaml:"-"`
	Mode string  `mapstructure:"-" yaml:"-"`

	// ConfigDir is the directory the settings were loaded from.
	ConfigDir string `mapstructure:"-" yaml:"-"`
}

// defaults mirrors the settings a fresh checkout runs with.
var defaults = map[string]any{
	"environment": EnvDevelopment,
	"debug":       true,
	"app_name":    "PyReact Fusion",
	"app_version": "1.0.0",

	"host":       "0.0.0.0",
	"port":       8000,
	"api_prefix": "/api",

	"database_type":  string(types.BackendSQLite),
	"sqlite_db_path": "./data/app.db",

	"postgres_host":     "localhost",
	"postgres_port":     5432,
	"postgres_db":       "pyreact_fusion",
	"postgres_user":     "postgres",
	"postgres_password": "postgres",
	"postgres_sslmode":  "disable",

	"mysql_host":     "localhost",
	"mysql_port":     3306,
	"mysql_db":       "pyreact_fusion",
	"mysql_user":     "root",
	"mysql_password": "root",

	"mongodb_host":     "localhost",
	"mongodb_port":     27017,
	"mongodb_db":       "pyreact_fusion",
	"mongodb_user":     "",
	"mongodb_password": "",

	"db_pool_size":     types.DefaultPoolSize,
	"db_max_overflow":  types.DefaultPoolOverflow,
	"db_pool_timeout":  int(types.DefaultPoolTimeout / time.Second),
	"db_pool_pre_ping": true,

	"jwt_secret_key":                  DefaultJWTSecret,
	"jwt_algorithm":                   "HS256",
	"jwt_access_token_expire_minutes": 30,

	"cors_origins":        "http://localhost:3000,http://localhost:5173,http://localhost:8000",
	"frontend_build_path": "./frontend/dist",

	"log_level": "INFO",
	"log_file":  "./logs/app.log",
}

// Load resolves settings for configDir. Missing config.yaml, .env and
// app_config.json files are not errors.
func Load(configDir string) (*Settings, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
		// Unmarshal only sees environment overrides for bound keys.
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := mergeDotEnv(v, DotEnvFileName); err != nil {
		return nil, err
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	s.ConfigDir = configDir

	app, err := LoadAppConfig(filepath.Join(configDir, AppConfigFileName))
	if err != nil {
		return nil, err
	}
	s.applyAppConfig(app)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// mergeDotEnv layers a dotenv file over config.yaml. Process environment
// variables still win because viper consults them first.
func mergeDotEnv(v *viper.Viper, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	v.SetConfigType("env")
	if err := v.MergeConfig(f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// Validate checks values that cannot be fixed up later.
func (s *Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", types.ErrConfig, s.Port)
	}
	if !strings.HasPrefix(s.APIPrefix, "/") {
		return fmt.Errorf("%w: api_prefix %q must start with '/'", types.ErrConfig, s.APIPrefix)
	}
	if s.JWTAccessTokenExpireMinutes <= 0 {
		return fmt.Errorf("%w: jwt_access_token_expire_minutes must be positive", types.ErrConfig)
	}
	if _, err := types.ParseBackendKind(s.DatabaseType); err != nil {
		return err
	}
	return nil
}

// DatabaseConfig returns the engine configuration for the selected backend.
func (s *Settings) DatabaseConfig() (types.Config, error) {
	kind, err := types.ParseBackendKind(s.DatabaseType)
	if err != nil {
		return types.Config{}, err
	}

	cfg := types.Config{
		Backend: kind,
		Pool: types.PoolConfig{
			Size:     s.DBPoolSize,
			Overflow: s.DBMaxOverflow,
			Timeout:  time.Duration(s.DBPoolTimeout) * time.Second,
			PrePing:  s.DBPoolPrePing,
		},
		Debug: s.Debug,
	}

	switch kind {
	case types.BackendSQLite:
		cfg.Params = types.ConnectionParams{Path: s.SQLiteDBPath}
	case types.BackendPostgres:
		cfg.Params = types.ConnectionParams{
			Host:     s.PostgresHost,
			Port:     s.PostgresPort,
			Database: s.PostgresDB,
			User:     s.PostgresUser,
			Password: s.PostgresPassword,
			SSLMode:  s.PostgresSSLMode,
		}
	case types.BackendMySQL:
		cfg.Params = types.ConnectionParams{
			Host:     s.MySQLHost,
			Port:     s.MySQLPort,
			Database: s.MySQLDB,
			User:     s.MySQLUser,
			Password: s.MySQLPassword,
		}
	case types.BackendMongo:
		cfg.Params = types.ConnectionParams{
			Host:     s.MongoDBHost,
			Port:     s.MongoDBPort,
			Database: s.MongoDBDB,
			User:     s.MongoDBUser,
			Password: s.MongoDBPassword,
		}
	}

	if err := cfg.Validate(); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

// CORSOriginList splits CORSOrigins on commas.
func (s *Settings) CORSOriginList() []string {
	var out []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// AccessTokenTTL returns the configured token lifetime.
func (s *Settings) AccessTokenTTL() time.Duration {
	return time.Duration(s.JWTAccessTokenExpireMinutes) * time.Minute
}

// Addr returns the listen address.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *Settings) IsDevelopment() bool { return strings.EqualFold(s.Environment, EnvDevelopment) }

func (s *Settings) IsProduction() bool { return strings.EqualFold(s.Environment, EnvProduction) }

// InsecureSecret reports whether the shipped placeholder JWT secret is in use.
func (s *Settings) InsecureSecret() bool { return s.JWTSecretKey == DefaultJWTSecret }
