package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// AppAuthor identifies the application author.
type AppAuthor struct {
	Name   string `mapstructure:"name" json:"name"`
	Email  string `mapstructure:"email" json:"email"`
	GitHub string `mapstructure:"github" json:"github"`
}

// AppInfo describes the application in health responses and the CLI.
type AppInfo struct {
	Name        string    `mapstructure:"name" json:"name"`
	Description string    `mapstructure:"description" json:"description"`
	Version     string    `mapstructure:"version" json:"version"`
	Author      AppAuthor `mapstructure:"author" json:"author"`
}

// AppConfig is the content of app_config.json. Pointer fields are nil when
// the file leaves them out.
type AppConfig struct {
	App      *AppInfo `mapstructure:"app"`
	Mode     string   `mapstructure:"mode"`
	Database *struct {
		Type string `mapstructure:"type"`
	} `mapstructure:"database"`
	Server *struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`
}

// DefaultAppInfo is used when app_config.json has no app section.
func DefaultAppInfo() AppInfo {
	return AppInfo{
		Name:        "PyReact Fusion",
		Description: "A production-ready full-stack application template",
		Version:     "1.0.0",
		Author: AppAuthor{
			Name:   "Sofiane Khoudour",
			Email:  "khoudoursofiane75@gmail.com",
			GitHub: "https://github.com/skmercur",
		},
	}
}

// LoadAppConfig reads app_config.json. A missing file yields (nil, nil).
func LoadAppConfig(path string) (*AppConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var ac AppConfig
	if err := v.Unmarshal(&ac); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &ac, nil
}

func (s *Settings) applyAppConfig(ac *AppConfig) {
	s.App = DefaultAppInfo()
	s.Mode = ModeWeb
	if ac == nil {
		return
	}

	if ac.App != nil {
		s.App = *ac.App
	}
	if ac.Mode != "" {
		s.Mode = ac.Mode
	}
	if ac.Database != nil && ac.Database.Type != "" {
		s.DatabaseType = ac.Database.Type
	}
	if ac.Server != nil {
		if ac.Server.Host != "" {
			s.Host = ac.Server.Host
		}
		if ac.Server.Port != 0 {
			s.Port = ac.Server.Port
		}
	}
}
