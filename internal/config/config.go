package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the gateway's own listeners.
type Server struct {
	Interface   string   `toml:"interface"`
	Port        int      `toml:"port"`
	APIBind     string   `toml:"api_bind"`
	APIToken    string   `toml:"api_token"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Engine contains the document engine launch and bridge settings.
type Engine struct {
	// AgentCommand serves the bridge protocol and drives the office process.
	AgentCommand          string   `toml:"agent_command"`
	AgentArgs             []string `toml:"agent_args"`
	Executable            string   `toml:"executable"`
	Interface             string   `toml:"interface"`
	Port                  int      `toml:"port"`
	ProfileDir            string   `toml:"profile_dir"`
	PIDFile               string   `toml:"pid_file"`
	ConnectTimeoutSeconds int      `toml:"connect_timeout_seconds"`
	ConnectIntervalMillis int      `toml:"connect_interval_millis"`
	StopGraceSeconds      int      `toml:"stop_grace_seconds"`
}

// Conversion contains per-request defaults.
type Conversion struct {
	UpdateIndexDefault bool `toml:"update_index_default"`
}

// Paths contains state and log directories.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Journal contains conversion history settings.
type Journal struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for docgate.
//
// Configuration sections by subsystem:
//   - Server: JSON-RPC listener, optional HTTP API, auth token, CORS
//   - Engine: executable, bridge address, profile and PID locations, timings
//   - Conversion: request defaults
//   - Paths: state and log directories
//   - Journal: conversion history retention
//   - Logging: log format and level
type Config struct {
	Server     Server     `toml:"server"`
	Engine     Engine     `toml:"engine"`
	Conversion Conversion `toml:"conversion"`
	Paths      Paths      `toml:"paths"`
	Journal    Journal    `toml:"journal"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("docgate.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir}
	if c.Engine.ProfileDir != "" {
		dirs = append(dirs, c.Engine.ProfileDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RPCAddress is the host:port the JSON-RPC gateway listens on.
func (c *Config) RPCAddress() string {
	return net.JoinHostPort(c.Server.Interface, strconv.Itoa(c.Server.Port))
}

// EngineAddress is the host:port of the engine bridge listener.
func (c *Config) EngineAddress() string {
	return net.JoinHostPort(c.Engine.Interface, strconv.Itoa(c.Engine.Port))
}

// JournalPath is the location of the conversion journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// LockPath is the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "docgate.lock")
}

// ServicePIDPath is where the running gateway records its own PID.
func (c *Config) ServicePIDPath() string {
	return filepath.Join(c.Paths.StateDir, "docgate.pid")
}

// LogPath is the gateway's log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "docgate.log")
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Engine.ConnectTimeoutSeconds) * time.Second
}

func (c *Config) ConnectInterval() time.Duration {
	return time.Duration(c.Engine.ConnectIntervalMillis) * time.Millisecond
}

func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Engine.StopGraceSeconds) * time.Second
}

// JournalRetention is how long journal rows are kept; zero keeps them forever.
func (c *Config) JournalRetention() time.Duration {
	return time.Duration(c.Journal.RetentionDays) * 24 * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders cfg as TOML.
func Encode(cfg *Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
