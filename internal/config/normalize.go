package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	envEngineAgent      = "DOCGATE_ENGINE_AGENT"
	envEngineExecutable = "DOCGATE_ENGINE_EXECUTABLE"
	envAPIToken         = "DOCGATE_API_TOKEN"
)

func (c *Config) normalize() error {
	c.normalizeServer()
	if err := c.normalizeEngine(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	if c.Journal.RetentionDays < 0 {
		c.Journal.RetentionDays = 0
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Interface = strings.TrimSpace(c.Server.Interface)
	if c.Server.Interface == "" {
		c.Server.Interface = defaultServerInterface
	}
	c.Server.APIBind = strings.TrimSpace(c.Server.APIBind)
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.APIToken == "" {
		if value, ok := os.LookupEnv(envAPIToken); ok {
			c.Server.APIToken = strings.TrimSpace(value)
		}
	}
	origins := make([]string, 0, len(c.Server.CORSOrigins))
	for _, origin := range c.Server.CORSOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Server.CORSOrigins = origins
}

func (c *Config) normalizeEngine() error {
	var err error
	if c.Engine.AgentCommand, err = normalizeCommand(c.Engine.AgentCommand, envEngineAgent, defaultEngineAgent); err != nil {
		return fmt.Errorf("engine.agent_command: %w", err)
	}
	if c.Engine.Executable, err = normalizeCommand(c.Engine.Executable, envEngineExecutable, defaultEngineExecutable); err != nil {
		return fmt.Errorf("engine.executable: %w", err)
	}
	args := make([]string, 0, len(c.Engine.AgentArgs))
	for _, arg := range c.Engine.AgentArgs {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Engine.AgentArgs = args
	c.Engine.Interface = strings.TrimSpace(c.Engine.Interface)
	if c.Engine.Interface == "" {
		c.Engine.Interface = defaultEngineInterface
	}
	if c.Engine.ProfileDir, err = expandPath(strings.TrimSpace(c.Engine.ProfileDir)); err != nil {
		return fmt.Errorf("engine.profile_dir: %w", err)
	}
	if c.Engine.PIDFile, err = expandPath(strings.TrimSpace(c.Engine.PIDFile)); err != nil {
		return fmt.Errorf("engine.pid_file: %w", err)
	}
	return nil
}

// normalizeCommand applies the env override and default, and expands values
// that look like paths. Bare names are left for PATH lookup.
func normalizeCommand(value, envKey, fallback string) (string, error) {
	if env, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(env) != "" {
		value = env
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	if strings.ContainsRune(value, '/') || strings.HasPrefix(value, "~") {
		return expandPath(value)
	}
	return value, nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
