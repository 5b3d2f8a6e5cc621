package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrPortConflict reports that two listeners were configured on the same port.
var ErrPortConflict = errors.New("port conflict")

var portRule = []validation.Rule{validation.Required, validation.Min(1), validation.Max(65535)}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFields(); err != nil {
		return err
	}
	if err := c.validatePorts(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFields() error {
	return validation.Errors{
		"server.interface":               validation.Validate(c.Server.Interface, validation.Required),
		"server.port":                    validation.Validate(c.Server.Port, portRule...),
		"server.api_bind":                validation.Validate(c.Server.APIBind, validation.By(hostPort)),
		"engine.agent_command":           validation.Validate(c.Engine.AgentCommand, validation.Required),
		"engine.executable":              validation.Validate(c.Engine.Executable, validation.Required),
		"engine.interface":               validation.Validate(c.Engine.Interface, validation.Required),
		"engine.port":                    validation.Validate(c.Engine.Port, portRule...),
		"engine.connect_timeout_seconds": validation.Validate(c.Engine.ConnectTimeoutSeconds, validation.Required, validation.Min(1)),
		"engine.connect_interval_millis": validation.Validate(c.Engine.ConnectIntervalMillis, validation.Required, validation.Min(1)),
		"engine.stop_grace_seconds":      validation.Validate(c.Engine.StopGraceSeconds, validation.Required, validation.Min(1)),
		"paths.state_dir":                validation.Validate(c.Paths.StateDir, validation.Required),
		"logging.format":                 validation.Validate(c.Logging.Format, validation.In("console", "json")),
		"logging.level":                  validation.Validate(c.Logging.Level, validation.In("debug", "info", "warn", "error")),
	}.Filter()
}

// validatePorts rejects configurations where the gateway would listen on the
// engine's bridge port.
func (c *Config) validatePorts() error {
	if c.Server.Port == c.Engine.Port {
		return fmt.Errorf("%w: server.port and engine.port must differ (both %d)", ErrPortConflict, c.Engine.Port)
	}
	if c.Server.APIBind == "" {
		return nil
	}
	port, err := bindPort(c.Server.APIBind)
	if err != nil {
		return fmt.Errorf("server.api_bind: %w", err)
	}
	if port == c.Engine.Port {
		return fmt.Errorf("%w: server.api_bind and engine.port must differ (both %d)", ErrPortConflict, port)
	}
	if port == c.Server.Port {
		return fmt.Errorf("%w: server.api_bind and server.port must differ (both %d)", ErrPortConflict, port)
	}
	return nil
}

func hostPort(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := bindPort(s)
	return err
}

func bindPort(bind string) (int, error) {
	_, portText, err := net.SplitHostPort(bind)
	if err != nil {
		return 0, fmt.Errorf("must be host:port: %w", err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", portText)
	}
	return port, nil
}
