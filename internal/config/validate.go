package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ModelsDir == "" {
		return errors.New("paths.models_dir is required")
	}
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir is required")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir is required")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir is required")
	}
	return nil
}

func (c *Config) validateServer() error {
	host, port, err := net.SplitHostPort(c.Server.Bind)
	if err != nil {
		return fmt.Errorf("server.bind %q must be host:port: %w", c.Server.Bind, err)
	}
	if host == "" {
		return fmt.Errorf("server.bind %q must include a host", c.Server.Bind)
	}
	number, err := strconv.Atoi(port)
	if err != nil || number < 1 || number > 65535 {
		return fmt.Errorf("server.bind %q must use a port between 1 and 65535", c.Server.Bind)
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.DemucsBinary == "" {
		return errors.New("tools.demucs_binary is required")
	}
	if c.Tools.DemucsModel == "" {
		return errors.New("tools.demucs_model is required")
	}
	if c.Tools.AnalyzerBinary == "" {
		return errors.New("tools.analyzer_binary is required")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.SeparationTimeout <= 0 {
		return errors.New("pipeline.separation_timeout must be greater than zero")
	}
	if c.Pipeline.EventBuffer <= 0 {
		return errors.New("pipeline.event_buffer must be greater than zero")
	}
	if c.Pipeline.HistoryLimit <= 0 {
		return errors.New("pipeline.history_limit must be greater than zero")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	return nil
}
