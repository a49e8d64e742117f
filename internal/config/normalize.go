package config

import (
	"os"
	"strings"
)

// normalize applies path expansion, trimming, environment fallbacks, and
// defaulting ahead of validation.
func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeTools()
	c.normalizePipeline()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ModelsDir, err = expandPath(strings.TrimSpace(c.Paths.ModelsDir)); err != nil {
		return err
	}
	if c.Paths.DataDir, err = expandPath(strings.TrimSpace(c.Paths.DataDir)); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return err
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	if c.Server.ShutdownDelayMS < 0 {
		c.Server.ShutdownDelayMS = 0
	}
	if c.Server.ShutdownGraceSeconds <= 0 {
		c.Server.ShutdownGraceSeconds = defaultShutdownGraceSeconds
	}
}

func (c *Config) normalizeTools() {
	c.Tools.DemucsBinary = strings.TrimSpace(c.Tools.DemucsBinary)
	if c.Tools.DemucsBinary == "" {
		c.Tools.DemucsBinary = defaultDemucsBinary
	}
	c.Tools.DemucsModel = strings.TrimSpace(c.Tools.DemucsModel)
	if c.Tools.DemucsModel == "" {
		c.Tools.DemucsModel = defaultDemucsModel
	}
	c.Tools.AnalyzerBinary = strings.TrimSpace(c.Tools.AnalyzerBinary)
	if c.Tools.AnalyzerBinary == "" {
		c.Tools.AnalyzerBinary = defaultAnalyzerBinary
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.SeparationTimeout <= 0 {
		c.Pipeline.SeparationTimeout = defaultSeparationTimeout
	}
	if c.Pipeline.EventBuffer <= 0 {
		c.Pipeline.EventBuffer = defaultEventBuffer
	}
	if c.Pipeline.HistoryLimit <= 0 {
		c.Pipeline.HistoryLimit = defaultHistoryLimit
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if topic, ok := os.LookupEnv("TONEARM_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(topic)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
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
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
