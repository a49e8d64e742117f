// Command tonearmd runs the tonearm audio analysis daemon.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"tonearm/internal/config"
	"tonearm/internal/daemonrun"
	"tonearm/internal/version"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tonearmd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath  string
		logLevel    string
		development bool
		port        int
		modelsDir   string
	)

	cmd := &cobra.Command{
		Use:           "tonearmd",
		Short:         "Run the tonearm analysis daemon",
		Long:          "tonearmd hosts the audio analysis pipeline behind a local HTTP API.",
		Version:       version.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, exists, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !exists {
				fmt.Fprintf(cmd.ErrOrStderr(), "no config file at %s, running with defaults\n", path)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Bind = bindWithPort(cfg.Server.Bind, port)
			}
			if modelsDir != "" {
				expanded, err := config.ExpandPath(modelsDir)
				if err != nil {
					return fmt.Errorf("resolve models dir: %w", err)
				}
				cfg.Paths.ModelsDir = expanded
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("prepare directories: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ~/.config/tonearm/config.toml)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override configured log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "dev", false, "Log in human-readable console format")
	cmd.Flags().IntVar(&port, "port", 0, "Override the configured API listen port")
	cmd.Flags().StringVar(&modelsDir, "models-dir", "", "Override the configured models directory")
	return cmd
}

// bindWithPort swaps the port in a host:port bind address, defaulting the
// host to loopback when the configured bind is empty or malformed.
func bindWithPort(bind string, port int) string {
	host, _, err := net.SplitHostPort(bind)
	if err != nil || host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
