package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var commandContext = exec.CommandContext

// RunOptions carries optional analyzer invocation settings.
type RunOptions struct {
	ModelsDir string
	UseGPU    bool
}

// Client runs one analyzer toolkit stage per invocation and returns the JSON
// document the stage printed on stdout.
type Client interface {
	Run(ctx context.Context, stage, inputPath string, opts RunOptions) (json.RawMessage, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the analyzer toolkit command line.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "tonearm-analyzer"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Run executes one analyzer stage against the input file. Stage output is a
// single JSON document on stdout; diagnostics go to stderr.
func (c *CLI) Run(ctx context.Context, stage, inputPath string, opts RunOptions) (json.RawMessage, error) {
	if stage == "" {
		return nil, errors.New("stage name required")
	}
	if inputPath == "" {
		return nil, errors.New("input path required")
	}

	args := []string{stage, "--input", inputPath}
	if opts.ModelsDir != "" {
		args = append(args, "--models-dir", opts.ModelsDir)
	}
	if opts.UseGPU {
		args = append(args, "--gpu")
	}

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if detail := diagnosticTail(stderr.String()); detail != "" {
			return nil, fmt.Errorf("analyzer %s failed: %w: %s", stage, err, detail)
		}
		return nil, fmt.Errorf("analyzer %s failed: %w", stage, err)
	}

	payload := bytes.TrimSpace(stdout.Bytes())
	if len(payload) == 0 {
		return nil, fmt.Errorf("analyzer %s produced no output", stage)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("analyzer %s emitted invalid JSON", stage)
	}
	return json.RawMessage(payload), nil
}

const diagnosticTailLines = 10

func diagnosticTail(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	if len(kept) > diagnosticTailLines {
		kept = kept[len(kept)-diagnosticTailLines:]
	}
	return strings.Join(kept, " | ")
}

var _ Client = (*CLI)(nil)
