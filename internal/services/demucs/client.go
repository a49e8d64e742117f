package demucs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

const errTailLines = 20

// ProgressUpdate captures separation progress parsed from demucs output.
type ProgressUpdate struct {
	Percent float64
}

// Separation holds the absolute stem paths produced by a run. Stems demucs
// did not emit are empty strings.
type Separation struct {
	Vocals string
	Drums  string
	Bass   string
	Other  string
}

// Separator defines stem separation behaviour.
type Separator interface {
	Separate(ctx context.Context, audioPath, outputDir string, useGPU bool, progress func(ProgressUpdate)) (Separation, error)
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

// WithModel overrides the default separation model.
func WithModel(model string) Option {
	return func(c *CLI) {
		if model != "" {
			c.model = model
		}
	}
}

// CLI wraps the demucs command-line separator.
type CLI struct {
	binary string
	model  string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "demucs", model: "htdemucs"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Model returns the configured separation model name for logging.
func (c *CLI) Model() string {
	return c.model
}

var percentPattern = regexp.MustCompile(`(\d{1,3})%\|`)

// Separate launches demucs against the audio file and returns the stem paths
// it produced under outputDir.
func (c *CLI) Separate(ctx context.Context, audioPath, outputDir string, useGPU bool, progress func(ProgressUpdate)) (Separation, error) {
	var sep Separation
	if audioPath == "" {
		return sep, errors.New("audio path required")
	}
	cleanOutputDir := strings.TrimSpace(outputDir)
	if cleanOutputDir == "" {
		return sep, errors.New("output directory required")
	}
	if err := os.MkdirAll(cleanOutputDir, 0o755); err != nil {
		return sep, fmt.Errorf("ensure output dir: %w", err)
	}

	args := []string{"-n", c.model, "-o", cleanOutputDir}
	if !useGPU {
		args = append(args, "--device", "cpu")
	}
	args = append(args, audioPath)

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return sep, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return sep, fmt.Errorf("start demucs: %w", err)
	}

	var tail []string
	scanner := bufio.NewScanner(stdout)
	scanner.Split(scanProgressTokens)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if match := percentPattern.FindStringSubmatch(line); match != nil {
			if progress != nil {
				percent, _ := strconv.ParseFloat(match[1], 64)
				progress(ProgressUpdate{Percent: percent})
			}
			continue
		}
		tail = append(tail, line)
		if len(tail) > errTailLines {
			tail = tail[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return sep, fmt.Errorf("read demucs output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		if len(tail) > 0 {
			return sep, fmt.Errorf("demucs failed: %w: %s", err, strings.Join(tail, " | "))
		}
		return sep, fmt.Errorf("demucs failed: %w", err)
	}

	base := filepath.Base(audioPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	stemsBase := filepath.Join(cleanOutputDir, c.model, stem)
	sep.Vocals = probeStem(stemsBase, "vocals")
	sep.Drums = probeStem(stemsBase, "drums")
	sep.Bass = probeStem(stemsBase, "bass")
	sep.Other = probeStem(stemsBase, "other")
	return sep, nil
}

func probeStem(stemsBase, name string) string {
	path := filepath.Join(stemsBase, name+".wav")
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return ""
}

// scanProgressTokens splits on both newlines and carriage returns so
// tqdm-style progress updates surface as individual tokens.
func scanProgressTokens(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ Separator = (*CLI)(nil)
