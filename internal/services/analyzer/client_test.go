package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/tonearm-analyzer"))
	if cli.binary != "/opt/tonearm-analyzer" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestRunRequiresStageAndInput(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Run(context.Background(), "", "/music/track.wav", RunOptions{}); err == nil {
		t.Fatal("expected error when stage is empty")
	}
	if _, err := cli.Run(context.Background(), "beats", "", RunOptions{}); err == nil {
		t.Fatal("expected error when input path is empty")
	}
}

func TestRunBuildsArgs(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "ANALYZER_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	cli := NewCLI()
	opts := RunOptions{ModelsDir: "/models", UseGPU: true}
	if _, err := cli.Run(context.Background(), "beats", "/music/track.wav", opts); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"beats", "--input", "/music/track.wav", "--models-dir", "/models", "--gpu"}
	if len(capturedArgs) != len(want) {
		t.Fatalf("unexpected args: %v", capturedArgs)
	}
	for i := range want {
		if capturedArgs[i] != want[i] {
			t.Fatalf("arg %d: got %q want %q (full args %v)", i, capturedArgs[i], want[i], capturedArgs)
		}
	}
}

func TestRunReturnsStageDocument(t *testing.T) {
	setHelperCommand(t, "success")

	cli := NewCLI()
	payload, err := cli.Run(context.Background(), "beats", "/music/track.wav", RunOptions{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var doc struct {
		Tempo float64 `json:"tempo"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if doc.Tempo != 120.5 {
		t.Fatalf("unexpected tempo: %f", doc.Tempo)
	}
}

func TestRunFailureIncludesStderr(t *testing.T) {
	setHelperCommand(t, "failure")

	cli := NewCLI()
	_, err := cli.Run(context.Background(), "mood", "/music/track.wav", RunOptions{})
	if err == nil {
		t.Fatal("expected analyzer failure error")
	}
	if !strings.Contains(err.Error(), "model weights not found") {
		t.Fatalf("expected error to carry stderr detail, got %v", err)
	}
}

func TestRunRejectsInvalidJSON(t *testing.T) {
	setHelperCommand(t, "badjson")

	cli := NewCLI()
	if _, err := cli.Run(context.Background(), "harmony", "/music/track.wav", RunOptions{}); err == nil {
		t.Fatal("expected error for invalid JSON output")
	}
}

func TestRunRejectsEmptyOutput(t *testing.T) {
	setHelperCommand(t, "empty")

	cli := NewCLI()
	if _, err := cli.Run(context.Background(), "pitch", "/music/track.wav", RunOptions{}); err == nil {
		t.Fatal("expected error for empty output")
	}
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("ANALYZER_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("ANALYZER_HELPER_MODE") {
	case "success":
		fmt.Fprintln(os.Stderr, "loading model weights")
		fmt.Println(`{"beats":[0.5,1.0],"tempo":120.5}`)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "model weights not found")
		os.Exit(1)
	case "badjson":
		fmt.Println("tempo: 120")
		os.Exit(0)
	case "empty":
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
