package services_test

import (
	"errors"
	"strings"
	"testing"

	"tonearm/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "stems", "separate", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"stems", "separate", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "beats", "decode", "bad payload", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestCategoryMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", services.Wrap(services.ErrValidation, "plan", "features", "unknown stage", nil), "validation"},
		{"timeout", services.Wrap(services.ErrTimeout, "stems", "separate", "deadline", nil), "timeout"},
		{"external tool", services.Wrap(services.ErrExternalTool, "lyrics", "transcribe", "exit 1", nil), "external_tool"},
		{"configuration", services.Wrap(services.ErrConfiguration, "", "load", "bad toml", nil), "configuration"},
		{"not found", services.Wrap(services.ErrNotFound, "", "stat", "missing", nil), "not_found"},
		{"plain error", errors.New("io"), "transient"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.Category(tt.err); got != tt.want {
				t.Fatalf("Category = %q, want %q", got, tt.want)
			}
		})
	}
}
