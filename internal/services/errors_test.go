package services_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "launch", "submit", "failed", base)
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
	for _, fragment := range []string{"launch", "submit", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "clip", "trim", "ffmpeg exited", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", services.Wrap(services.ErrValidation, "deliver", "phone", "invalid", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "launch", "key", "missing", nil), false},
		{"not found", services.Wrap(services.ErrNotFound, "deliver", "lead", "missing", nil), false},
		{"external", services.Wrap(services.ErrExternalTool, "clip", "mix", "exit 1", nil), true},
		{"transient", services.Wrap(services.ErrTransient, "lyrics", "generate", "empty", nil), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
