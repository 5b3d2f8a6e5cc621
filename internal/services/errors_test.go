package services_test

import (
	"errors"
	"strings"
	"testing"

	"docgate/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrEngineUnavailable, "bridge", "dial", "engine not listening", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrEngineUnavailable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"bridge", "dial", "engine not listening"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrEngine) {
		t.Fatalf("expected default engine marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	if !services.IsFatal(services.Wrap(services.ErrConfiguration, "supervisor", "start", "executable missing", nil)) {
		t.Fatal("configuration errors must be fatal")
	}
	if services.IsFatal(services.Wrap(services.ErrEngine, "convert", "export", "", errors.New("io"))) {
		t.Fatal("engine errors must not be fatal")
	}
	if services.IsFatal(nil) {
		t.Fatal("nil is not fatal")
	}
}
