package prompt

import (
	"errors"
	"strings"
	"testing"
)

func TestResolve_KnownKind(t *testing.T) {
	r := NewRegistry("product")

	tpl, used, err := r.Resolve("article")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != "article" {
		t.Errorf("expected used kind article, got %s", used)
	}
	if !strings.Contains(tpl, "article page screenshot") {
		t.Errorf("unexpected template content: %q", tpl[:60])
	}
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	r := NewRegistry("product")

	tpl, used, err := r.Resolve("no-such-kind")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != "product" {
		t.Errorf("expected fallback to product, got %s", used)
	}
	if !strings.Contains(tpl, "product page screenshot") {
		t.Error("expected the product template")
	}
}

func TestResolve_NoDefault(t *testing.T) {
	r := NewRegistry("also-missing")
	// Remove all builtins by shadowing with a registry that has an
	// unregistered default, then ask for another unregistered kind.
	_, _, err := r.Resolve("no-such-kind")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegister_Overrides(t *testing.T) {
	r := NewRegistry("product")
	r.Register("product", "custom instruction")

	tpl, _, err := r.Resolve("product")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl != "custom instruction" {
		t.Errorf("expected the registered override, got %q", tpl)
	}
}
