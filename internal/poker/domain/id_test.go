package domain

import (
	"strings"
	"testing"
)

func TestNewIDFormat(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(id) != 26 {
		t.Fatalf("expected 26 characters, got %d (%q)", len(id), id)
	}
	if id != strings.ToLower(id) {
		t.Fatalf("expected lowercase id, got %q", id)
	}
	if strings.ContainsAny(id, "=/+ ") {
		t.Fatalf("expected URL-safe id, got %q", id)
	}
}

func TestNewSessionIDFormat(t *testing.T) {
	id, err := NewSessionID()
	if err != nil {
		t.Fatalf("new session id: %v", err)
	}
	if len(id) != 10 {
		t.Fatalf("expected 10 characters, got %d (%q)", len(id), id)
	}
	if id != strings.ToLower(id) {
		t.Fatalf("expected lowercase id, got %q", id)
	}
}

func TestNewSessionIDUniqueSample(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("new session id: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate session id %q in sample", id)
		}
		seen[id] = struct{}{}
	}
}
