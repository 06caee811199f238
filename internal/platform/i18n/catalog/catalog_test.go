package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmbeddedHasExpectedLocales(t *testing.T) {
	bundle, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("load embedded catalogs: %v", err)
	}
	if !bundle.HasLocale(BaseLocale) {
		t.Fatalf("expected base locale %s", BaseLocale)
	}
	if !bundle.HasLocale("pt-BR") {
		t.Fatalf("expected locale pt-BR")
	}

	if got := len(bundle.LocaleMessages("en-US")); got == 0 {
		t.Fatalf("expected en-US messages")
	}
	if got := len(bundle.NamespaceMessages("en-US", "errors")); got == 0 {
		t.Fatalf("expected en-US errors namespace messages")
	}
}

func TestLoadFromFSRejectsLocaleMismatch(t *testing.T) {
	tempDir := t.TempDir()
	mustWriteFile(t, filepath.Join(tempDir, "locales/en-US/poker.yaml"), `locale: "pt-BR"
namespace: "poker"
messages:
  "a.key": "a"
`)

	if _, err := LoadFromFS(os.DirFS(tempDir)); err == nil {
		t.Fatal("expected locale mismatch error")
	}
}

func TestLoadFromFSRejectsDuplicateKeysAcrossNamespaces(t *testing.T) {
	tempDir := t.TempDir()
	mustWriteFile(t, filepath.Join(tempDir, "locales/en-US/errors.yaml"), `locale: "en-US"
namespace: "errors"
messages:
  "a.key": "a"
`)
	mustWriteFile(t, filepath.Join(tempDir, "locales/en-US/poker.yaml"), `locale: "en-US"
namespace: "poker"
messages:
  "a.key": "b"
`)

	if _, err := LoadFromFS(os.DirFS(tempDir)); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestMessageFallsBackToBaseLocale(t *testing.T) {
	bundle, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("load embedded catalogs: %v", err)
	}
	value, ok := bundle.Message("fr-FR", "NOT_FOUND")
	if !ok {
		t.Fatal("expected base-locale fallback for NOT_FOUND")
	}
	if value == "" {
		t.Fatal("expected non-empty fallback message")
	}
}

func TestNamespaceMessagesWithFallback(t *testing.T) {
	bundle, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("load embedded catalogs: %v", err)
	}
	resolved, messages := bundle.NamespaceMessagesWithFallback("fr-FR", "errors")
	if resolved != "en-US" {
		t.Fatalf("resolved locale = %q, want en-US", resolved)
	}
	if len(messages) == 0 {
		t.Fatal("expected fallback errors namespace messages")
	}
}

func mustWriteFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
