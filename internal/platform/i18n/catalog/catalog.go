// Package catalog loads embedded locale message catalogs and registers them
// with golang.org/x/text.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// BaseLocale is the canonical source locale for catalogs.
const BaseLocale = "en-US"

type catalogFile struct {
	Locale    string
	Namespace string
	Messages  map[string]string
}

// LocaleCatalog stores all messages for one locale, grouped by namespace.
type LocaleCatalog struct {
	Locale     string
	Namespaces map[string]map[string]string
	Messages   map[string]string
}

// Bundle contains all locale catalogs loaded from disk.
type Bundle struct {
	locales map[string]*LocaleCatalog
}

//go:embed locales/*/*.yaml
var embeddedCatalogFS embed.FS

var defaultBundle = mustLoadAndRegisterEmbedded()

// Default returns the process-wide embedded catalog bundle.
func Default() *Bundle {
	return defaultBundle
}

// LoadEmbedded loads catalog files embedded in this package.
func LoadEmbedded() (*Bundle, error) {
	return LoadFromFS(embeddedCatalogFS)
}

// LoadFromFS loads catalog files from the provided filesystem.
func LoadFromFS(catalogFS fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(catalogFS, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	bundle := &Bundle{locales: map[string]*LocaleCatalog{}}
	for _, path := range paths {
		data, err := fs.ReadFile(catalogFS, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		parsed, err := parseCatalogFile(data)
		if err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		if err := bundle.addFile(path, parsed); err != nil {
			return nil, err
		}
	}

	if !bundle.HasLocale(BaseLocale) {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}
	return bundle, nil
}

func (b *Bundle) addFile(path string, file catalogFile) error {
	localeFromPath := filepath.Base(filepath.Dir(path))
	namespaceFromPath := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if file.Locale != localeFromPath {
		return fmt.Errorf("catalog %s: locale %q must match path locale %q", path, file.Locale, localeFromPath)
	}
	if file.Namespace != namespaceFromPath {
		return fmt.Errorf("catalog %s: namespace %q must match filename namespace %q", path, file.Namespace, namespaceFromPath)
	}

	localeCatalog, ok := b.locales[file.Locale]
	if !ok {
		localeCatalog = &LocaleCatalog{
			Locale:     file.Locale,
			Namespaces: map[string]map[string]string{},
			Messages:   map[string]string{},
		}
		b.locales[file.Locale] = localeCatalog
	}
	if _, exists := localeCatalog.Namespaces[file.Namespace]; exists {
		return fmt.Errorf("catalog %s: namespace %q already defined for locale %q", path, file.Namespace, file.Locale)
	}

	namespaceMessages := make(map[string]string, len(file.Messages))
	for key, value := range file.Messages {
		if _, exists := localeCatalog.Messages[key]; exists {
			return fmt.Errorf("catalog %s: duplicate key %q in locale %q", path, key, file.Locale)
		}
		localeCatalog.Messages[key] = value
		namespaceMessages[key] = value
	}
	localeCatalog.Namespaces[file.Namespace] = namespaceMessages
	return nil
}

// Register registers all catalog messages with x/text/message.
func (b *Bundle) Register() error {
	if b == nil {
		return nil
	}
	for _, locale := range b.Locales() {
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		messages := b.LocaleMessages(locale)
		keys := make([]string, 0, len(messages))
		for key := range messages {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			message.SetString(tag, key, messages[key])
		}
	}
	return nil
}

// HasLocale reports whether the locale exists in this bundle.
func (b *Bundle) HasLocale(locale string) bool {
	if b == nil {
		return false
	}
	_, ok := b.locales[strings.TrimSpace(locale)]
	return ok
}

// Locales returns all available locale identifiers.
func (b *Bundle) Locales() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.locales))
	for locale := range b.locales {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

// LocaleMessages returns an exact locale message map copy.
func (b *Bundle) LocaleMessages(locale string) map[string]string {
	if b == nil {
		return map[string]string{}
	}
	localeCatalog, ok := b.locales[strings.TrimSpace(locale)]
	if !ok || localeCatalog == nil {
		return map[string]string{}
	}
	return copyMap(localeCatalog.Messages)
}

// Message returns one message value with base-locale fallback.
func (b *Bundle) Message(locale string, key string) (string, bool) {
	if b == nil {
		return "", false
	}
	trimmedLocale := strings.TrimSpace(locale)
	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return "", false
	}
	if localeCatalog, ok := b.locales[trimmedLocale]; ok && localeCatalog != nil {
		if value, exists := localeCatalog.Messages[trimmedKey]; exists {
			return value, true
		}
	}
	if trimmedLocale != BaseLocale {
		if localeCatalog, ok := b.locales[BaseLocale]; ok && localeCatalog != nil {
			value, exists := localeCatalog.Messages[trimmedKey]
			return value, exists
		}
	}
	return "", false
}

// NamespaceMessages returns an exact namespace message map copy for a locale.
func (b *Bundle) NamespaceMessages(locale string, namespace string) map[string]string {
	if b == nil {
		return map[string]string{}
	}
	localeCatalog, ok := b.locales[strings.TrimSpace(locale)]
	if !ok || localeCatalog == nil {
		return map[string]string{}
	}
	messages, ok := localeCatalog.Namespaces[strings.TrimSpace(namespace)]
	if !ok {
		return map[string]string{}
	}
	return copyMap(messages)
}

// NamespaceMessagesWithFallback returns namespace messages and the locale that
// satisfied the lookup.
func (b *Bundle) NamespaceMessagesWithFallback(locale string, namespace string) (string, map[string]string) {
	trimmedLocale := strings.TrimSpace(locale)
	trimmedNamespace := strings.TrimSpace(namespace)
	if messages := b.NamespaceMessages(trimmedLocale, trimmedNamespace); len(messages) > 0 {
		return trimmedLocale, messages
	}
	return BaseLocale, b.NamespaceMessages(BaseLocale, trimmedNamespace)
}

func copyMap(source map[string]string) map[string]string {
	out := make(map[string]string, len(source))
	for key, value := range source {
		out[key] = value
	}
	return out
}

func mustLoadAndRegisterEmbedded() *Bundle {
	bundle, err := LoadEmbedded()
	if err != nil {
		panic(err)
	}
	if err := bundle.Register(); err != nil {
		panic(err)
	}
	return bundle
}

// parseCatalogFile reads the restricted catalog format: a "locale" line, a
// "namespace" line, then a "messages:" block of quoted key/value pairs. The
// restriction keeps catalogs dependency-free while staying valid YAML.
func parseCatalogFile(data []byte) (catalogFile, error) {
	out := catalogFile{Messages: map[string]string{}}
	inMessages := false

	for _, rawLine := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "locale:"):
			value, err := strconv.Unquote(strings.TrimSpace(strings.TrimPrefix(line, "locale:")))
			if err != nil {
				return catalogFile{}, fmt.Errorf("parse locale: %w", err)
			}
			out.Locale = value
		case strings.HasPrefix(line, "namespace:"):
			value, err := strconv.Unquote(strings.TrimSpace(strings.TrimPrefix(line, "namespace:")))
			if err != nil {
				return catalogFile{}, fmt.Errorf("parse namespace: %w", err)
			}
			out.Namespace = value
		case line == "messages:":
			inMessages = true
		default:
			if !inMessages {
				return catalogFile{}, fmt.Errorf("unexpected line %q", line)
			}
			key, value, err := parseMessageEntry(line)
			if err != nil {
				return catalogFile{}, fmt.Errorf("parse message entry %q: %w", line, err)
			}
			out.Messages[key] = value
		}
	}

	if out.Locale == "" {
		return catalogFile{}, fmt.Errorf("missing locale")
	}
	if out.Namespace == "" {
		return catalogFile{}, fmt.Errorf("missing namespace")
	}
	if len(out.Messages) == 0 {
		return catalogFile{}, fmt.Errorf("missing messages")
	}
	return out, nil
}

func parseMessageEntry(line string) (string, string, error) {
	keyToken, rest, err := splitQuotedToken(line)
	if err != nil {
		return "", "", err
	}
	key, err := strconv.Unquote(keyToken)
	if err != nil {
		return "", "", fmt.Errorf("unquote key: %w", err)
	}

	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, ":") {
		return "", "", fmt.Errorf("missing ':' separator")
	}
	value, err := strconv.Unquote(strings.TrimSpace(strings.TrimPrefix(rest, ":")))
	if err != nil {
		return "", "", fmt.Errorf("unquote value: %w", err)
	}
	return key, value, nil
}

func splitQuotedToken(line string) (string, string, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "\"") {
		return "", "", fmt.Errorf("expected quoted token")
	}
	escaped := false
	for i := 1; i < len(trimmed); i++ {
		ch := trimmed[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			return trimmed[:i+1], trimmed[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("unterminated quoted token")
}
