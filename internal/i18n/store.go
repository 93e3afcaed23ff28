// Package i18n holds the process-wide language selection and translation
// tables. The selected language is persisted so it survives restarts, and is
// sent with every API call and with the realtime handshake.
package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dropwing/dropwing-go/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// builtin translations cover the SDK's own user-facing strings. Bundle files
// loaded from disk extend or override these.
var builtin = map[string]map[string]string{
	"en": {
		"notifications.unknown_confirmation": "You have a pending confirmation",
		"notifications.new":                  "New notification",
		"notifications.connection_lost":      "Connection lost, retrying",
		"notifications.connection_failed":    "Live updates unavailable",
	},
}

// rtlLanguages are languages laid out right-to-left.
var rtlLanguages = map[string]bool{
	"ar": true,
	"he": true,
	"fa": true,
	"ur": true,
}

// Store holds the current language, translation bundles, and the persisted
// preference. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	current  string
	fallback string
	bundles  map[string]map[string]string
	prefPath string
	log      *zap.SugaredLogger
}

// NewStore creates a Store with the given fallback language, loading any
// *.yaml bundles from bundleDir and the persisted preference from prefPath.
// A missing bundle directory is not an error; the builtin strings apply.
func NewStore(bundleDir, fallback, prefPath string) (*Store, error) {
	s := &Store{
		current:  fallback,
		fallback: fallback,
		bundles:  make(map[string]map[string]string),
		prefPath: prefPath,
		log:      logger.GetLogger().Named("i18n"),
	}

	for lang, table := range builtin {
		merged := make(map[string]string, len(table))
		for k, v := range table {
			merged[k] = v
		}
		s.bundles[lang] = merged
	}

	if bundleDir != "" {
		if err := s.loadBundles(bundleDir); err != nil {
			return nil, err
		}
	}

	if pref, err := os.ReadFile(prefPath); err == nil {
		if code := strings.TrimSpace(string(pref)); code != "" {
			s.current = code
		}
	}

	return s, nil
}

func (s *Store) loadBundles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read bundle directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		lang := strings.TrimSuffix(name, ".yaml")

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read bundle %s: %w", name, err)
		}

		table := make(map[string]string)
		if err := yaml.Unmarshal(data, &table); err != nil {
			return fmt.Errorf("failed to parse bundle %s: %w", name, err)
		}

		merged := s.bundles[lang]
		if merged == nil {
			merged = make(map[string]string, len(table))
			s.bundles[lang] = merged
		}
		for k, v := range table {
			merged[k] = v
		}
		s.log.Debugw("Loaded translation bundle", "language", lang, "keys", len(table))
	}
	return nil
}

// Language returns the currently selected language code.
func (s *Store) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetLanguage switches the current language and persists the preference.
func (s *Store) SetLanguage(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("language code must not be empty")
	}

	s.mu.Lock()
	s.current = code
	s.mu.Unlock()

	if s.prefPath != "" {
		if err := os.MkdirAll(filepath.Dir(s.prefPath), 0o700); err != nil {
			return fmt.Errorf("failed to create preference directory: %w", err)
		}
		if err := os.WriteFile(s.prefPath, []byte(code+"\n"), 0o600); err != nil {
			return fmt.Errorf("failed to persist language preference: %w", err)
		}
	}

	s.log.Infow("Language changed", "language", code)
	return nil
}

// Translate looks up a key in the current language, falling back to the
// fallback language and finally to the key itself.
func (s *Store) Translate(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if table, ok := s.bundles[s.current]; ok {
		if v, ok := table[key]; ok {
			return v
		}
	}
	if table, ok := s.bundles[s.fallback]; ok {
		if v, ok := table[key]; ok {
			return v
		}
	}
	return key
}

// IsRTL reports whether the current language is laid out right-to-left.
func (s *Store) IsRTL() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	base := s.current
	if i := strings.IndexByte(base, '-'); i > 0 {
		base = base[:i]
	}
	return rtlLanguages[strings.ToLower(base)]
}
