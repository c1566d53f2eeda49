// Package knowledge holds the strategy document text that is sent to the
// completion service as context.
package knowledge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Placeholder replaces the text when no source file can be read.
const Placeholder = "ERROR: strategy file not found."

var ErrNotFound = errors.New("strategy file not found")

// Base is safe for concurrent use; Reload swaps the text atomically.
type Base struct {
	paths []string
	log   zerolog.Logger

	mu     sync.RWMutex
	text   string
	source string
}

// NewBase tries paths in order on every load. .docx files are read as
// Word documents, anything else as UTF-8 text.
func NewBase(paths []string, log zerolog.Logger) *Base {
	return &Base{
		paths: paths,
		log:   log.With().Str("component", "knowledge").Logger(),
		text:  Placeholder,
	}
}

func (b *Base) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// Source is the path the current text came from, empty for the placeholder.
func (b *Base) Source() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.source
}

// Size is the text length in characters.
func (b *Base) Size() int {
	return utf8.RuneCountInString(b.Text())
}

// Reload reads the first usable path. A file that exists but cannot be
// parsed is logged and the next path is tried. When nothing loads, the
// placeholder is installed and the error wraps ErrNotFound.
func (b *Base) Reload() error {
	for _, path := range b.paths {
		text, err := readFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			b.log.Error().Err(err).Str("path", path).Msg("read strategy file")
			continue
		}
		b.mu.Lock()
		b.text = text
		b.source = path
		b.mu.Unlock()
		b.log.Info().Str("path", path).Int("chars", utf8.RuneCountInString(text)).Msg("strategy loaded")
		return nil
	}

	b.mu.Lock()
	b.text = Placeholder
	b.source = ""
	b.mu.Unlock()
	b.log.Error().Strs("paths", b.paths).Msg("strategy file not found")
	return fmt.Errorf("%w: tried %s", ErrNotFound, strings.Join(b.paths, ", "))
}

func readFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".docx") {
		return readDocx(path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%s: not valid UTF-8", path)
	}
	return string(raw), nil
}
