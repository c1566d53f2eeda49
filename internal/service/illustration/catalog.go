// Package illustration maps questions to strategy images by keyword.
package illustration

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"strategybot/internal/domain"
)

// MaxResults caps the photos sent for one message.
const MaxResults = 2

//go:embed default.yaml
var defaultCatalog []byte

type Entry struct {
	Caption  string   `yaml:"caption"`
	Keywords []string `yaml:"keywords"`
	Images   []string `yaml:"images"`
}

type file struct {
	Illustrations []Entry `yaml:"illustrations"`
}

// Catalog is immutable after construction.
type Catalog struct {
	entries  []Entry
	assetDir string
}

// Load reads the catalog at path, or the built-in one when path is empty.
// Image paths are resolved against assetDir.
func Load(path, assetDir string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read illustration catalog: %w", err)
		}
		data = raw
	}
	return Parse(data, assetDir)
}

func Parse(data []byte, assetDir string) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse illustration catalog: %w", err)
	}
	var errs []error
	entries := make([]Entry, 0, len(f.Illustrations))
	for i, e := range f.Illustrations {
		if strings.TrimSpace(e.Caption) == "" || len(e.Images) == 0 {
			errs = append(errs, fmt.Errorf("entry %d: caption and images are required", i))
			continue
		}
		kws := make([]string, 0, len(e.Keywords))
		for _, kw := range e.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) == 0 {
			errs = append(errs, fmt.Errorf("entry %d (%s): no keywords", i, e.Caption))
			continue
		}
		e.Keywords = kws
		entries = append(entries, e)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Catalog{entries: entries, assetDir: assetDir}, nil
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

type span struct {
	start, end int
}

func (s span) within(o span) bool {
	return o.start <= s.start && s.end <= o.end && o.end-o.start > s.end-s.start
}

type hit struct {
	entry int
	spans []span
	best  int
}

// Match returns up to MaxResults photos for text. A keyword occurrence that
// sits inside a longer keyword occurrence of another entry does not count,
// so "setup 10" never pulls in setup 1. Entries are ranked by their longest
// counted keyword, then catalog order. Captions are never repeated.
func (c *Catalog) Match(text string) []domain.Photo {
	lower := strings.ToLower(text)
	var hits []hit
	for i, e := range c.entries {
		var spans []span
		for _, kw := range e.Keywords {
			spans = append(spans, occurrences(lower, kw)...)
		}
		if len(spans) > 0 {
			hits = append(hits, hit{entry: i, spans: spans})
		}
	}

	ranked := make([]hit, 0, len(hits))
	for _, h := range hits {
		for _, s := range h.spans {
			if shadowed(s, h.entry, hits) {
				continue
			}
			if n := utf8.RuneCountInString(lower[s.start:s.end]); n > h.best {
				h.best = n
			}
		}
		if h.best > 0 {
			ranked = append(ranked, h)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].best > ranked[j].best
	})

	var out []domain.Photo
	seen := make(map[string]bool)
	for _, h := range ranked {
		e := c.entries[h.entry]
		if seen[e.Caption] {
			continue
		}
		seen[e.Caption] = true
		for _, img := range e.Images {
			if len(out) == MaxResults {
				return out
			}
			out = append(out, domain.Photo{Path: filepath.Join(c.assetDir, img), Caption: e.Caption})
		}
	}
	return out
}

func occurrences(text, kw string) []span {
	var out []span
	for from := 0; from <= len(text)-len(kw); {
		i := strings.Index(text[from:], kw)
		if i < 0 {
			break
		}
		start := from + i
		out = append(out, span{start: start, end: start + len(kw)})
		from = start + 1
	}
	return out
}

func shadowed(s span, entry int, hits []hit) bool {
	for _, other := range hits {
		if other.entry == entry {
			continue
		}
		for _, o := range other.spans {
			if s.within(o) {
				return true
			}
		}
	}
	return false
}
