// Package watchlist loads the symbol universe from YAML files. The
// exclusion list is applied on load so excluded symbols never reach
// scanning, and symbols with open positions are re-added by the caller so
// exits still run for them.
package watchlist

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// file is the YAML shape of both the watchlist and the exclusion list.
type file struct {
	Symbols []string `yaml:"symbols"`
}

// Watchlist is the resolved scan universe.
type Watchlist struct {
	symbols  []string
	excluded map[string]bool
}

// Load reads the watchlist, applies the exclusion list when present, and
// returns the resolved universe. Symbols are upper-cased and de-duplicated;
// order follows the file with duplicates dropped.
func Load(path, exclusionPath string) (*Watchlist, error) {
	symbols, err := readSymbols(path)
	if err != nil {
		return nil, fmt.Errorf("watchlist: %w", err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("watchlist: %s lists no symbols", path)
	}

	excluded := map[string]bool{}
	if exclusionPath != "" {
		ex, err := readSymbols(exclusionPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("watchlist: exclusions: %w", err)
			}
			// A missing exclusion file just means nothing is excluded.
		}
		for _, s := range ex {
			excluded[s] = true
		}
	}

	seen := map[string]bool{}
	var resolved []string
	for _, s := range symbols {
		if seen[s] || excluded[s] {
			continue
		}
		seen[s] = true
		resolved = append(resolved, s)
	}

	return &Watchlist{symbols: resolved, excluded: excluded}, nil
}

// Symbols returns the scan universe.
func (w *Watchlist) Symbols() []string {
	return append([]string(nil), w.symbols...)
}

// Excluded reports whether a symbol is on the exclusion list. Excluded
// symbols take no new entries but existing positions are still managed.
func (w *Watchlist) Excluded(symbol string) bool {
	return w.excluded[strings.ToUpper(symbol)]
}

// WithOpen returns the scan universe plus the given open-position symbols,
// sorted, without duplicates. Exits must be evaluated even for symbols that
// have since been excluded or removed from the list.
func (w *Watchlist) WithOpen(open []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(w.Symbols(), open...) {
		s = strings.ToUpper(s)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func readSymbols(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]string, 0, len(f.Symbols))
	for _, s := range f.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
