package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Watchlist is the YAML file listing the tickers to keep in sync.
//
//	tickers:
//	  - AAPL
//	  - MSFT
type Watchlist struct {
	Tickers []string `yaml:"tickers"`
}

// LoadWatchlist reads the optional watchlist file and merges it with the extra tickers.
// A missing path or file contributes nothing. Tickers are upper-cased and deduplicated,
// keeping first-seen order.
func LoadWatchlist(path string, extra []string) ([]string, error) {
	var wl Watchlist
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read watchlist: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, &wl); err != nil {
				return nil, fmt.Errorf("parse watchlist %s: %w", path, err)
			}
		}
	}

	seen := make(map[string]bool)
	var tickers []string
	for _, t := range append(wl.Tickers, extra...) {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
	}
	return tickers, nil
}
