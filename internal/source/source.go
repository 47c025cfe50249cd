// Package source implements the two package-metadata providers: the
// npms.io search service (primary) and the public npm registry
// (secondary). Both expose text search and single-package detail
// lookups and converge on the RawRecord union consumed by the
// transformer.
package source

import (
	"context"
	"time"
)

// browseQuery is the distinguished "browse mode" filter sent when the
// caller supplies no search text.
const browseQuery = "not:deprecated not:insecure"

// SearchPage is one page of a provider text search: the matching
// package names in relevance order plus the upstream's reported total.
type SearchPage struct {
	Names []string
	Total int
}

// RawRecord is a provider package document before normalization. The
// concrete type is either *NpmsRecord or *RegistryRecord; the
// transformer switches on it.
type RawRecord interface {
	PackageName() string
}

// Provider is a package-information source. Detail returns (nil, nil)
// on any non-success status or transport failure; it never surfaces an
// error for a single missing package.
type Provider interface {
	Search(ctx context.Context, query string, size, from int) (SearchPage, error)
	Detail(ctx context.Context, name string) (RawRecord, error)
}

// DownloadWindow is one entry of a package's download history. The
// upstream does not label which window is "weekly".
type DownloadWindow struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// WeeklyDownloads picks the weekly count out of a download history:
// the first window spanning 6-8 days inclusive, else the second list
// entry, else 0. The span heuristic mirrors undocumented upstream
// bucketing and breaks silently if that granularity ever changes.
func WeeklyDownloads(windows []DownloadWindow) int {
	for _, w := range windows {
		from, err1 := parseWindowDate(w.From)
		to, err2 := parseWindowDate(w.To)
		if err1 != nil || err2 != nil {
			continue
		}
		days := int(to.Sub(from).Hours()/24 + 0.5)
		if days >= 6 && days <= 8 {
			return w.Count
		}
	}
	if len(windows) > 1 {
		return windows[1].Count
	}
	return 0
}

func parseWindowDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
