// Package feed is the aggregation engine behind GET /api/packages. It
// answers two request modes: keyword search with offset paging, and a
// randomized browse feed that samples the catalog until a batch is
// filled or a retry budget runs out.
package feed

import (
	"context"
	"math/rand"
	"sync"

	"github.com/npmtok/npmtok/internal/model"
	"github.com/npmtok/npmtok/internal/source"
	"github.com/npmtok/npmtok/internal/transform"
	"go.uber.org/zap"
)

const (
	// defaultBatchSize is how many names one random sample requests
	// from the primary provider. 250 is the upstream maximum.
	defaultBatchSize = 250
	// defaultMaxAttempts bounds the feed sampling loop.
	defaultMaxAttempts = 10
	// defaultMaxOffset is the upstream ceiling on the search "from"
	// parameter; offsets past it cannot be served.
	defaultMaxOffset = 10000
)

// FeedSource is the primary provider surface the engine needs: search
// plus the browse-mode total used to bound random offsets.
type FeedSource interface {
	source.Provider
	EligibleTotal(ctx context.Context) (int, error)
}

// SearchResult is the search-mode response.
type SearchResult struct {
	Packages []model.Package `json:"packages"`
	Total    int             `json:"total"`
	HasMore  bool            `json:"hasMore"`
	NextFrom int             `json:"nextFrom"`
}

// FeedResult is the feed-mode response. NextSearchFrom is an opaque
// continuation token, not a literal upstream offset.
type FeedResult struct {
	Packages       []model.Package `json:"packages"`
	NextSearchFrom int             `json:"nextSearchFrom"`
}

// Engine orchestrates the metadata providers and the transformer.
type Engine struct {
	Primary     FeedSource
	Secondary   source.Provider
	Transformer *transform.Transformer
	Logger      *zap.Logger

	// RandOffset returns a random int in [0, n). Injectable so tests
	// can supply a deterministic sequence. Defaults to math/rand.
	RandOffset func(n int) int

	BatchSize   int
	MaxAttempts int
	MaxOffset   int
}

func (e *Engine) batchSize() int {
	if e.BatchSize > 0 {
		return e.BatchSize
	}
	return defaultBatchSize
}

func (e *Engine) maxAttempts() int {
	if e.MaxAttempts > 0 {
		return e.MaxAttempts
	}
	return defaultMaxAttempts
}

func (e *Engine) maxOffset() int {
	if e.MaxOffset > 0 {
		return e.MaxOffset
	}
	return defaultMaxOffset
}

func (e *Engine) randOffset(n int) int {
	if e.RandOffset != nil {
		return e.RandOffset(n)
	}
	return rand.Intn(n)
}

// Search answers a keyword query at the given offset. The primary
// provider is tried first; the secondary is consulted only when the
// primary yields zero results. Provider failures degrade to an empty
// page rather than an error.
func (e *Engine) Search(ctx context.Context, query string, size, from int, bookmarked map[string]bool) *SearchResult {
	page, err := e.Primary.Search(ctx, query, size, from)
	if err != nil {
		e.Logger.Warn("primary search failed", zap.String("query", query), zap.Error(err))
	}

	provider := source.Provider(e.Primary)
	if len(page.Names) == 0 {
		page, err = e.Secondary.Search(ctx, query, size, from)
		if err != nil {
			e.Logger.Warn("secondary search failed", zap.String("query", query), zap.Error(err))
			page = source.SearchPage{}
		}
		provider = e.Secondary
	}

	if len(page.Names) == 0 {
		return &SearchResult{
			Packages: []model.Package{},
			Total:    page.Total,
			HasMore:  false,
			NextFrom: from + size,
		}
	}

	packages := e.fetchPackages(ctx, provider, page.Names, bookmarked)
	return &SearchResult{
		Packages: packages,
		Total:    page.Total,
		HasMore:  from+size < page.Total,
		NextFrom: from + size,
	}
}

// Feed fills a batch of up to size packages by sampling random offsets
// of the browse-mode catalog. Returning fewer than size after the
// attempt budget is a defined outcome, not an error. Only the initial
// total-count call can fail the request.
func (e *Engine) Feed(ctx context.Context, size, searchFrom int, bookmarked map[string]bool) (*FeedResult, error) {
	total, err := e.Primary.EligibleTotal(ctx)
	if err != nil {
		return nil, err
	}

	searchSpace := total
	if searchSpace > e.maxOffset() {
		searchSpace = e.maxOffset()
	}

	seen := make(map[string]bool)
	collected := make([]model.Package, 0, size)

	for attempts := 0; attempts < e.maxAttempts() && len(collected) < size; attempts++ {
		from := 0
		if searchSpace > e.batchSize() {
			from = e.randOffset(searchSpace - e.batchSize())
		}

		page, err := e.Primary.Search(ctx, "", e.batchSize(), from)
		if err != nil {
			e.Logger.Warn("feed sample failed", zap.Int("from", from), zap.Error(err))
			continue
		}
		if len(page.Names) == 0 {
			continue
		}

		// Skip names already accumulated, including duplicates inside
		// the same random batch.
		names := make([]string, 0, len(page.Names))
		for _, name := range page.Names {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}

		for _, pkg := range e.fetchPackages(ctx, e.Primary, names, bookmarked) {
			collected = append(collected, pkg)
			if len(collected) >= size {
				break
			}
		}
	}

	if len(collected) > size {
		collected = collected[:size]
	}
	return &FeedResult{
		Packages:       collected,
		NextSearchFrom: searchFrom + len(collected),
	}, nil
}

// fetchPackages fans out detail fetches concurrently and re-assembles
// the transformed packages in the order of names. Each fetch is
// independent; failures and rejected records leave gaps that are
// compacted out, never aborting the batch.
func (e *Engine) fetchPackages(ctx context.Context, p source.Provider, names []string, bookmarked map[string]bool) []model.Package {
	slots := make([]*model.Package, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			rec, err := p.Detail(ctx, name)
			if err != nil || rec == nil {
				return
			}
			slots[i] = e.Transformer.Transform(ctx, rec, bookmarked)
		}(i, name)
	}
	wg.Wait()

	out := make([]model.Package, 0, len(names))
	for _, pkg := range slots {
		if pkg != nil {
			out = append(out, *pkg)
		}
	}
	return out
}
