// Package transform normalizes raw provider records into the Package
// shape the client consumes.
package transform

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/npmtok/npmtok/internal/format"
	"github.com/npmtok/npmtok/internal/model"
	"github.com/npmtok/npmtok/internal/source"
)

var githubRepoPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)`)

// ExtractRepository parses a GitHub reference out of a URL-like string.
// Only the first two path segments after the host are captured; a
// trailing ".git" and then a trailing ".js" are stripped from the name.
// Returns nil when the string contains no github.com reference.
func ExtractRepository(candidate string) *model.Repository {
	match := githubRepoPattern.FindStringSubmatch(candidate)
	if match == nil {
		return nil
	}
	name := strings.TrimSuffix(match[2], ".git")
	name = strings.TrimSuffix(name, ".js")
	return &model.Repository{Owner: match[1], Name: name}
}

// StatsEnricher supplies star and fork counts for a repository when
// the metadata provider did not embed them. Implementations degrade to
// zeros on failure instead of returning an error.
type StatsEnricher interface {
	RepoStats(ctx context.Context, owner, name string) (stars, forks int)
}

// Transformer maps raw provider records onto normalized Packages.
type Transformer struct {
	Enricher StatsEnricher
	// Now is the clock used for relative ages. Defaults to time.Now.
	Now func() time.Time
}

func (t *Transformer) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Transform normalizes one raw record against the caller's bookmark
// set. Records lacking a minimally complete payload are rejected with
// nil and silently excluded from result sets.
func (t *Transformer) Transform(ctx context.Context, rec source.RawRecord, bookmarked map[string]bool) *model.Package {
	switch r := rec.(type) {
	case *source.NpmsRecord:
		return t.transformNpms(ctx, r, bookmarked)
	case *source.RegistryRecord:
		return t.transformRegistry(ctx, r, bookmarked)
	default:
		return nil
	}
}

func (t *Transformer) transformNpms(ctx context.Context, r *source.NpmsRecord, bookmarked map[string]bool) *model.Package {
	meta := r.Collected.Metadata
	if meta.Name == "" || r.Collected.Npm == nil || len(r.Collected.Npm.Downloads) == 0 {
		return nil
	}

	candidate := meta.Links.Repository
	if candidate == "" {
		candidate = meta.Links.Homepage
	}
	repo := ExtractRepository(candidate)

	author := "N/A"
	switch {
	case repo != nil:
		author = repo.Owner
	case meta.Publisher != nil && meta.Publisher.Username != "":
		author = meta.Publisher.Username
	case meta.Author != nil && meta.Author.Name != "":
		author = slugify(meta.Author.Name)
	}

	downloads := source.WeeklyDownloads(r.Collected.Npm.Downloads)

	var stars, forks int
	if r.Collected.GitHub != nil {
		stars = r.Collected.GitHub.StarsCount
		forks = r.Collected.GitHub.ForksCount
	} else if repo != nil && t.Enricher != nil {
		stars, forks = t.Enricher.RepoStats(ctx, repo.Owner, repo.Name)
	}

	npmLink := meta.Links.Npm
	if npmLink == "" {
		npmLink = "https://www.npmjs.com/package/" + meta.Name
	}

	return &model.Package{
		Name:        meta.Name,
		Description: meta.Description,
		Author:      author,
		Version:     "v" + meta.Version,
		Tags:        keywords(meta.Keywords),
		Stats: model.Stats{
			Downloads: format.CompactNumber(downloads),
			Stars:     format.CompactNumber(stars),
			Forks:     format.CompactNumber(forks),
		},
		Time:         t.relativeTime(meta.Date),
		Repository:   repo,
		NpmLink:      npmLink,
		IsBookmarked: bookmarked[meta.Name],
	}
}

func (t *Transformer) transformRegistry(ctx context.Context, r *source.RegistryRecord, bookmarked map[string]bool) *model.Package {
	if r.Name == "" {
		return nil
	}

	candidate := r.RepositoryURL
	if candidate == "" {
		candidate = r.Homepage
	}
	repo := ExtractRepository(candidate)

	author := "N/A"
	switch {
	case repo != nil:
		author = repo.Owner
	case r.MaintainerName != "":
		author = r.MaintainerName
	case r.AuthorName != "":
		author = slugify(r.AuthorName)
	}

	var stars, forks int
	if repo != nil && t.Enricher != nil {
		stars, forks = t.Enricher.RepoStats(ctx, repo.Owner, repo.Name)
	}

	return &model.Package{
		Name:        r.Name,
		Description: r.Description,
		Author:      author,
		Version:     "v" + r.Version,
		Tags:        keywords(r.Keywords),
		Stats: model.Stats{
			Downloads: format.CompactNumber(r.WeeklyDownloads),
			Stars:     format.CompactNumber(stars),
			Forks:     format.CompactNumber(forks),
		},
		Time:         t.relativeTime(r.Date),
		Repository:   repo,
		NpmLink:      "https://www.npmjs.com/package/" + r.Name,
		IsBookmarked: bookmarked[r.Name],
	}
}

// relativeTime renders a publish timestamp as an age string. An
// unparseable timestamp reads as "today" rather than dropping the
// package.
func (t *Transformer) relativeTime(date string) string {
	parsed, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return "today"
	}
	return format.RelativeTime(parsed, t.now())
}

func slugify(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}

func keywords(ks []string) []string {
	if ks == nil {
		return []string{}
	}
	return ks
}
