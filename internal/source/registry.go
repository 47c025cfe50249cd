package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// RegistryClient queries the public npm registry, the secondary
// metadata provider. Weekly download counts live on a separate
// downloads API, so Detail issues two requests.
type RegistryClient struct {
	BaseURL       string
	DownloadsBase string
	Client        *http.Client
	Logger        *zap.Logger
}

// NewRegistryClient creates a client for the given registry and
// downloads API base URLs.
func NewRegistryClient(baseURL, downloadsBase string, client *http.Client, logger *zap.Logger) *RegistryClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &RegistryClient{
		BaseURL:       baseURL,
		DownloadsBase: downloadsBase,
		Client:        client,
		Logger:        logger,
	}
}

// RegistryRecord is a flattened npm registry package document plus the
// weekly download count fetched alongside it.
type RegistryRecord struct {
	Name            string
	Description     string
	Version         string
	Date            string
	AuthorName      string
	MaintainerName  string
	Keywords        []string
	RepositoryURL   string
	Homepage        string
	WeeklyDownloads int
}

// PackageName implements RawRecord.
func (r *RegistryRecord) PackageName() string { return r.Name }

type registrySearchResponse struct {
	Total   int `json:"total"`
	Objects []struct {
		Package struct {
			Name string `json:"name"`
		} `json:"package"`
	} `json:"objects"`
}

// registryDoc is the raw registry package document. Times are a map of
// version (plus "created"/"modified") to publish timestamp.
type registryDoc struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	DistTags    map[string]string `json:"dist-tags"`
	Time        map[string]string `json:"time"`
	Keywords    []string          `json:"keywords"`
	Homepage    string            `json:"homepage"`
	Author      *struct {
		Name string `json:"name"`
	} `json:"author"`
	Maintainers []struct {
		Name string `json:"name"`
	} `json:"maintainers"`
	Repository *struct {
		URL string `json:"url"`
	} `json:"repository"`
}

type downloadsPointResponse struct {
	Downloads int `json:"downloads"`
}

// Search runs a text search against the registry search endpoint.
func (c *RegistryClient) Search(ctx context.Context, query string, size, from int) (SearchPage, error) {
	if query == "" {
		query = browseQuery
	}

	params := url.Values{
		"text": {query},
		"size": {strconv.Itoa(size)},
		"from": {strconv.Itoa(from)},
	}
	reqURL := c.BaseURL + "/-/v1/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return SearchPage{}, fmt.Errorf("creating registry search request: %w", err)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return SearchPage{}, fmt.Errorf("registry search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SearchPage{}, fmt.Errorf("registry search returned HTTP %d", resp.StatusCode)
	}

	var sr registrySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return SearchPage{}, fmt.Errorf("parsing registry search response: %w", err)
	}

	page := SearchPage{Total: sr.Total, Names: make([]string, 0, len(sr.Objects))}
	for _, o := range sr.Objects {
		page.Names = append(page.Names, o.Package.Name)
	}
	return page, nil
}

// Detail fetches the registry document for one package and its weekly
// download count. Any non-success status or transport failure yields
// (nil, nil); a failed downloads lookup degrades to a zero count.
func (c *RegistryClient) Detail(ctx context.Context, name string) (RawRecord, error) {
	reqURL := c.BaseURL + "/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		c.Logger.Debug("registry detail fetch failed", zap.String("package", name), zap.Error(err))
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Logger.Debug("registry detail non-success",
			zap.String("package", name),
			zap.Int("status", resp.StatusCode),
		)
		return nil, nil
	}

	var doc registryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		c.Logger.Debug("registry detail parse failed", zap.String("package", name), zap.Error(err))
		return nil, nil
	}

	rec := &RegistryRecord{
		Name:            doc.Name,
		Description:     doc.Description,
		Version:         doc.DistTags["latest"],
		Date:            doc.Time["modified"],
		Keywords:        doc.Keywords,
		Homepage:        doc.Homepage,
		WeeklyDownloads: c.weeklyDownloads(ctx, name),
	}
	if doc.Author != nil {
		rec.AuthorName = doc.Author.Name
	}
	if len(doc.Maintainers) > 0 {
		rec.MaintainerName = doc.Maintainers[0].Name
	}
	if doc.Repository != nil {
		rec.RepositoryURL = doc.Repository.URL
	}
	return rec, nil
}

func (c *RegistryClient) weeklyDownloads(ctx context.Context, name string) int {
	reqURL := c.DownloadsBase + "/downloads/point/last-week/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0
	}

	var dl downloadsPointResponse
	if err := json.NewDecoder(resp.Body).Decode(&dl); err != nil {
		return 0
	}
	return dl.Downloads
}
