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

// NpmsClient queries the npms.io-style search and detail API, the
// primary metadata provider.
type NpmsClient struct {
	BaseURL string
	Client  *http.Client
	Logger  *zap.Logger
}

// NewNpmsClient creates a client for the given API base URL.
func NewNpmsClient(baseURL string, client *http.Client, logger *zap.Logger) *NpmsClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &NpmsClient{BaseURL: baseURL, Client: client, Logger: logger}
}

// NpmsRecord is the package detail document returned by the primary
// provider.
type NpmsRecord struct {
	Collected struct {
		Metadata struct {
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Version     string   `json:"version"`
			Date        string   `json:"date"`
			Keywords    []string `json:"keywords"`
			Author      *struct {
				Name string `json:"name"`
			} `json:"author"`
			Publisher *struct {
				Username string `json:"username"`
			} `json:"publisher"`
			Links struct {
				Repository string `json:"repository"`
				Homepage   string `json:"homepage"`
				Npm        string `json:"npm"`
			} `json:"links"`
		} `json:"metadata"`
		GitHub *struct {
			StarsCount int `json:"starsCount"`
			ForksCount int `json:"forksCount"`
		} `json:"github"`
		Npm *struct {
			Downloads []DownloadWindow `json:"downloads"`
		} `json:"npm"`
	} `json:"collected"`
}

// PackageName implements RawRecord.
func (r *NpmsRecord) PackageName() string { return r.Collected.Metadata.Name }

type npmsSearchResponse struct {
	Total   int `json:"total"`
	Results []struct {
		Package struct {
			Name string `json:"name"`
		} `json:"package"`
	} `json:"results"`
}

// Search runs a text relevance search. An empty query is browse mode:
// a filter for packages that are neither deprecated nor insecure.
func (c *NpmsClient) Search(ctx context.Context, query string, size, from int) (SearchPage, error) {
	if query == "" {
		query = browseQuery
	}

	params := url.Values{
		"q":    {query},
		"size": {strconv.Itoa(size)},
		"from": {strconv.Itoa(from)},
	}
	reqURL := c.BaseURL + "/v2/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return SearchPage{}, fmt.Errorf("creating search request: %w", err)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return SearchPage{}, fmt.Errorf("npms search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SearchPage{}, fmt.Errorf("npms search returned HTTP %d", resp.StatusCode)
	}

	var sr npmsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return SearchPage{}, fmt.Errorf("parsing npms search response: %w", err)
	}

	page := SearchPage{Total: sr.Total, Names: make([]string, 0, len(sr.Results))}
	for _, r := range sr.Results {
		page.Names = append(page.Names, r.Package.Name)
	}
	return page, nil
}

// EligibleTotal returns the upstream count of browse-mode packages.
// Feed mode uses it to bound the random offset space.
func (c *NpmsClient) EligibleTotal(ctx context.Context) (int, error) {
	page, err := c.Search(ctx, "", 1, 0)
	if err != nil {
		return 0, fmt.Errorf("getting total package count: %w", err)
	}
	return page.Total, nil
}

// Detail fetches one package's metadata document. Any non-success
// status or transport failure yields (nil, nil).
func (c *NpmsClient) Detail(ctx context.Context, name string) (RawRecord, error) {
	reqURL := c.BaseURL + "/v2/package/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		c.Logger.Debug("npms detail fetch failed", zap.String("package", name), zap.Error(err))
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Logger.Debug("npms detail non-success",
			zap.String("package", name),
			zap.Int("status", resp.StatusCode),
		)
		return nil, nil
	}

	var rec NpmsRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		c.Logger.Debug("npms detail parse failed", zap.String("package", name), zap.Error(err))
		return nil, nil
	}
	return &rec, nil
}
