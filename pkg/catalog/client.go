// Package catalog is the client for the affiliate catalog API: keyword
// search over the item list endpoint plus an HTML scrape of the item detail
// page for the long-form description the API omits.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/aozora-lab/poster-cli/internal/model"
	"github.com/aozora-lab/poster-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.dmm.com/affiliate/v3"
	defaultSite    = "FANZA"
	defaultService = "digital"
	defaultFloor   = "videoc"
)

// ErrNotFound is returned when a search yields no items.
var ErrNotFound = eris.New("catalog: no items found")

// Client searches the catalog and enriches items with scraped descriptions.
type Client interface {
	// Search returns up to req.Hits items matching the keyword, newest
	// first. An empty keyword is an unfiltered latest-items search.
	Search(ctx context.Context, req SearchRequest) ([]model.CatalogItem, error)

	// FetchDescription scrapes the item detail page for its description
	// text. Returns "" without error when the page has none.
	FetchDescription(ctx context.Context, pageURL string) (string, error)
}

// SearchRequest parameterizes one item list call.
type SearchRequest struct {
	Keyword string
	Hits    int
	Offset  int
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithSite overrides the catalog site parameter.
func WithSite(site string) Option {
	return func(c *httpClient) {
		if site != "" {
			c.site = site
		}
	}
}

// WithService overrides the catalog service/floor pair.
func WithService(service, floor string) Option {
	return func(c *httpClient) {
		if service != "" {
			c.service = service
		}
		if floor != "" {
			c.floor = floor
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiID       string
	affiliateID string
	baseURL     string
	site        string
	service     string
	floor       string
	http        *http.Client
}

// NewClient creates a catalog API client.
func NewClient(apiID, affiliateID string, opts ...Option) Client {
	c := &httpClient{
		apiID:       apiID,
		affiliateID: affiliateID,
		baseURL:     defaultBaseURL,
		site:        defaultSite,
		service:     defaultService,
		floor:       defaultFloor,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type itemListResponse struct {
	Result struct {
		Status      any        `json:"status"`
		ResultCount int        `json:"result_count"`
		Items       []itemJSON `json:"items"`
	} `json:"result"`
}

type itemJSON struct {
	ContentID string `json:"content_id"`
	Title     string `json:"title"`
	URL       string `json:"URL"`
	ImageURL  struct {
		Small string `json:"small"`
		Large string `json:"large"`
	} `json:"imageURL"`
	SampleImageURL struct {
		SampleS struct {
			Image []string `json:"image"`
		} `json:"sample_s"`
	} `json:"sampleImageURL"`
	Date     string `json:"date"`
	ItemInfo struct {
		Genre []namedRef `json:"genre"`
		Maker []namedRef `json:"maker"`
		Label []namedRef `json:"label"`
	} `json:"iteminfo"`
}

type namedRef struct {
	Name string `json:"name"`
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) ([]model.CatalogItem, error) {
	if req.Hits <= 0 {
		req.Hits = 20
	}

	q := url.Values{}
	q.Set("api_id", c.apiID)
	q.Set("affiliate_id", c.affiliateID)
	q.Set("site", c.site)
	q.Set("service", c.service)
	q.Set("floor", c.floor)
	q.Set("hits", strconv.Itoa(req.Hits))
	q.Set("sort", "date")
	q.Set("output", "json")
	if req.Keyword != "" {
		q.Set("keyword", req.Keyword)
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ItemList?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("catalog: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, resilience.NewPermanentError(err)
	}

	var result itemListResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal response")
	}
	if len(result.Result.Items) == 0 {
		return nil, ErrNotFound
	}

	items := make([]model.CatalogItem, 0, len(result.Result.Items))
	for _, it := range result.Result.Items {
		items = append(items, toModel(it))
	}
	return items, nil
}

func toModel(it itemJSON) model.CatalogItem {
	item := model.CatalogItem{
		ContentID:  it.ContentID,
		Title:      it.Title,
		URL:        it.URL,
		ImageURL:   it.ImageURL.Large,
		SampleURLs: it.SampleImageURL.SampleS.Image,
		Attributes: map[string]string{},
	}
	if item.ImageURL == "" {
		item.ImageURL = it.ImageURL.Small
	}
	if len(it.ItemInfo.Maker) > 0 {
		item.MakerName = it.ItemInfo.Maker[0].Name
	}
	for _, g := range it.ItemInfo.Genre {
		if g.Name != "" {
			item.Genres = append(item.Genres, g.Name)
		}
	}
	if len(it.ItemInfo.Label) > 0 {
		item.Attributes["label"] = it.ItemInfo.Label[0].Name
	}
	if it.Date != "" {
		item.Attributes["released_at"] = it.Date
	}
	return item
}

// descriptionSelectors are tried in order against the item detail page.
var descriptionSelectors = []string{
	"div.mg-b20.lh4",
	"p.mg-b20",
	"meta[name=description]",
}

func (c *httpClient) FetchDescription(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "catalog: create page request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; poster-cli)")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "catalog: fetch page")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("catalog: page status %d for %s", resp.StatusCode, pageURL)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", resilience.NewPermanentError(err)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "catalog: parse page")
	}

	for _, sel := range descriptionSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if content, ok := node.Attr("content"); ok {
			if text := strings.TrimSpace(content); text != "" {
				return text, nil
			}
			continue
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text, nil
		}
	}
	return "", nil
}
