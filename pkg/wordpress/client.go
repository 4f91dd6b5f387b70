// Package wordpress is the client for the WordPress REST API used as the
// publication target. Posts are created as scheduled ("future") entries with
// an explicit publication date, or as drafts when an item needs review.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/aozora-lab/poster-cli/internal/resilience"
)

// Post statuses accepted by the API.
const (
	StatusFuture  = "future"
	StatusDraft   = "draft"
	StatusPublish = "publish"
)

// Client publishes and manages posts.
type Client interface {
	// CreatePost creates a post. When req.Date is set the post is scheduled
	// at that time; the date is sent in the site's local time.
	CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error)

	// UpdatePostStatus moves an existing post to a new status.
	UpdatePostStatus(ctx context.Context, id int, status string) (*Post, error)
}

// CreatePostRequest is the payload for POST /wp/v2/posts.
type CreatePostRequest struct {
	Title      string
	Content    string
	Excerpt    string
	Status     string
	Date       *time.Time
	Categories []int
	Tags       []int
}

// Post is the API's post representation, reduced to the fields we use.
type Post struct {
	ID     int    `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// NewClient creates a WordPress REST client. baseURL is the site root; the
// API prefix is appended internally. password is an application password.
func NewClient(baseURL, username, password string, opts ...Option) Client {
	c := &httpClient{
		baseURL:  baseURL,
		username: username,
		password: password,
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

type postPayload struct {
	Title      string `json:"title,omitempty"`
	Content    string `json:"content,omitempty"`
	Excerpt    string `json:"excerpt,omitempty"`
	Status     string `json:"status,omitempty"`
	Date       string `json:"date,omitempty"`
	Categories []int  `json:"categories,omitempty"`
	Tags       []int  `json:"tags,omitempty"`
}

func (c *httpClient) CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error) {
	payload := postPayload{
		Title:      req.Title,
		Content:    req.Content,
		Excerpt:    req.Excerpt,
		Status:     req.Status,
		Categories: req.Categories,
		Tags:       req.Tags,
	}
	if req.Date != nil {
		payload.Date = req.Date.Format("2006-01-02T15:04:05")
	}

	return c.send(ctx, c.baseURL+"/wp-json/wp/v2/posts", payload)
}

func (c *httpClient) UpdatePostStatus(ctx context.Context, id int, status string) (*Post, error) {
	return c.send(ctx, fmt.Sprintf("%s/wp-json/wp/v2/posts/%d", c.baseURL, id), postPayload{Status: status})
}

func (c *httpClient) send(ctx context.Context, url string, payload postPayload) (*Post, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "wordpress: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "wordpress: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wordpress: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wordpress: read response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err := eris.Errorf("wordpress: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, resilience.NewPermanentError(err)
	}

	var post Post
	if err := json.Unmarshal(respBody, &post); err != nil {
		return nil, eris.Wrap(err, "wordpress: unmarshal response")
	}
	return &post, nil
}
