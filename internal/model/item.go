package model

// CatalogItem represents a discoverable catalog entry. The ContentID is the
// stable external identifier used as the dedup key; items are immutable once
// fetched within a run.
type CatalogItem struct {
	ContentID   string            `json:"content_id"`
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	ImageURL    string            `json:"image_url,omitempty"`
	SampleURLs  []string          `json:"sample_urls,omitempty"`
	MakerName   string            `json:"maker_name,omitempty"`
	Genres      []string          `json:"genres,omitempty"`
	Description string            `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}
