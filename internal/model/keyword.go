package model

import "time"

// KeywordResult records how the last processing attempt for a keyword ended.
type KeywordResult string

const (
	KeywordResultNone    KeywordResult = "none"
	KeywordResultSuccess KeywordResult = "success"
	KeywordResultFailure KeywordResult = "failure"
)

// Keyword is a search term candidate for rotation. Enabled keywords compete
// on least-recently-processed ordering; a never-processed keyword
// (LastProcessedAt nil) always sorts first.
type Keyword struct {
	Text            string        `json:"text"`
	Enabled         bool          `json:"enabled"`
	LastProcessedAt *time.Time    `json:"last_processed_at,omitempty"`
	LastResult      KeywordResult `json:"last_result"`
}

// IsDefault reports whether this is the default-search sentinel returned when
// no keyword is enabled. The catalog client treats an empty term as an
// unfiltered latest-items search.
func (k *Keyword) IsDefault() bool {
	return k.Text == ""
}

// DefaultKeyword returns the sentinel used when the rotation has no enabled
// candidates.
func DefaultKeyword() *Keyword {
	return &Keyword{Enabled: true, LastResult: KeywordResultNone}
}
