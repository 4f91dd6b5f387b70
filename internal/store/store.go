package store

import (
	"context"

	"github.com/aozora-lab/poster-cli/internal/model"
)

// RecordFilter specifies criteria for listing processing records. A Limit
// of zero or less means no limit; every driver honors that the same way.
type RecordFilter struct {
	Status model.RecordStatus `json:"status,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// Store defines the persistence interface backing the dedup ledger and the
// keyword rotation. It is the only state that survives across runs.
type Store interface {
	// Keywords
	LoadKeywords(ctx context.Context) ([]model.Keyword, error)
	SaveKeyword(ctx context.Context, kw *model.Keyword) error

	// Processing records
	GetRecord(ctx context.Context, contentID string) (*model.ProcessingRecord, error)
	CreateRecord(ctx context.Context, rec *model.ProcessingRecord) error
	UpdateRecord(ctx context.Context, rec *model.ProcessingRecord) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.ProcessingRecord, error)
	CountByStatus(ctx context.Context) (map[model.RecordStatus]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
