package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/aozora-lab/poster-cli/internal/model"
)

const (
	keywordSheet = "keywords"
	recordSheet  = "records"
)

// SheetsStore implements Store on a Google Spreadsheet: one tab for the
// keyword rotation, one for the processing ledger. Row positions are cached
// per content_id so updates touch a single range.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string

	mu         sync.Mutex
	recordRows map[string]int // content_id -> 1-based sheet row
}

// NewSheets creates a SheetsStore using a service-account credentials file.
func NewSheets(ctx context.Context, spreadsheetID, credentialsFile string) (*SheetsStore, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: new service")
	}
	return &SheetsStore{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		recordRows:    make(map[string]int),
	}, nil
}

// Migrate ensures both tabs exist with header rows.
func (s *SheetsStore) Migrate(ctx context.Context) error {
	doc, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return eris.Wrap(err, "sheets: get spreadsheet")
	}

	existing := make(map[string]bool)
	for _, sh := range doc.Sheets {
		existing[sh.Properties.Title] = true
	}

	var requests []*sheets.Request
	for _, title := range []string{keywordSheet, recordSheet} {
		if !existing[title] {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: title},
				},
			})
		}
	}
	if len(requests) > 0 {
		_, err = s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: requests,
		}).Context(ctx).Do()
		if err != nil {
			return eris.Wrap(err, "sheets: add tabs")
		}
	}

	headers := map[string][]any{
		keywordSheet: {"text", "enabled", "last_processed_at", "last_result"},
		recordSheet:  {"content_id", "title", "status", "scheduled_at", "published_ref", "error_detail", "last_updated_at"},
	}
	for tab, header := range headers {
		_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, tab+"!A1", &sheets.ValueRange{
			Values: [][]any{header},
		}).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return eris.Wrapf(err, "sheets: write %s header", tab)
		}
	}
	return nil
}

func (s *SheetsStore) Close() error {
	return nil
}

func (s *SheetsStore) LoadKeywords(ctx context.Context) ([]model.Keyword, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, keywordSheet+"!A2:D").Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrap(err, "sheets: load keywords")
	}

	var keywords []model.Keyword
	for i, row := range resp.Values {
		if len(row) == 0 || cell(row, 0) == "" {
			continue
		}
		kw := model.Keyword{
			Text:       cell(row, 0),
			Enabled:    strings.EqualFold(cell(row, 1), "true"),
			LastResult: model.KeywordResult(cell(row, 3)),
		}
		if kw.LastResult == "" {
			kw.LastResult = model.KeywordResultNone
		}
		if raw := cell(row, 2); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, eris.Wrapf(err, "sheets: keyword row %d bad timestamp %q", i+2, raw)
			}
			kw.LastProcessedAt = &t
		}
		keywords = append(keywords, kw)
	}
	return keywords, nil
}

func (s *SheetsStore) SaveKeyword(ctx context.Context, kw *model.Keyword) error {
	row, err := s.findRow(ctx, keywordSheet, kw.Text)
	if err != nil {
		return err
	}

	values := [][]any{{kw.Text, fmt.Sprintf("%t", kw.Enabled), timeCell(kw.LastProcessedAt), string(kw.LastResult)}}
	if row == 0 {
		_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, keywordSheet+"!A:D", &sheets.ValueRange{
			Values: values,
		}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		return eris.Wrapf(err, "sheets: append keyword %q", kw.Text)
	}

	rng := fmt.Sprintf("%s!A%d:D%d", keywordSheet, row, row)
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	return eris.Wrapf(err, "sheets: update keyword %q", kw.Text)
}

func (s *SheetsStore) GetRecord(ctx context.Context, contentID string) (*model.ProcessingRecord, error) {
	records, err := s.ListRecords(ctx, RecordFilter{})
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ContentID == contentID {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (s *SheetsStore) CreateRecord(ctx context.Context, rec *model.ProcessingRecord) error {
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, recordSheet+"!A:G", &sheets.ValueRange{
		Values: [][]any{recordRow(rec)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return eris.Wrapf(err, "sheets: append record %s", rec.ContentID)
	}

	s.mu.Lock()
	delete(s.recordRows, rec.ContentID) // row position re-resolved on next lookup
	s.mu.Unlock()
	return nil
}

func (s *SheetsStore) UpdateRecord(ctx context.Context, rec *model.ProcessingRecord) error {
	s.mu.Lock()
	row := s.recordRows[rec.ContentID]
	s.mu.Unlock()

	if row == 0 {
		var err error
		row, err = s.findRow(ctx, recordSheet, rec.ContentID)
		if err != nil {
			return err
		}
		if row == 0 {
			return eris.Errorf("record not found: %s", rec.ContentID)
		}
		s.mu.Lock()
		s.recordRows[rec.ContentID] = row
		s.mu.Unlock()
	}

	rng := fmt.Sprintf("%s!A%d:G%d", recordSheet, row, row)
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]any{recordRow(rec)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return eris.Wrapf(err, "sheets: update record %s", rec.ContentID)
}

func (s *SheetsStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ProcessingRecord, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, recordSheet+"!A2:G").Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrap(err, "sheets: list records")
	}

	var records []model.ProcessingRecord
	for i, row := range resp.Values {
		if len(row) == 0 || cell(row, 0) == "" {
			continue
		}
		rec := model.ProcessingRecord{
			ContentID:          cell(row, 0),
			Title:              cell(row, 1),
			Status:             model.RecordStatus(cell(row, 2)),
			PublishedReference: cell(row, 4),
			ErrorDetail:        cell(row, 5),
		}
		if raw := cell(row, 3); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, eris.Wrapf(err, "sheets: record row %d bad scheduled_at %q", i+2, raw)
			}
			rec.ScheduledAt = &t
		}
		if raw := cell(row, 6); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, eris.Wrapf(err, "sheets: record row %d bad last_updated_at %q", i+2, raw)
			}
			rec.LastUpdatedAt = t
		}

		s.mu.Lock()
		s.recordRows[rec.ContentID] = i + 2
		s.mu.Unlock()

		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		records = append(records, rec)
	}

	if filter.Offset > 0 && filter.Offset < len(records) {
		records = records[filter.Offset:]
	}
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

func (s *SheetsStore) CountByStatus(ctx context.Context) (map[model.RecordStatus]int, error) {
	records, err := s.ListRecords(ctx, RecordFilter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[model.RecordStatus]int)
	for _, rec := range records {
		counts[rec.Status]++
	}
	return counts, nil
}

// findRow returns the 1-based row whose first column equals key, 0 if absent.
func (s *SheetsStore) findRow(ctx context.Context, tab, key string) (int, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, tab+"!A2:A").Context(ctx).Do()
	if err != nil {
		return 0, eris.Wrapf(err, "sheets: scan %s keys", tab)
	}
	for i, row := range resp.Values {
		if cell(row, 0) == key {
			return i + 2, nil
		}
	}
	return 0, nil
}

func recordRow(rec *model.ProcessingRecord) []any {
	return []any{
		rec.ContentID,
		rec.Title,
		string(rec.Status),
		timeCell(rec.ScheduledAt),
		rec.PublishedReference,
		rec.ErrorDetail,
		rec.LastUpdatedAt.UTC().Format(time.RFC3339),
	}
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func cell(row []any, i int) string {
	if i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return strings.TrimSpace(s)
}
