// Package registry holds the deduplication ledger: the authoritative record
// of which catalog identifiers have been processed or scheduled. Reserve is
// the at-most-once admission gate the whole pipeline leans on.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aozora-lab/poster-cli/internal/model"
	"github.com/aozora-lab/poster-cli/internal/store"
)

// Registry is an in-memory view of the processing ledger with write-through
// persistence. A single Registry instance owns the ledger for a run; all
// methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	records  map[string]*model.ProcessingRecord
	admitted map[string]bool

	store   store.Store
	persist bool
	now     func() time.Time
}

// New creates a Registry backed by st. When persist is false (dry runs)
// mutations stay in memory only.
func New(st store.Store, persist bool) *Registry {
	return &Registry{
		records:  make(map[string]*model.ProcessingRecord),
		admitted: make(map[string]bool),
		store:    st,
		persist:  persist,
		now:      time.Now,
	}
}

// Load populates the in-memory view from the store. Must be called once
// before the first Reserve.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.store.ListRecords(ctx, store.RecordFilter{})
	if err != nil {
		return eris.Wrap(err, "registry: load")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range records {
		rec := records[i]
		r.records[rec.ContentID] = &rec
	}

	zap.L().Info("registry loaded", zap.Int("records", len(records)))
	return nil
}

// Lookup returns a copy of the record for the identifier, if one exists.
func (r *Registry) Lookup(contentID string) (*model.ProcessingRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[contentID]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// Reserve atomically admits the identifier for processing. Exactly one
// concurrent caller wins (returns true); every other caller, and any caller
// for an identifier that already reached a terminal or scheduled state, gets
// false. An identifier left unprocessed by a prior run (deferred when the
// day's slots ran out) is re-admitted once. Reserve is the only path that
// creates new identities.
func (r *Registry) Reserve(ctx context.Context, contentID, title string) (bool, error) {
	r.mu.Lock()
	if rec, exists := r.records[contentID]; exists {
		if rec.Status == model.StatusUnprocessed && !r.admitted[contentID] {
			r.admitted[contentID] = true
			r.mu.Unlock()
			return true, nil
		}
		r.mu.Unlock()
		return false, nil
	}

	rec := &model.ProcessingRecord{
		ContentID:     contentID,
		Title:         title,
		Status:        model.StatusUnprocessed,
		LastUpdatedAt: r.now().UTC(),
	}
	r.records[contentID] = rec
	r.admitted[contentID] = true
	r.mu.Unlock()

	if r.persist {
		if err := r.store.CreateRecord(ctx, rec); err != nil {
			// Roll back the admission so a later run can retry the item.
			r.mu.Lock()
			delete(r.records, contentID)
			delete(r.admitted, contentID)
			r.mu.Unlock()
			return false, eris.Wrapf(err, "registry: persist reservation %s", contentID)
		}
	}
	return true, nil
}

// Transition moves the identifier to a new status, validating against the
// state machine. Detail lands in error_detail for failed transitions.
func (r *Registry) Transition(ctx context.Context, contentID string, status model.RecordStatus, detail string) error {
	r.mu.Lock()
	rec, ok := r.records[contentID]
	if !ok {
		r.mu.Unlock()
		return eris.Errorf("registry: unknown identifier %s", contentID)
	}
	if !model.CanTransition(rec.Status, status) {
		from := rec.Status
		r.mu.Unlock()
		return eris.Errorf("registry: invalid transition %s -> %s for %s", from, status, contentID)
	}

	rec.Status = status
	rec.LastUpdatedAt = r.now().UTC()
	if status == model.StatusFailed {
		rec.ErrorDetail = detail
	}
	cp := *rec
	r.mu.Unlock()

	return r.save(ctx, &cp)
}

// MarkScheduled transitions to scheduled with the assigned slot time.
func (r *Registry) MarkScheduled(ctx context.Context, contentID string, at time.Time, publishedRef string) error {
	r.mu.Lock()
	rec, ok := r.records[contentID]
	if !ok {
		r.mu.Unlock()
		return eris.Errorf("registry: unknown identifier %s", contentID)
	}
	if !model.CanTransition(rec.Status, model.StatusScheduled) {
		from := rec.Status
		r.mu.Unlock()
		return eris.Errorf("registry: invalid transition %s -> scheduled for %s", from, contentID)
	}

	at = at.UTC()
	rec.Status = model.StatusScheduled
	rec.ScheduledAt = &at
	rec.PublishedReference = publishedRef
	rec.LastUpdatedAt = r.now().UTC()
	cp := *rec
	r.mu.Unlock()

	return r.save(ctx, &cp)
}

// MarkPublished records the external publication confirmation.
func (r *Registry) MarkPublished(ctx context.Context, contentID, publishedRef string) error {
	r.mu.Lock()
	rec, ok := r.records[contentID]
	if !ok {
		r.mu.Unlock()
		return eris.Errorf("registry: unknown identifier %s", contentID)
	}
	if !model.CanTransition(rec.Status, model.StatusPublished) {
		from := rec.Status
		r.mu.Unlock()
		return eris.Errorf("registry: invalid transition %s -> published for %s", from, contentID)
	}

	rec.Status = model.StatusPublished
	rec.PublishedReference = publishedRef
	rec.LastUpdatedAt = r.now().UTC()
	cp := *rec
	r.mu.Unlock()

	return r.save(ctx, &cp)
}

// MarkDraft transitions to the draft terminal state, keeping the published
// reference of the draft post.
func (r *Registry) MarkDraft(ctx context.Context, contentID, publishedRef string) error {
	r.mu.Lock()
	rec, ok := r.records[contentID]
	if !ok {
		r.mu.Unlock()
		return eris.Errorf("registry: unknown identifier %s", contentID)
	}
	if !model.CanTransition(rec.Status, model.StatusDraft) {
		from := rec.Status
		r.mu.Unlock()
		return eris.Errorf("registry: invalid transition %s -> draft for %s", from, contentID)
	}

	rec.Status = model.StatusDraft
	rec.PublishedReference = publishedRef
	rec.LastUpdatedAt = r.now().UTC()
	cp := *rec
	r.mu.Unlock()

	return r.save(ctx, &cp)
}

// Fail transitions to failed with the reason preserved for observability.
func (r *Registry) Fail(ctx context.Context, contentID, detail string) error {
	return r.Transition(ctx, contentID, model.StatusFailed, detail)
}

func (r *Registry) save(ctx context.Context, rec *model.ProcessingRecord) error {
	if !r.persist {
		return nil
	}
	return eris.Wrapf(r.store.UpdateRecord(ctx, rec), "registry: save %s", rec.ContentID)
}
