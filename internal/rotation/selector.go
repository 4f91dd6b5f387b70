// Package rotation selects which search keyword drives a discovery pass.
// Enabled keywords rotate on least-recently-processed order so no term
// starves while another monopolizes the catalog quota.
package rotation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aozora-lab/poster-cli/internal/model"
	"github.com/aozora-lab/poster-cli/internal/store"
)

// Selector owns the keyword pool for a run. Safe for concurrent use,
// though a run normally selects sequentially.
type Selector struct {
	mu       sync.Mutex
	keywords []model.Keyword

	store   store.Store
	persist bool
	now     func() time.Time
}

// New creates a Selector backed by st. When persist is false (dry runs)
// outcome bookkeeping stays in memory only.
func New(st store.Store, persist bool) *Selector {
	return &Selector{
		store:   st,
		persist: persist,
		now:     time.Now,
	}
}

// Load reads the keyword pool from the store. Must be called before Select.
func (s *Selector) Load(ctx context.Context) error {
	kws, err := s.store.LoadKeywords(ctx)
	if err != nil {
		return eris.Wrap(err, "rotation: load")
	}

	s.mu.Lock()
	s.keywords = kws
	s.mu.Unlock()

	zap.L().Info("keyword pool loaded", zap.Int("keywords", len(kws)))
	return nil
}

// Select returns the enabled keyword least recently processed. Keywords never
// processed win over any processed one; ties keep the pool's stored order.
// With no enabled keyword the default-search sentinel is returned, so a pass
// always has a term to run with.
func (s *Selector) Select() *model.Keyword {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]int, 0, len(s.keywords))
	for i := range s.keywords {
		if s.keywords[i].Enabled {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		zap.L().Debug("no enabled keywords, using default search")
		return model.DefaultKeyword()
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ka, kb := s.keywords[candidates[a]], s.keywords[candidates[b]]
		switch {
		case ka.LastProcessedAt == nil && kb.LastProcessedAt == nil:
			return false
		case ka.LastProcessedAt == nil:
			return true
		case kb.LastProcessedAt == nil:
			return false
		default:
			return ka.LastProcessedAt.Before(*kb.LastProcessedAt)
		}
	})

	cp := s.keywords[candidates[0]]
	return &cp
}

// RecordOutcome stamps the keyword with the pass result and the current time,
// regardless of success or failure, so the rotation always advances. Keywords
// without a pool entry (the default sentinel, a term forced on the command
// line) have nothing to stamp and are skipped.
func (s *Selector) RecordOutcome(ctx context.Context, kw *model.Keyword, result model.KeywordResult) error {
	if kw.IsDefault() {
		return nil
	}

	s.mu.Lock()
	var updated *model.Keyword
	for i := range s.keywords {
		if s.keywords[i].Text == kw.Text {
			now := s.now().UTC()
			s.keywords[i].LastProcessedAt = &now
			s.keywords[i].LastResult = result
			cp := s.keywords[i]
			updated = &cp
			break
		}
	}
	s.mu.Unlock()

	if updated == nil {
		zap.L().Debug("keyword not in rotation pool, outcome not recorded", zap.String("keyword", kw.Text))
		return nil
	}
	if !s.persist {
		return nil
	}
	return eris.Wrapf(s.store.SaveKeyword(ctx, updated), "rotation: save keyword %q", updated.Text)
}

// Keywords returns a snapshot of the pool.
func (s *Selector) Keywords() []model.Keyword {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Keyword, len(s.keywords))
	copy(out, s.keywords)
	return out
}

// Add appends a keyword to the pool and persists it. Used by the keyword
// management commands rather than the orchestration path.
func (s *Selector) Add(ctx context.Context, text string) error {
	if text == "" {
		return eris.New("rotation: keyword text required")
	}

	s.mu.Lock()
	for i := range s.keywords {
		if s.keywords[i].Text == text {
			s.mu.Unlock()
			return eris.Errorf("rotation: keyword %q already exists", text)
		}
	}
	kw := model.Keyword{Text: text, Enabled: true, LastResult: model.KeywordResultNone}
	s.keywords = append(s.keywords, kw)
	s.mu.Unlock()

	if !s.persist {
		return nil
	}
	return eris.Wrapf(s.store.SaveKeyword(ctx, &kw), "rotation: save keyword %q", text)
}

// SetEnabled toggles a keyword in the pool and persists the change.
func (s *Selector) SetEnabled(ctx context.Context, text string, enabled bool) error {
	s.mu.Lock()
	var updated *model.Keyword
	for i := range s.keywords {
		if s.keywords[i].Text == text {
			s.keywords[i].Enabled = enabled
			cp := s.keywords[i]
			updated = &cp
			break
		}
	}
	s.mu.Unlock()

	if updated == nil {
		return eris.Errorf("rotation: unknown keyword %q", text)
	}
	if !s.persist {
		return nil
	}
	return eris.Wrapf(s.store.SaveKeyword(ctx, updated), "rotation: save keyword %q", text)
}
