// Package orchestrator drives a processing pass: keyword selection, catalog
// discovery, enrichment, and scheduled publication. It owns the stop
// conditions (daily capacity, batch exhaustion, error budget) while the
// collaborators own their individual semantics.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aozora-lab/poster-cli/internal/config"
	"github.com/aozora-lab/poster-cli/internal/enrich"
	"github.com/aozora-lab/poster-cli/internal/model"
	"github.com/aozora-lab/poster-cli/internal/monitoring"
	"github.com/aozora-lab/poster-cli/internal/registry"
	"github.com/aozora-lab/poster-cli/internal/resilience"
	"github.com/aozora-lab/poster-cli/internal/rotation"
	"github.com/aozora-lab/poster-cli/internal/schedule"
	"github.com/aozora-lab/poster-cli/pkg/catalog"
	"github.com/aozora-lab/poster-cli/pkg/wordpress"
)

// Provider names used for rate limiting.
const (
	providerCatalog   = "catalog"
	providerWordPress = "wordpress"
)

var errBudgetExceeded = eris.New("orchestrator: error budget exceeded")

// Deps bundles the collaborators an Orchestrator needs.
type Deps struct {
	Catalog   catalog.Client
	Merger    *enrich.Merger
	Registry  *registry.Registry
	Rotation  *rotation.Selector
	Publisher wordpress.Client
	Limiter   *resilience.Limiter
	Notifier  *monitoring.Notifier
}

// Orchestrator coordinates one or more passes against a shared schedule.
type Orchestrator struct {
	deps   Deps
	cfg    *config.Config
	loc    *time.Location
	dryRun bool
	now    func() time.Time
}

// PassOptions tune a single pass.
type PassOptions struct {
	// Keyword forces the search term instead of consulting the rotation.
	Keyword string

	// MaxItems caps the candidate batch. Zero means the configured batch size.
	MaxItems int
}

// PassResult summarizes what one pass did.
type PassResult struct {
	Keyword        string
	Candidates     int
	Scheduled      int
	Drafted        int
	Failed         int
	Duplicates     int
	SlotsRemaining int
	Duration       time.Duration
}

// New creates an Orchestrator. loc is the publication timezone from the
// schedule config; dryRun suppresses all outbound publication calls.
func New(deps Deps, cfg *config.Config, loc *time.Location, dryRun bool) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		loc:    loc,
		dryRun: dryRun,
		now:    time.Now,
	}
}

// NewScheduler builds the slot grid for the next calendar day.
func (o *Orchestrator) NewScheduler() *schedule.Scheduler {
	sc := o.cfg.Schedule
	return schedule.New(o.now(), o.loc, sc.SlotsPerDay,
		time.Duration(sc.CadenceMins)*time.Minute,
		time.Duration(sc.FirstSlotMins)*time.Minute,
	)
}

// RunPass executes one pass against the scheduler: select a keyword, fetch a
// candidate batch, process it with bounded concurrency. Per-item failures are
// recorded and absorbed; only setup-level failures (store unreachable, error
// budget exceeded) return an error.
func (o *Orchestrator) RunPass(ctx context.Context, sched *schedule.Scheduler, opts PassOptions) (*PassResult, error) {
	start := o.now()

	kw := o.selectKeyword(opts)
	result := &PassResult{Keyword: kw.Text}

	items, err := o.fetchBatch(ctx, kw, opts)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			zap.L().Info("no candidates for keyword", zap.String("keyword", kw.Text))
			if rerr := o.deps.Rotation.RecordOutcome(ctx, kw, model.KeywordResultFailure); rerr != nil {
				return nil, rerr
			}
			result.SlotsRemaining = sched.Remaining()
			result.Duration = o.now().Sub(start)
			return result, nil
		}
		o.deps.Notifier.NotifyFailure(ctx, kw.Text, err)
		return nil, eris.Wrapf(err, "orchestrator: fetch batch for %q", kw.Text)
	}
	result.Candidates = len(items)

	if err := o.processBatch(ctx, sched, items, result); err != nil {
		o.deps.Notifier.NotifyFailure(ctx, kw.Text, err)
		if rerr := o.deps.Rotation.RecordOutcome(ctx, kw, model.KeywordResultFailure); rerr != nil {
			zap.L().Error("failed to record keyword outcome", zap.Error(rerr))
		}
		return nil, err
	}

	outcome := model.KeywordResultSuccess
	if result.Scheduled == 0 && result.Drafted == 0 && result.Failed > 0 {
		outcome = model.KeywordResultFailure
	}
	if err := o.deps.Rotation.RecordOutcome(ctx, kw, outcome); err != nil {
		return nil, err
	}

	result.SlotsRemaining = sched.Remaining()
	result.Duration = o.now().Sub(start)

	zap.L().Info("pass finished",
		zap.String("keyword", kw.Text),
		zap.Int("candidates", result.Candidates),
		zap.Int("scheduled", result.Scheduled),
		zap.Int("drafted", result.Drafted),
		zap.Int("failed", result.Failed),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("slots_remaining", result.SlotsRemaining),
	)

	o.deps.Notifier.NotifySummary(ctx, monitoring.RunSummary{
		Keyword:    kw.Text,
		Candidates: result.Candidates,
		Scheduled:  result.Scheduled,
		Drafted:    result.Drafted,
		Failed:     result.Failed,
		Duplicates: result.Duplicates,
		SlotsLeft:  result.SlotsRemaining,
		Duration:   result.Duration,
		DryRun:     o.dryRun,
	})
	return result, nil
}

// RunDay runs passes until the day's slots are filled or a pass stops making
// progress. Returns the aggregated results of every pass that ran.
func (o *Orchestrator) RunDay(ctx context.Context, opts PassOptions) ([]*PassResult, error) {
	sched := o.NewScheduler()

	var results []*PassResult
	idle := 0
	for sched.Remaining() > 0 {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := o.RunPass(ctx, sched, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)

		// A pass that neither schedules nor drafts anything means the
		// keyword pool has nothing new; two in a row ends the day early.
		if res.Scheduled == 0 && res.Drafted == 0 {
			idle++
			if idle >= 2 {
				break
			}
		} else {
			idle = 0
		}
	}
	return results, nil
}

func (o *Orchestrator) selectKeyword(opts PassOptions) *model.Keyword {
	if opts.Keyword != "" {
		return &model.Keyword{Text: opts.Keyword, Enabled: true, LastResult: model.KeywordResultNone}
	}
	return o.deps.Rotation.Select()
}

func (o *Orchestrator) fetchBatch(ctx context.Context, kw *model.Keyword, opts PassOptions) ([]model.CatalogItem, error) {
	hits := opts.MaxItems
	if hits <= 0 {
		hits = o.cfg.Orchestrator.BatchSize
	}

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(providerCatalog, "search")

	return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.CatalogItem, error) {
		if err := o.deps.Limiter.Wait(ctx, providerCatalog); err != nil {
			return nil, err
		}
		return o.deps.Catalog.Search(ctx, catalog.SearchRequest{Keyword: kw.Text, Hits: hits})
	})
}

func (o *Orchestrator) processBatch(ctx context.Context, sched *schedule.Scheduler, items []model.CatalogItem, result *PassResult) error {
	var (
		mu          sync.Mutex
		capacityHit atomic.Bool
		failed      atomic.Int64
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Orchestrator.Concurrency)

	for i := range items {
		item := items[i]
		g.Go(func() error {
			if capacityHit.Load() {
				return nil
			}

			outcome, err := o.processItem(gCtx, sched, &item)
			if err != nil {
				return err
			}

			mu.Lock()
			switch outcome {
			case outcomeScheduled:
				result.Scheduled++
			case outcomeDrafted:
				result.Drafted++
			case outcomeDuplicate:
				result.Duplicates++
			case outcomeDeferred:
				capacityHit.Store(true)
			case outcomeFailed:
				result.Failed++
			}
			mu.Unlock()

			if outcome == outcomeFailed {
				if int(failed.Add(1)) > o.cfg.Orchestrator.ErrorBudget {
					return errBudgetExceeded
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "orchestrator: process batch")
	}
	return nil
}

type itemOutcome int

const (
	outcomeScheduled itemOutcome = iota
	outcomeDrafted
	outcomeDuplicate
	outcomeDeferred
	outcomeFailed
)

// processItem runs one candidate end to end. Only setup-level errors are
// returned; item-level failures are recorded on the ledger and reported as
// outcomeFailed.
func (o *Orchestrator) processItem(ctx context.Context, sched *schedule.Scheduler, item *model.CatalogItem) (itemOutcome, error) {
	log := zap.L().With(zap.String("content_id", item.ContentID))

	ok, err := o.deps.Registry.Reserve(ctx, item.ContentID, item.Title)
	if err != nil {
		return outcomeFailed, err
	}
	if !ok {
		log.Debug("duplicate identifier skipped")
		return outcomeDuplicate, nil
	}

	o.fillDescription(ctx, item, log)

	merged, err := o.deps.Merger.Enrich(ctx, item)
	if err != nil {
		log.Warn("enrichment failed", zap.Error(err))
		if ferr := o.deps.Registry.Fail(ctx, item.ContentID, eris.ToString(err, false)); ferr != nil {
			return outcomeFailed, ferr
		}
		return outcomeFailed, nil
	}

	if o.deps.Merger.ShouldPublish(merged) && o.deps.Merger.UsableName(merged) {
		return o.schedulePublication(ctx, sched, item, merged, log)
	}
	return o.draft(ctx, item, merged, log)
}

func (o *Orchestrator) schedulePublication(ctx context.Context, sched *schedule.Scheduler, item *model.CatalogItem, merged *model.MergedResult, log *zap.Logger) (itemOutcome, error) {
	slot, err := sched.Assign(item.ContentID)
	if err != nil {
		if errors.Is(err, schedule.ErrNoCapacity) {
			// Deferred, not dropped: the reservation stays unprocessed and
			// the next run re-admits it.
			log.Info("daily capacity reached, deferring item")
			return outcomeDeferred, nil
		}
		return outcomeFailed, err
	}

	ref := fmt.Sprintf("dry-run:%s", item.ContentID)
	if !o.dryRun {
		post, err := o.createPost(ctx, wordpress.CreatePostRequest{
			Title:      PostTitle(item, merged),
			Content:    PostBody(item, merged),
			Excerpt:    merged.CharacterName,
			Status:     wordpress.StatusFuture,
			Date:       timePtr(slot.In(o.loc)),
			Categories: o.categories(),
		})
		if err != nil {
			log.Warn("publication failed", zap.Error(err))
			if ferr := o.deps.Registry.Fail(ctx, item.ContentID, eris.ToString(err, false)); ferr != nil {
				return outcomeFailed, ferr
			}
			return outcomeFailed, nil
		}
		ref = fmt.Sprintf("wp:%d", post.ID)
	}

	if err := o.deps.Registry.MarkScheduled(ctx, item.ContentID, slot, ref); err != nil {
		return outcomeFailed, err
	}
	log.Info("item scheduled",
		zap.Time("slot", slot),
		zap.String("character", merged.CharacterName),
		zap.Int("confidence", merged.Confidence),
	)
	return outcomeScheduled, nil
}

func (o *Orchestrator) draft(ctx context.Context, item *model.CatalogItem, merged *model.MergedResult, log *zap.Logger) (itemOutcome, error) {
	ref := fmt.Sprintf("dry-run:%s", item.ContentID)
	if !o.dryRun {
		post, err := o.createPost(ctx, wordpress.CreatePostRequest{
			Title:      PostTitle(item, merged),
			Content:    PostBody(item, merged),
			Status:     wordpress.StatusDraft,
			Categories: o.categories(),
		})
		if err != nil {
			log.Warn("draft creation failed", zap.Error(err))
			if ferr := o.deps.Registry.Fail(ctx, item.ContentID, eris.ToString(err, false)); ferr != nil {
				return outcomeFailed, ferr
			}
			return outcomeFailed, nil
		}
		ref = fmt.Sprintf("wp:%d", post.ID)
	}

	if err := o.deps.Registry.MarkDraft(ctx, item.ContentID, ref); err != nil {
		return outcomeFailed, err
	}
	log.Info("item drafted for review", zap.Int("confidence", merged.Confidence))
	return outcomeDrafted, nil
}

func (o *Orchestrator) createPost(ctx context.Context, req wordpress.CreatePostRequest) (*wordpress.Post, error) {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(providerWordPress, "create_post")

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*wordpress.Post, error) {
		if err := o.deps.Limiter.Wait(ctx, providerWordPress); err != nil {
			return nil, err
		}
		return o.deps.Publisher.CreatePost(ctx, req)
	})
}

// fillDescription scrapes the detail page for the long-form description.
// Best effort: enrichment works from the title alone when the scrape fails.
func (o *Orchestrator) fillDescription(ctx context.Context, item *model.CatalogItem, log *zap.Logger) {
	if item.Description != "" || item.URL == "" {
		return
	}
	if err := o.deps.Limiter.Wait(ctx, providerCatalog); err != nil {
		return
	}
	desc, err := o.deps.Catalog.FetchDescription(ctx, item.URL)
	if err != nil {
		log.Debug("description scrape failed", zap.Error(err))
		return
	}
	item.Description = desc
}

func (o *Orchestrator) categories() []int {
	if o.cfg.WordPress.CategoryID > 0 {
		return []int{o.cfg.WordPress.CategoryID}
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
