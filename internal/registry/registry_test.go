package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aozora-lab/poster-cli/internal/model"
	"github.com/aozora-lab/poster-cli/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "reg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	r := New(st, true)
	require.NoError(t, r.Load(context.Background()))
	return r, st
}

func TestReserve_TrueThenFalse(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	ok, err := r.Reserve(ctx, "d_001", "item")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Reserve(ctx, "d_001", "item")
	require.NoError(t, err)
	assert.False(t, ok, "second reserve for the same identifier must lose")

	rec, found := r.Lookup("d_001")
	require.True(t, found)
	assert.Equal(t, model.StatusUnprocessed, rec.Status)
}

func TestReserve_ExactlyOneWinnerUnderConcurrency(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	const callers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Reserve(ctx, "contested", "item")
			require.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one caller may win the reservation")
}

func TestReserve_PersistsToStore(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	ok, err := r.Reserve(ctx, "d_002", "durable")
	require.NoError(t, err)
	require.True(t, ok)

	rec, err := st.GetRecord(ctx, "d_002")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.StatusUnprocessed, rec.Status)
	assert.Equal(t, "durable", rec.Title)
}

func TestLoad_SeesPriorRuns(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "reg.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	require.NoError(t, st.CreateRecord(ctx, &model.ProcessingRecord{
		ContentID:     "old",
		Status:        model.StatusPublished,
		LastUpdatedAt: time.Now().UTC(),
	}))

	r := New(st, true)
	require.NoError(t, r.Load(ctx))

	ok, err := r.Reserve(ctx, "old", "seen before")
	require.NoError(t, err)
	assert.False(t, ok, "identifiers from prior runs must not be re-admitted")
}

func TestLoad_SeesFullLedger(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "reg.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	// Several days of output, well past any driver paging size.
	const ledgerSize = 150
	for i := 0; i < ledgerSize; i++ {
		require.NoError(t, st.CreateRecord(ctx, &model.ProcessingRecord{
			ContentID:     fmt.Sprintf("old_%03d", i),
			Status:        model.StatusPublished,
			LastUpdatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	r := New(st, true)
	require.NoError(t, r.Load(ctx))

	ok, err := r.Reserve(ctx, "old_000", "oldest item")
	require.NoError(t, err)
	assert.False(t, ok, "the oldest ledger entry must still block re-admission")

	ok, err = r.Reserve(ctx, fmt.Sprintf("old_%03d", ledgerSize-1), "newest item")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReserve_ResumesDeferredFromPriorRun(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "reg.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	// A prior run reserved the item but the day's slots ran out before it
	// reached a terminal state.
	first := New(st, true)
	require.NoError(t, first.Load(ctx))
	ok, err := first.Reserve(ctx, "deferred", "item")
	require.NoError(t, err)
	require.True(t, ok)

	next := New(st, true)
	require.NoError(t, next.Load(ctx))

	ok, err = next.Reserve(ctx, "deferred", "item")
	require.NoError(t, err)
	assert.True(t, ok, "an unprocessed identifier must be re-admitted on the next run")

	ok, err = next.Reserve(ctx, "deferred", "item")
	require.NoError(t, err)
	assert.False(t, ok, "re-admission happens at most once per run")

	require.NoError(t, next.Transition(ctx, "deferred", model.StatusScheduled, ""))
}

func TestTransition_StateMachine(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Reserve(ctx, "d_003", "item")
	require.NoError(t, err)

	require.NoError(t, r.Transition(ctx, "d_003", model.StatusScheduled, ""))
	require.NoError(t, r.Transition(ctx, "d_003", model.StatusPublished, ""))

	// Published is terminal.
	assert.Error(t, r.Transition(ctx, "d_003", model.StatusFailed, "late failure"))
}

func TestTransition_RejectsInvalidAndUnknown(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	assert.Error(t, r.Transition(ctx, "nobody", model.StatusFailed, ""))

	_, err := r.Reserve(ctx, "d_004", "item")
	require.NoError(t, err)
	// unprocessed -> published is not allowed.
	assert.Error(t, r.Transition(ctx, "d_004", model.StatusPublished, ""))
}

func TestFail_RecordsDetail(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Reserve(ctx, "d_005", "item")
	require.NoError(t, err)
	require.NoError(t, r.Fail(ctx, "d_005", "both providers failed"))

	rec, err := st.GetRecord(ctx, "d_005")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, "both providers failed", rec.ErrorDetail)
}

func TestMarkScheduledAndDraft(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Reserve(ctx, "d_006", "item")
	require.NoError(t, err)
	slot := time.Date(2026, 9, 2, 0, 30, 0, 0, time.UTC)
	require.NoError(t, r.MarkScheduled(ctx, "d_006", slot, "wp:42"))

	rec, err := st.GetRecord(ctx, "d_006")
	require.NoError(t, err)
	require.NotNil(t, rec.ScheduledAt)
	assert.True(t, rec.ScheduledAt.Equal(slot))
	assert.Equal(t, "wp:42", rec.PublishedReference)

	_, err = r.Reserve(ctx, "d_007", "item")
	require.NoError(t, err)
	require.NoError(t, r.MarkDraft(ctx, "d_007", "wp:43"))

	rec, err = st.GetRecord(ctx, "d_007")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, rec.Status)
}

func TestDryRun_NoWriteThrough(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "reg.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	r := New(st, false)
	require.NoError(t, r.Load(ctx))

	ok, err := r.Reserve(ctx, "d_008", "ephemeral")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.Fail(ctx, "d_008", "dry"))

	rec, err := st.GetRecord(ctx, "d_008")
	require.NoError(t, err)
	assert.Nil(t, rec, "dry run must leave the store untouched")
}
