package changes

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
	"github.com/Guizzs26/game_rsvp_bot/internal/store"
)

const threshold = 15 * time.Minute

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func game(uid string, start time.Time) model.Game {
	return model.Game{UID: uid, TeamName: "Otters", StartTime: start, LastKnownStartTime: start, Summary: "Wolves @ Otters"}
}

func kinds(changes []Change) map[string]Kind {
	out := make(map[string]Kind, len(changes))
	for _, c := range changes {
		out[c.Game.UID] = c.Kind
	}
	return out
}

func TestClassify(t *testing.T) {
	base := now.Add(72 * time.Hour)
	stored := []model.Game{
		game("same", base),
		game("jitter", base),
		game("later", base),
		game("earlier", base),
		game("vanished", base),
		game("played", now.Add(-time.Hour)),
	}
	flagged := game("flagged", base)
	flagged.Missing = true
	stored = append(stored, flagged)

	candidates := []model.Game{
		game("same", base),
		game("jitter", base.Add(10*time.Minute)),
		game("later", base.Add(30*time.Minute)),
		game("earlier", base.Add(-2*time.Hour)),
		game("fresh", base),
	}

	got := Classify(candidates, stored, now, threshold)
	assert.Equal(t, map[string]Kind{
		"same":     Unchanged,
		"jitter":   Unchanged,
		"later":    TimeChanged,
		"earlier":  TimeChanged,
		"fresh":    New,
		"vanished": Missing,
	}, kinds(got))

	for _, c := range got {
		switch c.Game.UID {
		case "later":
			assert.Equal(t, Later, c.Direction)
			assert.True(t, c.Old.Equal(base))
			assert.True(t, c.New.Equal(base.Add(30*time.Minute)))
		case "earlier":
			assert.Equal(t, Earlier, c.Direction)
		case "jitter":
			assert.True(t, c.Game.LastKnownStartTime.Equal(base), "jitter must not move the accepted time")
		}
	}
}

func TestClassify_ThresholdIsInclusive(t *testing.T) {
	base := now.Add(72 * time.Hour)
	got := Classify([]model.Game{game("g", base.Add(threshold))}, []model.Game{game("g", base)}, now, threshold)
	require.Len(t, got, 1)
	assert.Equal(t, Unchanged, got[0].Kind)
}

func newLedger(t *testing.T) *store.Ledger {
	t.Helper()
	l, err := store.OpenLedger(context.Background(), filepath.Join(t.TempDir(), "rsvp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestDetect_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	d := NewDetector(l, threshold)

	start := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	snapshot := []model.Game{game("g1", start), game("g2", start.Add(24*time.Hour))}

	first, err := d.Detect(ctx, "Otters", snapshot)
	require.NoError(t, err)
	assert.Len(t, Filter(first, New), 2)

	for i := 0; i < 3; i++ {
		again, err := d.Detect(ctx, "Otters", snapshot)
		require.NoError(t, err)
		assert.Len(t, Filter(again, Unchanged), 2)
		assert.Empty(t, Filter(again, New))
		assert.Empty(t, Filter(again, TimeChanged))
	}
}

func TestDetect_TimeChangeReportedOnce(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	d := NewDetector(l, threshold)

	start := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	_, err := d.Detect(ctx, "Otters", []model.Game{game("g1", start)})
	require.NoError(t, err)

	moved := []model.Game{game("g1", start.Add(30*time.Minute))}
	got, err := d.Detect(ctx, "Otters", moved)
	require.NoError(t, err)
	changed := Filter(got, TimeChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, Later, changed[0].Direction)
	assert.True(t, changed[0].Game.LastKnownStartTime.Equal(start.Add(30*time.Minute)))

	got, err = d.Detect(ctx, "Otters", moved)
	require.NoError(t, err)
	assert.Empty(t, Filter(got, TimeChanged))
}

func TestDetect_ConcurrentDetectorsAnnounceOnce(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	start := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	_, err := NewDetector(l, threshold).Detect(ctx, "Otters", []model.Game{game("g1", start)})
	require.NoError(t, err)

	stored, err := l.ListGamesByTeam(ctx, "Otters")
	require.NoError(t, err)
	moved := []model.Game{game("g1", start.Add(time.Hour))}
	classified := Classify(moved, stored, time.Now(), threshold)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := NewDetector(l, threshold).Apply(ctx, classified)
			assert.NoError(t, err)
			mu.Lock()
			count += len(Filter(applied, TimeChanged))
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, count)
}

func TestDetect_MissingAndReappearing(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	d := NewDetector(l, threshold)

	start := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	g := game("g1", start)
	_, err := d.Detect(ctx, "Otters", []model.Game{g})
	require.NoError(t, err)

	got, err := d.Detect(ctx, "Otters", nil)
	require.NoError(t, err)
	require.Len(t, Filter(got, Missing), 1)

	got, err = d.Detect(ctx, "Otters", nil)
	require.NoError(t, err)
	assert.Empty(t, got, "a flagged game is reported missing once")

	_, err = d.Detect(ctx, "Otters", []model.Game{g})
	require.NoError(t, err)
	stored, err := l.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, stored.Missing)
}

func TestApply_DuplicateInsertIsDropped(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	d := NewDetector(l, threshold)

	g := game("g1", time.Now().Add(72*time.Hour))
	applied, err := d.Apply(ctx, []Change{{Kind: New, Game: g}, {Kind: New, Game: g}})
	require.NoError(t, err)
	assert.Len(t, applied, 1)
}
