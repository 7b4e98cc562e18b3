package timers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
)

// openTestRepository creates a throwaway sqlite database for one test.
func openTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := Open(filepath.Join(t.TempDir(), "timers.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, repo.Close())
	})

	return repo
}

// sampleTimer builds a valid timer with distinct field values.
func sampleTimer(id string, status timer.Status) *timer.Timer {
	created := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

	return &timer.Timer{
		ID:                id,
		DeviceID:          "kitchen-satellite",
		Class:             timer.ClassTimer,
		Name:              "Pasta",
		SpokenSentence:    "ten minutes",
		CreatedAt:         created,
		ExpiresAt:         created.Add(10 * time.Minute),
		OriginalExpiresAt: created.Add(10 * time.Minute),
		PreExpireWarning:  10 * time.Second,
		FromDuration:      true,
		Status:            status,
	}
}

// TestSQLiteRepository_SaveAndLoadAll round-trips timers through the database.
func TestSQLiteRepository_SaveAndLoadAll(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t)
	ctx := context.Background()

	first := sampleTimer("t-1", timer.StatusScheduled)
	second := sampleTimer("t-2", timer.StatusScheduled)
	second.Name = "Tea"

	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	loaded, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// Creation order is preserved and fields survive the round trip.
	require.Equal(t, first, loaded[0])
	require.Equal(t, "Tea", loaded[1].Name)
}

// TestSQLiteRepository_SaveUpdatesExisting verifies the upsert path used on
// status transitions and snooze rescheduling.
func TestSQLiteRepository_SaveUpdatesExisting(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t)
	ctx := context.Background()

	original := sampleTimer("t-1", timer.StatusScheduled)
	require.NoError(t, repo.Save(ctx, original))

	fired := original.Clone()
	fired.Status = timer.StatusExpired
	require.NoError(t, repo.Save(ctx, fired))

	loaded, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, timer.StatusExpired, loaded[0].Status)
}

// TestSQLiteRepository_Delete removes rows and tolerates absent ids.
func TestSQLiteRepository_Delete(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleTimer("t-1", timer.StatusScheduled)))
	require.NoError(t, repo.Delete(ctx, "t-1"))
	require.NoError(t, repo.Delete(ctx, "t-1"))

	loaded, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded)
}

// TestSQLiteRepository_PurgeTerminal removes old terminal rows and keeps the rest.
func TestSQLiteRepository_PurgeTerminal(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t)
	ctx := context.Background()

	oldExpired := sampleTimer("t-old", timer.StatusExpired)
	oldCanceled := sampleTimer("t-gone", timer.StatusCanceled)
	scheduled := sampleTimer("t-live", timer.StatusScheduled)

	fresh := sampleTimer("t-fresh", timer.StatusExpired)
	fresh.ExpiresAt = fresh.ExpiresAt.Add(48 * time.Hour)

	for _, entry := range []*timer.Timer{oldExpired, oldCanceled, scheduled, fresh} {
		require.NoError(t, repo.Save(ctx, entry))
	}

	cutoff := oldExpired.ExpiresAt.Add(time.Hour)

	removed, err := repo.PurgeTerminal(ctx, cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	loaded, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	ids := []string{loaded[0].ID, loaded[1].ID}
	require.ElementsMatch(t, []string{"t-live", "t-fresh"}, ids)
}
