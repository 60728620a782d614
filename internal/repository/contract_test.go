package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/iago/report-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repositoryFactory func(t *testing.T, generator IDGenerator) ReportsRepository

// sequenceIDs replays ids in order and then keeps returning the last one.
func sequenceIDs(ids ...int) IDGenerator {
	var mu sync.Mutex
	index := 0
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		id := ids[index]
		if index < len(ids)-1 {
			index++
		}
		return id
	}
}

func runRepositoryContract(t *testing.T, newRepo repositoryFactory) {
	t.Run("create starts pending", func(t *testing.T) {
		repo := newRepo(t, sequenceIDs(1234))
		report, err := repo.Create(context.Background(), "U1", "Alice", "Gate-3")
		require.NoError(t, err)

		assert.Equal(t, 1234, report.ReportID)
		assert.Equal(t, domain.ReportStatusPending, report.Status)
		assert.False(t, report.CreatedAt.IsZero())
		assert.Nil(t, report.CompletedAt)

		loaded, err := repo.GetPendingByID(context.Background(), 1234)
		require.NoError(t, err)
		assert.Equal(t, "U1", loaded.ReporterID)
		assert.Equal(t, "Alice", loaded.DisplayName)
		assert.Equal(t, "Gate-3", loaded.PointID)
	})

	t.Run("create retries on id collision", func(t *testing.T) {
		repo := newRepo(t, sequenceIDs(1111, 1111, 2222))
		first, err := repo.Create(context.Background(), "U1", "Alice", "Gate-1")
		require.NoError(t, err)
		second, err := repo.Create(context.Background(), "U2", "Bob", "Gate-2")
		require.NoError(t, err)

		assert.Equal(t, 1111, first.ReportID)
		assert.Equal(t, 2222, second.ReportID)
	})

	t.Run("create gives up after bounded collisions", func(t *testing.T) {
		repo := newRepo(t, sequenceIDs(3333))
		_, err := repo.Create(context.Background(), "U1", "Alice", "Gate-1")
		require.NoError(t, err)

		_, err = repo.Create(context.Background(), "U2", "Bob", "Gate-2")
		var storageErr *domain.StorageError
		require.True(t, errors.As(err, &storageErr))
	})

	t.Run("complete is idempotent", func(t *testing.T) {
		repo := newRepo(t, sequenceIDs(4000))
		_, err := repo.Create(context.Background(), "U1", "Alice", "Gate-3")
		require.NoError(t, err)

		changed, err := repo.Complete(context.Background(), 4000)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = repo.Complete(context.Background(), 4000)
		require.NoError(t, err)
		assert.False(t, changed)

		_, err = repo.GetPendingByID(context.Background(), 4000)
		assert.ErrorIs(t, err, ErrNotFound)

		recent, err := repo.Recent(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, domain.ReportStatusCompleted, recent[0].Status)
		assert.NotNil(t, recent[0].CompletedAt)
	})

	t.Run("complete unknown id changes nothing", func(t *testing.T) {
		repo := newRepo(t, nil)
		changed, err := repo.Complete(context.Background(), 9999)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("out of range ids are not found", func(t *testing.T) {
		repo := newRepo(t, sequenceIDs(1234))
		_, err := repo.Create(context.Background(), "U1", "Alice", "Gate-3")
		require.NoError(t, err)

		for _, id := range []int{0, -1, 999, 10000, 3000000000} {
			_, err := repo.GetPendingByID(context.Background(), id)
			assert.ErrorIs(t, err, ErrNotFound, "id %d", id)

			changed, err := repo.Complete(context.Background(), id)
			require.NoError(t, err, "id %d", id)
			assert.False(t, changed, "id %d", id)
		}

		counts, err := repo.Counts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, counts.Pending)
	})

	t.Run("concurrent completes succeed once", func(t *testing.T) {
		repo := newRepo(t, sequenceIDs(5000))
		_, err := repo.Create(context.Background(), "U1", "Alice", "Gate-3")
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			changed atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.Complete(context.Background(), 5000)
				if err == nil && ok {
					changed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), changed.Load())
	})

	t.Run("latest pending skips completed", func(t *testing.T) {
		repo := newRepo(t, sequenceIDs(1001, 1002, 1003))
		for _, point := range []string{"A", "B", "C"} {
			_, err := repo.Create(context.Background(), "U1", "Alice", point)
			require.NoError(t, err)
		}

		latest, err := repo.GetLatestPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1003, latest.ReportID)

		_, err = repo.Complete(context.Background(), 1003)
		require.NoError(t, err)

		latest, err = repo.GetLatestPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1002, latest.ReportID)
	})

	t.Run("latest pending on empty ledger", func(t *testing.T) {
		repo := newRepo(t, nil)
		_, err := repo.GetLatestPending(context.Background())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("counts and recent window", func(t *testing.T) {
		repo := newRepo(t, sequenceIDs(2001, 2002, 2003, 2004, 2005, 2006, 2007))
		for i := 0; i < 7; i++ {
			_, err := repo.Create(context.Background(), "U1", "Alice", "Gate")
			require.NoError(t, err)
		}
		_, err := repo.Complete(context.Background(), 2002)
		require.NoError(t, err)
		_, err = repo.Complete(context.Background(), 2006)
		require.NoError(t, err)

		counts, err := repo.Counts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.ReportCounts{Total: 7, Pending: 5, Completed: 2}, counts)

		recent, err := repo.Recent(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, recent, 5)
		ids := make([]int, 0, len(recent))
		for _, report := range recent {
			ids = append(ids, report.ReportID)
		}
		assert.Equal(t, []int{2007, 2006, 2005, 2004, 2003}, ids)

		defaulted, err := repo.Recent(context.Background(), 0)
		require.NoError(t, err)
		assert.Len(t, defaulted, DefaultRecentLimit)
	})
}
