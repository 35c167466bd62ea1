package mempersistence_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/amanhasank/together-stream/internal/domain"
	mempersistence "github.com/amanhasank/together-stream/internal/infra/persistence/memory"
	"github.com/amanhasank/together-stream/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoomRepository_CreateAndGet(t *testing.T) {
	repo := mempersistence.NewMemoryRoomRepository()
	ctx := context.Background()

	room := domain.NewRoom("ROOM01", 10, time.Now())
	require.NoError(t, repo.Create(ctx, room))

	err := repo.Create(ctx, domain.NewRoom("ROOM01", 10, time.Now()))
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)

	got, err := repo.Get(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Equal(t, "ROOM01", got.ID)

	// 快照修改不影响存储
	got.MediaReference = "changed"
	again, err := repo.Get(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Empty(t, again.MediaReference)

	_, err = repo.Get(ctx, "NOPE")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	exists, err := repo.Exists(ctx, "ROOM01")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryRoomRepository_UpdateRollsBackOnError(t *testing.T) {
	repo := mempersistence.NewMemoryRoomRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, domain.NewRoom("ROOM01", 10, time.Now())))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "ROOM01", func(r *domain.Room) error {
		r.MediaReference = "half-applied"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.Get(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Empty(t, got.MediaReference)

	updated, err := repo.Update(ctx, "ROOM01", func(r *domain.Room) error {
		r.MediaReference = "v1"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "v1", updated.MediaReference)
	assert.Equal(t, uint64(1), updated.Version, "失败的修改不占用版本号")

	_, err = repo.Update(ctx, "NOPE", func(*domain.Room) error { return nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMemoryRoomRepository_ConcurrentUpdatesAreSerialized(t *testing.T) {
	repo := mempersistence.NewMemoryRoomRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, domain.NewRoom("ROOM01", 1000, time.Now())))

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := repo.Update(ctx, "ROOM01", func(r *domain.Room) error {
				r.History.Append(domain.HistoryEntry{ID: fmt.Sprintf("m%d", i)})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := repo.Get(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Equal(t, n, got.History.Len(), "并发追加不能丢失")
	assert.Equal(t, uint64(n), got.Version, "每次提交版本号加一")
}

func TestMemoryRoomRepository_DeleteIf(t *testing.T) {
	repo := mempersistence.NewMemoryRoomRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, domain.NewRoom("KEEP", 10, time.Now())))
	require.NoError(t, repo.Create(ctx, domain.NewRoom("DROP", 10, time.Now())))

	deleted, err := repo.DeleteIf(ctx, "KEEP", func(*domain.Room) bool { return false })
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.DeleteIf(ctx, "DROP", func(*domain.Room) bool { return true })
	require.NoError(t, err)
	assert.True(t, deleted)

	ids, err := repo.IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"KEEP"}, ids)

	deleted, err = repo.DeleteIf(ctx, "DROP", func(*domain.Room) bool { return true })
	require.NoError(t, err)
	assert.False(t, deleted)
}
