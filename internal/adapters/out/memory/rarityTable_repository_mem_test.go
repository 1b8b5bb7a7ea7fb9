package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	raritydom "raritygate/internal/domain/rarity"
)

func newTable(t *testing.T, coll string) raritydom.RarityTable {
	t.Helper()
	tbl, err := raritydom.NewRarityTable("id-"+coll, coll, "auth", 255, []uint8{50}, "menagerie", time.Unix(0, 0))
	require.NoError(t, err)
	return tbl
}

func TestMem_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewRarityTableRepositoryMem()

	_, err := repo.GetByCollection(ctx, "c1")
	assert.ErrorIs(t, err, raritydom.ErrTableNotFound)

	_, err = repo.Create(ctx, newTable(t, "c1"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newTable(t, "c1"))
	assert.ErrorIs(t, err, raritydom.ErrConflict)

	got, err := repo.GetByCollection(ctx, " c1 ")
	require.NoError(t, err)
	assert.Equal(t, "id-c1", got.ID)
}

func TestMem_UpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewRarityTableRepositoryMem()
	_, err := repo.Create(ctx, newTable(t, "c1"))
	require.NoError(t, err)

	_, err = repo.Update(ctx, "c1", func(tb *raritydom.RarityTable) error {
		return tb.Extend(0, []byte{1, 2, 3}, time.Now())
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = repo.Update(ctx, "c1", func(tb *raritydom.RarityTable) error {
		if err := tb.Extend(3, []byte{9, 9}, time.Now()); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.GetByCollection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())
}

func TestMem_ReturnedTableIsDetached(t *testing.T) {
	ctx := context.Background()
	repo := NewRarityTableRepositoryMem()
	_, err := repo.Create(ctx, newTable(t, "c1"))
	require.NoError(t, err)

	got, err := repo.GetByCollection(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, got.Extend(0, []byte{7}, time.Now()))
	got.Thresholds[0] = 1

	again, err := repo.GetByCollection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Len())
	assert.Equal(t, []uint8{50}, again.Thresholds)
}

func TestMem_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewRarityTableRepositoryMem()
	_, err := repo.Create(ctx, newTable(t, "c1"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Update(ctx, "c1", func(tb *raritydom.RarityTable) error {
				return tb.Extend(uint64(tb.Len()), []byte{1}, time.Now())
			})
		}()
	}
	wg.Wait()

	got, err := repo.GetByCollection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Len())
}

func TestMem_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRarityTableRepositoryMem().GetByCollection(ctx, "c1")
	assert.ErrorIs(t, err, context.Canceled)
}
