package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	raritydom "raritygate/internal/domain/rarity"
)

func TestPredictive_Deterministic(t *testing.T) {
	tbl := tableWithScores(t, make([]byte, 1000))
	r := NewPredictiveResolver(fakeDeriver{})

	first, asset, err := r.Resolve(tbl, 7)
	require.NoError(t, err)
	assert.Equal(t, SourcePredicted, first.Source)
	assert.Less(t, first.Index, uint64(1000))
	assert.NotEmpty(t, asset)

	second, asset2, err := r.Resolve(tbl, 7)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, asset, asset2)

	raw, _, _ := fakeDeriver{}.PredictAssetID("coll", 7)
	assert.Equal(t, slotOf(raw, 1000), first.Index)
}

func TestPredictive_SpreadsAcrossTable(t *testing.T) {
	tbl := tableWithScores(t, make([]byte, 10))
	r := NewPredictiveResolver(fakeDeriver{})

	seen := map[uint64]bool{}
	for c := uint64(0); c < 200; c++ {
		ri, _, err := r.Resolve(tbl, c)
		require.NoError(t, err)
		require.Less(t, ri.Index, uint64(10))
		seen[ri.Index] = true
	}
	assert.Greater(t, len(seen), 5)
}

func TestPredictive_EmptyTable(t *testing.T) {
	_, _, err := NewPredictiveResolver(fakeDeriver{}).Resolve(tableWithScores(t, nil), 1)
	assert.ErrorIs(t, err, raritydom.ErrNoRarityData)
}

func TestPredictive_NoDeriver(t *testing.T) {
	_, _, err := NewPredictiveResolver(nil).Resolve(tableWithScores(t, []byte{1}), 1)
	assert.ErrorIs(t, err, raritydom.ErrResolutionFailed)
}

func TestSlotOf_BigEndianPrefix(t *testing.T) {
	// keccak256("") = c5d2460186f7233c...
	assert.Equal(t, uint64(0xc5d2460186f7233c)%97, slotOf(nil, 97))
	assert.Equal(t, uint64(0), slotOf([]byte("x"), 1))
}
