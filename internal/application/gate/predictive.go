// internal/application/gate/predictive.go
package gate

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/sha3"

	raritydom "raritygate/internal/domain/rarity"
)

// PredictiveResolver は (tree, counter) から次の asset アドレスを導出し、
// keccak256 → 先頭 8 バイト(big-endian) → テーブル長で剰余、で index を決めます。
//
// counter は呼び出し側が渡す値をそのまま信用します（外部プログラムの
// 可変カウンタは実行前に読めないため）。本番では introspection 経路を優先すること。
type PredictiveResolver struct {
	deriver AddressDeriver
}

func NewPredictiveResolver(deriver AddressDeriver) PredictiveResolver {
	return PredictiveResolver{deriver: deriver}
}

// Resolve は index と、導出した asset アドレス(base58)を返します。
func (r PredictiveResolver) Resolve(t raritydom.RarityTable, counter uint64) (ResolvedIndex, string, error) {
	n := uint64(t.Len())
	if n == 0 {
		return ResolvedIndex{}, "", raritydom.ErrNoRarityData
	}
	if r.deriver == nil {
		return ResolvedIndex{}, "", fmt.Errorf("%w: address deriver is not configured", raritydom.ErrResolutionFailed)
	}

	raw, asset, err := r.deriver.PredictAssetID(t.CollectionKey, counter)
	if err != nil {
		return ResolvedIndex{}, "", fmt.Errorf("%w: derive asset id: %v", raritydom.ErrResolutionFailed, err)
	}

	return ResolvedIndex{Index: slotOf(raw, n), Source: SourcePredicted}, asset, nil
}

// slotOf は keccak256(raw) の先頭 8 バイトを big-endian で読み、n で剰余を取ります。
func slotOf(raw []byte, n uint64) uint64 {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(raw)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]) % n
}
