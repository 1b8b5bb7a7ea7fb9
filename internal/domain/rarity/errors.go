// internal/domain/rarity/errors.go
package rarity

import (
	"errors"
	"fmt"
)

// ------------------------------------------------------
// Errors
// ------------------------------------------------------
//
// 失敗はすべて fail-closed。呼び出し側はどのエラーでも
// 「ミントを含むトランザクション全体を送らない」扱いにする。

var (
	ErrIndexOutOfBounds     = errors.New("rarity: index out of bounds")
	ErrNoRarityData         = errors.New("rarity: no rarity data available")
	ErrRarityBelowThreshold = errors.New("rarity: rarity below specified threshold")
	ErrResolutionFailed     = errors.New("rarity: mint index resolution failed")
	ErrNotFound             = errors.New("rarity: co-instruction not found")
	ErrUnauthorizedUpdate   = errors.New("rarity: unauthorized update")

	ErrInvalidThresholds   = errors.New("rarity: invalid thresholds")
	ErrInvalidCollection   = errors.New("rarity: invalid collection key")
	ErrInvalidAuthority    = errors.New("rarity: invalid authority")
	ErrTableNotFound       = errors.New("rarity: table not found")
	ErrConflict            = errors.New("rarity: table already exists")
	ErrHistoryFull         = errors.New("rarity: mint history capacity exceeded")
	ErrUnrecognizedPayload = fmt.Errorf("unrecognized instruction discriminator: %w", ErrResolutionFailed)
)

// RejectError は ErrRarityBelowThreshold に実際のスコアを添えたものです。
// errors.Is(err, ErrRarityBelowThreshold) で判定できます。
type RejectError struct {
	Index    uint64
	Score    uint8
	MinScore uint8
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("rarity: index %d has score %d below threshold %d", e.Index, e.Score, e.MinScore)
}

func (e *RejectError) Unwrap() error {
	return ErrRarityBelowThreshold
}
