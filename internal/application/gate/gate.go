// internal/application/gate/gate.go
package gate

import (
	raritydom "raritygate/internal/domain/rarity"
)

// Decision は Rarity Gate の判定結果です。
type Decision struct {
	Index    uint64 `json:"index"`
	Source   string `json:"source"`
	Score    uint8  `json:"score"`
	MinScore uint8  `json:"minScore"`
	Tier     int    `json:"tier"`
	TierName string `json:"tierName"`
	Accepted bool   `json:"accepted"`
}

// Gate は resolved.Index のスコアを引き、minScore と比較します。
// 範囲外は ErrIndexOutOfBounds、score < minScore は *RejectError（ErrRarityBelowThreshold）。
// 状態は変更しません。
func Gate(t raritydom.RarityTable, resolved ResolvedIndex, minScore uint8) (Decision, error) {
	score, err := t.Get(resolved.Index)
	if err != nil {
		return Decision{}, err
	}
	tier := t.TierOf(score)
	d := Decision{
		Index:    resolved.Index,
		Source:   resolved.Source.String(),
		Score:    score,
		MinScore: minScore,
		Tier:     tier,
		TierName: t.TierName(tier),
	}
	if score < minScore {
		return d, &raritydom.RejectError{Index: resolved.Index, Score: score, MinScore: minScore}
	}
	d.Accepted = true
	return d, nil
}
