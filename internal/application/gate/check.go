// internal/application/gate/check.go
package gate

import (
	"context"
	"strings"
)

// searchLimit は indices 未指定時に返す eligible の上限です。
const searchLimit = 100

type IndexScore struct {
	Index    uint64 `json:"index"`
	Score    uint8  `json:"score"`
	TierName string `json:"tierName"`
}

type CheckStats struct {
	TotalChecked  int     `json:"totalChecked"`
	EligibleCount int     `json:"eligibleCount"`
	AverageRarity float64 `json:"averageRarity"`
}

type CheckResult struct {
	Eligible   []IndexScore `json:"eligible"`
	Ineligible []IndexScore `json:"ineligible"`
	Missing    []uint64     `json:"missing,omitempty"`
	Stats      CheckStats   `json:"stats"`
}

// CheckIndices は複数 index をまとめて minScore と比較する参照用 API です（状態は変えません）。
// indices が空なら、テーブル先頭から minScore 以上のものを最大 searchLimit 件返します。
func (u *GateUsecase) CheckIndices(ctx context.Context, collectionKey string, indices []uint64, minScore uint8) (CheckResult, error) {
	t, err := u.repo.GetByCollection(ctx, strings.TrimSpace(collectionKey))
	if err != nil {
		return CheckResult{}, err
	}

	out := CheckResult{Eligible: []IndexScore{}, Ineligible: []IndexScore{}}
	var total float64

	if len(indices) == 0 {
		for i := 0; i < t.Len() && len(out.Eligible) < searchLimit; i++ {
			s, _ := t.Get(uint64(i))
			if s < minScore {
				continue
			}
			out.Eligible = append(out.Eligible, IndexScore{Index: uint64(i), Score: s, TierName: t.TierName(t.TierOf(s))})
			total += float64(s)
		}
		out.Stats = CheckStats{TotalChecked: len(out.Eligible), EligibleCount: len(out.Eligible)}
		if len(out.Eligible) > 0 {
			out.Stats.AverageRarity = total / float64(len(out.Eligible))
		}
		return out, nil
	}

	for _, idx := range indices {
		s, err := t.Get(idx)
		if err != nil {
			out.Missing = append(out.Missing, idx)
			continue
		}
		item := IndexScore{Index: idx, Score: s, TierName: t.TierName(t.TierOf(s))}
		if s >= minScore {
			out.Eligible = append(out.Eligible, item)
		} else {
			out.Ineligible = append(out.Ineligible, item)
		}
		total += float64(s)
	}
	out.Stats = CheckStats{TotalChecked: len(indices), EligibleCount: len(out.Eligible)}
	if len(indices) > 0 {
		out.Stats.AverageRarity = total / float64(len(indices))
	}
	return out, nil
}
