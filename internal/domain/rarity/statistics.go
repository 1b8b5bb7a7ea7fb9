// internal/domain/rarity/statistics.go
package rarity

import "sort"

const (
	topPatterns = 5
	topMinters  = 3
)

type TierStat struct {
	Tier     int    `json:"tier"`
	Name     string `json:"name"`
	MinScore uint8  `json:"minScore"`
	Count    uint64 `json:"count"`
}

type PatternStat struct {
	Difference  uint64  `json:"difference"`
	Occurrences uint64  `json:"occurrences"`
	Percent     float64 `json:"percent"`
}

type MinterStat struct {
	Minter string `json:"minter"`
	Count  uint64 `json:"count"`
}

// Statistics は get_statistics の読み取り専用レポートです。
type Statistics struct {
	CollectionKey     string        `json:"collectionKey"`
	TableLength       int           `json:"tableLength"`
	TotalMints        uint64        `json:"totalMints"`
	RecordsWithRarity int           `json:"recordsWithRarity"`
	Tiers             []TierStat    `json:"tiers,omitempty"`
	TopPatterns       []PatternStat `json:"topPatterns,omitempty"`
	TopMinters        []MinterStat  `json:"topMinters,omitempty"`
}

// Statistics は履歴から段位分布・差分パターン上位・ミンター上位を集計します。
func (t RarityTable) Statistics() Statistics {
	st := Statistics{
		CollectionKey: t.CollectionKey,
		TableLength:   t.Len(),
		TotalMints:    t.History.TotalMints,
	}

	for _, r := range t.History.Records {
		if r.RarityScore != nil {
			st.RecordsWithRarity++
		}
	}

	if len(t.Thresholds) > 0 {
		counts := make([]uint64, t.TierCount())
		for _, r := range t.History.Records {
			if r.RarityScore != nil {
				counts[t.TierOf(*r.RarityScore)]++
			}
		}
		for i, c := range counts {
			st.Tiers = append(st.Tiers, TierStat{
				Tier:     i,
				Name:     t.TierName(i),
				MinScore: t.TierMinScore(i),
				Count:    c,
			})
		}
	}

	if len(t.History.Patterns) > 0 {
		var total uint64
		for _, p := range t.History.Patterns {
			total += p.Occurrences
		}
		sorted := append([]MintPattern(nil), t.History.Patterns...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Occurrences > sorted[j].Occurrences
		})
		for i, p := range sorted {
			if i >= topPatterns {
				break
			}
			st.TopPatterns = append(st.TopPatterns, PatternStat{
				Difference:  p.Difference,
				Occurrences: p.Occurrences,
				Percent:     float64(p.Occurrences) / float64(total) * 100,
			})
		}
	}

	if len(t.History.Records) > 0 {
		byMinter := map[string]uint64{}
		for _, r := range t.History.Records {
			byMinter[r.Minter]++
		}
		minters := make([]MinterStat, 0, len(byMinter))
		for m, c := range byMinter {
			minters = append(minters, MinterStat{Minter: m, Count: c})
		}
		sort.Slice(minters, func(i, j int) bool {
			if minters[i].Count != minters[j].Count {
				return minters[i].Count > minters[j].Count
			}
			return minters[i].Minter < minters[j].Minter
		})
		if len(minters) > topMinters {
			minters = minters[:topMinters]
		}
		st.TopMinters = minters
	}

	return st
}
