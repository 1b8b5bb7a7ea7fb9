// internal/domain/rarity/history.go
package rarity

import (
	"fmt"
	"strings"
	"time"
)

// MintRecord は解析済みミント 1 件の記録です。
type MintRecord struct {
	ID          string    `json:"id"`
	MintIndex   *uint64   `json:"mintIndex,omitempty"`
	AssetID     string    `json:"assetId"`
	MintCount   uint64    `json:"mintCount"`
	RarityScore *uint8    `json:"rarityScore,omitempty"`
	Minter      string    `json:"minter"`
	Timestamp   time.Time `json:"timestamp"`
}

// MintPattern は連続するミント index の差分の出現数です。
type MintPattern struct {
	Difference  uint64  `json:"difference"`
	Occurrences uint64  `json:"occurrences"`
	Probability float64 `json:"probability"`
}

// History は RarityTable と同じレコードに保存される追記専用ログです。
type History struct {
	TotalMints uint64        `json:"totalMints"`
	Records    []MintRecord  `json:"records"`
	Patterns   []MintPattern `json:"patterns"`
}

// Append は rec を追記し、直前の index 付きレコードとの差分でパターンを更新します。
// どちらかの上限を超える場合は何も変更せずに ErrHistoryFull を返します。
func (h *History) Append(rec MintRecord) error {
	if strings.TrimSpace(rec.Minter) == "" {
		return fmt.Errorf("%w: minter is empty", ErrInvalidAuthority)
	}
	if len(h.Records) >= MaxMintRecords {
		return fmt.Errorf("%w: %d records", ErrHistoryFull, MaxMintRecords)
	}

	diff, hasDiff := h.nextDifference(rec)
	patternAt := -1
	if hasDiff {
		for i := range h.Patterns {
			if h.Patterns[i].Difference == diff {
				patternAt = i
				break
			}
		}
		if patternAt < 0 && len(h.Patterns) >= MaxMintPatterns {
			return fmt.Errorf("%w: %d patterns", ErrHistoryFull, MaxMintPatterns)
		}
	}

	rec.Timestamp = rec.Timestamp.UTC()
	h.Records = append(h.Records, rec)
	h.TotalMints++

	if !hasDiff {
		return nil
	}
	if patternAt >= 0 {
		h.Patterns[patternAt].Occurrences++
	} else {
		h.Patterns = append(h.Patterns, MintPattern{Difference: diff, Occurrences: 1})
	}
	h.refreshProbabilities()
	return nil
}

func (h *History) nextDifference(rec MintRecord) (uint64, bool) {
	if rec.MintIndex == nil {
		return 0, false
	}
	for i := len(h.Records) - 1; i >= 0; i-- {
		prev := h.Records[i].MintIndex
		if prev == nil {
			continue
		}
		if *rec.MintIndex >= *prev {
			return *rec.MintIndex - *prev, true
		}
		return *prev - *rec.MintIndex, true
	}
	return 0, false
}

func (h *History) refreshProbabilities() {
	var total uint64
	for _, p := range h.Patterns {
		total += p.Occurrences
	}
	if total == 0 {
		return
	}
	for i := range h.Patterns {
		h.Patterns[i].Probability = float64(h.Patterns[i].Occurrences) / float64(total)
	}
}

func (h History) clone() History {
	c := History{TotalMints: h.TotalMints}
	if h.Records != nil {
		c.Records = append([]MintRecord(nil), h.Records...)
	}
	if h.Patterns != nil {
		c.Patterns = append([]MintPattern(nil), h.Patterns...)
	}
	return c
}
