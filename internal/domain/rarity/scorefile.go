// internal/domain/rarity/scorefile.go
package rarity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrInvalidScoreFile = errors.New("rarity: invalid score file")

// ScoreEntry はオフチェーンで算出した 1 アイテムのスコアです。
type ScoreEntry struct {
	Index uint64  `json:"index"`
	Score float64 `json:"score"`
}

// ScoreFile は {"rarityScores":[{"index":0,"score":12.5}, ...]} 形式のファイルです。
type ScoreFile struct {
	RarityScores []ScoreEntry `json:"rarityScores"`
}

// ParseScoreFile は JSON をデコードし、0 埋めの密なスコア配列を返します。
// スコアは切り捨てて 0..100 に収まっている必要があります。
func ParseScoreFile(data []byte) ([]byte, error) {
	var f ScoreFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScoreFile, err)
	}
	return f.Dense()
}

// Dense は最大 index + 1 の長さの配列に展開します。
func (f ScoreFile) Dense() ([]byte, error) {
	if len(f.RarityScores) == 0 {
		return []byte{}, nil
	}
	var maxIndex uint64
	for _, e := range f.RarityScores {
		if e.Index >= MaxScores {
			return nil, fmt.Errorf("%w: index %d exceeds capacity %d", ErrIndexOutOfBounds, e.Index, MaxScores)
		}
		if e.Index > maxIndex {
			maxIndex = e.Index
		}
	}
	out := make([]byte, maxIndex+1)
	for _, e := range f.RarityScores {
		s := math.Floor(e.Score)
		if math.IsNaN(s) || s < 0 || s > 100 {
			return nil, fmt.Errorf("%w: score %v at index %d is outside 0..100", ErrInvalidScoreFile, e.Score, e.Index)
		}
		out[e.Index] = uint8(s)
	}
	return out, nil
}

// Chunk は values を size ごとの [start, values) に分割します。
type Chunk struct {
	Start  uint64
	Values []byte
}

func ChunkScores(values []byte, size int) []Chunk {
	if size <= 0 {
		size = len(values)
	}
	var out []Chunk
	for i := 0; i < len(values); i += size {
		end := i + size
		if end > len(values) {
			end = len(values)
		}
		out = append(out, Chunk{Start: uint64(i), Values: values[i:end]})
	}
	return out
}
