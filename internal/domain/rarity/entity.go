// internal/domain/rarity/entity.go
package rarity

import (
	"fmt"
	"strings"
	"time"
)

// ------------------------------------------------------
// Capacity limits
// ------------------------------------------------------
//
// オンチェーン account のサイズ上限に合わせた固定値。
// 超過は切り詰めずにエラーにする。
const (
	MaxThresholds   = 50
	MaxScores       = 65535
	MaxMintRecords  = 1000
	MaxMintPatterns = 100
)

// ------------------------------------------------------
// ScoreBuffer: arena 形式のスコア配列
// ------------------------------------------------------

// ScoreBuffer は容量 MaxScores 固定のバッファと明示的な長さを持ちます。
// 長さは伸びるのみで縮みません。未書き込み領域は 0 です。
type ScoreBuffer struct {
	buf []byte
	n   int
}

// NewScoreBuffer は永続化済みのスコア列から ScoreBuffer を復元します。
func NewScoreBuffer(scores []byte) (ScoreBuffer, error) {
	var b ScoreBuffer
	if len(scores) == 0 {
		return b, nil
	}
	if len(scores) > MaxScores {
		return ScoreBuffer{}, fmt.Errorf("%w: %d scores exceeds capacity %d", ErrIndexOutOfBounds, len(scores), MaxScores)
	}
	b.alloc()
	copy(b.buf, scores)
	b.n = len(scores)
	return b, nil
}

func (b *ScoreBuffer) alloc() {
	if b.buf == nil {
		b.buf = make([]byte, MaxScores)
	}
}

// Len は書き込み済みの長さを返します。
func (b ScoreBuffer) Len() int { return b.n }

// At は index のスコアを返します。index >= Len() は ErrIndexOutOfBounds。
func (b ScoreBuffer) At(index uint64) (uint8, error) {
	if index >= uint64(b.n) {
		return 0, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfBounds, index, b.n)
	}
	return b.buf[index], nil
}

// Write は [start, start+len(values)) を上書きします。
// 容量を超える場合は何も書き換えずに ErrIndexOutOfBounds を返します。
func (b *ScoreBuffer) Write(start uint64, values []byte) error {
	if start > MaxScores || uint64(len(values)) > MaxScores-start {
		return fmt.Errorf("%w: range [%d, %d) exceeds capacity %d",
			ErrIndexOutOfBounds, start, start+uint64(len(values)), MaxScores)
	}
	end := int(start) + len(values)
	b.alloc()
	copy(b.buf[start:end], values)
	if end > b.n {
		b.n = end
	}
	return nil
}

// Bytes は書き込み済み領域のコピーを返します。
func (b ScoreBuffer) Bytes() []byte {
	out := make([]byte, b.n)
	if b.n > 0 {
		copy(out, b.buf[:b.n])
	}
	return out
}

func (b ScoreBuffer) clone() ScoreBuffer {
	if b.buf == nil {
		return ScoreBuffer{}
	}
	c := ScoreBuffer{buf: make([]byte, MaxScores), n: b.n}
	copy(c.buf, b.buf[:b.n])
	return c
}

// ------------------------------------------------------
// Entity: RarityTable (コレクション 1 件につき 1 レコード)
// ------------------------------------------------------
//
// - id             : string   // PDA(["nft-beater", collectionKey]) の base58
// - collectionKey  : string   // merkle tree / collection の base58
// - authority      : string   // 更新権限を持つ公開鍵 base58
// - bump           : uint8
// - mintProgram    : string   // introspection で照合する外部ミントプログラム名
// - thresholds     : []uint8  // 昇順
// - scores         : []uint8  // index -> 0..100
// - history        : History
type RarityTable struct {
	ID            string      `json:"id"`
	CollectionKey string      `json:"collectionKey"`
	Authority     string      `json:"authority"`
	Bump          uint8       `json:"bump"`
	MintProgram   string      `json:"mintProgram"`
	Thresholds    []uint8     `json:"thresholds"`
	Scores        ScoreBuffer `json:"-"`
	History       History     `json:"-"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// NewRarityTable は空のテーブルを作ります。
func NewRarityTable(
	id string,
	collectionKey string,
	authority string,
	bump uint8,
	thresholds []uint8,
	mintProgram string,
	now time.Time,
) (RarityTable, error) {
	t := RarityTable{
		ID:            strings.TrimSpace(id),
		CollectionKey: strings.TrimSpace(collectionKey),
		Authority:     strings.TrimSpace(authority),
		Bump:          bump,
		MintProgram:   strings.TrimSpace(mintProgram),
		Thresholds:    append([]uint8(nil), thresholds...),
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
	if err := t.validate(); err != nil {
		return RarityTable{}, err
	}
	return t, nil
}

// Len はスコア配列の長さです。
func (t RarityTable) Len() int { return t.Scores.Len() }

// Get は index のスコアを返します。
func (t RarityTable) Get(index uint64) (uint8, error) {
	return t.Scores.At(index)
}

// Extend は [start, start+len(values)) を上書きし、必要なら 0 埋めで伸長します。
func (t *RarityTable) Extend(start uint64, values []byte, now time.Time) error {
	if err := t.Scores.Write(start, values); err != nil {
		return err
	}
	t.UpdatedAt = now.UTC()
	return nil
}

// TierCount は閾値数 + 1 です。
func (t RarityTable) TierCount() int { return len(t.Thresholds) + 1 }

// TierOf は score 以下で最大の閾値の段位を返します。score == threshold は上の段位。
func (t RarityTable) TierOf(score uint8) int {
	tier := 0
	for i, th := range t.Thresholds {
		if score >= th {
			tier = i + 1
		}
	}
	return tier
}

// TierName は段位の表示名です。
func (t RarityTable) TierName(tier int) string {
	switch {
	case tier <= 0:
		return "Common"
	case len(t.Thresholds) > 0 && tier >= len(t.Thresholds):
		return "Legendary"
	default:
		return fmt.Sprintf("Tier %d", tier)
	}
}

// TierMinScore は段位の下限スコアです。
func (t RarityTable) TierMinScore(tier int) uint8 {
	if tier <= 0 || tier > len(t.Thresholds) {
		return 0
	}
	return t.Thresholds[tier-1]
}

// IsAuthority は signer が更新権限者かどうかを返します。
func (t RarityTable) IsAuthority(signer string) bool {
	s := strings.TrimSpace(signer)
	return s != "" && s == t.Authority
}

// Clone はトランザクション内で書き換える用の深いコピーです。
func (t RarityTable) Clone() RarityTable {
	c := t
	c.Thresholds = append([]uint8(nil), t.Thresholds...)
	c.Scores = t.Scores.clone()
	c.History = t.History.clone()
	return c
}

// Validate はエンティティの一貫性チェックを公開します。
func (t RarityTable) Validate() error {
	return t.validate()
}

func (t RarityTable) validate() error {
	if t.CollectionKey == "" {
		return ErrInvalidCollection
	}
	if t.Authority == "" {
		return ErrInvalidAuthority
	}
	return ValidateThresholds(t.Thresholds)
}

// ValidateThresholds は閾値列が昇順かつ MaxThresholds 以内であることを確認します。
func ValidateThresholds(thresholds []uint8) error {
	if len(thresholds) > MaxThresholds {
		return fmt.Errorf("%w: %d thresholds exceeds %d", ErrInvalidThresholds, len(thresholds), MaxThresholds)
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] < thresholds[i-1] {
			return fmt.Errorf("%w: not ascending at %d", ErrInvalidThresholds, i)
		}
	}
	return nil
}
