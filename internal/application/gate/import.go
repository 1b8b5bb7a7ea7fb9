// internal/application/gate/import.go
package gate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	raritydom "raritygate/internal/domain/rarity"
)

var ErrScoreFilesNotConfigured = errors.New("rarity_gate: score file reader is not configured")

type ImportTableInput struct {
	CollectionKey string
	Authority     string
	// Signature は ExtendMessage(collection, 0, dense scores, IssuedAt) に対する署名です。
	Signature string
	IssuedAt  time.Time
	Source    string
}

// ImportTable はスコアファイルを読み、index 0 から一括で ExtendTable します。
// 一括書き込みなので、容量超過時はテーブルは変わりません。
func (u *GateUsecase) ImportTable(ctx context.Context, in ImportTableInput) (raritydom.RarityTable, error) {
	if u.scoreFiles == nil {
		return raritydom.RarityTable{}, ErrScoreFilesNotConfigured
	}
	src := strings.TrimSpace(in.Source)
	data, err := u.scoreFiles.ReadScoreFile(ctx, src)
	if err != nil {
		return raritydom.RarityTable{}, fmt.Errorf("read score file %s: %w", src, err)
	}
	values, err := raritydom.ParseScoreFile(data)
	if err != nil {
		return raritydom.RarityTable{}, err
	}
	log.Printf("[rarity_gate] import collection=%s source=%s scores=%d", maskShort(in.CollectionKey), src, len(values))

	return u.ExtendTable(ctx, ExtendTableInput{
		CollectionKey: in.CollectionKey,
		Authority:     in.Authority,
		Signature:     in.Signature,
		StartIndex:    0,
		Values:        values,
		IssuedAt:      in.IssuedAt,
	})
}
