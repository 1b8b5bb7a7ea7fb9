// internal/application/gate/messages.go
package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// authority が署名する正規メッセージ。
// 行区切りのテキストで、値の列は sha256 の hex に畳み込みます。

func InitMessage(collectionKey string, thresholds []uint8, mintProgram string) []byte {
	return joinMessage("raritygate:init:v1",
		strings.TrimSpace(collectionKey),
		hex.EncodeToString(thresholds),
		strings.TrimSpace(mintProgram),
	)
}

// ExtendMessage と RecordMessage は issuedAt（unix ミリ秒）を含み、
// 検証側で有効期限と使用済み署名の照合に使います。

func ExtendMessage(collectionKey string, start uint64, values []byte, issuedAt time.Time) []byte {
	sum := sha256.Sum256(values)
	return joinMessage("raritygate:extend:v2",
		strings.TrimSpace(collectionKey),
		strconv.FormatUint(start, 10),
		strconv.Itoa(len(values)),
		hex.EncodeToString(sum[:]),
		strconv.FormatInt(issuedAt.UnixMilli(), 10),
	)
}

// RecordMessage の mintIndex は nil の場合 "-" になります。
func RecordMessage(collectionKey string, assetID string, mintCount uint64, minter string, mintIndex *uint64, issuedAt time.Time) []byte {
	idx := "-"
	if mintIndex != nil {
		idx = strconv.FormatUint(*mintIndex, 10)
	}
	return joinMessage("raritygate:record:v2",
		strings.TrimSpace(collectionKey),
		strings.TrimSpace(assetID),
		strconv.FormatUint(mintCount, 10),
		strings.TrimSpace(minter),
		idx,
		strconv.FormatInt(issuedAt.UnixMilli(), 10),
	)
}

func joinMessage(parts ...string) []byte {
	return []byte(strings.Join(parts, "\n"))
}
