// internal/application/gate/ports.go
package gate

import "context"

// ============================================================
// 外部プログラム参照
// ============================================================

// ProgramRef はレジストリに登録された外部プログラム 1 件です。
// DiscriminatorLen は命令データ先頭の種別バイト長（Anchor 系は 8、MPL Core は 1）。
type ProgramRef struct {
	Name             string
	ID               string
	DiscriminatorLen int
}

// ProgramCatalog は起動時に 1 度だけ解決されるプログラム ID の表です。
// infra/solana.Registry が実装します。
type ProgramCatalog interface {
	SelfID() string
	Program(name string) (ProgramRef, bool)
}

// ============================================================
// アドレス導出 / アセット読み取り
// ============================================================

// AddressDeriver は決定的なアドレス導出を担当します。
//   - PredictAssetID: 外部ミントプログラムが counter 番目に使う asset アドレス
//     （raw は 32 バイトの公開鍵、address は base58）
//   - TableAddress: コレクションに 1 つだけ存在する RarityTable の派生アドレスと bump
type AddressDeriver interface {
	PredictAssetID(tree string, counter uint64) (raw []byte, address string, err error)
	TableAddress(collectionKey string) (address string, bump uint8, err error)
}

// AssetURIReader はメタデータプログラム所有の asset レコードから URI を読みます。
type AssetURIReader interface {
	ReadAssetURI(ctx context.Context, asset string) (string, error)
}

// ============================================================
// 権限確認 / 観測
// ============================================================

// SignatureVerifier は authority の ed25519 署名を検証します。
type SignatureVerifier interface {
	Verify(authority string, signature string, message []byte) error
}

// DecisionObserver は検証結果の計測用フックです（任意依存）。
type DecisionObserver interface {
	ObserveDecision(source Source, outcome string)
}

// ScoreFileReader はオブジェクトストレージ上のスコア JSON を読みます（任意依存）。
type ScoreFileReader interface {
	ReadScoreFile(ctx context.Context, ref string) ([]byte, error)
}
