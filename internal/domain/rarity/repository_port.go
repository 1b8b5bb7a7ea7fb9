// internal/domain/rarity/repository_port.go
package rarity

import "context"

// ------------------------------------------------------
// Repository Port for RarityTable
// ------------------------------------------------------
//
// Firestore / Postgres / in-memory の具体実装は adapters/out 側に置き、
// ドメイン・ユースケースからはこのインターフェースのみを参照します。

// RepositoryPort は rarity_tables の永続化ポートです。
type RepositoryPort interface {
	// GetByCollection は collectionKey に紐づくテーブルを返します。
	// 存在しない場合は ErrTableNotFound。
	GetByCollection(ctx context.Context, collectionKey string) (RarityTable, error)

	// Create は新規テーブルを保存します。既に存在する場合は ErrConflict。
	Create(ctx context.Context, t RarityTable) (RarityTable, error)

	// Update はトランザクション内でテーブルを読み、fn で書き換えて保存します。
	// fn がエラーを返した場合は何も保存しません。
	Update(ctx context.Context, collectionKey string, fn func(t *RarityTable) error) (RarityTable, error)
}
