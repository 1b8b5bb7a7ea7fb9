// internal/adapters/out/memory/rarityTable_repository_mem.go
package memory

import (
	"context"
	"strings"
	"sync"

	raritydom "raritygate/internal/domain/rarity"
)

// RarityTableRepositoryMem はプロセス内だけで完結する RepositoryPort 実装です。
// ローカル開発とテストで使います。
type RarityTableRepositoryMem struct {
	mu     sync.Mutex
	tables map[string]raritydom.RarityTable
}

var _ raritydom.RepositoryPort = (*RarityTableRepositoryMem)(nil)

func NewRarityTableRepositoryMem() *RarityTableRepositoryMem {
	return &RarityTableRepositoryMem{tables: make(map[string]raritydom.RarityTable)}
}

func (r *RarityTableRepositoryMem) GetByCollection(ctx context.Context, collectionKey string) (raritydom.RarityTable, error) {
	if err := ctx.Err(); err != nil {
		return raritydom.RarityTable{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[strings.TrimSpace(collectionKey)]
	if !ok {
		return raritydom.RarityTable{}, raritydom.ErrTableNotFound
	}
	return t.Clone(), nil
}

func (r *RarityTableRepositoryMem) Create(ctx context.Context, t raritydom.RarityTable) (raritydom.RarityTable, error) {
	if err := ctx.Err(); err != nil {
		return raritydom.RarityTable{}, err
	}
	if err := t.Validate(); err != nil {
		return raritydom.RarityTable{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[t.CollectionKey]; ok {
		return raritydom.RarityTable{}, raritydom.ErrConflict
	}
	r.tables[t.CollectionKey] = t.Clone()
	return t.Clone(), nil
}

// Update はコピーに対して fn を適用し、成功した場合のみ差し替えます。
func (r *RarityTableRepositoryMem) Update(
	ctx context.Context,
	collectionKey string,
	fn func(t *raritydom.RarityTable) error,
) (raritydom.RarityTable, error) {
	if err := ctx.Err(); err != nil {
		return raritydom.RarityTable{}, err
	}
	key := strings.TrimSpace(collectionKey)

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.tables[key]
	if !ok {
		return raritydom.RarityTable{}, raritydom.ErrTableNotFound
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return raritydom.RarityTable{}, err
	}
	r.tables[key] = next
	return next.Clone(), nil
}
