// internal/adapters/out/db/rarityTable_repository_pg.go
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	dbcommon "raritygate/internal/adapters/out/db/common"
	raritydom "raritygate/internal/domain/rarity"
)

// Schema は rarity_tables のDDLです（マイグレーション用）。
const Schema = `
CREATE TABLE IF NOT EXISTS rarity_tables (
  collection_key TEXT PRIMARY KEY,
  id             TEXT        NOT NULL UNIQUE,
  authority      TEXT        NOT NULL,
  bump           SMALLINT    NOT NULL,
  mint_program   TEXT        NOT NULL DEFAULT '',
  thresholds     BYTEA       NOT NULL,
  scores         BYTEA       NOT NULL,
  history        JSONB       NOT NULL DEFAULT '{}'::jsonb,
  created_at     TIMESTAMPTZ NOT NULL,
  updated_at     TIMESTAMPTZ NOT NULL
)`

// PG implementation of rarity.RepositoryPort
type RarityTableRepositoryPG struct {
	DB *sql.DB
}

var _ raritydom.RepositoryPort = (*RarityTableRepositoryPG)(nil)

func NewRarityTableRepositoryPG(db *sql.DB) *RarityTableRepositoryPG {
	return &RarityTableRepositoryPG{DB: db}
}

// EnsureSchema は起動時に Schema を適用します。
func (r *RarityTableRepositoryPG) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, Schema)
	return err
}

const selectRarityTable = `
SELECT
  collection_key,
  id,
  authority,
  bump,
  mint_program,
  thresholds,
  scores,
  history,
  created_at,
  updated_at
FROM rarity_tables
WHERE collection_key = $1
`

func (r *RarityTableRepositoryPG) GetByCollection(ctx context.Context, collectionKey string) (raritydom.RarityTable, error) {
	run := dbcommon.GetRunner(ctx, r.DB)

	t, err := scanRarityTable(run.QueryRowContext(ctx, selectRarityTable, strings.TrimSpace(collectionKey)))
	if errors.Is(err, sql.ErrNoRows) {
		return raritydom.RarityTable{}, raritydom.ErrTableNotFound
	}
	return t, err
}

func (r *RarityTableRepositoryPG) Create(ctx context.Context, t raritydom.RarityTable) (raritydom.RarityTable, error) {
	if err := t.Validate(); err != nil {
		return raritydom.RarityTable{}, err
	}
	history, err := json.Marshal(t.History)
	if err != nil {
		return raritydom.RarityTable{}, fmt.Errorf("marshal history: %w", err)
	}

	run := dbcommon.GetRunner(ctx, r.DB)
	const q = `
INSERT INTO rarity_tables (
  collection_key, id, authority, bump, mint_program, thresholds, scores, history, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err = run.ExecContext(ctx, q,
		t.CollectionKey,
		t.ID,
		t.Authority,
		int16(t.Bump),
		t.MintProgram,
		[]byte(t.Thresholds),
		t.Scores.Bytes(),
		history,
		t.CreatedAt.UTC(),
		t.UpdatedAt.UTC(),
	)
	if err != nil {
		if dbcommon.IsUniqueViolation(err) {
			return raritydom.RarityTable{}, raritydom.ErrConflict
		}
		return raritydom.RarityTable{}, err
	}
	return t.Clone(), nil
}

// Update は SELECT ... FOR UPDATE で行ロックを取ってから fn を適用します。
func (r *RarityTableRepositoryPG) Update(
	ctx context.Context,
	collectionKey string,
	fn func(t *raritydom.RarityTable) error,
) (raritydom.RarityTable, error) {
	key := strings.TrimSpace(collectionKey)
	var out raritydom.RarityTable

	err := dbcommon.WithTx(ctx, r.DB, func(ctx context.Context) error {
		run := dbcommon.GetRunner(ctx, r.DB)

		t, err := scanRarityTable(run.QueryRowContext(ctx, selectRarityTable+" FOR UPDATE", key))
		if errors.Is(err, sql.ErrNoRows) {
			return raritydom.ErrTableNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(&t); err != nil {
			return err
		}

		history, err := json.Marshal(t.History)
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		const q = `
UPDATE rarity_tables SET
  authority  = $2,
  thresholds = $3,
  scores     = $4,
  history    = $5,
  updated_at = $6
WHERE collection_key = $1
`
		if _, err := run.ExecContext(ctx, q,
			key,
			t.Authority,
			[]byte(t.Thresholds),
			t.Scores.Bytes(),
			history,
			t.UpdatedAt.UTC(),
		); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return raritydom.RarityTable{}, err
	}
	return out, nil
}

func scanRarityTable(s dbcommon.RowScanner) (raritydom.RarityTable, error) {
	var (
		t          raritydom.RarityTable
		bump       int16
		thresholds []byte
		scores     []byte
		history    []byte
	)
	if err := s.Scan(
		&t.CollectionKey,
		&t.ID,
		&t.Authority,
		&bump,
		&t.MintProgram,
		&thresholds,
		&scores,
		&history,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return raritydom.RarityTable{}, err
	}

	buf, err := raritydom.NewScoreBuffer(scores)
	if err != nil {
		return raritydom.RarityTable{}, err
	}
	t.Scores = buf
	t.Bump = uint8(bump)
	t.Thresholds = append([]uint8(nil), thresholds...)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	if len(history) > 0 {
		if err := json.Unmarshal(history, &t.History); err != nil {
			return raritydom.RarityTable{}, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return t, nil
}
