// internal/adapters/out/firestore/rarityTable_repository_fs.go
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	raritydom "raritygate/internal/domain/rarity"
)

// =====================================================
// Firestore RarityTable Repository
// Implements rarity.RepositoryPort
// ドキュメント ID は collectionKey（コレクション 1 件につき 1 ドキュメント）
// =====================================================

const rarityTablesCollection = "rarity_tables"

type RarityTableRepositoryFS struct {
	Client *firestore.Client
}

var _ raritydom.RepositoryPort = (*RarityTableRepositoryFS)(nil)

func NewRarityTableRepositoryFS(client *firestore.Client) *RarityTableRepositoryFS {
	return &RarityTableRepositoryFS{Client: client}
}

func (r *RarityTableRepositoryFS) col() *firestore.CollectionRef {
	return r.Client.Collection(rarityTablesCollection)
}

func (r *RarityTableRepositoryFS) GetByCollection(ctx context.Context, collectionKey string) (raritydom.RarityTable, error) {
	if r.Client == nil {
		return raritydom.RarityTable{}, errors.New("firestore client is nil")
	}
	key := strings.TrimSpace(collectionKey)
	if key == "" {
		return raritydom.RarityTable{}, raritydom.ErrTableNotFound
	}

	snap, err := r.col().Doc(key).Get(ctx)
	if grpcstatus.Code(err) == codes.NotFound {
		return raritydom.RarityTable{}, raritydom.ErrTableNotFound
	}
	if err != nil {
		return raritydom.RarityTable{}, err
	}
	return docToRarityTable(snap)
}

func (r *RarityTableRepositoryFS) Create(ctx context.Context, t raritydom.RarityTable) (raritydom.RarityTable, error) {
	if r.Client == nil {
		return raritydom.RarityTable{}, errors.New("firestore client is nil")
	}
	if err := t.Validate(); err != nil {
		return raritydom.RarityTable{}, err
	}

	ref := r.col().Doc(t.CollectionKey)
	if _, err := ref.Create(ctx, rarityTableToDoc(t)); err != nil {
		if grpcstatus.Code(err) == codes.AlreadyExists {
			return raritydom.RarityTable{}, raritydom.ErrConflict
		}
		return raritydom.RarityTable{}, err
	}
	return t.Clone(), nil
}

// Update は RunTransaction 内で読み取り → fn → Set を行います。
// fn がエラーを返すとトランザクションは何も書き込みません。
func (r *RarityTableRepositoryFS) Update(
	ctx context.Context,
	collectionKey string,
	fn func(t *raritydom.RarityTable) error,
) (raritydom.RarityTable, error) {
	if r.Client == nil {
		return raritydom.RarityTable{}, errors.New("firestore client is nil")
	}
	key := strings.TrimSpace(collectionKey)
	if key == "" {
		return raritydom.RarityTable{}, raritydom.ErrTableNotFound
	}

	ref := r.col().Doc(key)
	var out raritydom.RarityTable

	err := r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if grpcstatus.Code(err) == codes.NotFound {
			return raritydom.ErrTableNotFound
		}
		if err != nil {
			return err
		}
		t, err := docToRarityTable(snap)
		if err != nil {
			return err
		}
		if err := fn(&t); err != nil {
			return err
		}
		if err := tx.Set(ref, rarityTableToDoc(t)); err != nil {
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

// ========================================
// Mapping Helpers
// ========================================

// Firestore は uint64 を扱えないため、カウンタ類は int64 で保存します。
type rarityTableDoc struct {
	ID            string           `firestore:"id"`
	CollectionKey string           `firestore:"collectionKey"`
	Authority     string           `firestore:"authority"`
	Bump          int64            `firestore:"bump"`
	MintProgram   string           `firestore:"mintProgram"`
	Thresholds    []byte           `firestore:"thresholds"`
	Scores        []byte           `firestore:"scores"`
	TotalMints    int64            `firestore:"totalMints"`
	Records       []mintRecordDoc  `firestore:"records"`
	Patterns      []mintPatternDoc `firestore:"patterns"`
	CreatedAt     time.Time        `firestore:"createdAt"`
	UpdatedAt     time.Time        `firestore:"updatedAt"`
}

type mintRecordDoc struct {
	ID          string    `firestore:"id"`
	MintIndex   *int64    `firestore:"mintIndex"`
	AssetID     string    `firestore:"assetId"`
	MintCount   int64     `firestore:"mintCount"`
	RarityScore *int64    `firestore:"rarityScore"`
	Minter      string    `firestore:"minter"`
	Timestamp   time.Time `firestore:"timestamp"`
}

type mintPatternDoc struct {
	Difference  int64   `firestore:"difference"`
	Occurrences int64   `firestore:"occurrences"`
	Probability float64 `firestore:"probability"`
}

func rarityTableToDoc(t raritydom.RarityTable) rarityTableDoc {
	d := rarityTableDoc{
		ID:            t.ID,
		CollectionKey: t.CollectionKey,
		Authority:     t.Authority,
		Bump:          int64(t.Bump),
		MintProgram:   t.MintProgram,
		Thresholds:    append([]byte{}, t.Thresholds...),
		Scores:        t.Scores.Bytes(),
		TotalMints:    int64(t.History.TotalMints),
		Records:       make([]mintRecordDoc, 0, len(t.History.Records)),
		Patterns:      make([]mintPatternDoc, 0, len(t.History.Patterns)),
		CreatedAt:     t.CreatedAt.UTC(),
		UpdatedAt:     t.UpdatedAt.UTC(),
	}
	for _, rec := range t.History.Records {
		rd := mintRecordDoc{
			ID:        rec.ID,
			AssetID:   rec.AssetID,
			MintCount: int64(rec.MintCount),
			Minter:    rec.Minter,
			Timestamp: rec.Timestamp.UTC(),
		}
		if rec.MintIndex != nil {
			v := int64(*rec.MintIndex)
			rd.MintIndex = &v
		}
		if rec.RarityScore != nil {
			v := int64(*rec.RarityScore)
			rd.RarityScore = &v
		}
		d.Records = append(d.Records, rd)
	}
	for _, p := range t.History.Patterns {
		d.Patterns = append(d.Patterns, mintPatternDoc{
			Difference:  int64(p.Difference),
			Occurrences: int64(p.Occurrences),
			Probability: p.Probability,
		})
	}
	return d
}

func docToRarityTable(snap *firestore.DocumentSnapshot) (raritydom.RarityTable, error) {
	var d rarityTableDoc
	if err := snap.DataTo(&d); err != nil {
		return raritydom.RarityTable{}, fmt.Errorf("decode rarity table %s: %w", snap.Ref.ID, err)
	}
	return rarityTableFromDoc(snap.Ref.ID, d)
}

func rarityTableFromDoc(docID string, d rarityTableDoc) (raritydom.RarityTable, error) {
	scores, err := raritydom.NewScoreBuffer(d.Scores)
	if err != nil {
		return raritydom.RarityTable{}, err
	}

	t := raritydom.RarityTable{
		ID:            d.ID,
		CollectionKey: d.CollectionKey,
		Authority:     d.Authority,
		Bump:          uint8(d.Bump),
		MintProgram:   d.MintProgram,
		Thresholds:    append([]uint8(nil), d.Thresholds...),
		Scores:        scores,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	if t.CollectionKey == "" {
		t.CollectionKey = docID
	}

	t.History.TotalMints = uint64(d.TotalMints)
	for _, rd := range d.Records {
		rec := raritydom.MintRecord{
			ID:        rd.ID,
			AssetID:   rd.AssetID,
			MintCount: uint64(rd.MintCount),
			Minter:    rd.Minter,
			Timestamp: rd.Timestamp.UTC(),
		}
		if rd.MintIndex != nil {
			v := uint64(*rd.MintIndex)
			rec.MintIndex = &v
		}
		if rd.RarityScore != nil {
			v := uint8(*rd.RarityScore)
			rec.RarityScore = &v
		}
		t.History.Records = append(t.History.Records, rec)
	}
	for _, pd := range d.Patterns {
		t.History.Patterns = append(t.History.Patterns, raritydom.MintPattern{
			Difference:  uint64(pd.Difference),
			Occurrences: uint64(pd.Occurrences),
			Probability: pd.Probability,
		})
	}
	return t, nil
}
