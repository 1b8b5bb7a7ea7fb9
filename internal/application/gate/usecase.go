// internal/application/gate/usecase.go
package gate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	raritydom "raritygate/internal/domain/rarity"
	"raritygate/internal/domain/txview"
)

// ============================================================
// GateUsecase 本体
// ============================================================

// GateUsecase はテーブル管理と 3 種類の検証エントリポイントをまとめます。
// resolver はエントリポイントごとに固定で、実行時の自動選択はしません。
type GateUsecase struct {
	repo       raritydom.RepositoryPort
	catalog    ProgramCatalog
	deriver    AddressDeriver
	signatures SignatureVerifier

	predictive    PredictiveResolver
	uri           URIResolver
	introspection IntrospectionResolver

	defaultMintProgram string
	signed             *signatureLedger

	// 任意依存（Setter で後から差し込む）
	observer   DecisionObserver
	scoreFiles ScoreFileReader
	now        func() time.Time
}

// NewGateUsecase は GateUsecase のコンストラクタです。
// decoders が nil の場合は DefaultDecoders を使います。
func NewGateUsecase(
	repo raritydom.RepositoryPort,
	catalog ProgramCatalog,
	deriver AddressDeriver,
	assets AssetURIReader,
	signatures SignatureVerifier,
	decoders *DecoderTable,
	lookback int,
	defaultMintProgram string,
) *GateUsecase {
	return &GateUsecase{
		repo:               repo,
		catalog:            catalog,
		deriver:            deriver,
		signatures:         signatures,
		predictive:         NewPredictiveResolver(deriver),
		uri:                NewURIResolver(assets),
		introspection:      NewIntrospectionResolver(catalog, decoders, lookback),
		defaultMintProgram: strings.TrimSpace(defaultMintProgram),
		signed:             newSignatureLedger(DefaultSignatureTTL),
		now:                time.Now,
	}
}

// SetObserver は計測フックを差し込みます。
func (u *GateUsecase) SetObserver(o DecisionObserver) {
	if u == nil {
		return
	}
	u.observer = o
}

// SetScoreFiles はスコアファイルの読み取り元を差し込みます（ImportTable 用）。
func (u *GateUsecase) SetScoreFiles(r ScoreFileReader) {
	if u == nil {
		return
	}
	u.scoreFiles = r
}

// SetSignatureTTL は署名付きメッセージの issuedAt の許容幅を変えます。
func (u *GateUsecase) SetSignatureTTL(ttl time.Duration) {
	if u == nil {
		return
	}
	u.signed = newSignatureLedger(ttl)
}

// SetClock はテスト用に時計を差し替えます。
func (u *GateUsecase) SetClock(now func() time.Time) {
	if u == nil || now == nil {
		return
	}
	u.now = now
}

// ============================================================
// Inputs / Results
// ============================================================

type InitTableInput struct {
	CollectionKey string
	Authority     string
	Signature     string
	Thresholds    []uint8
	MintProgram   string
}

type ExtendTableInput struct {
	CollectionKey string
	Authority     string
	Signature     string
	StartIndex    uint64
	Values        []byte
	IssuedAt      time.Time
}

type IntrospectionInput struct {
	CollectionKey string
	MinScore      uint8
	View          txview.View
	// Logs はサーバが実行した simulateTransaction のプログラムログ（任意）。
	// 構造化デコード失敗時のみ参照。リクエスト本文のログは渡さない。
	Logs []string
	// MintProgram は任意。指定された場合はテーブルの mintProgram と一致する必要があります。
	MintProgram string
}

type RecordMintInput struct {
	CollectionKey string
	Authority     string
	Signature     string
	MintIndex     *uint64
	AssetID       string
	MintCount     uint64
	Minter        string
	IssuedAt      time.Time
}

// ValidationResult は検証エントリポイントの戻り値です。
// Reject の場合も Decision は埋まった状態でエラーと一緒に返ります。
type ValidationResult struct {
	Decision
	CollectionKey    string `json:"collectionKey"`
	AssetID          string `json:"assetId,omitempty"`
	URI              string `json:"uri,omitempty"`
	MintProgram      string `json:"mintProgram,omitempty"`
	RelativePosition int64  `json:"relativePosition,omitempty"`
}

// ============================================================
// テーブル管理
// ============================================================

// InitTable はコレクションに紐づく空テーブルを作成します。呼び出し元が authority になります。
func (u *GateUsecase) InitTable(ctx context.Context, in InitTableInput) (raritydom.RarityTable, error) {
	coll := strings.TrimSpace(in.CollectionKey)
	if coll == "" {
		return raritydom.RarityTable{}, raritydom.ErrInvalidCollection
	}
	if err := raritydom.ValidateThresholds(in.Thresholds); err != nil {
		return raritydom.RarityTable{}, err
	}

	// 署名は送られてきた mintProgram（空文字を含む）に対して検証する
	if err := u.verify(in.Authority, in.Signature, InitMessage(coll, in.Thresholds, in.MintProgram)); err != nil {
		return raritydom.RarityTable{}, err
	}

	mintProgram := u.mintProgramOrDefault(in.MintProgram)
	if _, ok := u.catalog.Program(mintProgram); !ok {
		return raritydom.RarityTable{}, fmt.Errorf("%w: unknown mint program %q", raritydom.ErrResolutionFailed, mintProgram)
	}

	id, bump, err := u.deriver.TableAddress(coll)
	if err != nil {
		return raritydom.RarityTable{}, fmt.Errorf("%w: derive table address: %v", raritydom.ErrInvalidCollection, err)
	}

	t, err := raritydom.NewRarityTable(id, coll, in.Authority, bump, in.Thresholds, mintProgram, u.now())
	if err != nil {
		return raritydom.RarityTable{}, err
	}

	created, err := u.repo.Create(ctx, t)
	if err != nil {
		return raritydom.RarityTable{}, err
	}
	log.Printf("[rarity_gate] table created collection=%s id=%s authority=%s thresholds=%v mintProgram=%s",
		maskShort(coll), maskShort(created.ID), maskShort(created.Authority), created.Thresholds, mintProgram)
	return created, nil
}

// ExtendTable は authority のみが実行できる範囲上書きです。
// 容量超過の場合は何も保存されません。
func (u *GateUsecase) ExtendTable(ctx context.Context, in ExtendTableInput) (raritydom.RarityTable, error) {
	coll := strings.TrimSpace(in.CollectionKey)
	if err := u.verify(in.Authority, in.Signature, ExtendMessage(coll, in.StartIndex, in.Values, in.IssuedAt)); err != nil {
		return raritydom.RarityTable{}, err
	}
	if err := u.signed.admit(in.Signature, in.IssuedAt, u.now()); err != nil {
		return raritydom.RarityTable{}, err
	}

	updated, err := u.repo.Update(ctx, coll, func(t *raritydom.RarityTable) error {
		if !t.IsAuthority(in.Authority) {
			return fmt.Errorf("%w: signer %s is not the table authority", raritydom.ErrUnauthorizedUpdate, maskShort(in.Authority))
		}
		return t.Extend(in.StartIndex, in.Values, u.now())
	})
	if err != nil {
		return raritydom.RarityTable{}, err
	}
	log.Printf("[rarity_gate] table extended collection=%s start=%d count=%d length=%d",
		maskShort(coll), in.StartIndex, len(in.Values), updated.Len())
	return updated, nil
}

// GetTable はテーブルを返します。
func (u *GateUsecase) GetTable(ctx context.Context, collectionKey string) (raritydom.RarityTable, error) {
	return u.repo.GetByCollection(ctx, strings.TrimSpace(collectionKey))
}

// ============================================================
// 検証エントリポイント
// ============================================================

// ValidatePredictive は Predictive Resolver + Rarity Gate。
func (u *GateUsecase) ValidatePredictive(ctx context.Context, collectionKey string, minScore uint8, counter uint64) (ValidationResult, error) {
	t, err := u.repo.GetByCollection(ctx, strings.TrimSpace(collectionKey))
	if err != nil {
		return ValidationResult{}, err
	}

	ri, asset, err := u.predictive.Resolve(t, counter)
	if err != nil {
		return u.finish(SourcePredicted, ValidationResult{CollectionKey: t.CollectionKey}, err)
	}
	log.Printf("[rarity_gate] predictive collection=%s counter=%d asset=%s index=%d",
		maskShort(t.CollectionKey), counter, maskShort(asset), ri.Index)

	d, err := Gate(t, ri, minScore)
	return u.finish(SourcePredicted, ValidationResult{Decision: d, CollectionKey: t.CollectionKey, AssetID: asset}, err)
}

// ValidateByURI は asset レコードの URI を読む URI Resolver + Rarity Gate。
func (u *GateUsecase) ValidateByURI(ctx context.Context, collectionKey string, asset string, minScore uint8) (ValidationResult, error) {
	t, err := u.repo.GetByCollection(ctx, strings.TrimSpace(collectionKey))
	if err != nil {
		return ValidationResult{}, err
	}

	ri, uri, err := u.uri.ResolveAsset(ctx, t, strings.TrimSpace(asset))
	res := ValidationResult{CollectionKey: t.CollectionKey, AssetID: strings.TrimSpace(asset), URI: uri}
	if err != nil {
		return u.finish(SourceURIParsed, res, err)
	}

	d, err := Gate(t, ri, minScore)
	res.Decision = d
	return u.finish(SourceURIParsed, res, err)
}

// ValidateURI は URI 文字列を直接受け取る版（asset 読み取り済みの呼び出し元向け）。
func (u *GateUsecase) ValidateURI(ctx context.Context, collectionKey string, uri string, minScore uint8) (ValidationResult, error) {
	t, err := u.repo.GetByCollection(ctx, strings.TrimSpace(collectionKey))
	if err != nil {
		return ValidationResult{}, err
	}

	res := ValidationResult{CollectionKey: t.CollectionKey, URI: strings.TrimSpace(uri)}
	ri, err := u.uri.ResolveURI(t, uri)
	if err != nil {
		return u.finish(SourceURIParsed, res, err)
	}

	d, err := Gate(t, ri, minScore)
	res.Decision = d
	return u.finish(SourceURIParsed, res, err)
}

// ValidateByIntrospection は Adjacency Verifier + Transaction-Introspection Resolver + Rarity Gate。
func (u *GateUsecase) ValidateByIntrospection(ctx context.Context, in IntrospectionInput) (ValidationResult, error) {
	t, err := u.repo.GetByCollection(ctx, strings.TrimSpace(in.CollectionKey))
	if err != nil {
		return ValidationResult{}, err
	}

	// 照合する外部プログラムはテーブルに固定。呼び出し元の指定は一致確認にだけ使う
	mintProgram := u.mintProgramOrDefault(t.MintProgram)
	res := ValidationResult{CollectionKey: t.CollectionKey, MintProgram: mintProgram}
	if req := strings.TrimSpace(in.MintProgram); req != "" && req != mintProgram {
		return u.finish(SourceTxIntrospected, res, fmt.Errorf("%w: mint program %q does not match the table's %q",
			raritydom.ErrResolutionFailed, req, mintProgram))
	}

	ri, ref, err := u.introspection.Resolve(in.View, mintProgram, t.CollectionKey, in.Logs)
	res.RelativePosition = ref.RelativePosition
	if err != nil {
		return u.finish(SourceTxIntrospected, res, err)
	}

	d, err := Gate(t, ri, in.MinScore)
	res.Decision = d
	return u.finish(SourceTxIntrospected, res, err)
}

// ============================================================
// 履歴 / 統計
// ============================================================

// RecordMint はミント記録を追記します（authority のみ）。
// index が分かっていてテーブル範囲内ならスコアも記録します。
func (u *GateUsecase) RecordMint(ctx context.Context, in RecordMintInput) (raritydom.MintRecord, error) {
	coll := strings.TrimSpace(in.CollectionKey)
	msg := RecordMessage(coll, in.AssetID, in.MintCount, in.Minter, in.MintIndex, in.IssuedAt)
	if err := u.verify(in.Authority, in.Signature, msg); err != nil {
		return raritydom.MintRecord{}, err
	}
	if err := u.signed.admit(in.Signature, in.IssuedAt, u.now()); err != nil {
		return raritydom.MintRecord{}, err
	}

	var rec raritydom.MintRecord
	_, err := u.repo.Update(ctx, coll, func(t *raritydom.RarityTable) error {
		if !t.IsAuthority(in.Authority) {
			return fmt.Errorf("%w: signer %s is not the table authority", raritydom.ErrUnauthorizedUpdate, maskShort(in.Authority))
		}
		rec = raritydom.MintRecord{
			ID:        uuid.NewString(),
			MintIndex: in.MintIndex,
			AssetID:   strings.TrimSpace(in.AssetID),
			MintCount: in.MintCount,
			Minter:    strings.TrimSpace(in.Minter),
			Timestamp: u.now(),
		}
		if in.MintIndex != nil {
			if s, err := t.Get(*in.MintIndex); err == nil {
				rec.RarityScore = &s
			}
		}
		return t.History.Append(rec)
	})
	if err != nil {
		return raritydom.MintRecord{}, err
	}
	return rec, nil
}

// GetStatistics は読み取り専用の統計レポートを返します。
func (u *GateUsecase) GetStatistics(ctx context.Context, collectionKey string) (raritydom.Statistics, error) {
	t, err := u.repo.GetByCollection(ctx, strings.TrimSpace(collectionKey))
	if err != nil {
		return raritydom.Statistics{}, err
	}
	return t.Statistics(), nil
}

// ============================================================
// helpers
// ============================================================

func (u *GateUsecase) mintProgramOrDefault(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return u.defaultMintProgram
}

func (u *GateUsecase) verify(authority, signature string, msg []byte) error {
	if strings.TrimSpace(authority) == "" {
		return fmt.Errorf("%w: authority is empty", raritydom.ErrUnauthorizedUpdate)
	}
	if u.signatures == nil {
		return fmt.Errorf("%w: signature verifier is not configured", raritydom.ErrUnauthorizedUpdate)
	}
	if err := u.signatures.Verify(authority, signature, msg); err != nil {
		return fmt.Errorf("%w: %v", raritydom.ErrUnauthorizedUpdate, err)
	}
	return nil
}

func (u *GateUsecase) finish(src Source, res ValidationResult, err error) (ValidationResult, error) {
	outcome := "accept"
	switch {
	case errors.Is(err, raritydom.ErrRarityBelowThreshold):
		outcome = "reject"
		log.Printf("[rarity_gate] reject source=%s collection=%s index=%d score=%d min=%d",
			src, maskShort(res.CollectionKey), res.Index, res.Score, res.MinScore)
	case err != nil:
		outcome = "error"
		log.Printf("[rarity_gate] fail source=%s collection=%s err=%v", src, maskShort(res.CollectionKey), err)
	default:
		log.Printf("[rarity_gate] accept source=%s collection=%s index=%d score=%d tier=%q",
			src, maskShort(res.CollectionKey), res.Index, res.Score, res.TierName)
	}
	if u.observer != nil {
		u.observer.ObserveDecision(src, outcome)
	}
	return res, err
}

func maskShort(s string) string {
	t := strings.TrimSpace(s)
	if len(t) <= 10 {
		return t
	}
	return t[:4] + "***" + t[len(t)-4:]
}
