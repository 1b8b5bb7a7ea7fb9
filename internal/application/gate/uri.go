// internal/application/gate/uri.go
package gate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	raritydom "raritygate/internal/domain/rarity"
)

const metadataURISuffix = ".json"

// ParseURIIndex は ".../<index>.json" 形式の URI から末尾の index を取り出します。
func ParseURIIndex(uri string) (uint64, error) {
	u := strings.TrimSpace(uri)
	base, ok := strings.CutSuffix(u, metadataURISuffix)
	if !ok {
		return 0, fmt.Errorf("%w: uri %q has no %s suffix", raritydom.ErrResolutionFailed, u, metadataURISuffix)
	}
	seg := base
	if i := strings.LastIndex(base, "/"); i >= 0 {
		seg = base[i+1:]
	}
	if seg == "" {
		return 0, fmt.Errorf("%w: uri %q has no index segment", raritydom.ErrResolutionFailed, u)
	}
	idx, err := strconv.ParseUint(seg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: uri segment %q is not numeric", raritydom.ErrResolutionFailed, seg)
	}
	return idx, nil
}

// URIResolver は asset レコードの URI 末尾の数値を index とします。
type URIResolver struct {
	assets AssetURIReader
}

func NewURIResolver(assets AssetURIReader) URIResolver {
	return URIResolver{assets: assets}
}

// ResolveAsset は asset を読み、その URI から index を決めます。
func (r URIResolver) ResolveAsset(ctx context.Context, t raritydom.RarityTable, asset string) (ResolvedIndex, string, error) {
	if r.assets == nil {
		return ResolvedIndex{}, "", fmt.Errorf("%w: asset reader is not configured", raritydom.ErrResolutionFailed)
	}
	uri, err := r.assets.ReadAssetURI(ctx, asset)
	if err != nil {
		return ResolvedIndex{}, "", fmt.Errorf("%w: read asset %s: %v", raritydom.ErrResolutionFailed, asset, err)
	}
	ri, err := r.ResolveURI(t, uri)
	return ri, uri, err
}

// ResolveURI は URI 文字列から index を決め、テーブル範囲を確認します。
func (r URIResolver) ResolveURI(t raritydom.RarityTable, uri string) (ResolvedIndex, error) {
	idx, err := ParseURIIndex(uri)
	if err != nil {
		return ResolvedIndex{}, err
	}
	if idx >= uint64(t.Len()) {
		return ResolvedIndex{}, fmt.Errorf("%w: index %d, length %d", raritydom.ErrIndexOutOfBounds, idx, t.Len())
	}
	return ResolvedIndex{Index: idx, Source: SourceURIParsed}, nil
}
