// internal/infra/solana/asset_reader.go
package solana

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/blocto/solana-go-sdk/client"

	"raritygate/internal/application/gate"
)

var (
	ErrAssetNotFound      = errors.New("asset_reader: account not found")
	ErrAssetWrongOwner    = errors.New("asset_reader: account is not owned by the metadata program")
	ErrAssetInvalidLayout = errors.New("asset_reader: invalid asset account layout")
)

// MPL Core アカウント先頭の Key 列挙値
const mplCoreKeyAssetV1 byte = 1

// UpdateAuthority 列挙値（None / Address / Collection）
const (
	updateAuthorityNone byte = iota
	updateAuthorityAddress
	updateAuthorityCollection
)

// maxAssetString は name / uri として受け付ける最大バイト長です。
const maxAssetString = 1024

// accountGetter は blocto client のうち必要なメソッドだけを切り出したものです。
type accountGetter interface {
	GetAccountInfo(ctx context.Context, base58Addr string) (client.AccountInfo, error)
}

// AssetReader は MPL Core の BaseAssetV1 アカウントを RPC で読み、URI を返します。
type AssetReader struct {
	rpc   accountGetter
	owner string
}

var _ gate.AssetURIReader = (*AssetReader)(nil)

// NewAssetReader は rpcURL に接続する AssetReader を作ります。
func NewAssetReader(rpcURL string, registry *Registry) *AssetReader {
	return newAssetReader(client.NewClient(strings.TrimSpace(rpcURL)), registry)
}

func newAssetReader(rpc accountGetter, registry *Registry) *AssetReader {
	owner := MplCoreProgramID
	if registry != nil {
		if p, ok := registry.Program(gate.ProgramMplCore); ok {
			owner = p.ID
		}
	}
	return &AssetReader{rpc: rpc, owner: owner}
}

func (r *AssetReader) ReadAssetURI(ctx context.Context, asset string) (string, error) {
	addr := strings.TrimSpace(asset)
	if _, err := ParsePublicKey(addr); err != nil {
		return "", fmt.Errorf("asset: %w", err)
	}

	info, err := r.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("get account info %s: %w", addr, err)
	}
	if len(info.Data) == 0 {
		return "", fmt.Errorf("%w: %s", ErrAssetNotFound, addr)
	}
	if got := info.Owner.ToBase58(); got != r.owner {
		return "", fmt.Errorf("%w: owner=%s", ErrAssetWrongOwner, got)
	}

	uri, err := DecodeBaseAssetURI(info.Data)
	if err != nil {
		return "", err
	}
	log.Printf("[asset_reader] asset=%s uri=%s", maskShort(addr), uri)
	return uri, nil
}

// DecodeBaseAssetURI は BaseAssetV1 のレイアウトから uri を取り出します。
//
//	key(u8) | owner(32) | update_authority(u8 [+32]) | name(string) | uri(string) | ...
//
// string は u32(LE) 長 + UTF-8 バイト列です。
func DecodeBaseAssetURI(data []byte) (string, error) {
	off := 0
	need := func(n int) error {
		if n < 0 || len(data)-off < n {
			return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrAssetInvalidLayout, n, off, len(data)-off)
		}
		return nil
	}

	if err := need(1); err != nil {
		return "", err
	}
	if data[off] != mplCoreKeyAssetV1 {
		return "", fmt.Errorf("%w: key=%d is not AssetV1", ErrAssetInvalidLayout, data[off])
	}
	off++

	// owner
	if err := need(32); err != nil {
		return "", err
	}
	off += 32

	if err := need(1); err != nil {
		return "", err
	}
	switch data[off] {
	case updateAuthorityNone:
		off++
	case updateAuthorityAddress, updateAuthorityCollection:
		off++
		if err := need(32); err != nil {
			return "", err
		}
		off += 32
	default:
		return "", fmt.Errorf("%w: update authority variant %d", ErrAssetInvalidLayout, data[off])
	}

	readString := func() (string, error) {
		if err := need(4); err != nil {
			return "", err
		}
		n := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if n > maxAssetString {
			return "", fmt.Errorf("%w: string length %d", ErrAssetInvalidLayout, n)
		}
		if err := need(n); err != nil {
			return "", err
		}
		s := string(data[off : off+n])
		off += n
		return s, nil
	}

	if _, err := readString(); err != nil { // name
		return "", err
	}
	return readString()
}
