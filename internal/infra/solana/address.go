// internal/infra/solana/address.go
package solana

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/blocto/solana-go-sdk/common"

	"raritygate/internal/application/gate"
)

// PDA seeds
var (
	assetSeedPrefix = []byte("asset")
	tableSeedPrefix = []byte("nft-beater")
)

var ErrDeriverNotConfigured = errors.New("address_deriver: not configured")

// Deriver は Registry のプログラム ID を使って決定的なアドレスを導出します。
type Deriver struct {
	registry *Registry
}

var _ gate.AddressDeriver = Deriver{}

func NewDeriver(registry *Registry) Deriver {
	return Deriver{registry: registry}
}

// PredictAssetID は Bubblegum が counter 番目のミントで使う asset アドレスです。
// seeds = ["asset", tree, counter(LE u64)]
func (d Deriver) PredictAssetID(tree string, counter uint64) ([]byte, string, error) {
	if d.registry == nil {
		return nil, "", ErrDeriverNotConfigured
	}
	treeKey, err := ParsePublicKey(tree)
	if err != nil {
		return nil, "", fmt.Errorf("tree: %w", err)
	}
	bubblegum, ok := d.registry.ProgramKey(gate.ProgramBubblegum)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s is not registered", ErrDeriverNotConfigured, gate.ProgramBubblegum)
	}

	nonce := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonce, counter)

	pk, _, err := common.FindProgramAddress([][]byte{assetSeedPrefix, treeKey.Bytes(), nonce}, bubblegum)
	if err != nil {
		return nil, "", fmt.Errorf("find asset address: %w", err)
	}
	return pk.Bytes(), pk.ToBase58(), nil
}

// TableAddress はコレクション 1 つにつき 1 つの RarityTable アドレスと bump です。
// seeds = ["nft-beater", collection]
func (d Deriver) TableAddress(collectionKey string) (string, uint8, error) {
	if d.registry == nil {
		return "", 0, ErrDeriverNotConfigured
	}
	coll, err := ParsePublicKey(collectionKey)
	if err != nil {
		return "", 0, fmt.Errorf("collection: %w", err)
	}
	pk, bump, err := common.FindProgramAddress([][]byte{tableSeedPrefix, coll.Bytes()}, d.registry.Self())
	if err != nil {
		return "", 0, fmt.Errorf("find table address: %w", err)
	}
	return pk.ToBase58(), bump, nil
}
