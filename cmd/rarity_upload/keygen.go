// cmd/rarity_upload/keygen.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/blocto/solana-go-sdk/types"
)

const defaultKeypairFile = "raritygate-authority.json"

var errKeypairExists = errors.New("keypair file already exists (use --force to overwrite)")

// generateAuthority はテーブル authority 用の ed25519 keypair を生成し、
// solana-keygen と同じ JSON 配列（[u8;64]）でファイルに保存します。
// 戻り値は公開鍵（base58）です。
func generateAuthority(path string, force bool) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		p = defaultKeypairFile
	}
	if !force {
		if _, err := os.Stat(p); err == nil {
			return "", fmt.Errorf("%s: %w", p, errKeypairExists)
		}
	}

	acc := types.NewAccount()
	secret := make([]int, len(acc.PrivateKey))
	for i, b := range acc.PrivateKey {
		secret[i] = int(b)
	}
	data, err := json.MarshalIndent(secret, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal secret key json: %w", err)
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	return acc.PublicKey.ToBase58(), nil
}
