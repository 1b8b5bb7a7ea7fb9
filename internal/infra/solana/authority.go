// internal/infra/solana/authority.go
package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretspb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"

	"raritygate/internal/application/gate"
)

var (
	ErrSignatureMissing = errors.New("authority: signature is empty")
	ErrSignatureInvalid = errors.New("authority: signature does not verify")
	ErrAuthorityKey     = errors.New("authority: invalid authority public key")
)

// Authority はテーブル authority の鍵ペアです（アップロード CLI が署名に使います）。
type Authority struct {
	Account types.Account
}

// LoadAuthority は secretName（"projects/<PROJECT_ID>/secrets/<SECRET_ID>/versions/latest"）から
// solana-keygen の keypair(JSON配列 [u8;64]) を復元します。
func LoadAuthority(ctx context.Context, secretName string) (*Authority, error) {
	name := strings.TrimSpace(secretName)
	if name == "" {
		return nil, fmt.Errorf("authority secret name is empty")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secretmanager.NewClient: %w", err)
	}
	defer client.Close()

	resp, err := client.AccessSecretVersion(ctx, &secretspb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("AccessSecretVersion: %w", err)
	}

	a, err := authorityFromKeypairJSON(resp.Payload.Data)
	if err != nil {
		return nil, err
	}
	log.Printf("[authority] loaded from Secret Manager: secret=%s pubkey=%s", name, a.PublicKey())
	return a, nil
}

// LoadAuthorityFile は solana-keygen が出力した keypair ファイルを読みます。
func LoadAuthorityFile(path string) (*Authority, error) {
	raw, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}
	a, err := authorityFromKeypairJSON(raw)
	if err != nil {
		return nil, err
	}
	log.Printf("[authority] loaded from file: pubkey=%s", a.PublicKey())
	return a, nil
}

func authorityFromKeypairJSON(data []byte) (*Authority, error) {
	keyBytes, err := decodeKeypairJSON(data)
	if err != nil {
		return nil, err
	}
	acc, err := types.AccountFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("AccountFromBytes: %w", err)
	}
	return &Authority{Account: acc}, nil
}

func (a *Authority) PublicKey() string {
	return a.Account.PublicKey.ToBase58()
}

// Sign は message の ed25519 署名を base58 で返します。
func (a *Authority) Sign(message []byte) string {
	return base58.Encode(a.Account.Sign(message))
}

// decodeKeypairJSON は keypair JSON から 64 バイトの鍵配列を復元します。
// - 正: [u8;64] を []byte で受け取る
// - 互換: [int,...] を []int で受けてから []byte に変換
func decodeKeypairJSON(data []byte) ([]byte, error) {
	var keyBytes []byte
	if err := json.Unmarshal(data, &keyBytes); err == nil {
		if len(keyBytes) == ed25519.PrivateKeySize {
			return keyBytes, nil
		}
	}

	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("unmarshal keypair json: %w", err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("unexpected secret key length: got %d, want %d", len(ints), ed25519.PrivateKeySize)
	}

	keyBytes = make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair byte %d out of range: %d", i, v)
		}
		keyBytes[i] = byte(v)
	}
	return keyBytes, nil
}

// ============================================================
// 署名検証
// ============================================================

// Ed25519Verifier は base58 の公開鍵 / 署名で ed25519 検証を行います。
type Ed25519Verifier struct{}

var _ gate.SignatureVerifier = Ed25519Verifier{}

func (Ed25519Verifier) Verify(authority string, signature string, message []byte) error {
	pk, err := ParsePublicKey(authority)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorityKey, err)
	}
	s := strings.TrimSpace(signature)
	if s == "" {
		return ErrSignatureMissing
	}
	sig, err := base58.Decode(s)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: malformed signature", ErrSignatureInvalid)
	}
	if !ed25519.Verify(ed25519.PublicKey(pk.Bytes()), message, sig) {
		return ErrSignatureInvalid
	}
	return nil
}

func maskShort(s string) string {
	t := strings.TrimSpace(s)
	if len(t) <= 10 {
		return t
	}
	return t[:4] + "***" + t[len(t)-4:]
}
