package solana

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeypair(t *testing.T, acc types.Account) string {
	t.Helper()
	ints := make([]int, len(acc.PrivateKey))
	for i, b := range acc.PrivateKey {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestLoadAuthorityFile_SignVerify(t *testing.T) {
	acc := types.NewAccount()
	a, err := LoadAuthorityFile(writeKeypair(t, acc))
	require.NoError(t, err)
	assert.Equal(t, acc.PublicKey.ToBase58(), a.PublicKey())

	msg := []byte("raritygate:extend:v1\ncoll\n0\n1\nabc")
	sig := a.Sign(msg)

	v := Ed25519Verifier{}
	assert.NoError(t, v.Verify(a.PublicKey(), sig, msg))
	assert.ErrorIs(t, v.Verify(a.PublicKey(), sig, []byte("tampered")), ErrSignatureInvalid)
	assert.ErrorIs(t, v.Verify(types.NewAccount().PublicKey.ToBase58(), sig, msg), ErrSignatureInvalid)
	assert.ErrorIs(t, v.Verify(a.PublicKey(), " ", msg), ErrSignatureMissing)
	assert.ErrorIs(t, v.Verify(a.PublicKey(), "abc", msg), ErrSignatureInvalid)
	assert.ErrorIs(t, v.Verify("bad", sig, msg), ErrAuthorityKey)
}

func TestDecodeKeypairJSON(t *testing.T) {
	_, err := decodeKeypairJSON([]byte(`{"k":1}`))
	assert.Error(t, err)

	_, err = decodeKeypairJSON([]byte(`[1,2,3]`))
	assert.Error(t, err)

	bad := make([]int, 64)
	bad[5] = 256
	raw, _ := json.Marshal(bad)
	_, err = decodeKeypairJSON(raw)
	assert.Error(t, err)

	ok := make([]int, 64)
	ok[63] = 255
	raw, _ = json.Marshal(ok)
	b, err := decodeKeypairJSON(raw)
	require.NoError(t, err)
	assert.Len(t, b, 64)
	assert.Equal(t, byte(255), b[63])
}

func TestLoadAuthorityFile_Missing(t *testing.T) {
	_, err := LoadAuthorityFile(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
}

func TestMaskShort(t *testing.T) {
	assert.Equal(t, "short", maskShort(" short "))
	assert.Equal(t, "89VB***PyhY", maskShort(testTree))
}
