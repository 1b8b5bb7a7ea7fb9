package gate

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	raritydom "raritygate/internal/domain/rarity"
)

const (
	testSelf      = "SELF"
	testMenagerie = "MENAGERIE"
	testBubblegum = "BUBBLEGUM"
	testCore      = "CORE"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCatalog struct{}

func (fakeCatalog) SelfID() string { return testSelf }

func (fakeCatalog) Program(name string) (ProgramRef, bool) {
	switch name {
	case ProgramMenagerie:
		return ProgramRef{Name: name, ID: testMenagerie, DiscriminatorLen: 8}, true
	case ProgramBubblegum:
		return ProgramRef{Name: name, ID: testBubblegum, DiscriminatorLen: 8}, true
	case ProgramMplCore:
		return ProgramRef{Name: name, ID: testCore, DiscriminatorLen: 1}, true
	}
	return ProgramRef{}, false
}

// fakeDeriver は sha256(tree || counter) を asset アドレスとして返します。
type fakeDeriver struct{}

func (fakeDeriver) PredictAssetID(tree string, counter uint64) ([]byte, string, error) {
	if tree == "" {
		return nil, "", errors.New("empty tree")
	}
	buf := binary.LittleEndian.AppendUint64([]byte(tree), counter)
	sum := sha256.Sum256(buf)
	return sum[:], fmt.Sprintf("asset-%x", sum[:4]), nil
}

func (fakeDeriver) TableAddress(collectionKey string) (string, uint8, error) {
	return "table-" + collectionKey, 254, nil
}

type fakeAssets map[string]string

func (f fakeAssets) ReadAssetURI(_ context.Context, asset string) (string, error) {
	uri, ok := f[asset]
	if !ok {
		return "", errors.New("account not found")
	}
	return uri, nil
}

// fakeVerifier は signature == "sig:" + authority + ":" + message を正しい署名とみなします。
type fakeVerifier struct{}

func fakeSign(authority string, msg []byte) string {
	return "sig:" + authority + ":" + string(msg)
}

func (fakeVerifier) Verify(authority, signature string, message []byte) error {
	if signature != fakeSign(authority, message) {
		return errors.New("bad signature")
	}
	return nil
}

type recordingObserver struct {
	calls []string
}

func (o *recordingObserver) ObserveDecision(source Source, outcome string) {
	o.calls = append(o.calls, source.String()+"/"+outcome)
}

func tableWithScores(t *testing.T, scores []byte, thresholds ...uint8) raritydom.RarityTable {
	t.Helper()
	tbl, err := raritydom.NewRarityTable("table-coll", "coll", "auth", 254, thresholds, ProgramMenagerie, testNow)
	require.NoError(t, err)
	if len(scores) > 0 {
		require.NoError(t, tbl.Extend(0, scores, testNow))
	}
	return tbl
}

func le64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

func borshString(s string) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(s)))
	return append(out, s...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
