package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raritygate/internal/application/gate"
	solanainfra "raritygate/internal/infra/solana"
)

func newSigner() *solanainfra.Authority {
	return &solanainfra.Authority{Account: types.NewAccount()}
}

func scoreFileJSON(n int) []byte {
	type entry struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	entries := make([]entry, n)
	for i := range entries {
		entries[i] = entry{Index: i, Score: float64(i%100) + 0.7}
	}
	b, _ := json.Marshal(map[string]any{"rarityScores": entries})
	return b
}

func TestUploadScoreFile_SignedChunks(t *testing.T) {
	signer := newSigner()
	const coll = "coll1"

	var (
		mu  sync.Mutex
		got = map[uint64]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rarity/tables/coll1/scores", r.URL.Path)

		var req struct {
			Authority  string `json:"authority"`
			Signature  string `json:"signature"`
			StartIndex uint64 `json:"startIndex"`
			Values     []int  `json:"values"`
			IssuedAt   int64  `json:"issuedAt"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vals := make([]byte, len(req.Values))
		for i, v := range req.Values {
			vals[i] = byte(v)
		}
		assert.NotZero(t, req.IssuedAt)
		msg := gate.ExtendMessage(coll, req.StartIndex, vals, time.UnixMilli(req.IssuedAt))
		err := solanainfra.Ed25519Verifier{}.Verify(req.Authority, req.Signature, msg)
		if err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		mu.Lock()
		got[req.StartIndex] = len(req.Values)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	up := newUploader(srv.URL+"/", signer, 5*time.Second)
	n, err := up.UploadScoreFile(context.Background(), coll, scoreFileJSON(2000), 900, 3)
	require.NoError(t, err)
	assert.Equal(t, 2000, n)
	assert.Equal(t, map[uint64]int{0: 900, 900: 900, 1800: 200}, got)
}

func TestUploadScoreFile_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer srv.Close()

	up := newUploader(srv.URL, newSigner(), 5*time.Second)
	_, err := up.UploadScoreFile(context.Background(), "c", scoreFileJSON(10), 4, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=403")
}

func TestUploadScoreFile_InvalidFile(t *testing.T) {
	up := newUploader("http://127.0.0.1:0", newSigner(), time.Second)
	_, err := up.UploadScoreFile(context.Background(), "c", []byte(`{"rarityScores":[{"index":0,"score":101}]}`), 10, 1)
	assert.Error(t, err)
}

func TestInitTable_SignsRequestedValues(t *testing.T) {
	signer := newSigner()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CollectionKey string `json:"collectionKey"`
			Authority     string `json:"authority"`
			Signature     string `json:"signature"`
			Thresholds    []int  `json:"thresholds"`
			MintProgram   string `json:"mintProgram"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		th := make([]uint8, len(req.Thresholds))
		for i, v := range req.Thresholds {
			th[i] = uint8(v)
		}
		err := solanainfra.Ed25519Verifier{}.Verify(req.Authority, req.Signature, gate.InitMessage(req.CollectionKey, th, req.MintProgram))
		assert.NoError(t, err)

		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"id":"t1","collectionKey":%q,"length":0,"tierCount":%d}`, req.CollectionKey, len(th)+1)
	}))
	defer srv.Close()

	up := newUploader(srv.URL, signer, 5*time.Second)
	info, err := up.InitTable(context.Background(), "coll1", []int{20, 50, 80}, "")
	require.NoError(t, err)
	assert.Equal(t, "t1", info.ID)
	assert.Equal(t, 4, info.TierCount)
}

func TestParseThresholds(t *testing.T) {
	th, err := parseThresholds(" 10, 20 ,,90")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 90}, th)

	_, err = parseThresholds("10,x")
	assert.Error(t, err)
	_, err = parseThresholds("300")
	assert.Error(t, err)

	th, err = parseThresholds("")
	require.NoError(t, err)
	assert.Empty(t, th)
}

func TestReadSource_LocalFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "scores.json")
	require.NoError(t, os.WriteFile(p, scoreFileJSON(3), 0o600))

	data, err := readSource(context.Background(), p, "")
	require.NoError(t, err)
	assert.Equal(t, scoreFileJSON(3), data)

	_, err = readSource(context.Background(), filepath.Join(t.TempDir(), "missing.json"), "")
	assert.Error(t, err)
}
