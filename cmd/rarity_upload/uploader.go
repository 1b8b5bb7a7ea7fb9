// cmd/rarity_upload/uploader.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	gcsrepo "raritygate/internal/adapters/out/gcs"
	gcscommon "raritygate/internal/adapters/out/gcs/common"
	"raritygate/internal/application/gate"
	raritydom "raritygate/internal/domain/rarity"
	solanainfra "raritygate/internal/infra/solana"
)

// defaultChunkSize は 1 リクエストで送るスコア数です。
const defaultChunkSize = 900

// Signer は authority の鍵で正規メッセージに署名します。
type Signer interface {
	PublicKey() string
	Sign(message []byte) string
}

type uploader struct {
	base   string
	signer Signer
	http   *http.Client
}

func newUploader(base string, signer Signer, timeout time.Duration) *uploader {
	return &uploader{
		base:   strings.TrimRight(strings.TrimSpace(base), "/"),
		signer: signer,
		http:   &http.Client{Timeout: timeout},
	}
}

type tableInfo struct {
	ID            string `json:"id"`
	CollectionKey string `json:"collectionKey"`
	Length        int    `json:"length"`
	TierCount     int    `json:"tierCount"`
}

func (u *uploader) InitTable(ctx context.Context, collection string, thresholds []int, mintProgram string) (tableInfo, error) {
	th := make([]uint8, len(thresholds))
	for i, v := range thresholds {
		th[i] = uint8(v)
	}
	// 署名対象は送信する mintProgram（空ならサーバ既定が使われる）
	body := map[string]any{
		"collectionKey": collection,
		"authority":     u.signer.PublicKey(),
		"signature":     u.signer.Sign(gate.InitMessage(collection, th, mintProgram)),
		"thresholds":    thresholds,
		"mintProgram":   mintProgram,
	}
	var out tableInfo
	err := u.do(ctx, http.MethodPost, "/rarity/tables", body, http.StatusCreated, &out)
	return out, err
}

// UploadScoreFile はスコアファイルを chunk 件ずつに分け、署名付き PUT を並列に送ります。
// chunk 同士は範囲が重ならないため順不同で適用されても結果は同じです。
func (u *uploader) UploadScoreFile(ctx context.Context, collection string, data []byte, chunk, concurrency int) (int, error) {
	values, err := raritydom.ParseScoreFile(data)
	if err != nil {
		return 0, err
	}
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	chunks := raritydom.ChunkScores(values, chunk)
	path := "/rarity/tables/" + url.PathEscape(collection) + "/scores"

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, c := range chunks {
		g.Go(func() error {
			ints := make([]int, len(c.Values))
			for i, v := range c.Values {
				ints[i] = int(v)
			}
			issuedAt := time.Now()
			body := map[string]any{
				"authority":  u.signer.PublicKey(),
				"signature":  u.signer.Sign(gate.ExtendMessage(collection, c.Start, c.Values, issuedAt)),
				"startIndex": c.Start,
				"values":     ints,
				"issuedAt":   issuedAt.UnixMilli(),
			}
			if err := u.do(gCtx, http.MethodPut, path, body, http.StatusOK, nil); err != nil {
				return fmt.Errorf("chunk start=%d: %w", c.Start, err)
			}
			log.Printf("[rarity_upload] chunk start=%d count=%d ok", c.Start, len(c.Values))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(values), nil
}

func (u *uploader) do(ctx context.Context, method, path string, body any, want int, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// readSource はローカルファイルまたは GCS オブジェクトを読みます。
// gs:// / https://storage.googleapis.com/... 以外はまずローカルパスとして扱い、
// 無ければ bucket 内のオブジェクトパスとして読みます。
func readSource(ctx context.Context, ref, bucket string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if _, _, ok := gcscommon.ParseGCSURL(ref); !ok {
		if _, err := os.Stat(ref); err == nil || strings.TrimSpace(bucket) == "" {
			return os.ReadFile(ref)
		}
	}

	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	defer sc.Close()
	return gcsrepo.NewScoreFileRepositoryGCS(sc, bucket).ReadScoreFile(ctx, ref)
}

func loadSigner(ctx context.Context) (Signer, error) {
	switch {
	case strings.TrimSpace(flagKeypair) != "":
		return solanainfra.LoadAuthorityFile(flagKeypair)
	case strings.TrimSpace(flagSecret) != "":
		return solanainfra.LoadAuthority(ctx, flagSecret)
	default:
		return nil, errors.New("either --keypair or --secret is required")
	}
}
