// internal/adapters/out/gcs/scoreFile_repository_gcs.go
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	gcscommon "raritygate/internal/adapters/out/gcs/common"
)

// maxScoreFileBytes は 1 ファイルとして読み込む上限です。
const maxScoreFileBytes = 32 << 20

var ErrScoreFileNotFound = errors.New("score_file_gcs: object not found")

// ScoreFileRepositoryGCS はオフチェーンで算出したレアリティスコア JSON を GCS から読みます。
// - ref は GCS URL (gs:// / https://storage.googleapis.com/...) または既定バケット内のオブジェクトパス
type ScoreFileRepositoryGCS struct {
	Client *storage.Client
	Bucket string
}

func NewScoreFileRepositoryGCS(client *storage.Client, bucket string) *ScoreFileRepositoryGCS {
	return &ScoreFileRepositoryGCS{Client: client, Bucket: strings.TrimSpace(bucket)}
}

func (r *ScoreFileRepositoryGCS) resolve(ref string) (string, string, error) {
	ref = strings.TrimSpace(ref)
	if b, obj, ok := gcscommon.ParseGCSURL(ref); ok {
		return b, obj, nil
	}
	if r.Bucket == "" {
		return "", "", fmt.Errorf("score_file_gcs: %q is not a GCS URL and no default bucket is set", ref)
	}
	obj := strings.TrimLeft(ref, "/")
	if obj == "" {
		return "", "", ErrScoreFileNotFound
	}
	return r.Bucket, obj, nil
}

// ReadScoreFile はオブジェクト本体を返します。
func (r *ScoreFileRepositoryGCS) ReadScoreFile(ctx context.Context, ref string) ([]byte, error) {
	if r.Client == nil {
		return nil, errors.New("ScoreFileRepositoryGCS: nil storage client")
	}
	bucket, obj, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}

	rd, err := r.Client.Bucket(bucket).Object(obj).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrScoreFileNotFound, bucket, obj)
	}
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	data, err := io.ReadAll(io.LimitReader(rd, maxScoreFileBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxScoreFileBytes {
		return nil, fmt.Errorf("score_file_gcs: gs://%s/%s exceeds %d bytes", bucket, obj, maxScoreFileBytes)
	}
	return data, nil
}

// ListScoreFiles は既定バケットの prefix 配下にある .json オブジェクト名を返します。
func (r *ScoreFileRepositoryGCS) ListScoreFiles(ctx context.Context, prefix string) ([]string, error) {
	if r.Client == nil {
		return nil, errors.New("ScoreFileRepositoryGCS: nil storage client")
	}
	if r.Bucket == "" {
		return nil, errors.New("ScoreFileRepositoryGCS: bucket is empty")
	}

	it := r.Client.Bucket(r.Bucket).Objects(ctx, &storage.Query{Prefix: strings.TrimLeft(strings.TrimSpace(prefix), "/")})
	var out []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(attrs.Name, ".json") {
			out = append(out, attrs.Name)
		}
	}
	return out, nil
}
