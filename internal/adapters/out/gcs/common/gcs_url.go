// internal/adapters/out/gcs/common/gcs_url.go
package common

import (
	"net/url"
	"strings"
)

// ParseGCSURL parses a GCS-like URL and returns (bucket, objectPath, ok).
// 対応例:
//   - gs://<bucket>/<object>
//   - https://storage.googleapis.com/<bucket>/<object>
//   - https://storage.cloud.google.com/<bucket>/<object>
func ParseGCSURL(u string) (string, string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return "", "", false
	}

	var p string
	switch strings.ToLower(parsed.Scheme) {
	case "gs":
		if parsed.Host == "" {
			return "", "", false
		}
		p = parsed.Host + "/" + strings.TrimLeft(parsed.EscapedPath(), "/")
	case "http", "https":
		host := strings.ToLower(parsed.Host)
		if host != "storage.googleapis.com" && host != "storage.cloud.google.com" {
			return "", "", false
		}
		p = strings.TrimLeft(parsed.EscapedPath(), "/")
	default:
		return "", "", false
	}

	parts := strings.SplitN(p, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	objectPath, err := url.PathUnescape(parts[1])
	if err != nil {
		return "", "", false
	}
	return parts[0], objectPath, true
}
