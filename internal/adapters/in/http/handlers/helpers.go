// internal/adapters/in/http/handlers/helpers.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	raritydom "raritygate/internal/domain/rarity"
	"raritygate/internal/domain/txview"
)

// maxBodyBytes はリクエストボディの上限です（65535 件のスコア配列が入る大きさ）。
const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

// statusFor はドメインエラーを HTTP ステータスに変換します。
func statusFor(err error) int {
	switch {
	case errors.Is(err, raritydom.ErrRarityBelowThreshold):
		return http.StatusUnprocessableEntity
	case errors.Is(err, raritydom.ErrUnauthorizedUpdate):
		return http.StatusForbidden
	case errors.Is(err, raritydom.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, raritydom.ErrNotFound),
		errors.Is(err, raritydom.ErrConflict),
		errors.Is(err, raritydom.ErrHistoryFull):
		return http.StatusConflict
	case errors.Is(err, raritydom.ErrIndexOutOfBounds),
		errors.Is(err, raritydom.ErrNoRarityData),
		errors.Is(err, raritydom.ErrResolutionFailed),
		errors.Is(err, raritydom.ErrInvalidThresholds),
		errors.Is(err, raritydom.ErrInvalidCollection),
		errors.Is(err, raritydom.ErrInvalidAuthority),
		errors.Is(err, raritydom.ErrInvalidScoreFile),
		errors.Is(err, txview.ErrEmptyTransaction),
		errors.Is(err, txview.ErrCurrentOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// codeFor はクライアント向けの短いエラーコードです。
func codeFor(err error) string {
	switch {
	case errors.Is(err, raritydom.ErrRarityBelowThreshold):
		return "rarity_below_threshold"
	case errors.Is(err, raritydom.ErrIndexOutOfBounds):
		return "index_out_of_bounds"
	case errors.Is(err, raritydom.ErrNoRarityData):
		return "no_rarity_data"
	case errors.Is(err, raritydom.ErrResolutionFailed):
		return "resolution_failed"
	case errors.Is(err, raritydom.ErrNotFound):
		return "co_instruction_not_found"
	case errors.Is(err, raritydom.ErrUnauthorizedUpdate):
		return "unauthorized_update"
	case errors.Is(err, raritydom.ErrTableNotFound):
		return "table_not_found"
	case errors.Is(err, raritydom.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func writeDomainErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg, "code": codeFor(err)})
}

// toScoreBytes は JSON の数値配列を u8 配列に変換します。
func toScoreBytes(values []int) ([]byte, bool) {
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, false
		}
		out[i] = byte(v)
	}
	return out, true
}

func toThresholds(values []int) ([]uint8, bool) {
	b, ok := toScoreBytes(values)
	return []uint8(b), ok
}

func parseUint8(s string) (uint8, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}
