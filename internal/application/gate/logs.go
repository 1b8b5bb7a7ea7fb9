// internal/application/gate/logs.go
package gate

import (
	"strconv"
	"strings"
)

const programLogPrefix = "Program log: "

// ParseLogIndex はシミュレーション結果のプログラムログから index を拾う限定的なフォールバックです。
// 対象は programID の "Program <id> invoke [n]" … "Program <id> success|failed" 区間内で
// 出力された "<a> <index> <b> <c>" の 4 つの非負整数だけからなる行で、2 番目の値を index とします。
// 他プログラムの区間やどの区間にも属さない行は見ません。
// 汎用的な解析ではないため、構造化デコードに失敗した場合にのみ使います。
func ParseLogIndex(logs []string, programID string) (uint64, bool) {
	pid := strings.TrimSpace(programID)
	if pid == "" {
		return 0, false
	}

	var frames []string
	for _, raw := range logs {
		line := strings.TrimSpace(raw)

		if body, ok := strings.CutPrefix(line, programLogPrefix); ok {
			if len(frames) == 0 || frames[len(frames)-1] != pid {
				continue
			}
			if v, ok := logLineIndex(body); ok {
				return v, true
			}
			continue
		}

		if id, ok := frameOpen(line); ok {
			frames = append(frames, id)
			continue
		}
		if id, ok := frameClose(line); ok {
			if n := len(frames); n > 0 && frames[n-1] == id {
				frames = frames[:n-1]
			}
		}
	}
	return 0, false
}

// "Program <id> invoke [<depth>]"
func frameOpen(line string) (string, bool) {
	f := strings.Fields(line)
	if len(f) != 4 || f[0] != "Program" || f[2] != "invoke" || !strings.HasPrefix(f[3], "[") {
		return "", false
	}
	return f[1], true
}

// "Program <id> success" / "Program <id> failed: ..."
func frameClose(line string) (string, bool) {
	f := strings.Fields(line)
	if len(f) < 3 || f[0] != "Program" {
		return "", false
	}
	if f[2] == "success" || strings.HasPrefix(f[2], "failed") {
		return f[1], true
	}
	return "", false
}

func logLineIndex(body string) (uint64, bool) {
	fields := strings.Fields(body)
	if len(fields) != 4 {
		return 0, false
	}
	vals := make([]uint64, 0, 4)
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return 0, false
		}
		vals = append(vals, v)
	}
	return vals[1], true
}
