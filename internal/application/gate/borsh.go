// internal/application/gate/borsh.go
package gate

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var errShortPayload = errors.New("payload too short")

// maxBorshString は命令データ 1 件に収まる文字列長の上限（トランザクション上限 1232 バイト）。
const maxBorshString = 1232

// borshReader は外部命令データの先頭フィールドだけを読む最小リーダです。
// 末尾の未知フィールドは読まずに残します。
type borshReader struct {
	b   []byte
	off int
}

func (r *borshReader) u8() (uint8, error) {
	if r.off+1 > len(r.b) {
		return 0, fmt.Errorf("%w: u8 at %d", errShortPayload, r.off)
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *borshReader) u32() (uint32, error) {
	if r.off+4 > len(r.b) {
		return 0, fmt.Errorf("%w: u32 at %d", errShortPayload, r.off)
	}
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *borshReader) u64() (uint64, error) {
	if r.off+8 > len(r.b) {
		return 0, fmt.Errorf("%w: u64 at %d", errShortPayload, r.off)
	}
	v := binary.LittleEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v, nil
}

func (r *borshReader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if n > maxBorshString || r.off+int(n) > len(r.b) {
		return "", fmt.Errorf("%w: string of %d bytes at %d", errShortPayload, n, r.off)
	}
	s := string(r.b[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}
