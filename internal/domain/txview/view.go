// internal/domain/txview/view.go
package txview

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyTransaction  = errors.New("txview: transaction has no instructions")
	ErrCurrentOutOfRange = errors.New("txview: current instruction index out of range")
)

// Instruction はトランザクション内の 1 命令（outer のみ）です。
// ProgramID / Accounts は base58 文字列で保持します。
type Instruction struct {
	ProgramID string
	Accounts  []string
	Data      []byte
}

// View は実行中トランザクションの命令列に対する読み取り専用ビューです。
// current は「このプログラムの検証命令」の絶対位置。
// 取得は current からの相対オフセットで行います。
type View struct {
	instructions []Instruction
	current      int
}

// NewView は ins をコピーして View を作ります。
func NewView(ins []Instruction, current int) (View, error) {
	if len(ins) == 0 {
		return View{}, ErrEmptyTransaction
	}
	if current < 0 || current >= len(ins) {
		return View{}, fmt.Errorf("%w: %d of %d", ErrCurrentOutOfRange, current, len(ins))
	}
	cp := make([]Instruction, len(ins))
	for i, ix := range ins {
		cp[i] = copyInstruction(ix)
		cp[i].ProgramID = strings.TrimSpace(ix.ProgramID)
	}
	return View{instructions: cp, current: current}, nil
}

// Locate は programID を呼ぶ最初の命令を current とした View を作ります。
func Locate(ins []Instruction, programID string) (View, error) {
	pid := strings.TrimSpace(programID)
	for i, ix := range ins {
		if strings.TrimSpace(ix.ProgramID) == pid {
			return NewView(ins, i)
		}
	}
	if len(ins) == 0 {
		return View{}, ErrEmptyTransaction
	}
	return View{}, fmt.Errorf("%w: program %s not invoked", ErrCurrentOutOfRange, pid)
}

func (v View) Len() int { return len(v.instructions) }

func (v View) CurrentIndex() int { return v.current }

// Current は現在の命令です。
func (v View) Current() Instruction {
	if len(v.instructions) == 0 {
		return Instruction{}
	}
	return copyInstruction(v.instructions[v.current])
}

// Relative は current+offset の命令を返します。範囲外は ok=false。
func (v View) Relative(offset int64) (Instruction, bool) {
	pos := int64(v.current) + offset
	if pos < 0 || pos >= int64(len(v.instructions)) {
		return Instruction{}, false
	}
	return copyInstruction(v.instructions[pos]), true
}

// Preceding は current より前の命令数です。
func (v View) Preceding() int { return v.current }

func copyInstruction(ix Instruction) Instruction {
	out := Instruction{ProgramID: ix.ProgramID}
	if ix.Accounts != nil {
		out.Accounts = append([]string(nil), ix.Accounts...)
	}
	if ix.Data != nil {
		out.Data = append([]byte(nil), ix.Data...)
	}
	return out
}

// CoInstructionRef は Adjacency Verifier が見つけた兄弟命令の記述子です。
type CoInstructionRef struct {
	ProgramID        string
	Accounts         []string
	Discriminator    []byte
	Payload          []byte
	RelativePosition int64
}
