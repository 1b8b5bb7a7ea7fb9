// internal/application/gate/adjacency.go
package gate

import (
	"fmt"

	raritydom "raritygate/internal/domain/rarity"
	"raritygate/internal/domain/txview"
)

// DefaultLookback は検証命令の直前から遡る命令数です。
const DefaultLookback = 5

// AdjacencyVerifier は外部ミント命令が同一トランザクション内の
// 直前 maxLookback 件に実在することを確認します。
type AdjacencyVerifier struct{}

// Verify は相対位置 -1 … -maxLookback を順に調べ、
// programID が一致した最初の命令を返します。見つからなければ ErrNotFound（fail-closed）。
func (AdjacencyVerifier) Verify(view txview.View, expected ProgramRef, maxLookback int) (txview.CoInstructionRef, error) {
	if maxLookback <= 0 {
		maxLookback = DefaultLookback
	}
	for k := 1; k <= maxLookback; k++ {
		offset := -int64(k)
		ix, ok := view.Relative(offset)
		if !ok {
			break
		}
		if ix.ProgramID != expected.ID {
			continue
		}
		return splitInstruction(ix, expected.DiscriminatorLen, offset), nil
	}
	return txview.CoInstructionRef{}, fmt.Errorf("%w: program %s (%s) within %d preceding instructions",
		raritydom.ErrNotFound, expected.Name, expected.ID, maxLookback)
}

func splitInstruction(ix txview.Instruction, discLen int, offset int64) txview.CoInstructionRef {
	if discLen <= 0 {
		discLen = 8
	}
	ref := txview.CoInstructionRef{ProgramID: ix.ProgramID, Accounts: ix.Accounts, RelativePosition: offset}
	if len(ix.Data) < discLen {
		ref.Discriminator = ix.Data
		return ref
	}
	ref.Discriminator = ix.Data[:discLen]
	ref.Payload = ix.Data[discLen:]
	return ref
}
