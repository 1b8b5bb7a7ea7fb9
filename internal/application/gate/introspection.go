// internal/application/gate/introspection.go
package gate

import (
	"fmt"
	"log"

	raritydom "raritygate/internal/domain/rarity"
	"raritygate/internal/domain/txview"
)

// IntrospectionResolver は同一トランザクション内の外部ミント命令を読み、index を決めます。
type IntrospectionResolver struct {
	catalog  ProgramCatalog
	verifier AdjacencyVerifier
	decoders *DecoderTable
	lookback int
}

func NewIntrospectionResolver(catalog ProgramCatalog, decoders *DecoderTable, lookback int) IntrospectionResolver {
	if decoders == nil {
		decoders = NewDecoderTable(DefaultDecoders()...)
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return IntrospectionResolver{catalog: catalog, decoders: decoders, lookback: lookback}
}

// Resolve:
//  1. current 命令がこのプログラム自身であること
//  2. 直前 lookback 件から mintProgram の命令を探す（AdjacencyVerifier）
//  3. discriminator で Decoder を選び payload から index を読む。
//     Decoder が collection アカウントを持つ場合は collectionKey と照合する
//  4. 読めなければ、見つけた命令のプログラム区間内の logs に限った限定フォールバック
//
// logs はサーバ側の simulateTransaction 由来のものだけを渡すこと。
func (r IntrospectionResolver) Resolve(view txview.View, mintProgram string, collectionKey string, logs []string) (ResolvedIndex, txview.CoInstructionRef, error) {
	if r.catalog == nil {
		return ResolvedIndex{}, txview.CoInstructionRef{}, fmt.Errorf("%w: program catalog is not configured", raritydom.ErrResolutionFailed)
	}
	if view.Len() == 0 {
		return ResolvedIndex{}, txview.CoInstructionRef{}, fmt.Errorf("%w: empty transaction", raritydom.ErrResolutionFailed)
	}

	cur := view.Current()
	if cur.ProgramID != r.catalog.SelfID() {
		return ResolvedIndex{}, txview.CoInstructionRef{}, fmt.Errorf("%w: current instruction program %s is not this program",
			raritydom.ErrResolutionFailed, cur.ProgramID)
	}

	prog, ok := r.catalog.Program(mintProgram)
	if !ok {
		return ResolvedIndex{}, txview.CoInstructionRef{}, fmt.Errorf("%w: unknown mint program %q", raritydom.ErrResolutionFailed, mintProgram)
	}

	ref, err := r.verifier.Verify(view, prog, r.lookback)
	if err != nil {
		return ResolvedIndex{}, txview.CoInstructionRef{}, err
	}

	idx, dec, err := r.decoders.Decode(prog.Name, ref)
	if err == nil {
		if cerr := dec.CheckCollection(ref, collectionKey); cerr != nil {
			return ResolvedIndex{}, ref, cerr
		}
		log.Printf("[rarity_gate] decoded %s/%s %s at offset=%d index=%d", prog.Name, dec.Name, dec.Version, ref.RelativePosition, idx)
		return ResolvedIndex{Index: idx, Source: SourceTxIntrospected}, ref, nil
	}

	if v, ok := ParseLogIndex(logs, ref.ProgramID); ok {
		log.Printf("[rarity_gate] structured decode failed (%v); using program log index=%d", err, v)
		return ResolvedIndex{Index: v, Source: SourceTxIntrospected}, ref, nil
	}
	return ResolvedIndex{}, ref, err
}
