// internal/infra/solana/tx_decoder.go
package solana

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/blocto/solana-go-sdk/types"

	"raritygate/internal/domain/txview"
)

var ErrInvalidTransaction = errors.New("tx_decoder: invalid transaction")

// TxDecoder はワイヤ形式のトランザクションを txview.View に変換します。
type TxDecoder struct {
	selfID string
}

func NewTxDecoder(registry *Registry) TxDecoder {
	self := DefaultSelfProgramID
	if registry != nil {
		self = registry.SelfID()
	}
	return TxDecoder{selfID: self}
}

// FromBase64 は署名付きトランザクション（base64）をデコードします。
// current が nil の場合は、このプログラムを呼ぶ最初の命令を current とします。
func (d TxDecoder) FromBase64(txB64 string, current *int) (txview.View, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(txB64))
	if err != nil {
		return txview.View{}, fmt.Errorf("%w: base64: %v", ErrInvalidTransaction, err)
	}
	tx, err := types.TransactionDeserialize(raw)
	if err != nil {
		return txview.View{}, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return d.FromMessage(tx.Message, current)
}

// FromMessageBytes は署名部を含まないメッセージ本体をデコードします。
func (d TxDecoder) FromMessageBytes(raw []byte, current *int) (txview.View, error) {
	msg, err := types.MessageDeserialize(raw)
	if err != nil {
		return txview.View{}, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return d.FromMessage(msg, current)
}

func (d TxDecoder) FromMessage(msg types.Message, current *int) (txview.View, error) {
	ins, err := InstructionsFromMessage(msg)
	if err != nil {
		return txview.View{}, err
	}
	if current != nil {
		return txview.NewView(ins, *current)
	}
	return txview.Locate(ins, d.selfID)
}

// InstructionsFromMessage は compiled instruction のインデックスを静的アカウントキーで展開します。
// アドレスルックアップテーブル由来のアカウントはここでは解決できないため空文字になります。
// プログラム ID は常に静的キーに含まれるので、検証に必要な情報は欠けません。
func InstructionsFromMessage(msg types.Message) ([]txview.Instruction, error) {
	keys := make([]string, len(msg.Accounts))
	for i, k := range msg.Accounts {
		keys[i] = k.ToBase58()
	}

	out := make([]txview.Instruction, 0, len(msg.Instructions))
	for i, ci := range msg.Instructions {
		if ci.ProgramIDIndex < 0 || ci.ProgramIDIndex >= len(keys) {
			return nil, fmt.Errorf("%w: instruction %d program index %d of %d static keys",
				ErrInvalidTransaction, i, ci.ProgramIDIndex, len(keys))
		}
		accounts := make([]string, len(ci.Accounts))
		for j, a := range ci.Accounts {
			if a >= 0 && a < len(keys) {
				accounts[j] = keys[a]
			}
		}
		out = append(out, txview.Instruction{
			ProgramID: keys[ci.ProgramIDIndex],
			Accounts:  accounts,
			Data:      append([]byte(nil), ci.Data...),
		})
	}
	return out, nil
}
