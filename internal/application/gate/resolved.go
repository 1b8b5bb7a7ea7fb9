// internal/application/gate/resolved.go
package gate

// Source は index をどの resolver が決めたかを表します。
type Source int

const (
	SourcePredicted Source = iota + 1
	SourceURIParsed
	SourceTxIntrospected
)

func (s Source) String() string {
	switch s {
	case SourcePredicted:
		return "predicted"
	case SourceURIParsed:
		return "uri_parsed"
	case SourceTxIntrospected:
		return "tx_introspected"
	default:
		return "unknown"
	}
}

// ResolvedIndex は 1 回の検証呼び出しで resolver が返す一時値です。永続化しません。
type ResolvedIndex struct {
	Index  uint64 `json:"index"`
	Source Source `json:"-"`
}
