// internal/adapters/in/http/handlers/rarity_handler.go
package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"raritygate/internal/application/gate"
	raritydom "raritygate/internal/domain/rarity"
	"raritygate/internal/domain/txview"
)

// TransactionDecoder はワイヤ形式（base64）のトランザクションを txview.View にします。
// 実装は infra/solana.TxDecoder。
type TransactionDecoder interface {
	FromBase64(txB64 string, current *int) (txview.View, error)
}

// LogSimulator は simulateTransaction のログ取得です（任意依存）。
type LogSimulator interface {
	SimulateLogs(ctx context.Context, txBase64 string) ([]string, error)
}

type RarityHandler struct {
	uc      *gate.GateUsecase
	txs     TransactionDecoder
	selfID  string
	sim     LogSimulator
	feeDest string
}

// NewRarityHandler は /rarity/ 以下を扱うハンドラを作ります。
// selfID は introspection で instructions を直接受け取った場合に current を探すためのプログラム ID。
func NewRarityHandler(uc *gate.GateUsecase, txs TransactionDecoder, selfID string) *RarityHandler {
	return &RarityHandler{uc: uc, txs: txs, selfID: strings.TrimSpace(selfID)}
}

// SetSimulator は introspection のログフォールバック用シミュレータを差し込みます。
func (h *RarityHandler) SetSimulator(sim LogSimulator) {
	if h == nil {
		return
	}
	h.sim = sim
}

// SetFeeReceiver は検証レスポンスに載せる手数料受取先です（送金はしません）。
func (h *RarityHandler) SetFeeReceiver(addr string) {
	if h == nil {
		return
	}
	h.feeDest = strings.TrimSpace(addr)
}

func (h *RarityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.uc == nil {
		writeErr(w, http.StatusInternalServerError, "rarity usecase is not configured")
		return
	}

	// /rarity/tables[/{collection}[/...]]
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/rarity/tables"), "/")
	if rest == "" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.initTable(w, r)
		return
	}

	collection, action, _ := strings.Cut(rest, "/")

	switch {
	// GET /rarity/tables/{collection}
	case action == "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.getTable(w, r, collection)

	// PUT /rarity/tables/{collection}/scores
	case action == "scores":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		h.extendTable(w, r, collection)

	// POST /rarity/tables/{collection}/import
	case action == "import":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.importTable(w, r, collection)

	// POST /rarity/tables/{collection}/validate/{predictive|uri|introspection}
	case strings.HasPrefix(action, "validate/"):
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		switch strings.TrimPrefix(action, "validate/") {
		case "predictive":
			h.validatePredictive(w, r, collection)
		case "uri":
			h.validateURI(w, r, collection)
		case "introspection":
			h.validateIntrospection(w, r, collection)
		default:
			http.NotFound(w, r)
		}

	// POST /rarity/tables/{collection}/records
	case action == "records":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.recordMint(w, r, collection)

	// GET /rarity/tables/{collection}/statistics
	case action == "statistics":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.statistics(w, r, collection)

	// GET|POST /rarity/tables/{collection}/check
	case action == "check":
		switch r.Method {
		case http.MethodGet:
			h.checkQuery(w, r, collection)
		case http.MethodPost:
			h.checkBody(w, r, collection)
		default:
			methodNotAllowed(w)
		}

	default:
		http.NotFound(w, r)
	}
}

// ============================================================
// テーブル管理
// ============================================================

type tableResponse struct {
	raritydom.RarityTable
	Length    int `json:"length"`
	TierCount int `json:"tierCount"`
}

func toTableResponse(t raritydom.RarityTable) tableResponse {
	return tableResponse{RarityTable: t, Length: t.Len(), TierCount: t.TierCount()}
}

type initTableRequest struct {
	CollectionKey string `json:"collectionKey"`
	Authority     string `json:"authority"`
	Signature     string `json:"signature"`
	Thresholds    []int  `json:"thresholds"`
	MintProgram   string `json:"mintProgram"`
}

func (h *RarityHandler) initTable(w http.ResponseWriter, r *http.Request) {
	var req initTableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	th, ok := toThresholds(req.Thresholds)
	if !ok {
		writeErr(w, http.StatusBadRequest, "thresholds must be 0..255")
		return
	}

	t, err := h.uc.InitTable(r.Context(), gate.InitTableInput{
		CollectionKey: req.CollectionKey,
		Authority:     req.Authority,
		Signature:     req.Signature,
		Thresholds:    th,
		MintProgram:   req.MintProgram,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTableResponse(t))
}

func (h *RarityHandler) getTable(w http.ResponseWriter, r *http.Request, collection string) {
	t, err := h.uc.GetTable(r.Context(), collection)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(t))
}

type extendTableRequest struct {
	Authority  string `json:"authority"`
	Signature  string `json:"signature"`
	StartIndex uint64 `json:"startIndex"`
	Values     []int  `json:"values"`
	// IssuedAt は署名メッセージに含めた unix ミリ秒
	IssuedAt int64 `json:"issuedAt"`
}

func (h *RarityHandler) extendTable(w http.ResponseWriter, r *http.Request, collection string) {
	var req extendTableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	values, ok := toScoreBytes(req.Values)
	if !ok {
		writeErr(w, http.StatusBadRequest, "values must be 0..255")
		return
	}

	t, err := h.uc.ExtendTable(r.Context(), gate.ExtendTableInput{
		CollectionKey: collection,
		Authority:     req.Authority,
		Signature:     req.Signature,
		StartIndex:    req.StartIndex,
		Values:        values,
		IssuedAt:      issuedAt(req.IssuedAt),
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(t))
}

type importTableRequest struct {
	Authority string `json:"authority"`
	Signature string `json:"signature"`
	IssuedAt  int64  `json:"issuedAt"`
	Source    string `json:"source"`
}

func (h *RarityHandler) importTable(w http.ResponseWriter, r *http.Request, collection string) {
	var req importTableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeErr(w, http.StatusBadRequest, "source is required")
		return
	}

	t, err := h.uc.ImportTable(r.Context(), gate.ImportTableInput{
		CollectionKey: collection,
		Authority:     req.Authority,
		Signature:     req.Signature,
		IssuedAt:      issuedAt(req.IssuedAt),
		Source:        req.Source,
	})
	if errors.Is(err, gate.ErrScoreFilesNotConfigured) {
		writeErr(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(t))
}

// ============================================================
// 検証
// ============================================================

type validationResponse struct {
	gate.ValidationResult
	FeeReceiver string `json:"feeReceiver,omitempty"`
	Error       string `json:"error,omitempty"`
	Code        string `json:"code,omitempty"`
}

// writeValidation は Accept を 200、Reject を 422（判定内容つき）で返します。
func (h *RarityHandler) writeValidation(w http.ResponseWriter, res gate.ValidationResult, err error) {
	body := validationResponse{ValidationResult: res, FeeReceiver: h.feeDest}
	if err == nil {
		writeJSON(w, http.StatusOK, body)
		return
	}
	if !errors.Is(err, raritydom.ErrRarityBelowThreshold) {
		writeDomainErr(w, err)
		return
	}
	body.Error = err.Error()
	body.Code = codeFor(err)
	writeJSON(w, http.StatusUnprocessableEntity, body)
}

type predictiveRequest struct {
	MinScore uint8  `json:"minScore"`
	Counter  uint64 `json:"counter"`
}

func (h *RarityHandler) validatePredictive(w http.ResponseWriter, r *http.Request, collection string) {
	var req predictiveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.uc.ValidatePredictive(r.Context(), collection, req.MinScore, req.Counter)
	h.writeValidation(w, res, err)
}

type uriRequest struct {
	MinScore uint8  `json:"minScore"`
	Asset    string `json:"asset"`
	URI      string `json:"uri"`
}

func (h *RarityHandler) validateURI(w http.ResponseWriter, r *http.Request, collection string) {
	var req uriRequest
	if !decodeBody(w, r, &req) {
		return
	}

	asset := strings.TrimSpace(req.Asset)
	uri := strings.TrimSpace(req.URI)
	var (
		res gate.ValidationResult
		err error
	)
	switch {
	case asset != "" && uri != "":
		writeErr(w, http.StatusBadRequest, "specify either asset or uri, not both")
		return
	case asset != "":
		res, err = h.uc.ValidateByURI(r.Context(), collection, asset, req.MinScore)
	case uri != "":
		res, err = h.uc.ValidateURI(r.Context(), collection, uri, req.MinScore)
	default:
		writeErr(w, http.StatusBadRequest, "asset or uri is required")
		return
	}
	h.writeValidation(w, res, err)
}

type instructionRequest struct {
	ProgramID string   `json:"programId"`
	Accounts  []string `json:"accounts"`
	// Data は base64
	Data string `json:"data"`
}

type introspectionRequest struct {
	MinScore    uint8  `json:"minScore"`
	MintProgram string `json:"mintProgram"`

	// Transaction（base64 のワイヤ形式）か Instructions のどちらか
	Transaction  string               `json:"transaction"`
	Instructions []instructionRequest `json:"instructions"`
	CurrentIndex *int                 `json:"currentIndex"`

	// Simulate=true かつ Transaction 指定時は simulateTransaction のログをフォールバックに使う
	Simulate bool `json:"simulate"`
}

func (h *RarityHandler) validateIntrospection(w http.ResponseWriter, r *http.Request, collection string) {
	ctx := r.Context()

	var req introspectionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.buildView(req)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	var logs []string
	if req.Simulate && h.sim != nil && strings.TrimSpace(req.Transaction) != "" {
		simLogs, err := h.sim.SimulateLogs(ctx, req.Transaction)
		if err != nil {
			log.Printf("[rarity_handler] simulate failed (continuing with %d logs): %v", len(simLogs), err)
		}
		logs = simLogs
	}

	res, err := h.uc.ValidateByIntrospection(ctx, gate.IntrospectionInput{
		CollectionKey: collection,
		MinScore:      req.MinScore,
		View:          view,
		Logs:          logs,
		MintProgram:   req.MintProgram,
	})
	h.writeValidation(w, res, err)
}

func (h *RarityHandler) buildView(req introspectionRequest) (txview.View, error) {
	hasTx := strings.TrimSpace(req.Transaction) != ""
	switch {
	case hasTx && len(req.Instructions) > 0:
		return txview.View{}, errors.New("specify either transaction or instructions, not both")
	case hasTx:
		if h.txs == nil {
			return txview.View{}, errors.New("transaction decoding is not configured")
		}
		return h.txs.FromBase64(req.Transaction, req.CurrentIndex)
	case len(req.Instructions) > 0:
		ins := make([]txview.Instruction, 0, len(req.Instructions))
		for i, ir := range req.Instructions {
			data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ir.Data))
			if err != nil {
				return txview.View{}, errors.New("instructions[" + strconv.Itoa(i) + "].data is not base64")
			}
			ins = append(ins, txview.Instruction{ProgramID: ir.ProgramID, Accounts: ir.Accounts, Data: data})
		}
		if req.CurrentIndex != nil {
			return txview.NewView(ins, *req.CurrentIndex)
		}
		return txview.Locate(ins, h.selfID)
	default:
		return txview.View{}, errors.New("transaction or instructions is required")
	}
}

// ============================================================
// 履歴 / 統計 / 参照
// ============================================================

type recordMintRequest struct {
	Authority string  `json:"authority"`
	Signature string  `json:"signature"`
	MintIndex *uint64 `json:"mintIndex"`
	AssetID   string  `json:"assetId"`
	MintCount uint64  `json:"mintCount"`
	Minter    string  `json:"minter"`
	IssuedAt  int64   `json:"issuedAt"`
}

func (h *RarityHandler) recordMint(w http.ResponseWriter, r *http.Request, collection string) {
	var req recordMintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.uc.RecordMint(r.Context(), gate.RecordMintInput{
		CollectionKey: collection,
		Authority:     req.Authority,
		Signature:     req.Signature,
		MintIndex:     req.MintIndex,
		AssetID:       req.AssetID,
		MintCount:     req.MintCount,
		Minter:        req.Minter,
		IssuedAt:      issuedAt(req.IssuedAt),
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *RarityHandler) statistics(w http.ResponseWriter, r *http.Request, collection string) {
	st, err := h.uc.GetStatistics(r.Context(), collection)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type checkRequest struct {
	Indices  []uint64 `json:"indices"`
	MinScore uint8    `json:"minScore"`
}

func (h *RarityHandler) checkBody(w http.ResponseWriter, r *http.Request, collection string) {
	var req checkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.check(w, r, collection, req.Indices, req.MinScore)
}

// GET /rarity/tables/{collection}/check?indices=1,2,3&minScore=50
func (h *RarityHandler) checkQuery(w http.ResponseWriter, r *http.Request, collection string) {
	q := r.URL.Query()

	var minScore uint8
	if s := strings.TrimSpace(q.Get("minScore")); s != "" {
		v, ok := parseUint8(s)
		if !ok {
			writeErr(w, http.StatusBadRequest, "minScore must be 0..255")
			return
		}
		minScore = v
	}

	var indices []uint64
	for _, p := range strings.Split(q.Get("indices"), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "indices must be unsigned integers")
			return
		}
		indices = append(indices, v)
	}
	h.check(w, r, collection, indices, minScore)
}

func (h *RarityHandler) check(w http.ResponseWriter, r *http.Request, collection string, indices []uint64, minScore uint8) {
	res, err := h.uc.CheckIndices(r.Context(), collection, indices, minScore)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// issuedAt は unix ミリ秒を time.Time にします。0 は未指定（ゼロ値）。
func issuedAt(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
