package httpin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"raritygate/internal/adapters/in/http/handlers"
	"raritygate/internal/adapters/out/memory"
	"raritygate/internal/application/gate"
	"raritygate/internal/infra/metrics"
	"raritygate/internal/infra/solana"
)

func newTestRouter() http.Handler {
	registry := solana.DefaultRegistry()
	uc := gate.NewGateUsecase(
		memory.NewRarityTableRepositoryMem(),
		registry,
		solana.NewDeriver(registry),
		nil,
		solana.Ed25519Verifier{},
		nil,
		0,
		gate.ProgramMenagerie,
	)
	m := metrics.New()
	uc.SetObserver(m)
	return NewRouter(RouterDeps{
		Rarity:      handlers.NewRarityHandler(uc, solana.NewTxDecoder(registry), registry.SelfID()),
		Metrics:     m.Handler(),
		MetricsWrap: m.Middleware,
	})
}

func TestRouter_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RarityAndMetrics(t *testing.T) {
	r := newTestRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rarity/tables/"+solana.MenagerieProgramID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rarity/tables/"+solana.MenagerieProgramID+"/validate/uri",
		strings.NewReader(`{"uri":"https://meta/1.json"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "raritygate_http_request_duration_seconds")
}

func TestRouter_UnknownPath(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
