// internal/adapters/in/http/router.go
package httpin

import (
	"net/http"

	"raritygate/internal/adapters/in/http/handlers"
	"raritygate/internal/adapters/in/http/middleware"
)

// RouterDeps collects handlers and cross-cutting dependencies injected from main.go.
type RouterDeps struct {
	Rarity *handlers.RarityHandler

	// Metrics は /metrics とレイテンシ計測（任意）
	Metrics        http.Handler
	MetricsWrap    func(http.Handler) http.Handler
	AllowedOrigins []string
}

// NewRouter sets up HTTP routing.
// チェーン順: CORS → RequestID → Recover → Metrics → mux
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	// Health check (always on)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	if deps.Rarity != nil {
		mux.Handle("/rarity/tables", deps.Rarity)
		mux.Handle("/rarity/tables/", deps.Rarity)
	}

	var h http.Handler = mux
	if deps.MetricsWrap != nil {
		h = deps.MetricsWrap(h)
	}
	h = middleware.Recover(h)
	h = middleware.RequestID(h)
	h = middleware.CORS(deps.AllowedOrigins)(h)
	return h
}
