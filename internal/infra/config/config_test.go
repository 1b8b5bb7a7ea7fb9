package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_BACKEND", "GCP_PROJECT_ID", "FIRESTORE_PROJECT_ID",
		"ADJACENCY_LOOKBACK", "DEFAULT_MINT_PROGRAM", "CORS_ALLOWED_ORIGINS", "FEE_RECEIVER", "SIGNATURE_TTL_SECONDS"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "firestore", cfg.StoreBackend)
	assert.Equal(t, "raritygate-dev", cfg.FirestoreProjectID)
	assert.Equal(t, 5, cfg.AdjacencyLookback)
	assert.Equal(t, 300, cfg.SignatureTTLSeconds)
	assert.Equal(t, "menagerie", cfg.DefaultMintProgram)
	assert.Equal(t, "89VB5UmvopuCFmp5Mf8YPX28fGvvqn79afCgouQuPyhY", cfg.FeeReceiver)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("GCP_PROJECT_ID", "p1")
	t.Setenv("FIRESTORE_PROJECT_ID", "")
	t.Setenv("ADJACENCY_LOOKBACK", "3")
	t.Setenv("SIGNATURE_TTL_SECONDS", "60")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "p1", cfg.FirestoreProjectID)
	assert.Equal(t, 3, cfg.AdjacencyLookback)
	assert.Equal(t, 60, cfg.SignatureTTLSeconds)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidLookbackFallsBack(t *testing.T) {
	t.Setenv("ADJACENCY_LOOKBACK", "-2")
	assert.Equal(t, 5, Load().AdjacencyLookback)

	t.Setenv("ADJACENCY_LOOKBACK", "abc")
	assert.Equal(t, 5, Load().AdjacencyLookback)
}
