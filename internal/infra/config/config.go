// internal/infra/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config はアプリケーション全体の環境変数設定を保持します。
type Config struct {
	Port string

	// 永続化先: firestore | postgres | memory
	StoreBackend string

	GCPProjectID             string
	FirestoreProjectID       string
	FirestoreCredentialsFile string
	GCSBucket                string

	// Postgres（StoreBackend=postgres のとき）
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Solana
	SolanaRPCURL        string
	ProgramID           string
	ProgramRegistryFile string
	DefaultMintProgram  string
	AdjacencyLookback   int

	// 署名付き更新の issuedAt 許容幅（秒）
	SignatureTTLSeconds int

	// 手数料受取先。検証結果に記録するだけで送金はしません。
	FeeReceiver string

	// CORS で許可するオリジン（カンマ区切り）。空なら "*"
	AllowedOrigins []string
}

// Load は環境変数を読み込み Config を返します。
func Load() *Config {
	defaultProject := getenvDefault("GCP_PROJECT_ID", "raritygate-dev")

	return &Config{
		Port:         getenvDefault("PORT", "8080"),
		StoreBackend: strings.ToLower(getenvDefault("STORE_BACKEND", "firestore")),

		GCPProjectID:             defaultProject,
		FirestoreProjectID:       getenvDefault("FIRESTORE_PROJECT_ID", defaultProject),
		FirestoreCredentialsFile: os.Getenv("FIRESTORE_CREDENTIALS_FILE"),
		GCSBucket:                os.Getenv("GCS_BUCKET"),

		DBHost:     getenvDefault("DB_HOST", "localhost"),
		DBPort:     getenvDefault("DB_PORT", "5432"),
		DBUser:     getenvDefault("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getenvDefault("DB_NAME", "raritygate"),

		SolanaRPCURL:        getenvDefault("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
		ProgramID:           os.Getenv("RARITY_PROGRAM_ID"),
		ProgramRegistryFile: os.Getenv("PROGRAM_REGISTRY_FILE"),
		DefaultMintProgram:  getenvDefault("DEFAULT_MINT_PROGRAM", "menagerie"),
		AdjacencyLookback:   getenvInt("ADJACENCY_LOOKBACK", 5),
		SignatureTTLSeconds: getenvInt("SIGNATURE_TTL_SECONDS", 300),

		FeeReceiver: getenvDefault("FEE_RECEIVER", "89VB5UmvopuCFmp5Mf8YPX28fGvvqn79afCgouQuPyhY"),

		AllowedOrigins: splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
