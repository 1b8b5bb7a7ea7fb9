// internal/platform/di/container.go
package di

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	httpin "raritygate/internal/adapters/in/http"
	"raritygate/internal/adapters/in/http/handlers"
	pgrepo "raritygate/internal/adapters/out/db"
	fsrepo "raritygate/internal/adapters/out/firestore"
	gcsrepo "raritygate/internal/adapters/out/gcs"
	memrepo "raritygate/internal/adapters/out/memory"
	"raritygate/internal/application/gate"
	raritydom "raritygate/internal/domain/rarity"
	"raritygate/internal/infra/config"
	"raritygate/internal/infra/database"
	firestoreinfra "raritygate/internal/infra/firestore"
	"raritygate/internal/infra/metrics"
	solanainfra "raritygate/internal/infra/solana"
)

// Container は main.go から使う依存オブジェクトの束です。
type Container struct {
	Config *config.Config

	Registry *solanainfra.Registry
	GateUC   *gate.GateUsecase
	Metrics  *metrics.Metrics

	rarityHandler *handlers.RarityHandler
	cleanupFn     []func()
}

// NewContainer は Config を読み、永続化先・Solana 連携・ユースケースを組み立てます。
func NewContainer(ctx context.Context) (*Container, error) {
	cfg := config.Load()
	c := &Container{Config: cfg}

	registry, err := solanainfra.LoadRegistry(cfg.ProgramID, cfg.ProgramRegistryFile)
	if err != nil {
		return nil, fmt.Errorf("program registry: %w", err)
	}
	c.Registry = registry
	if _, ok := registry.Program(cfg.DefaultMintProgram); !ok {
		return nil, fmt.Errorf("default mint program %q is not registered", cfg.DefaultMintProgram)
	}

	repo, err := c.buildRepository(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Metrics = metrics.New()

	uc := gate.NewGateUsecase(
		repo,
		registry,
		solanainfra.NewDeriver(registry),
		solanainfra.NewAssetReader(cfg.SolanaRPCURL, registry),
		solanainfra.Ed25519Verifier{},
		gate.NewDecoderTable(gate.DefaultDecoders()...),
		cfg.AdjacencyLookback,
		cfg.DefaultMintProgram,
	)
	uc.SetObserver(c.Metrics)
	uc.SetSignatureTTL(time.Duration(cfg.SignatureTTLSeconds) * time.Second)

	if strings.TrimSpace(cfg.GCSBucket) != "" {
		sc, err := storage.NewClient(ctx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("storage.NewClient: %w", err)
		}
		c.cleanupFn = append(c.cleanupFn, func() { _ = sc.Close() })
		uc.SetScoreFiles(gcsrepo.NewScoreFileRepositoryGCS(sc, cfg.GCSBucket))
		log.Printf("[di] score import enabled bucket=%s", cfg.GCSBucket)
	}
	c.GateUC = uc

	h := handlers.NewRarityHandler(uc, solanainfra.NewTxDecoder(registry), registry.SelfID())
	h.SetSimulator(solanainfra.NewJSONRPCClient(cfg.SolanaRPCURL))
	h.SetFeeReceiver(cfg.FeeReceiver)
	c.rarityHandler = h

	log.Printf("[di] container ready store=%s program=%s mintProgram=%s lookback=%d",
		cfg.StoreBackend, registry.SelfID(), cfg.DefaultMintProgram, cfg.AdjacencyLookback)
	return c, nil
}

func (c *Container) buildRepository(ctx context.Context) (raritydom.RepositoryPort, error) {
	cfg := c.Config
	switch cfg.StoreBackend {
	case "firestore":
		fs, err := firestoreinfra.NewClient(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile)
		if err != nil {
			return nil, err
		}
		c.cleanupFn = append(c.cleanupFn, func() { _ = fs.Close() })
		return fsrepo.NewRarityTableRepositoryFS(fs.Client), nil

	case "postgres":
		db, err := database.NewConnection(ctx, cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		if err != nil {
			return nil, err
		}
		c.cleanupFn = append(c.cleanupFn, func() { _ = db.Close() })
		repo := pgrepo.NewRarityTableRepositoryPG(db.Client)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil

	case "memory":
		log.Printf("[di] WARN: using in-memory store; tables are lost on restart")
		return memrepo.NewRarityTableRepositoryMem(), nil

	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (firestore|postgres|memory)", cfg.StoreBackend)
	}
}

// RouterDeps は httpin.NewRouter に渡す依存です。
func (c *Container) RouterDeps() httpin.RouterDeps {
	return httpin.RouterDeps{
		Rarity:         c.rarityHandler,
		Metrics:        c.Metrics.Handler(),
		MetricsWrap:    c.Metrics.Middleware,
		AllowedOrigins: c.Config.AllowedOrigins,
	}
}

// Close は終了時にリソースを閉じます（登録の逆順）。
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.cleanupFn) - 1; i >= 0; i-- {
		c.cleanupFn[i]()
	}
	c.cleanupFn = nil
}
