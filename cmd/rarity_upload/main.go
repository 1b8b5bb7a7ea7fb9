// cmd/rarity_upload/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	flagAPI        string
	flagCollection string
	flagKeypair    string
	flagSecret     string
	flagTimeout    time.Duration

	flagThresholds  string
	flagMintProgram string

	flagFile        string
	flagChunk       int
	flagConcurrency int
	flagBucket      string

	flagOut   string
	flagForce bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rarity_upload",
		Short:         "Create rarity tables and upload score files to the raritygate API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flagAPI, "api", envDefault("RARITYGATE_API", "http://localhost:8080"), "raritygate API base URL")
	root.PersistentFlags().StringVar(&flagCollection, "collection", "", "collection (merkle tree) public key")
	root.PersistentFlags().StringVar(&flagKeypair, "keypair", os.Getenv("RARITY_AUTHORITY_KEYPAIR"), "authority keypair JSON file")
	root.PersistentFlags().StringVar(&flagSecret, "secret", os.Getenv("RARITY_AUTHORITY_SECRET"), "Secret Manager version holding the authority keypair")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "per-request timeout")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty rarity table for the collection",
		RunE:  runInit,
	}
	initCmd.Flags().StringVar(&flagThresholds, "thresholds", "", "ascending tier thresholds, e.g. 20,50,80")
	initCmd.Flags().StringVar(&flagMintProgram, "mint-program", "", "registry name of the external mint program (server default if empty)")

	uploadCmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a score file in signed chunks",
		RunE:  runUpload,
	}
	uploadCmd.Flags().StringVar(&flagFile, "file", "", "score file: local path or gs://bucket/object")
	uploadCmd.Flags().IntVar(&flagChunk, "chunk", defaultChunkSize, "scores per request")
	uploadCmd.Flags().IntVar(&flagConcurrency, "concurrency", 4, "parallel requests")
	uploadCmd.Flags().StringVar(&flagBucket, "bucket", os.Getenv("GCS_BUCKET"), "default bucket for object paths")
	_ = uploadCmd.MarkFlagRequired("file")

	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new authority keypair file (solana-keygen compatible)",
		RunE:  runKeygen,
	}
	keygenCmd.Flags().StringVar(&flagOut, "out", defaultKeypairFile, "output keypair file")
	keygenCmd.Flags().BoolVar(&flagForce, "force", false, "overwrite an existing file")

	root.AddCommand(initCmd, uploadCmd, keygenCmd)
	return root
}

func runInit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := requireCollection(); err != nil {
		return err
	}
	th, err := parseThresholds(flagThresholds)
	if err != nil {
		return err
	}
	signer, err := loadSigner(ctx)
	if err != nil {
		return err
	}

	up := newUploader(flagAPI, signer, flagTimeout)
	t, err := up.InitTable(ctx, flagCollection, th, flagMintProgram)
	if err != nil {
		return err
	}
	log.Printf("[rarity_upload] table created id=%s collection=%s tiers=%d", t.ID, t.CollectionKey, t.TierCount)
	return nil
}

func runUpload(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := requireCollection(); err != nil {
		return err
	}
	data, err := readSource(ctx, flagFile, flagBucket)
	if err != nil {
		return err
	}
	signer, err := loadSigner(ctx)
	if err != nil {
		return err
	}

	up := newUploader(flagAPI, signer, flagTimeout)
	n, err := up.UploadScoreFile(ctx, flagCollection, data, flagChunk, flagConcurrency)
	if err != nil {
		return err
	}
	log.Printf("[rarity_upload] uploaded %d scores to collection=%s", n, flagCollection)
	return nil
}

func runKeygen(_ *cobra.Command, _ []string) error {
	pub, err := generateAuthority(flagOut, flagForce)
	if err != nil {
		return err
	}
	fmt.Printf("authority public key: %s\n", pub)
	fmt.Printf("keypair file:         %s\n", flagOut)
	log.Printf("[rarity_upload] keypair written; do not commit it, store it in Secret Manager for --secret")
	return nil
}

func requireCollection() error {
	if strings.TrimSpace(flagCollection) == "" {
		return fmt.Errorf("--collection is required")
	}
	return nil
}

func parseThresholds(s string) ([]int, error) {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return nil, fmt.Errorf("invalid threshold %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
