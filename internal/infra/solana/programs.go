// internal/infra/solana/programs.go
package solana

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/mr-tron/base58"
	"gopkg.in/yaml.v3"

	"raritygate/internal/application/gate"
)

// Well-known program IDs (mainnet)
const (
	DefaultSelfProgramID   = "14m2HBX8Y3FVNwdxGLhnDBHhsHG9QhjNfP7thXqm8iRb"
	BubblegumProgramID     = "BGUMAp9Gq7iTEuizy4pqaxsTyUCBK68MDfK752saRPUY"
	MenagerieProgramID     = "F9SixdqdmEBP5kprp2gZPZNeMmfHJRCTMFjN22dx3akf"
	MplCoreProgramID       = "CoREENxT6tW1HoK8ypY1SxRMZTcVPm7R94rH4PZNhX7d"
	TokenMetadataProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

	ProgramTokenMetadata = "token_metadata"
)

var ErrInvalidProgramID = errors.New("program_registry: invalid program id")

// ProgramEntry はレジストリ 1 件（YAML の上書きファイルと同じ形）です。
type ProgramEntry struct {
	Name             string `yaml:"name"`
	ID               string `yaml:"id"`
	DiscriminatorLen int    `yaml:"discriminatorLen"`
}

type registryFile struct {
	Self     string         `yaml:"self"`
	Programs []ProgramEntry `yaml:"programs"`
}

// Registry は起動時に 1 度だけ解決される外部プログラム ID の表です。
// 解決後は読み取り専用です。
type Registry struct {
	self     common.PublicKey
	programs map[string]gate.ProgramRef
	keys     map[string]common.PublicKey
}

var _ gate.ProgramCatalog = (*Registry)(nil)

// DefaultProgramEntries は既定の外部プログラム一覧です。
func DefaultProgramEntries() []ProgramEntry {
	return []ProgramEntry{
		{Name: gate.ProgramMenagerie, ID: MenagerieProgramID, DiscriminatorLen: 8},
		{Name: gate.ProgramBubblegum, ID: BubblegumProgramID, DiscriminatorLen: 8},
		{Name: gate.ProgramMplCore, ID: MplCoreProgramID, DiscriminatorLen: 1},
		{Name: ProgramTokenMetadata, ID: TokenMetadataProgramID, DiscriminatorLen: 1},
	}
}

// NewRegistry は selfID と entries を検証して Registry を作ります。
func NewRegistry(selfID string, entries []ProgramEntry) (*Registry, error) {
	self, err := ParsePublicKey(selfID)
	if err != nil {
		return nil, fmt.Errorf("self: %w", err)
	}
	r := &Registry{
		self:     self,
		programs: make(map[string]gate.ProgramRef, len(entries)),
		keys:     make(map[string]common.PublicKey, len(entries)),
	}
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: entry without name", ErrInvalidProgramID)
		}
		pk, err := ParsePublicKey(e.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		dl := e.DiscriminatorLen
		if dl <= 0 {
			dl = 8
		}
		r.programs[name] = gate.ProgramRef{Name: name, ID: pk.ToBase58(), DiscriminatorLen: dl}
		r.keys[name] = pk
	}
	return r, nil
}

// DefaultRegistry は既定値の Registry です。
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultSelfProgramID, DefaultProgramEntries())
	if err != nil {
		panic(err)
	}
	return r
}

// LoadRegistry は既定値に YAML ファイル（任意）の内容を上書きして Registry を作ります。
// selfID が空ならファイル → DefaultSelfProgramID の順で決めます。
func LoadRegistry(selfID string, path string) (*Registry, error) {
	entries := DefaultProgramEntries()
	self := strings.TrimSpace(selfID)

	if p := strings.TrimSpace(path); p != "" {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("program_registry: read %s: %w", p, err)
		}
		var f registryFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("program_registry: parse %s: %w", p, err)
		}
		entries = mergeEntries(entries, f.Programs)
		if self == "" {
			self = strings.TrimSpace(f.Self)
		}
		log.Printf("[program_registry] loaded %d overrides from %s", len(f.Programs), p)
	}
	if self == "" {
		self = DefaultSelfProgramID
	}
	return NewRegistry(self, entries)
}

func mergeEntries(base, overrides []ProgramEntry) []ProgramEntry {
	out := append([]ProgramEntry(nil), base...)
	for _, o := range overrides {
		replaced := false
		for i := range out {
			if out[i].Name == o.Name {
				out[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}

func (r *Registry) SelfID() string { return r.self.ToBase58() }

func (r *Registry) Self() common.PublicKey { return r.self }

func (r *Registry) Program(name string) (gate.ProgramRef, bool) {
	p, ok := r.programs[strings.TrimSpace(name)]
	return p, ok
}

func (r *Registry) ProgramKey(name string) (common.PublicKey, bool) {
	k, ok := r.keys[strings.TrimSpace(name)]
	return k, ok
}

// ParsePublicKey は base58 の 32 バイト公開鍵を検証して返します。
// common.PublicKeyFromString は不正入力をゼロ鍵にしてしまうため、先に長さを確認します。
func ParsePublicKey(s string) (common.PublicKey, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return common.PublicKey{}, fmt.Errorf("%w: empty", ErrInvalidProgramID)
	}
	b, err := base58.Decode(t)
	if err != nil {
		return common.PublicKey{}, fmt.Errorf("%w: %q: %v", ErrInvalidProgramID, t, err)
	}
	if len(b) != common.PublicKeyLength {
		return common.PublicKey{}, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidProgramID, t, len(b))
	}
	return common.PublicKeyFromBytes(b), nil
}
