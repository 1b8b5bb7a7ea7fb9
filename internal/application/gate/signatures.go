// internal/application/gate/signatures.go
package gate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	raritydom "raritygate/internal/domain/rarity"
)

// DefaultSignatureTTL は issuedAt と現在時刻の許容差（前後とも）です。
const DefaultSignatureTTL = 5 * time.Minute

// signatureLedger は有効期限内に一度使われた署名を覚えておき、再送を拒否します。
// 期限切れの署名は issuedAt の照合で落ちるため、保持するのは TTL 分だけです。
// プロセス内の記録なので、複数インスタンス構成では各インスタンスごとの照合になります。
type signatureLedger struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time // signature -> 期限
}

func newSignatureLedger(ttl time.Duration) *signatureLedger {
	if ttl <= 0 {
		ttl = DefaultSignatureTTL
	}
	return &signatureLedger{ttl: ttl, seen: map[string]time.Time{}}
}

// admit は issuedAt が now±ttl にあり、signature が未使用なら使用済みにします。
func (l *signatureLedger) admit(signature string, issuedAt, now time.Time) error {
	if issuedAt.IsZero() {
		return fmt.Errorf("%w: issuedAt is required", raritydom.ErrUnauthorizedUpdate)
	}
	skew := now.Sub(issuedAt)
	if skew > l.ttl || skew < -l.ttl {
		return fmt.Errorf("%w: signature issued at %s is outside the %s window",
			raritydom.ErrUnauthorizedUpdate, issuedAt.UTC().Format(time.RFC3339), l.ttl)
	}

	key := strings.TrimSpace(signature)
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, exp := range l.seen {
		if now.After(exp) {
			delete(l.seen, k)
		}
	}
	if _, dup := l.seen[key]; dup {
		return fmt.Errorf("%w: signature has already been used", raritydom.ErrUnauthorizedUpdate)
	}
	l.seen[key] = issuedAt.Add(l.ttl)
	return nil
}
