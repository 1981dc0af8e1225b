package pipeline

import (
	"fmt"
	"sync"

	"constellation/internal/fingerprint"
	"constellation/internal/language"
	"constellation/internal/services"
)

// budgetGuard reserves estimated cost before a cache miss is computed. Hits
// never reach it.
type budgetGuard struct {
	mu           sync.Mutex
	episodeLimit float64
	dailyLimit   float64
	// dailyBase is ledger spend in the trailing day when the run started.
	dailyBase float64
	reserved  float64
}

func newBudgetGuard(episodeLimit, dailyLimit, dailyBase float64) *budgetGuard {
	return &budgetGuard{episodeLimit: episodeLimit, dailyLimit: dailyLimit, dailyBase: dailyBase}
}

func (b *budgetGuard) reserve(stage fingerprint.Stage, lang language.Language, cost float64) error {
	if cost <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.reserved + cost
	if b.episodeLimit > 0 && next > b.episodeLimit+1e-9 {
		return services.Wrap(services.ErrBudgetExceeded, string(stage), string(lang),
			fmt.Sprintf("episode estimate $%.2f exceeds limit $%.2f", next, b.episodeLimit), nil)
	}
	if b.dailyLimit > 0 && b.dailyBase+next > b.dailyLimit+1e-9 {
		return services.Wrap(services.ErrBudgetExceeded, string(stage), string(lang),
			fmt.Sprintf("daily estimate $%.2f exceeds limit $%.2f", b.dailyBase+next, b.dailyLimit), nil)
	}
	b.reserved = next
	return nil
}

// release returns a reservation whose computation failed.
func (b *budgetGuard) release(cost float64) {
	if cost <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reserved -= cost
	if b.reserved < 0 {
		b.reserved = 0
	}
}

func (b *budgetGuard) Reserved() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reserved
}
