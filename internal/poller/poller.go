// Package poller drives the periodic fetch across all eligible accounts.
package poller

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/pysugar/oauth-mail-sync/internal/auth/token"
	"github.com/pysugar/oauth-mail-sync/internal/db/models"
	"github.com/pysugar/oauth-mail-sync/internal/mailfetch"
)

// Registry is the account store surface the poller needs.
type Registry interface {
	ListEligibleForPolling(now time.Time) ([]models.LinkedAccount, error)
	UpdateFetchMarker(accountID, marker string) error
}

// QuotaGate authorizes fetch attempts.
type QuotaGate interface {
	ResetIfNewPeriod(userID int64, now time.Time) error
	MayFetch(userID int64) (bool, error)
	RecordFetched(userID int64, n int) error
}

// TokenSource produces usable access tokens.
type TokenSource interface {
	EnsureUsableToken(ctx context.Context, accountID string) (string, error)
}

// StatePurger garbage-collects abandoned link states.
type StatePurger interface {
	PurgeExpired(now time.Time) (int64, error)
}

// Poller runs one fetch cycle per interval until its context is
// cancelled. Failures are contained per account: one broken account never
// aborts the rest of the cycle or the loop.
type Poller struct {
	registry Registry
	gate     QuotaGate
	tokens   TokenSource
	states   StatePurger
	fetcher  mailfetch.Fetcher
	interval time.Duration
}

// New creates a Poller.
func New(registry Registry, gate QuotaGate, tokens TokenSource, states StatePurger, fetcher mailfetch.Fetcher, interval time.Duration) *Poller {
	return &Poller{
		registry: registry,
		gate:     gate,
		tokens:   tokens,
		states:   states,
		fetcher:  fetcher,
		interval: interval,
	}
}

// Run executes cycles until ctx is cancelled, then returns promptly.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("🔁 Poll loop started (interval: %s)", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.runCycle(ctx)
		select {
		case <-ctx.Done():
			log.Println("🛑 Poll loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) {
	now := time.Now().UTC()

	if purged, err := p.states.PurgeExpired(now); err != nil {
		log.Printf("⚠️ Failed to purge expired link states: %v", err)
	} else if purged > 0 {
		log.Printf("🧹 Purged %d expired link states", purged)
	}

	eligible, err := p.registry.ListEligibleForPolling(now)
	if err != nil {
		log.Printf("⚠️ Failed to list eligible accounts, skipping cycle: %v", err)
		return
	}
	if len(eligible) == 0 {
		return
	}
	log.Printf("📬 Checking %d eligible accounts", len(eligible))

	for _, account := range eligible {
		if ctx.Err() != nil {
			return
		}
		p.processAccount(ctx, account, now)
	}
}

// processAccount runs the quota check, token refresh, and fetch for one
// account. Every failure is logged and ends this account's turn only.
func (p *Poller) processAccount(ctx context.Context, account models.LinkedAccount, now time.Time) {
	if err := p.gate.ResetIfNewPeriod(account.UserID, now); err != nil {
		log.Printf("⚠️ Quota reset failed for user %d: %v", account.UserID, err)
		return
	}

	ok, err := p.gate.MayFetch(account.UserID)
	if err != nil {
		log.Printf("⚠️ Quota check failed for user %d: %v", account.UserID, err)
		return
	}
	if !ok {
		// Quota exhaustion is a normal skip, not an error.
		return
	}

	accessToken, err := p.tokens.EnsureUsableToken(ctx, account.ID)
	if err != nil {
		if errors.Is(err, token.ErrUnavailable) {
			log.Printf("⏭️ Skipping %s this cycle: %v", account.Email, err)
		} else {
			log.Printf("⚠️ Token error for %s: %v", account.Email, err)
		}
		return
	}

	result, err := p.fetcher.Fetch(ctx, account.Email, account.FetchMarker, accessToken)
	if err != nil {
		log.Printf("⚠️ Fetch failed for %s: %v", account.Email, err)
		return
	}

	if result.Marker != account.FetchMarker {
		if err := p.registry.UpdateFetchMarker(account.ID, result.Marker); err != nil {
			log.Printf("⚠️ Failed to store fetch marker for %s: %v", account.Email, err)
		}
	}
	if result.Count > 0 {
		if err := p.gate.RecordFetched(account.UserID, result.Count); err != nil {
			log.Printf("⚠️ Failed to record %d fetched for user %d: %v", result.Count, account.UserID, err)
			return
		}
		log.Printf("📨 %d new messages for %s", result.Count, account.Email)
	}
}
