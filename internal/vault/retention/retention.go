// Package retention removes the bundles of users whose subscription lapsed
// longer ago than the configured window.
package retention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/vault/ledger"
	"github.com/dmitrijs2005/gophvault/internal/vault/quota"
	"github.com/dmitrijs2005/gophvault/internal/vault/store"
)

type Mode string

const (
	// ModeIndefinite keeps lapsed users' bundles forever.
	ModeIndefinite Mode = "indefinite"
	// ModeBounded purges them once Window has passed since the lapse.
	ModeBounded Mode = "bounded"
)

type Policy struct {
	Mode   Mode
	Window time.Duration
}

// ParseMode accepts the config spelling of a mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeIndefinite:
		return ModeIndefinite, nil
	case ModeBounded:
		return ModeBounded, nil
	}
	return "", fmt.Errorf("%w: unknown retention mode %q", common.ErrorValidation, s)
}

// Result summarizes one sweep.
type Result struct {
	Users   int
	Bundles int
	Bytes   int64
}

type Sweeper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       *store.Store
	quota       *quota.Enforcer
	ledger      *ledger.Ledger
	policy      Policy
	log         logging.Logger
	now         func() time.Time
}

func NewSweeper(db *sql.DB, m repomanager.RepositoryManager, s *store.Store, q *quota.Enforcer,
	l *ledger.Ledger, policy Policy, log logging.Logger) *Sweeper {
	return &Sweeper{
		db:          db,
		repomanager: m,
		store:       s,
		quota:       q,
		ledger:      l,
		policy:      policy,
		log:         log.With("module", "retention"),
		now:         time.Now,
	}
}

func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// lapsedAt is when sub stopped granting any access.
func (s *Sweeper) lapsedAt(sub *models.VaultSubscription) time.Time {
	if sub.CancelledAt != nil {
		return *sub.CancelledAt
	}
	return ledger.GraceEnd(sub, s.ledger.GracePeriod())
}

// Sweep purges the bundles of every user lapsed for longer than the window.
// The recomputed status of every candidate is written back first. A failing
// bundle does not stop the sweep; all failures are returned joined.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	if s.policy.Mode != ModeBounded {
		return res, nil
	}

	now := s.now()
	cutoff := now.Add(-s.policy.Window)

	candidates, err := s.repomanager.Subscriptions(s.db).ListLapseCandidates(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("error listing lapsed subscriptions: %w", err)
	}

	var errs []error
	for _, sub := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		current, err := s.ledger.Refresh(ctx, sub.UserID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if current.Status == models.StatusActive || s.lapsedAt(current).After(cutoff) {
			continue
		}

		n, freed, err := s.purgeUser(ctx, current)
		res.Bundles += n
		res.Bytes += freed
		if n > 0 {
			res.Users++
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if res.Bundles > 0 {
		s.log.Info(ctx, "retention sweep finished", "users", res.Users, "bundles", res.Bundles, "bytes", res.Bytes)
	}
	return res, errors.Join(errs...)
}

func (s *Sweeper) purgeUser(ctx context.Context, sub *models.VaultSubscription) (int, int64, error) {
	bundles, err := s.store.ListForUser(ctx, sub.UserID)
	if err != nil {
		return 0, 0, err
	}

	var (
		purged int
		freed  int64
		errs   []error
	)
	for _, b := range bundles {
		if _, err := s.store.Purge(ctx, b.ID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			s.log.Error(ctx, "failed to purge bundle", "bundle_id", b.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		purged++
		freed += b.TotalSizeBytes
	}

	if freed > 0 {
		if _, err := s.quota.UpdateUsage(ctx, sub.UserID, -freed); err != nil {
			errs = append(errs, err)
		}
	}
	return purged, freed, errors.Join(errs...)
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if s.policy.Mode != ModeBounded {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error(ctx, "retention sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
