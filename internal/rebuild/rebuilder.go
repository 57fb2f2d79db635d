// Package rebuild orchestrates position recomputation. A rebuild loads
// an account's full execution history, reconstructs positions per
// symbol and swaps the stored projection atomically. Runs for the same
// account never interleave; independent accounts rebuild concurrently.
package rebuild

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
	"github.com/charles-chenzz/TradeVoyage/internal/position"
)

// Store is the persistence surface a rebuild needs.
type Store interface {
	ExecutionsForRebuild(ctx context.Context, accountID string) ([]domain.Execution, error)
	ReplacePositions(ctx context.Context, accountID string, startedAt time.Time, res *position.Result) error
	RecordFailedRun(ctx context.Context, accountID string, startedAt time.Time, runErr error) error
}

// Rebuilder serializes position recomputation per account.
type Rebuilder struct {
	store  Store
	logger zerolog.Logger

	mu       sync.Mutex
	accounts map[string]*accountRun
}

// accountRun holds the per-account serialization state. runMu serializes
// runs; queued collapses triggers that arrive while a run is pending.
type accountRun struct {
	runMu  sync.Mutex
	queued bool
}

// New creates a Rebuilder backed by the given store.
func New(store Store) *Rebuilder {
	return &Rebuilder{
		store:    store,
		logger:   log.With().Str("component", "rebuild").Logger(),
		accounts: make(map[string]*accountRun),
	}
}

func (r *Rebuilder) account(id string) *accountRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	ar, ok := r.accounts[id]
	if !ok {
		ar = &accountRun{}
		r.accounts[id] = ar
	}
	return ar
}

// Rebuild runs one recomputation for the account synchronously. If a
// run for the same account is already in flight it waits for its slot;
// two runs never share an accumulator.
func (r *Rebuilder) Rebuild(ctx context.Context, accountID string) error {
	ar := r.account(accountID)
	ar.runMu.Lock()
	defer ar.runMu.Unlock()
	return r.runOnce(ctx, accountID)
}

// Trigger schedules an asynchronous rebuild for the account. Triggers
// that arrive while one is already queued coalesce into a single run
// over the then-current data.
func (r *Rebuilder) Trigger(accountID string) {
	ar := r.account(accountID)

	r.mu.Lock()
	if ar.queued {
		r.mu.Unlock()
		return
	}
	ar.queued = true
	r.mu.Unlock()

	go func() {
		ar.runMu.Lock()
		r.mu.Lock()
		ar.queued = false
		r.mu.Unlock()
		defer ar.runMu.Unlock()

		if err := r.runOnce(context.Background(), accountID); err != nil {
			r.logger.Error().Err(err).Str("account_id", accountID).Msg("rebuild failed")
		}
	}()
}

func (r *Rebuilder) runOnce(ctx context.Context, accountID string) error {
	startedAt := time.Now().UTC()

	execs, err := r.store.ExecutionsForRebuild(ctx, accountID)
	if err != nil {
		return err
	}

	res, err := position.BuildAll(execs)
	if err != nil {
		// A state invariant violation means a corrupt result set:
		// keep the previous projection and surface the failure.
		if recErr := r.store.RecordFailedRun(ctx, accountID, startedAt, err); recErr != nil {
			r.logger.Error().Err(recErr).Str("account_id", accountID).
				Msg("failed to record failed run")
		}
		return err
	}

	if err := r.store.ReplacePositions(ctx, accountID, startedAt, res); err != nil {
		return err
	}

	r.logger.Info().
		Str("account_id", accountID).
		Int("executions", len(execs)).
		Int("positions", len(res.Positions)).
		Int("warnings", len(res.Warnings)).
		Dur("took", time.Since(startedAt)).
		Msg("rebuilt positions")
	return nil
}
