package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"quiz-session-engine/internal/domain"
)

const defaultRPCTimeout = 5 * time.Second

// Persister mirrors engine events to the authority without blocking the
// caller. Failures are logged and dropped; the next event carries the latest
// state forward anyway.
type Persister struct {
	authority Authority
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewPersister(authority Authority, timeout time.Duration) *Persister {
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	return &Persister{authority: authority, timeout: timeout}
}

// Progress reports a phase/index change and, when present, the newly answered index.
func (p *Persister) Progress(update domain.ProgressUpdate) {
	p.dispatch("update_progress", update.UserID, func(ctx context.Context) error {
		return p.authority.UpdateProgress(ctx, update)
	})
}

// Finalize submits the terminal tally.
func (p *Persister) Finalize(userID string, score domain.Score) {
	p.dispatch("finalize_session", userID, func(ctx context.Context) error {
		return p.authority.FinalizeSession(ctx, userID, score)
	})
}

// Abort reports that the user left before completion.
func (p *Persister) Abort(userID string) {
	p.dispatch("abort_session", userID, func(ctx context.Context) error {
		return p.authority.AbortSession(ctx, userID)
	})
}

// Wait blocks until every dispatched call has returned.
func (p *Persister) Wait() {
	p.wg.Wait()
}

func (p *Persister) dispatch(op, userID string, call func(ctx context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := call(ctx); err != nil {
			log.Warn().Err(err).Str("op", op).Str("user_id", userID).Msg("best-effort call failed")
			return
		}
		log.Debug().Str("op", op).Str("user_id", userID).Msg("best-effort call done")
	}()
}
