package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"quiz-session-engine/internal/domain"
)

// JoinOutcome is the result of an admitted join attempt.
type JoinOutcome string

const (
	JoinJoined    JoinOutcome = "JOINED"
	JoinNoCredits JoinOutcome = "NO_CREDITS"
	// JoinSkipped means the latch was already held and no call was made.
	JoinSkipped JoinOutcome = "SKIPPED"
)

// JoinGuard admits at most one credit-debiting join call. The latch is taken
// with a compare-and-swap before any network work and is only released when
// the call fails transiently.
type JoinGuard struct {
	authority Authority
	latch     atomic.Bool
}

func NewJoinGuard(authority Authority) *JoinGuard {
	return &JoinGuard{authority: authority}
}

// Join calls JoinRound unless another attempt holds the latch.
func (g *JoinGuard) Join(ctx context.Context, roundID, userID string) (JoinOutcome, error) {
	if !g.latch.CompareAndSwap(false, true) {
		return JoinSkipped, nil
	}

	res, err := g.authority.JoinRound(ctx, roundID, userID)
	if err != nil {
		g.latch.Store(false)
		return "", fmt.Errorf("join round %s: %w", roundID, err)
	}
	if res.Success {
		return JoinJoined, nil
	}
	if res.Error == domain.JoinErrorNoCredits {
		return JoinNoCredits, nil
	}
	g.latch.Store(false)
	return "", fmt.Errorf("join round %s: %s", roundID, res.Error)
}

// Held reports whether the latch is taken.
func (g *JoinGuard) Held() bool {
	return g.latch.Load()
}
