package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-session-engine/internal/domain"
)

func TestJoinGuardAdmitsOneConcurrentCall(t *testing.T) {
	gate := make(chan struct{})
	auth := &fakeAuthority{joinResult: domain.JoinResult{Success: true}, joinGate: gate}
	g := NewJoinGuard(auth)

	const callers = 50
	outcomes := make(chan JoinOutcome, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := g.Join(context.Background(), "r1", "u1")
			assert.NoError(t, err)
			outcomes <- outcome
		}()
	}

	require.Eventually(t, func() bool { return auth.joins() == 1 }, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()
	close(outcomes)

	counts := map[JoinOutcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, 1, counts[JoinJoined])
	assert.Equal(t, callers-1, counts[JoinSkipped])
	assert.Equal(t, 1, auth.joins())
	assert.True(t, g.Held())
}

func TestJoinGuardReleasesOnTransientFailure(t *testing.T) {
	auth := &fakeAuthority{joinErr: errors.New("gateway timeout")}
	g := NewJoinGuard(auth)

	_, err := g.Join(context.Background(), "r1", "u1")
	require.Error(t, err)
	assert.False(t, g.Held())

	auth.mu.Lock()
	auth.joinErr = nil
	auth.joinResult = domain.JoinResult{Success: true}
	auth.mu.Unlock()

	outcome, err := g.Join(context.Background(), "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, JoinJoined, outcome)

	outcome, err = g.Join(context.Background(), "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, JoinSkipped, outcome)
	assert.Equal(t, 2, auth.joins())
}

func TestJoinGuardNoCreditsHoldsLatch(t *testing.T) {
	auth := &fakeAuthority{joinResult: domain.JoinResult{Error: domain.JoinErrorNoCredits}}
	g := NewJoinGuard(auth)

	outcome, err := g.Join(context.Background(), "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, JoinNoCredits, outcome)
	assert.True(t, g.Held())
}

func TestJoinGuardUnknownRejectionReleases(t *testing.T) {
	auth := &fakeAuthority{joinResult: domain.JoinResult{Error: "round_closed"}}
	g := NewJoinGuard(auth)

	_, err := g.Join(context.Background(), "r1", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "round_closed")
	assert.False(t, g.Held())
}
