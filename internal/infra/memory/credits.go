package memory

import (
	"context"
	"sync"

	"quiz-session-engine/internal/domain"
)

// CreditLedger keeps balances and round entries in memory.
type CreditLedger struct {
	mu       sync.Mutex
	balances map[string]int
	entries  map[string]struct{}
}

func NewCreditLedger() *CreditLedger {
	return &CreditLedger{
		balances: make(map[string]int),
		entries:  make(map[string]struct{}),
	}
}

func (l *CreditLedger) Balance(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *CreditLedger) Grant(_ context.Context, userID string, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	return l.balances[userID], nil
}

func (l *CreditLedger) Debit(_ context.Context, roundID, userID string) (domain.DebitOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := entryKey(roundID, userID)
	if _, ok := l.entries[key]; ok {
		return domain.DebitAlreadyJoined, nil
	}
	if l.balances[userID] <= 0 {
		return domain.DebitInsufficient, nil
	}
	l.balances[userID]--
	l.entries[key] = struct{}{}
	return domain.DebitApplied, nil
}

func (l *CreditLedger) Joined(_ context.Context, roundID, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[entryKey(roundID, userID)]
	return ok, nil
}

func entryKey(roundID, userID string) string {
	return roundID + "/" + userID
}
