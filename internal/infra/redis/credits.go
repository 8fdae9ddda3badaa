package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-session-engine/internal/domain"
)

// debitScript returns 0 when the debit applied, 1 when the user already
// holds an entry for the round and 2 when the balance is exhausted.
var debitScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
	return 1
end
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
if balance <= 0 then
	return 2
end
redis.call('DECR', KEYS[1])
redis.call('SADD', KEYS[2], ARGV[1])
return 0
`)

// CreditLedger stores balances under quiz:credits:{user} and round entries
// in the set quiz:round:{round}:entries.
type CreditLedger struct {
	client *redis.Client
}

func NewCreditLedger(client *redis.Client) *CreditLedger {
	return &CreditLedger{client: client}
}

func (l *CreditLedger) Balance(ctx context.Context, userID string) (int, error) {
	n, err := l.client.Get(ctx, balanceKey(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return n, nil
}

func (l *CreditLedger) Grant(ctx context.Context, userID string, amount int) (int, error) {
	n, err := l.client.IncrBy(ctx, balanceKey(userID), int64(amount)).Result()
	if err != nil {
		return 0, fmt.Errorf("grant credits: %w", err)
	}
	return int(n), nil
}

func (l *CreditLedger) Debit(ctx context.Context, roundID, userID string) (domain.DebitOutcome, error) {
	code, err := debitScript.Run(ctx, l.client, []string{balanceKey(userID), entriesKey(roundID)}, userID).Int()
	if err != nil {
		return 0, fmt.Errorf("debit credit: %w", err)
	}
	switch code {
	case 0:
		return domain.DebitApplied, nil
	case 1:
		return domain.DebitAlreadyJoined, nil
	default:
		return domain.DebitInsufficient, nil
	}
}

func (l *CreditLedger) Joined(ctx context.Context, roundID, userID string) (bool, error) {
	return l.client.SIsMember(ctx, entriesKey(roundID), userID).Result()
}

func balanceKey(userID string) string {
	return "quiz:credits:" + userID
}

func entriesKey(roundID string) string {
	return "quiz:round:" + roundID + ":entries"
}
