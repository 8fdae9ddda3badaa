package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"quiz-session-engine/internal/domain"
)

// QuestionLoader fetches the question bank from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionBank caches the bank as one JSON value (quiz:bank) shared by every
// replica and falls back to the loader on a miss. A ttl <= 0 disables the
// cache and every call goes to the loader.
type QuestionBank struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

const bankKey = "quiz:bank"

func NewQuestionBank(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) Questions(ctx context.Context) ([]domain.Question, error) {
	if b.ttl <= 0 {
		return b.loader.LoadQuestions(ctx)
	}
	if qs, ok := b.cached(ctx); ok {
		return qs, nil
	}

	result, err, _ := b.sf.Do(bankKey, func() (interface{}, error) {
		// re-check in case another caller filled it
		if qs, ok := b.cached(ctx); ok {
			return qs, nil
		}

		qs, err := b.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(qs)
		if err != nil {
			return nil, err
		}
		if err := b.client.Set(ctx, bankKey, data, b.ttlWithJitter()).Err(); err != nil {
			log.Warn().Err(err).Msg("question bank cache fill failed")
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) cached(ctx context.Context) ([]domain.Question, bool) {
	raw, err := b.client.Get(ctx, bankKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("question bank cache read failed")
		}
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil || len(qs) == 0 {
		return nil, false
	}
	return qs, true
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
