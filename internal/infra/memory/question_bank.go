package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-session-engine/internal/domain"
)

// QuestionLoader fetches the question bank from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionBank caches the loaded bank with a TTL so bootstraps and progress
// merges do not hit the backing store every time. A ttl <= 0 disables the
// cache.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) Questions(ctx context.Context) ([]domain.Question, error) {
	if qs, ok := b.cached(b.clock()); ok {
		return qs, nil
	}

	result, err, _ := b.sf.Do("bank", func() (interface{}, error) {
		now := b.clock()
		if qs, ok := b.cached(now); ok {
			return qs, nil
		}

		qs, err := b.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.questions = qs
		b.expiresAt = now.Add(b.ttlWithJitter())
		b.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) cached(now time.Time) ([]domain.Question, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.questions != nil && b.expiresAt.After(now) {
		return b.questions, true
	}
	return nil, false
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// up to 10% jitter so replicas do not reload together
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader serves a fixed bank (tests, demos, the default config).
type StaticQuestionLoader struct {
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	qs := append([]domain.Question(nil), questions...)
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
	return &StaticQuestionLoader{questions: qs}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	return l.questions, nil
}
