package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-engine/internal/domain"
)

const maxTxRetries = 16

// SessionStore keeps each session as a JSON document under
// quiz:session:{period}:{user}. Updates run in a WATCH/MULTI transaction so
// concurrent progress merges for one user never lose an answer. The period of
// the session a user last bootstrapped lives under quiz:active:{user}.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, userID, periodKey string) (domain.Session, error) {
	raw, err := s.client.Get(ctx, s.key(userID, periodKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return decodeSession(raw)
}

func (s *SessionStore) Create(ctx context.Context, sess domain.Session) (domain.Session, bool, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("encode session: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.key(sess.UserID, sess.PeriodKey), data, s.ttl).Result()
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("create session: %w", err)
	}
	if created {
		return sess, true, nil
	}
	existing, err := s.Get(ctx, sess.UserID, sess.PeriodKey)
	return existing, false, err
}

func (s *SessionStore) Update(ctx context.Context, userID, periodKey string, fn func(*domain.Session) error) (domain.Session, error) {
	key := s.key(userID, periodKey)
	var out domain.Session

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		sess, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if err := fn(&sess); err != nil {
			return err
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			out = sess
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		return out, nil
	}
	return domain.Session{}, fmt.Errorf("update session %s: gave up after %d conflicting writes", key, maxTxRetries)
}

func (s *SessionStore) SetActive(ctx context.Context, userID, periodKey string) error {
	if err := s.client.Set(ctx, activeKey(userID), periodKey, s.ttl).Err(); err != nil {
		return fmt.Errorf("set active session: %w", err)
	}
	return nil
}

func (s *SessionStore) Active(ctx context.Context, userID string) (string, error) {
	period, err := s.client.Get(ctx, activeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get active session: %w", err)
	}
	return period, nil
}

func activeKey(userID string) string {
	return "quiz:active:" + userID
}

func (s *SessionStore) key(userID, periodKey string) string {
	return "quiz:session:" + periodKey + ":" + userID
}

func decodeSession(raw []byte) (domain.Session, error) {
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if sess.Answers == nil {
		sess.Answers = domain.Answers{}
	}
	return sess, nil
}
