package memory

import (
	"context"
	"sync"

	"quiz-session-engine/internal/domain"
)

// SessionStore is an in-memory implementation of authority.SessionRepository.
// Sessions are copied on the way in and out so callers never share maps.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	active   map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
		active:   make(map[string]string),
	}
}

func (s *SessionStore) SetActive(_ context.Context, userID, periodKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[userID] = periodKey
	return nil
}

func (s *SessionStore) Active(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	period, ok := s.active[userID]
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	return period, nil
}

func (s *SessionStore) Get(_ context.Context, userID, periodKey string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionKey(userID, periodKey)]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *SessionStore) Create(_ context.Context, sess domain.Session) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(sess.UserID, sess.PeriodKey)
	if existing, ok := s.sessions[key]; ok {
		return cloneSession(existing), false, nil
	}
	s.sessions[key] = cloneSession(sess)
	return cloneSession(sess), true, nil
}

func (s *SessionStore) Update(_ context.Context, userID, periodKey string, fn func(*domain.Session) error) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(userID, periodKey)
	current, ok := s.sessions[key]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	next := cloneSession(current)
	if err := fn(&next); err != nil {
		return domain.Session{}, err
	}
	s.sessions[key] = next
	return cloneSession(next), nil
}

func sessionKey(userID, periodKey string) string {
	return periodKey + "/" + userID
}

func cloneSession(s domain.Session) domain.Session {
	out := s
	out.Answers = make(domain.Answers, len(s.Answers))
	for k, v := range s.Answers {
		if v.SelectedOption != nil {
			opt := *v.SelectedOption
			v.SelectedOption = &opt
		}
		out.Answers[k] = v
	}
	out.QuestionSequence = append([]string(nil), s.QuestionSequence...)
	if s.AbortedAt != nil {
		at := *s.AbortedAt
		out.AbortedAt = &at
	}
	return out
}
