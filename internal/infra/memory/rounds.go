package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"quiz-session-engine/internal/domain"
)

// RoundSchedule is a fixed list of rounds.
type RoundSchedule struct {
	mu     sync.RWMutex
	rounds []domain.Round
}

func NewRoundSchedule(rounds ...domain.Round) *RoundSchedule {
	s := &RoundSchedule{}
	for _, r := range rounds {
		s.Add(r)
	}
	return s
}

// Add schedules a round, keeping the list ordered by start time.
func (s *RoundSchedule) Add(r domain.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = append(s.rounds, domain.Round{ID: r.ID, ScheduledStart: r.ScheduledStart})
	sort.Slice(s.rounds, func(i, j int) bool {
		return s.rounds[i].ScheduledStart.Before(s.rounds[j].ScheduledStart)
	})
}

func (s *RoundSchedule) Current(_ context.Context, now time.Time, window time.Duration) (*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rounds {
		if r.ScheduledStart.Add(window).After(now) {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (s *RoundSchedule) Get(_ context.Context, roundID string) (domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rounds {
		if r.ID == roundID {
			return r, nil
		}
	}
	return domain.Round{}, domain.ErrRoundNotFound
}

const recurringIDLayout = "20060102T1504Z"

// RecurringRounds schedules a round every interval starting at anchor. Round
// IDs encode their start so any past or future round can be looked up.
type RecurringRounds struct {
	anchor time.Time
	every  time.Duration
}

func NewRecurringRounds(anchor time.Time, every time.Duration) *RecurringRounds {
	if every <= 0 {
		every = time.Hour
	}
	return &RecurringRounds{anchor: anchor.UTC().Truncate(time.Minute), every: every}
}

func (r *RecurringRounds) Current(_ context.Context, now time.Time, window time.Duration) (*domain.Round, error) {
	// the earliest slot whose window is still open at now
	since := now.Sub(r.anchor) - window
	n := int64(0)
	if since >= 0 {
		n = int64(since/r.every) + 1
	}
	start := r.anchor.Add(time.Duration(n) * r.every)
	for !start.Add(window).After(now) {
		start = start.Add(r.every)
	}
	round := r.at(start)
	return &round, nil
}

func (r *RecurringRounds) Get(_ context.Context, roundID string) (domain.Round, error) {
	start, err := time.Parse(recurringIDLayout, strings.TrimPrefix(roundID, "r-"))
	if err != nil || start.Before(r.anchor) || start.Sub(r.anchor)%r.every != 0 {
		return domain.Round{}, domain.ErrRoundNotFound
	}
	return r.at(start), nil
}

func (r *RecurringRounds) at(start time.Time) domain.Round {
	return domain.Round{ID: "r-" + start.UTC().Format(recurringIDLayout), ScheduledStart: start}
}
