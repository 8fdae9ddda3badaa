package engine

import (
	"context"
	"fmt"
	"sync"

	"quiz-session-engine/internal/domain"
)

// fakeAuthority records every call; BootstrapSession and JoinRound can be held
// open with bootGate and joinGate.
type fakeAuthority struct {
	mu sync.Mutex

	boot     domain.Bootstrap
	bootErr  error
	boots    int
	bootGate chan struct{}

	progress []domain.ProgressUpdate
	finals   []domain.Score
	aborts   int

	round    *domain.Round
	roundErr error

	balance    int
	balanceErr error

	joinCalls   int
	joinResult  domain.JoinResult
	joinErr     error
	joinGate    chan struct{}
	joinStarted chan struct{}
}

func (f *fakeAuthority) BootstrapSession(_ context.Context, _ string) (domain.Bootstrap, error) {
	f.mu.Lock()
	f.boots++
	gate := f.bootGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boot, f.bootErr
}

func (f *fakeAuthority) UpdateProgress(_ context.Context, update domain.ProgressUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, update)
	return nil
}

func (f *fakeAuthority) FinalizeSession(_ context.Context, _ string, score domain.Score) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finals = append(f.finals, score)
	return nil
}

func (f *fakeAuthority) AbortSession(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	return nil
}

func (f *fakeAuthority) GetCurrentRound(_ context.Context) (*domain.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.round == nil {
		return nil, f.roundErr
	}
	r := *f.round
	return &r, f.roundErr
}

func (f *fakeAuthority) JoinRound(_ context.Context, _, _ string) (domain.JoinResult, error) {
	f.mu.Lock()
	f.joinCalls++
	gate := f.joinGate
	started := f.joinStarted
	res, err := f.joinResult, f.joinErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return res, err
}

func (f *fakeAuthority) GetCreditBalance(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.balanceErr
}

func (f *fakeAuthority) setRound(r *domain.Round) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.round = r
}

func (f *fakeAuthority) calls() (progress []domain.ProgressUpdate, finals []domain.Score, aborts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ProgressUpdate(nil), f.progress...), append([]domain.Score(nil), f.finals...), f.aborts
}

func (f *fakeAuthority) bootCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boots
}

func (f *fakeAuthority) joins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joinCalls
}

// testQuestions builds n questions whose correct option is "b".
func testQuestions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			ID:   fmt.Sprintf("q%d", i+1),
			Text: fmt.Sprintf("Question %d", i+1),
			Options: []domain.Option{
				{ID: "a", Text: "A"},
				{ID: "b", Text: "B"},
				{ID: "c", Text: "C"},
				{ID: "d", Text: "D"},
			},
			CorrectOption: "b",
			Explanation:   "B is right.",
		}
	}
	return qs
}

func newBootstrap(n int) domain.Bootstrap {
	return domain.Bootstrap{
		Status: domain.BootstrapNew,
		Session: &domain.Session{
			UserID:       "u1",
			PeriodKey:    "2026-10-12",
			Phase:        domain.PhaseCountdown,
			CurrentIndex: 0,
			Answers:      domain.Answers{},
		},
		Questions: testQuestions(n),
	}
}

func optionPtr(id domain.OptionID) *domain.OptionID {
	return &id
}
