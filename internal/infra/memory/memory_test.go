package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"quiz-session-engine/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if _, err := store.Get(ctx, "u1", "2026-10-12"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	sess := domain.Session{UserID: "u1", PeriodKey: "2026-10-12", Phase: domain.PhaseCountdown, QuestionSequence: []string{"q1"}}
	_, created, err := store.Create(ctx, sess)
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}

	sess.Phase = domain.PhaseFinal
	stored, created, err := store.Create(ctx, sess)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created || stored.Phase != domain.PhaseCountdown {
		t.Fatalf("expected existing session back, got created=%v phase=%s", created, stored.Phase)
	}

	opt := domain.OptionID("b")
	updated, err := store.Update(ctx, "u1", "2026-10-12", func(s *domain.Session) error {
		s.Answers["0"] = domain.AnswerRecord{SelectedOption: &opt, Correct: true}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(updated.Answers))
	}

	// mutating a returned copy must not leak into the store
	updated.Answers["1"] = domain.AnswerRecord{}
	got, _ := store.Get(ctx, "u1", "2026-10-12")
	if len(got.Answers) != 1 {
		t.Fatalf("store shares answers map with caller")
	}

	boom := errors.New("boom")
	if _, err := store.Update(ctx, "u1", "2026-10-12", func(s *domain.Session) error {
		s.Phase = domain.PhaseFinal
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, _ = store.Get(ctx, "u1", "2026-10-12")
	if got.Phase != domain.PhaseCountdown {
		t.Fatalf("failed update must not be saved, phase=%s", got.Phase)
	}
}

func TestSessionStoreActivePeriod(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if _, err := store.Active(ctx, "u1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_ = store.SetActive(ctx, "u1", "2026-10-12")
	_ = store.SetActive(ctx, "u1", "round:r1")
	if period, err := store.Active(ctx, "u1"); err != nil || period != "round:r1" {
		t.Fatalf("expected round:r1, got %q err=%v", period, err)
	}
	if _, err := store.Active(ctx, "u2"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("pointer leaked across users: %v", err)
	}
}

func TestQuestionBankCaches(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewStaticQuestionLoader(sampleQuestions(3))}
	bank := NewQuestionBank(loader, time.Minute)

	for i := 0; i < 3; i++ {
		qs, err := bank.Questions(context.Background())
		if err != nil {
			t.Fatalf("questions: %v", err)
		}
		if len(qs) != 3 {
			t.Fatalf("expected 3 questions, got %d", len(qs))
		}
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader once, got %d", loader.count())
	}

	now := time.Now()
	bank.clock = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := bank.Questions(context.Background()); err != nil {
		t.Fatalf("questions after expiry: %v", err)
	}
	if loader.count() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.count())
	}
}

func TestQuestionBankZeroTTLSkipsCache(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewStaticQuestionLoader(sampleQuestions(3))}
	bank := NewQuestionBank(loader, 0)

	for i := 0; i < 2; i++ {
		if _, err := bank.Questions(context.Background()); err != nil {
			t.Fatalf("questions: %v", err)
		}
	}
	if loader.count() != 2 {
		t.Fatalf("expected loader on every call, got %d", loader.count())
	}
}

func TestQuestionBankConcurrentFillLoadsOnce(t *testing.T) {
	gate := make(chan struct{})
	loader := &countingLoader{QuestionLoader: NewStaticQuestionLoader(sampleQuestions(2)), gate: gate}
	bank := NewQuestionBank(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := bank.Questions(context.Background()); err != nil {
				t.Errorf("questions: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if loader.count() != 1 {
		t.Fatalf("expected one load for concurrent misses, got %d", loader.count())
	}
}

func TestRoundScheduleCurrent(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	sched := NewRoundSchedule(
		domain.Round{ID: "late", ScheduledStart: base.Add(time.Hour)},
		domain.Round{ID: "early", ScheduledStart: base},
	)

	r, err := sched.Current(ctx, base.Add(-time.Minute), 10*time.Minute)
	if err != nil || r == nil || r.ID != "early" {
		t.Fatalf("expected early round, got %+v err=%v", r, err)
	}
	r, _ = sched.Current(ctx, base.Add(5*time.Minute), 10*time.Minute)
	if r == nil || r.ID != "early" {
		t.Fatalf("expected early round still open, got %+v", r)
	}
	r, _ = sched.Current(ctx, base.Add(11*time.Minute), 10*time.Minute)
	if r == nil || r.ID != "late" {
		t.Fatalf("expected late round, got %+v", r)
	}
	r, _ = sched.Current(ctx, base.Add(2*time.Hour), 10*time.Minute)
	if r != nil {
		t.Fatalf("expected no round, got %+v", r)
	}
	if _, err := sched.Get(ctx, "nope"); !errors.Is(err, domain.ErrRoundNotFound) {
		t.Fatalf("expected round not found, got %v", err)
	}
}

func TestRecurringRounds(t *testing.T) {
	ctx := context.Background()
	anchor := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	rounds := NewRecurringRounds(anchor, 30*time.Minute)

	r, err := rounds.Current(ctx, anchor.Add(40*time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if !r.ScheduledStart.Equal(anchor.Add(time.Hour)) {
		t.Fatalf("expected 01:00 round, got %s", r.ScheduledStart)
	}

	r, _ = rounds.Current(ctx, anchor.Add(32*time.Minute), 5*time.Minute)
	if !r.ScheduledStart.Equal(anchor.Add(30 * time.Minute)) {
		t.Fatalf("expected open 00:30 round, got %s", r.ScheduledStart)
	}

	got, err := rounds.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get %s: %v", r.ID, err)
	}
	if !got.ScheduledStart.Equal(r.ScheduledStart) {
		t.Fatalf("round id does not round-trip: %s", r.ID)
	}
	if _, err := rounds.Get(ctx, "r-20261015T0017Z"); !errors.Is(err, domain.ErrRoundNotFound) {
		t.Fatalf("expected off-schedule id rejected, got %v", err)
	}
}

func TestCreditLedgerDebitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := NewCreditLedger()

	if out, _ := ledger.Debit(ctx, "r1", "u1"); out != domain.DebitInsufficient {
		t.Fatalf("expected insufficient, got %v", out)
	}
	if bal, _ := ledger.Grant(ctx, "u1", 2); bal != 2 {
		t.Fatalf("expected balance 2, got %d", bal)
	}
	if out, _ := ledger.Debit(ctx, "r1", "u1"); out != domain.DebitApplied {
		t.Fatalf("expected applied, got %v", out)
	}
	if out, _ := ledger.Debit(ctx, "r1", "u1"); out != domain.DebitAlreadyJoined {
		t.Fatalf("expected already joined, got %v", out)
	}
	if bal, _ := ledger.Balance(ctx, "u1"); bal != 1 {
		t.Fatalf("expected one debit, balance %d", bal)
	}
	if joined, _ := ledger.Joined(ctx, "r1", "u1"); !joined {
		t.Fatalf("expected joined")
	}
}

type countingLoader struct {
	QuestionLoader
	gate  chan struct{}
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.gate != nil {
		<-l.gate
	}
	return l.QuestionLoader.LoadQuestions(ctx)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleQuestions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			ID:   fmt.Sprintf("q%02d", i+1),
			Text: fmt.Sprintf("What is %d + %d?", i, i),
			Options: []domain.Option{
				{ID: "a", Text: fmt.Sprint(2*i - 1)},
				{ID: "b", Text: fmt.Sprint(2 * i)},
				{ID: "c", Text: fmt.Sprint(2*i + 1)},
				{ID: "d", Text: fmt.Sprint(2*i + 2)},
			},
			CorrectOption: "b",
			Explanation:   fmt.Sprintf("%d + %d = %d.", i, i, 2*i),
		}
	}
	return qs
}
