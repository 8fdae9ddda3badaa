package http

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"quiz-session-engine/internal/domain"
)

func TestClientSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := ts.client()

	boot, err := c.BootstrapSession(ctx, "u1")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if boot.Status != domain.BootstrapNew || len(boot.Questions) != 20 {
		t.Fatalf("unexpected bootstrap %s with %d questions", boot.Status, len(boot.Questions))
	}

	selected := domain.OptionID("b")
	err = c.UpdateProgress(ctx, domain.ProgressUpdate{
		UserID: "u1",
		Phase:  domain.PhaseExplanation,
		Index:  0,
		AnswersDelta: domain.Answers{
			"0": {SelectedOption: &selected, Correct: true},
		},
		CorrectCount: 1,
	})
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}

	boot, err = c.BootstrapSession(ctx, "u1")
	if err != nil {
		t.Fatalf("bootstrap again: %v", err)
	}
	if boot.Status != domain.BootstrapResume {
		t.Fatalf("expected RESUME, got %s", boot.Status)
	}
	if boot.Session.Phase != domain.PhaseExplanation || boot.Session.CurrentIndex != 0 {
		t.Fatalf("unexpected position %s@%d", boot.Session.Phase, boot.Session.CurrentIndex)
	}
	rec, ok := boot.Session.Answers["0"]
	if !ok || rec.SelectedOption == nil || *rec.SelectedOption != "b" || !rec.Correct {
		t.Fatalf("answer not stored: %+v", boot.Session.Answers)
	}

	if err := c.FinalizeSession(ctx, "u1", domain.Score{CorrectCount: 1, WrongCount: 19, TotalQuestions: 20}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	boot, err = c.BootstrapSession(ctx, "u1")
	if err != nil {
		t.Fatalf("bootstrap after finalize: %v", err)
	}
	if boot.Status != domain.BootstrapAlreadyCompleted {
		t.Fatalf("expected ALREADY_COMPLETED, got %s", boot.Status)
	}
}

func TestClientMapsErrorsBackToDomain(t *testing.T) {
	ctx := context.Background()
	c := newTestServer(t).client()

	err := c.UpdateProgress(ctx, domain.ProgressUpdate{UserID: "ghost", Phase: domain.PhaseQuestion})
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := c.GrantCredits(ctx, "u1", 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := c.JoinRound(ctx, "missing", "u1"); !errors.Is(err, domain.ErrRoundNotFound) {
		t.Fatalf("expected ErrRoundNotFound, got %v", err)
	}
	if err := c.AbortSession(ctx, "ghost"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on abort, got %v", err)
	}
}

func TestClientRoundJoin(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := ts.client()

	round, err := c.GetCurrentRound(ctx)
	if err != nil {
		t.Fatalf("current round: %v", err)
	}
	if round != nil {
		t.Fatalf("expected no round, got %+v", round)
	}

	ts.rounds.Add(domain.Round{ID: "r1", ScheduledStart: testNow.Add(30 * time.Second)})
	round, err = c.GetCurrentRound(ctx)
	if err != nil {
		t.Fatalf("current round: %v", err)
	}
	if round == nil || round.ID != "r1" || round.Status != domain.RoundScheduled || round.TimeUntilStart != 30 {
		t.Fatalf("unexpected round %+v", round)
	}

	res, err := c.JoinRound(ctx, "r1", "u1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if res.Success || res.Error != domain.JoinErrorNoCredits {
		t.Fatalf("expected no_credits, got %+v", res)
	}

	balance, err := c.GrantCredits(ctx, "u1", 2)
	if err != nil || balance != 2 {
		t.Fatalf("grant: balance=%d err=%v", balance, err)
	}
	for i := 0; i < 2; i++ {
		res, err = c.JoinRound(ctx, "r1", "u1")
		if err != nil || !res.Success {
			t.Fatalf("join %d: %+v %v", i, res, err)
		}
	}
	balance, err = c.GetCreditBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 1 {
		t.Fatalf("expected one debit, balance %d", balance)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestProgressRejectsBadBody(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Post(ts.server.URL+"/v1/sessions/u1/progress", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
