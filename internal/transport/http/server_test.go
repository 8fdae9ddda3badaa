package http

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-session-engine/internal/authority"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/engine"
	"quiz-session-engine/internal/infra/memory"
)

var testNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

type testServer struct {
	server  *httptest.Server
	service *authority.Service
	clock   *clockwork.FakeClock
	rounds  *memory.RoundSchedule
	credits *memory.CreditLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	rounds := memory.NewRoundSchedule()
	credits := memory.NewCreditLedger()
	service := authority.NewService(authority.Repositories{
		Sessions:  memory.NewSessionStore(),
		Questions: memory.NewQuestionBank(memory.NewStaticQuestionLoader(sampleQuestions(20)), time.Minute),
		Rounds:    rounds,
		Credits:   credits,
		Events:    memory.NewEventSink(),
	}, authority.Config{TotalQuestions: 20, Clock: clock})

	ws := NewWSHandler(service, GatewayOptions{
		Engine: engine.Options{
			TotalQuestions: 20,
			Durations: engine.Durations{
				Countdown:   3 * time.Second,
				Question:    15 * time.Second,
				Explanation: 5 * time.Second,
				Final:       5 * time.Second,
			},
			Clock: clock,
		},
		Lobby: engine.LobbyOptions{Clock: clock},
	})
	server := httptest.NewServer(NewRouter(NewRPCHandler(service), ws))
	t.Cleanup(server.Close)

	return &testServer{server: server, service: service, clock: clock, rounds: rounds, credits: credits}
}

func (s *testServer) client() *Client {
	return NewClient(s.server.URL)
}

func (s *testServer) wsURL(query string) string {
	return "ws" + s.server.URL[len("http"):] + "/ws?" + query
}

func sampleQuestions(n int) []domain.Question {
	out := make([]domain.Question, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Question{
			ID:   fmt.Sprintf("q%02d", i),
			Text: fmt.Sprintf("Question %d", i),
			Options: []domain.Option{
				{ID: "a", Text: "first"},
				{ID: "b", Text: "second"},
				{ID: "c", Text: "third"},
				{ID: "d", Text: "fourth"},
			},
			CorrectOption: "b",
			Explanation:   "the second option",
		})
	}
	return out
}
