package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-session-engine/internal/authority"
	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/engine"
	"quiz-session-engine/internal/infra/memory"
)

func newLocalAuthority(rounds *memory.RoundSchedule) *authority.Service {
	return authority.NewService(authority.Repositories{
		Sessions:  memory.NewSessionStore(),
		Questions: memory.NewQuestionBank(memory.NewStaticQuestionLoader(sampleQuestions()), time.Minute),
		Rounds:    rounds,
		Credits:   memory.NewCreditLedger(),
		Events:    memory.NewEventSink(),
	}, authority.Config{})
}

func TestSampleQuestionsAreWellFormed(t *testing.T) {
	questions := sampleQuestions()
	require.GreaterOrEqual(t, len(questions), engine.DefaultTotalQuestions)

	seen := map[string]bool{}
	for _, q := range questions {
		assert.False(t, seen[q.ID], "duplicate id %s", q.ID)
		seen[q.ID] = true
		assert.Len(t, q.Options, domain.OptionsPerQuestion, q.ID)
		assert.True(t, q.HasOption(q.CorrectOption), q.ID)
	}
}

func TestPlayAlreadyCompleted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc := newLocalAuthority(memory.NewRoundSchedule())
	_, err := svc.BootstrapSession(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, svc.FinalizeSession(ctx, "u1", domain.Score{TotalQuestions: 20}))

	var out bytes.Buffer
	p := &player{authority: svc, cfg: config.Config{}, userID: "u1", out: &out}
	require.NoError(t, p.run(ctx, "practice", strings.NewReader("")))

	assert.Contains(t, out.String(), "already completed")
	assert.Contains(t, out.String(), "Bye.")
}

func TestPlayRoundWithoutCredits(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rounds := memory.NewRoundSchedule(domain.Round{ID: "r1", ScheduledStart: time.Now().Add(time.Hour)})
	svc := newLocalAuthority(rounds)

	// an open pipe keeps stdin alive so the lobby decides on its own
	in, w := io.Pipe()
	defer w.Close()

	var out bytes.Buffer
	p := &player{authority: svc, cfg: config.Config{}, userID: "u1", out: &out}
	require.NoError(t, p.run(ctx, "round", in))

	assert.Contains(t, out.String(), "No credits left")
}

func TestRenderSnapshot(t *testing.T) {
	correct := true
	selected := domain.OptionID("b")
	question := engine.Snapshot{
		Status:    engine.StatusRunning,
		Phase:     domain.PhaseQuestion,
		Index:     1,
		Total:     20,
		Remaining: 15,
		Question: &engine.QuestionView{
			Text:    "How many bits are in a byte?",
			Options: []domain.Option{{ID: "a", Text: "4"}, {ID: "b", Text: "8"}},
		},
		Marks: []engine.Mark{engine.MarkCorrect, engine.MarkPending},
	}

	var out bytes.Buffer
	renderSnapshot(&out, engine.Snapshot{}, question)
	assert.Contains(t, out.String(), "Question 2/20  +.")
	assert.Contains(t, out.String(), "  b) 8")

	out.Reset()
	tick := question
	tick.Remaining = 14
	renderSnapshot(&out, question, tick)
	assert.Empty(t, out.String())

	out.Reset()
	explanation := question
	explanation.Phase = domain.PhaseExplanation
	explanation.Selected = &selected
	explanation.IsCorrect = &correct
	explanation.Explanation = "A byte is eight bits."
	renderSnapshot(&out, question, explanation)
	assert.Equal(t, "Correct!\nA byte is eight bits.\n", out.String())

	out.Reset()
	timedOut := explanation
	timedOut.Selected = nil
	timedOut.IsCorrect = nil
	timedOut.CorrectOption = "b"
	timedOut.Explanation = ""
	renderSnapshot(&out, question, timedOut)
	assert.Equal(t, "Time's up. The answer was b.\n", out.String())
}
