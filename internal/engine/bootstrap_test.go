package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-session-engine/internal/domain"
)

func TestValidateBootstrap(t *testing.T) {
	short := newBootstrap(19)

	threeOptions := newBootstrap(20)
	threeOptions.Questions[4].Options = threeOptions.Questions[4].Options[:3]

	badCorrect := newBootstrap(20)
	badCorrect.Questions[7].CorrectOption = "z"

	resumeNoSession := newBootstrap(20)
	resumeNoSession.Status = domain.BootstrapResume
	resumeNoSession.Session = nil

	resumeOutOfRange := newBootstrap(20)
	resumeOutOfRange.Status = domain.BootstrapResume
	resumeOutOfRange.Session.CurrentIndex = 20

	cases := []struct {
		name    string
		boot    domain.Bootstrap
		wantErr error
	}{
		{name: "new", boot: newBootstrap(20)},
		{name: "extra questions are fine", boot: newBootstrap(25)},
		{name: "already completed needs no payload", boot: domain.Bootstrap{Status: domain.BootstrapAlreadyCompleted}},
		{name: "short payload", boot: short, wantErr: domain.ErrIncompletePayload},
		{name: "three options", boot: threeOptions, wantErr: domain.ErrMalformedQuestion},
		{name: "correct option not offered", boot: badCorrect, wantErr: domain.ErrMalformedQuestion},
		{name: "resume without session", boot: resumeNoSession, wantErr: domain.ErrIncompletePayload},
		{name: "resume index out of range", boot: resumeOutOfRange, wantErr: domain.ErrIncompletePayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateBootstrap(tc.boot, 20)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	assert.Error(t, validateBootstrap(domain.Bootstrap{Status: "MAYBE"}, 20))
}

func TestResumeMarks(t *testing.T) {
	answers := domain.Answers{
		"0": {SelectedOption: optionPtr("b"), Correct: true},
		"1": {SelectedOption: optionPtr("a")},
		"2": {TimedOut: true},
		"3": {SelectedOption: optionPtr("b"), Correct: true},
	}

	marks := ResumeMarks(answers, 3, 5)
	assert.Equal(t, []Mark{MarkCorrect, MarkWrong, MarkPending, MarkPending, MarkPending}, marks)
}

func TestPlanResumeInitStartsFresh(t *testing.T) {
	boot := newBootstrap(20)
	boot.Status = domain.BootstrapResume
	boot.Session.Phase = domain.PhaseInit

	rp := planResume(boot, 20, domain.PhaseCountdown)
	assert.Equal(t, domain.PhaseCountdown, rp.phase)
	assert.Equal(t, 0, rp.index)
}

func TestPlanResumeExplanationMarksCurrentIndex(t *testing.T) {
	boot := newBootstrap(20)
	boot.Status = domain.BootstrapResume
	boot.Session.Phase = domain.PhaseExplanation
	boot.Session.CurrentIndex = 2
	boot.Session.Answers = domain.Answers{
		"0": {SelectedOption: optionPtr("b"), Correct: true},
		"1": {SelectedOption: optionPtr("b"), Correct: true},
		"2": {TimedOut: true},
	}

	rp := planResume(boot, 20, domain.PhaseCountdown)
	require.Equal(t, domain.PhaseExplanation, rp.phase)
	assert.Equal(t, MarkPending, rp.marks[2], "a resumed timeout reads the same as earlier ones")
	assert.Equal(t, 2, rp.tally.Correct())
	assert.Equal(t, 1, rp.tally.Wrong())

	boot.Session.Answers["2"] = domain.AnswerRecord{SelectedOption: optionPtr("a")}
	rp = planResume(boot, 20, domain.PhaseCountdown)
	assert.Equal(t, MarkWrong, rp.marks[2])
}

func TestPlanResumeMarksMatchAfterAdvancing(t *testing.T) {
	answers := domain.Answers{
		"0": {SelectedOption: optionPtr("b"), Correct: true},
		"1": {TimedOut: true},
		"2": {TimedOut: true},
	}

	boot := newBootstrap(20)
	boot.Status = domain.BootstrapResume
	boot.Session.Phase = domain.PhaseExplanation
	boot.Session.CurrentIndex = 2
	boot.Session.Answers = answers

	rp := planResume(boot, 20, domain.PhaseCountdown)
	assert.Equal(t, rp.marks[1], rp.marks[2])
	assert.Equal(t, ResumeMarks(answers, 3, 20), rp.marks)
}
