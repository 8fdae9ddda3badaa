package engine

import (
	"fmt"

	"quiz-session-engine/internal/domain"
)

// Mark is the progress indicator shown for one question.
type Mark string

const (
	MarkPending Mark = "pending"
	MarkCorrect Mark = "correct"
	MarkWrong   Mark = "wrong"
)

// resumePoint is where a bootstrapped engine enters the phase machine.
type resumePoint struct {
	phase     domain.Phase
	index     int
	tally     *Tally
	marks     []Mark
	questions []domain.Question
}

// validateBootstrap checks the authority's payload before any phase starts.
// Proceeding with a short or malformed question list would corrupt scoring,
// so every problem here is fatal.
func validateBootstrap(boot domain.Bootstrap, total int) error {
	switch boot.Status {
	case domain.BootstrapAlreadyCompleted:
		return nil
	case domain.BootstrapNew, domain.BootstrapResume:
	default:
		return fmt.Errorf("unknown bootstrap status %q", boot.Status)
	}

	if len(boot.Questions) < total {
		return fmt.Errorf("%w: got %d questions, need %d", domain.ErrIncompletePayload, len(boot.Questions), total)
	}
	for i, q := range boot.Questions[:total] {
		if len(q.Options) != domain.OptionsPerQuestion {
			return fmt.Errorf("%w: question %d (%s) has %d options", domain.ErrMalformedQuestion, i, q.ID, len(q.Options))
		}
		if !q.HasOption(q.CorrectOption) {
			return fmt.Errorf("%w: question %d (%s) correct option %q not offered", domain.ErrMalformedQuestion, i, q.ID, q.CorrectOption)
		}
	}

	if boot.Status == domain.BootstrapResume {
		if boot.Session == nil {
			return fmt.Errorf("%w: resume without session", domain.ErrIncompletePayload)
		}
		if boot.Session.CurrentIndex < 0 || boot.Session.CurrentIndex >= total {
			return fmt.Errorf("%w: resume index %d out of range [0,%d)", domain.ErrIncompletePayload, boot.Session.CurrentIndex, total)
		}
		if !boot.Session.Phase.Valid() {
			return fmt.Errorf("%w: unknown resume phase %q", domain.ErrIncompletePayload, boot.Session.Phase)
		}
	}
	return nil
}

// planResume decides the entry phase for a validated NEW or RESUME payload.
func planResume(boot domain.Bootstrap, total int, newPhase domain.Phase) resumePoint {
	rp := resumePoint{questions: boot.Questions[:total]}

	if boot.Status == domain.BootstrapNew || boot.Session == nil {
		rp.phase = newPhase
		rp.tally = NewTally()
		rp.marks = ResumeMarks(nil, 0, total)
		return rp
	}

	s := boot.Session
	rp.phase = s.Phase
	if rp.phase == domain.PhaseInit {
		rp.phase = newPhase
	}
	rp.index = s.CurrentIndex
	rp.tally = RestoreTally(s.Answers, s.CurrentIndex)
	rp.marks = ResumeMarks(s.Answers, s.CurrentIndex, total)
	if rp.phase == domain.PhaseExplanation || rp.phase == domain.PhaseFinal {
		if rec, ok := rp.tally.Get(rp.index); ok {
			rp.marks[rp.index] = resumeMark(rec)
		}
	}
	return rp
}

// ResumeMarks rebuilds the progress indicator for every index before
// currentIndex: correct entries are marked correct, incorrect entries with a
// recorded selection are marked wrong, everything else stays pending. A
// resumed EXPLANATION or FINAL marks its current index by the same rule.
func ResumeMarks(answers domain.Answers, currentIndex, total int) []Mark {
	marks := make([]Mark, total)
	for i := range marks {
		marks[i] = MarkPending
		if i >= currentIndex {
			continue
		}
		if rec, ok := answers[domain.AnswerKey(i)]; ok {
			marks[i] = resumeMark(rec)
		}
	}
	return marks
}

func resumeMark(rec domain.AnswerRecord) Mark {
	switch {
	case rec.Correct:
		return MarkCorrect
	case rec.SelectedOption != nil:
		return MarkWrong
	}
	return MarkPending
}

// liveMark is the indicator for an answer recorded during this run. A timeout
// counts as wrong here because the user just watched it expire.
func liveMark(rec domain.AnswerRecord) Mark {
	if rec.Correct {
		return MarkCorrect
	}
	return MarkWrong
}
