package engine

import (
	"strconv"

	"quiz-session-engine/internal/domain"
)

// Outcome is the evaluation of a single question.
type Outcome struct {
	Correct  bool
	TimedOut bool
}

// Evaluate maps a selection (nil on timeout) to its outcome.
func Evaluate(selected *domain.OptionID, correct domain.OptionID) Outcome {
	if selected == nil {
		return Outcome{TimedOut: true}
	}
	return Outcome{Correct: *selected == correct}
}

// Record builds the answers entry for an evaluated selection.
func Record(selected *domain.OptionID, outcome Outcome) domain.AnswerRecord {
	return domain.AnswerRecord{
		SelectedOption: selected,
		Correct:        outcome.Correct,
		TimedOut:       outcome.TimedOut,
	}
}

// Tally is the write-once answers map with its running counters.
// correct+wrong always equals the number of entries.
type Tally struct {
	answers domain.Answers
	correct int
	wrong   int
}

func NewTally() *Tally {
	return &Tally{answers: make(domain.Answers)}
}

// RestoreTally rebuilds a tally from persisted answers, recomputing the
// counters. Entries past currentIndex or with unparsable keys are dropped.
func RestoreTally(answers domain.Answers, currentIndex int) *Tally {
	t := NewTally()
	for key, rec := range answers {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx > currentIndex {
			continue
		}
		t.Record(idx, rec)
	}
	return t
}

// Answered reports whether index already has an entry.
func (t *Tally) Answered(index int) bool {
	_, ok := t.answers[domain.AnswerKey(index)]
	return ok
}

// Get returns the entry for index.
func (t *Tally) Get(index int) (domain.AnswerRecord, bool) {
	rec, ok := t.answers[domain.AnswerKey(index)]
	return rec, ok
}

// Record writes the entry for index and bumps exactly one counter. An index
// that already has an entry is left unchanged and false is returned.
func (t *Tally) Record(index int, rec domain.AnswerRecord) bool {
	key := domain.AnswerKey(index)
	if _, ok := t.answers[key]; ok {
		return false
	}
	t.answers[key] = rec
	if rec.Correct {
		t.correct++
	} else {
		t.wrong++
	}
	return true
}

func (t *Tally) Correct() int { return t.correct }
func (t *Tally) Wrong() int   { return t.wrong }
func (t *Tally) Len() int     { return len(t.answers) }

// Answers returns a copy of the entries.
func (t *Tally) Answers() domain.Answers {
	out := make(domain.Answers, len(t.answers))
	for k, v := range t.answers {
		out[k] = v
	}
	return out
}
