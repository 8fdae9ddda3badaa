package authority

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"quiz-session-engine/internal/domain"
)

// WeekPeriod is the scoring period of t: the Monday of its ISO week, UTC.
func WeekPeriod(t time.Time) string {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	monday := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
	return monday.Format("2006-01-02")
}

// RoundPeriod is the scoring period of a live round.
func RoundPeriod(roundID string) string {
	return "round:" + roundID
}

// applyProgress merges an update into sess. Answers are write-once and their
// correctness is re-evaluated against key. The position only moves forward:
// a later index wins, and at the same index a later phase wins, so updates
// that arrive out of order cannot rewind the session. A completed session
// still accepts late answers but keeps its position.
func applyProgress(sess *domain.Session, u domain.ProgressUpdate, key []domain.OptionID, now time.Time) {
	total := len(sess.QuestionSequence)
	if sess.Answers == nil {
		sess.Answers = domain.Answers{}
	}
	for k, rec := range u.AnswersDelta {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 || idx >= total || idx >= len(key) {
			continue
		}
		norm := domain.AnswerKey(idx)
		if _, ok := sess.Answers[norm]; ok {
			continue
		}
		sess.Answers[norm] = evaluate(rec, key[idx])
	}

	if !sess.Completed && u.Index < total {
		if u.Index > sess.CurrentIndex || (u.Index == sess.CurrentIndex && u.Phase.Rank() > sess.Phase.Rank()) {
			sess.CurrentIndex = u.Index
			sess.Phase = u.Phase
		}
	}
	sess.CorrectCount, sess.WrongCount = countAnswers(sess.Answers)
	sess.UpdatedAt = now
}

func evaluate(rec domain.AnswerRecord, correct domain.OptionID) domain.AnswerRecord {
	if rec.SelectedOption == nil {
		return domain.AnswerRecord{TimedOut: true}
	}
	selected := *rec.SelectedOption
	return domain.AnswerRecord{SelectedOption: &selected, Correct: selected == correct}
}

func countAnswers(answers domain.Answers) (correct, wrong int) {
	for _, rec := range answers {
		if rec.Correct {
			correct++
		} else {
			wrong++
		}
	}
	return correct, wrong
}

// drawSequence picks n question IDs from the bank. The draw is a function of
// the period key alone, so every user in a period gets the same sequence.
func drawSequence(bank []domain.Question, periodKey string, n int) ([]string, error) {
	ids := make([]string, 0, len(bank))
	for _, q := range bank {
		if len(q.Options) == domain.OptionsPerQuestion && q.HasOption(q.CorrectOption) {
			ids = append(ids, q.ID)
		}
	}
	if len(ids) < n {
		return nil, fmt.Errorf("%w: %d usable, need %d", domain.ErrNotEnoughQuestions, len(ids), n)
	}
	sort.Strings(ids)

	h := fnv.New64a()
	h.Write([]byte(periodKey))
	rnd := rand.New(rand.NewSource(int64(h.Sum64())))
	rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids[:n], nil
}

// pick resolves a question sequence against the bank, in sequence order.
func pick(bank []domain.Question, seq []string) ([]domain.Question, error) {
	byID := make(map[string]domain.Question, len(bank))
	for _, q := range bank {
		byID[q.ID] = q
	}
	out := make([]domain.Question, 0, len(seq))
	for _, id := range seq {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
		}
		out = append(out, q)
	}
	return out, nil
}

// roundAt derives the round's status at now. A round is active from its
// scheduled start for the length of window.
func roundAt(r domain.Round, now time.Time, window time.Duration) domain.Round {
	switch {
	case now.Before(r.ScheduledStart):
		r.Status = domain.RoundScheduled
		r.TimeUntilStart = int(math.Ceil(r.ScheduledStart.Sub(now).Seconds()))
	case now.Before(r.ScheduledStart.Add(window)):
		r.Status = domain.RoundActive
		r.TimeUntilStart = 0
	default:
		r.Status = domain.RoundClosed
		r.TimeUntilStart = 0
	}
	return r
}
