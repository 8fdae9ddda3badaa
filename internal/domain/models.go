package domain

import (
	"strconv"
	"time"
)

// OptionsPerQuestion is the number of answer options every question carries.
const OptionsPerQuestion = 4

// Phase is the stage of a session.
type Phase string

const (
	PhaseInit        Phase = "INIT"
	PhaseCountdown   Phase = "COUNTDOWN"
	PhaseQuestion    Phase = "QUESTION"
	PhaseExplanation Phase = "EXPLANATION"
	PhaseFinal       Phase = "FINAL"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInit, PhaseCountdown, PhaseQuestion, PhaseExplanation, PhaseFinal:
		return true
	}
	return false
}

// Rank orders phases within one question index. A later phase never gives
// way to an earlier one at the same index.
func (p Phase) Rank() int {
	switch p {
	case PhaseCountdown:
		return 1
	case PhaseQuestion:
		return 2
	case PhaseExplanation:
		return 3
	case PhaseFinal:
		return 4
	}
	return 0
}

// OptionID identifies an answer option within a question.
type OptionID string

// Option is a single selectable answer.
type Option struct {
	ID   OptionID `json:"id"`
	Text string   `json:"text"`
}

// Question is a multiple-choice question with exactly one correct option.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []Option `json:"options"`
	CorrectOption OptionID `json:"correctOption"`
	Explanation   string   `json:"explanation"`
}

// HasOption reports whether id is one of the question's options.
func (q Question) HasOption(id OptionID) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// AnswerRecord is the outcome stored for one question index.
// SelectedOption is nil when the question timed out.
type AnswerRecord struct {
	SelectedOption *OptionID `json:"selectedOption"`
	Correct        bool      `json:"correct"`
	TimedOut       bool      `json:"timedOut"`
}

// Answers maps a question index (decimal string key) to its record.
type Answers map[string]AnswerRecord

// AnswerKey formats a question index as an answers map key.
func AnswerKey(index int) string {
	return strconv.Itoa(index)
}

// Session is one user's attempt within one scoring period.
type Session struct {
	UserID           string     `json:"userId"`
	PeriodKey        string     `json:"periodKey"`
	Phase            Phase      `json:"phase"`
	CurrentIndex     int        `json:"currentIndex"`
	Answers          Answers    `json:"answers"`
	CorrectCount     int        `json:"correctCount"`
	WrongCount       int        `json:"wrongCount"`
	QuestionSequence []string   `json:"questionSequence"`
	Completed        bool       `json:"completed"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	AbortedAt        *time.Time `json:"abortedAt,omitempty"`
}

// TotalQuestions is the length of the fixed question sequence.
func (s Session) TotalQuestions() int {
	return len(s.QuestionSequence)
}

// BootstrapStatus is the outcome of asking the authority for the current session.
type BootstrapStatus string

const (
	BootstrapAlreadyCompleted BootstrapStatus = "ALREADY_COMPLETED"
	BootstrapResume           BootstrapStatus = "RESUME"
	BootstrapNew              BootstrapStatus = "NEW"
)

// Bootstrap is the authority's answer to a bootstrap request.
type Bootstrap struct {
	Status    BootstrapStatus `json:"status"`
	Session   *Session        `json:"session,omitempty"`
	Questions []Question      `json:"questions,omitempty"`
}

// ProgressUpdate mirrors a state-changing event to the authority.
// AnswersDelta carries only the newly answered index, if any.
type ProgressUpdate struct {
	UserID       string  `json:"userId"`
	Phase        Phase   `json:"phase"`
	Index        int     `json:"index"`
	AnswersDelta Answers `json:"answersDelta,omitempty"`
	CorrectCount int     `json:"correctCount"`
	WrongCount   int     `json:"wrongCount"`
}

// Score is the terminal tally submitted on FINAL.
type Score struct {
	CorrectCount   int `json:"correctCount"`
	WrongCount     int `json:"wrongCount"`
	TotalQuestions int `json:"totalQuestions"`
}

// RoundStatus is the lifecycle state of a live round.
type RoundStatus string

const (
	RoundScheduled RoundStatus = "scheduled"
	RoundActive    RoundStatus = "active"
	RoundClosed    RoundStatus = "closed"
)

// Round is a scheduled multiplayer competition. Clients only poll it.
type Round struct {
	ID             string      `json:"roundId"`
	ScheduledStart time.Time   `json:"scheduledStart"`
	Status         RoundStatus `json:"status"`
	TimeUntilStart int         `json:"timeUntilStart"`
}

const (
	// JoinErrorNoCredits is the expected, non-fatal join failure.
	JoinErrorNoCredits = "no_credits"
	// JoinErrorRoundClosed is returned for joins after the round window.
	JoinErrorRoundClosed = "round_closed"
)

// JoinResult is the authority's answer to a join request.
type JoinResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DebitOutcome is the ledger's answer to a join debit.
type DebitOutcome int

const (
	DebitApplied DebitOutcome = iota
	// DebitAlreadyJoined means this (round, user) was debited before; nothing changed.
	DebitAlreadyJoined
	DebitInsufficient
)

// EventType names a domain event. It doubles as the NATS subject.
type EventType string

const (
	EventSessionFinalized EventType = "quiz.session.finalized"
	EventSessionAborted   EventType = "quiz.session.aborted"
	EventRoundJoined      EventType = "quiz.round.joined"
)

// Event is published for downstream consumers such as leaderboard aggregation.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	UserID     string    `json:"userId"`
	PeriodKey  string    `json:"periodKey,omitempty"`
	RoundID    string    `json:"roundId,omitempty"`
	Score      *Score    `json:"score,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
