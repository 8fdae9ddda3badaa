package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quiz-session-engine/internal/domain"
)

// DefaultTotalQuestions is the length of a session in the standard configuration.
const DefaultTotalQuestions = 20

var (
	// ErrNotRetryable is returned by Retry when the engine is not in the failed state.
	ErrNotRetryable = errors.New("engine is not in a failed state")
	// ErrBusy is returned when Start is called while a bootstrap is in flight or done.
	ErrBusy = errors.New("engine already started")
	// ErrClosed is returned when the engine was closed during bootstrap.
	ErrClosed = errors.New("engine closed")
)

// Variant selects the practice flow or the live round flow.
type Variant int

const (
	VariantPractice Variant = iota
	VariantRound
)

func (v Variant) String() string {
	if v == VariantRound {
		return "round"
	}
	return "practice"
}

// Status is the engine lifecycle, orthogonal to the session phase.
type Status string

const (
	StatusLoading          Status = "LOADING"
	StatusRunning          Status = "RUNNING"
	StatusAlreadyCompleted Status = "ALREADY_COMPLETED"
	StatusFailed           Status = "FAILED"
	StatusExited           Status = "EXITED"
)

// Durations are the fixed phase lengths D1..D4.
type Durations struct {
	Countdown   time.Duration
	Question    time.Duration
	Explanation time.Duration
	Final       time.Duration
}

func DefaultDurations() Durations {
	return Durations{
		Countdown:   3 * time.Second,
		Question:    15 * time.Second,
		Explanation: 5 * time.Second,
		Final:       5 * time.Second,
	}
}

// Session is the longest a session runs before it finalizes: the countdown
// plus every question and explanation played out in full.
func (d Durations) Session(questions int) time.Duration {
	return d.Countdown + time.Duration(questions)*(d.Question+d.Explanation)
}

type Options struct {
	UserID         string
	Variant        Variant
	TotalQuestions int
	Durations      Durations
	Clock          clockwork.Clock
	RPCTimeout     time.Duration
}

// QuestionView is a question as shown while it is open; the correct option is withheld.
type QuestionView struct {
	ID      string          `json:"id"`
	Text    string          `json:"text"`
	Options []domain.Option `json:"options"`
}

// Snapshot is the render model of the engine at one instant.
type Snapshot struct {
	Status        Status           `json:"status"`
	Variant       string           `json:"variant"`
	Phase         domain.Phase     `json:"phase"`
	Index         int              `json:"index"`
	Total         int              `json:"total"`
	Remaining     int              `json:"remaining"`
	Question      *QuestionView    `json:"question,omitempty"`
	Selected      *domain.OptionID `json:"selected,omitempty"`
	IsCorrect     *bool            `json:"isCorrect,omitempty"`
	CorrectOption domain.OptionID  `json:"correctOption,omitempty"`
	Explanation   string           `json:"explanation,omitempty"`
	CorrectCount  int              `json:"correctCount"`
	WrongCount    int              `json:"wrongCount"`
	Marks         []Mark           `json:"marks,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Engine drives one session through COUNTDOWN, QUESTION, EXPLANATION and
// FINAL. Every field below mu is read and written under it, including from
// timer callbacks, so a tick always sees the current phase, index and
// selection rather than the values it was scheduled with.
type Engine struct {
	authority Authority
	opts      Options
	countdown *Countdown
	persister *Persister

	mu        sync.Mutex
	status    Status
	booting   bool
	closed    bool
	phase     domain.Phase
	index     int
	questions []domain.Question
	tally     *Tally
	marks     []Mark
	failure   error
	finalized bool
	subs      *broadcaster[Snapshot]
	done      chan struct{}
}

func New(authority Authority, opts Options) *Engine {
	if opts.TotalQuestions <= 0 {
		opts.TotalQuestions = DefaultTotalQuestions
	}
	if opts.Durations == (Durations{}) {
		opts.Durations = DefaultDurations()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Engine{
		authority: authority,
		opts:      opts,
		countdown: NewCountdown(opts.Clock),
		persister: NewPersister(authority, opts.RPCTimeout),
		status:    StatusLoading,
		phase:     domain.PhaseInit,
		tally:     NewTally(),
		subs:      newBroadcaster[Snapshot](),
		done:      make(chan struct{}),
	}
}

// Start runs the bootstrap protocol and enters the phase it resolves to.
// Only Start and Retry block on the network.
func (e *Engine) Start(ctx context.Context) (domain.BootstrapStatus, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}
	if e.booting || e.status != StatusLoading {
		e.mu.Unlock()
		return "", ErrBusy
	}
	e.booting = true
	e.mu.Unlock()
	return e.bootstrap(ctx)
}

// Retry re-runs the bootstrap after a fatal failure.
func (e *Engine) Retry(ctx context.Context) (domain.BootstrapStatus, error) {
	e.mu.Lock()
	if e.booting || e.status != StatusFailed {
		e.mu.Unlock()
		return "", ErrNotRetryable
	}
	e.booting = true
	e.status = StatusLoading
	e.failure = nil
	e.subs.publish(e.snapshotLocked())
	e.mu.Unlock()
	return e.bootstrap(ctx)
}

// bootstrap must be entered with booting already set by the caller.
func (e *Engine) bootstrap(ctx context.Context) (domain.BootstrapStatus, error) {
	boot, err := e.authority.BootstrapSession(ctx, e.opts.UserID)
	if err == nil {
		err = validateBootstrap(boot, e.opts.TotalQuestions)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.booting = false

	if e.closed {
		return "", ErrClosed
	}
	if err != nil {
		e.status = StatusFailed
		e.failure = err
		log.Error().Err(err).Str("user_id", e.opts.UserID).Msg("session bootstrap failed")
		e.subs.publish(e.snapshotLocked())
		return "", err
	}

	if boot.Status == domain.BootstrapAlreadyCompleted {
		e.status = StatusAlreadyCompleted
		log.Info().Str("user_id", e.opts.UserID).Msg("session already completed this period")
		e.subs.publish(e.snapshotLocked())
		return boot.Status, nil
	}

	rp := planResume(boot, e.opts.TotalQuestions, e.newSessionPhase())
	e.questions = rp.questions
	e.tally = rp.tally
	e.marks = rp.marks
	e.index = rp.index
	e.status = StatusRunning

	log.Info().
		Str("user_id", e.opts.UserID).
		Str("bootstrap", string(boot.Status)).
		Str("phase", string(rp.phase)).
		Int("index", rp.index).
		Str("variant", e.opts.Variant.String()).
		Msg("session bootstrapped")

	switch rp.phase {
	case domain.PhaseFinal:
		e.enterFinalLocked()
	default:
		e.enterLocked(rp.phase)
		// a round session starts straight at QUESTION; record that so a reload resumes there
		if boot.Status == domain.BootstrapNew && rp.phase != domain.PhaseCountdown {
			e.persistLocked(nil)
		}
	}
	return boot.Status, nil
}

func (e *Engine) newSessionPhase() domain.Phase {
	if e.opts.Variant == VariantRound {
		return domain.PhaseQuestion
	}
	return domain.PhaseCountdown
}

// Select records the user's choice for the open question. It returns false
// when the choice is not accepted: outside QUESTION, for an index that
// already has an answer, or for an option the question does not offer.
func (e *Engine) Select(option domain.OptionID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusRunning || e.phase != domain.PhaseQuestion {
		return false
	}
	if e.tally.Answered(e.index) {
		return false
	}
	if !e.questions[e.index].HasOption(option) {
		return false
	}
	selected := option
	e.answerLocked(&selected)
	return true
}

// Close is navigation away. It tears down the timer and, if the session is
// mid-flight, reports the abort. In-flight best-effort calls are left to finish.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.countdown.Stop()

	if e.status == StatusRunning {
		switch e.phase {
		case domain.PhaseCountdown, domain.PhaseQuestion, domain.PhaseExplanation:
			log.Info().Str("user_id", e.opts.UserID).Str("phase", string(e.phase)).Int("index", e.index).Msg("session abandoned")
			e.persister.Abort(e.opts.UserID)
		}
	}
	if e.status != StatusExited {
		e.exitLocked()
	}
}

// Home abandons a failed or finished engine.
func (e *Engine) Home() {
	e.Close()
}

// Done is closed once the engine has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until in-flight best-effort calls have returned.
func (e *Engine) Wait() {
	e.persister.Wait()
}

// Snapshot returns the current render model.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe streams snapshots, starting with the current one. Stale values
// are dropped for slow readers. The channel closes when the engine exits.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	e.mu.Lock()
	ch := e.subs.subscribe(e.snapshotLocked())
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		e.subs.unsubscribe(ch)
		e.mu.Unlock()
	}
	return ch, cancel
}

// tick is the countdown callback.
func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusRunning {
		return
	}
	remaining, live := e.countdown.Decrement(gen)
	if !live {
		return
	}
	if remaining > 0 {
		e.subs.publish(e.snapshotLocked())
		return
	}
	e.expireLocked()
}

func (e *Engine) expireLocked() {
	switch e.phase {
	case domain.PhaseCountdown:
		e.enterLocked(domain.PhaseQuestion)
		e.persistLocked(nil)
	case domain.PhaseQuestion:
		e.timeoutLocked()
	case domain.PhaseExplanation:
		e.advanceLocked()
	case domain.PhaseFinal:
		e.exitLocked()
	}
}

// timeoutLocked closes a question whose timer ran out. The answers map is
// checked at this instant so a timeout never follows a recorded selection.
func (e *Engine) timeoutLocked() {
	if e.tally.Answered(e.index) {
		e.enterLocked(domain.PhaseExplanation)
		e.persistLocked(nil)
		return
	}
	e.answerLocked(nil)
}

func (e *Engine) answerLocked(selected *domain.OptionID) {
	q := e.questions[e.index]
	rec := Record(selected, Evaluate(selected, q.CorrectOption))
	if !e.tally.Record(e.index, rec) {
		return
	}
	e.marks[e.index] = liveMark(rec)

	log.Debug().
		Str("user_id", e.opts.UserID).
		Int("index", e.index).
		Bool("correct", rec.Correct).
		Bool("timed_out", rec.TimedOut).
		Msg("answer recorded")

	e.enterLocked(domain.PhaseExplanation)
	e.persistLocked(domain.Answers{domain.AnswerKey(e.index): rec})
}

func (e *Engine) advanceLocked() {
	if e.index+1 < len(e.questions) {
		e.index++
		e.enterLocked(domain.PhaseQuestion)
		e.persistLocked(nil)
		return
	}
	e.enterFinalLocked()
}

func (e *Engine) enterFinalLocked() {
	e.enterLocked(domain.PhaseFinal)
	e.persistLocked(nil)
	if e.finalized {
		return
	}
	e.finalized = true
	score := domain.Score{
		CorrectCount:   e.tally.Correct(),
		WrongCount:     e.tally.Wrong(),
		TotalQuestions: len(e.questions),
	}
	log.Info().
		Str("user_id", e.opts.UserID).
		Int("correct", score.CorrectCount).
		Int("wrong", score.WrongCount).
		Msg("session final")
	e.persister.Finalize(e.opts.UserID, score)
}

// enterLocked switches phase and restarts the countdown for it; the previous
// phase's interval is torn down first.
func (e *Engine) enterLocked(phase domain.Phase) {
	e.phase = phase
	e.countdown.Start(wholeSeconds(e.durationFor(phase)), e.tick)
	e.subs.publish(e.snapshotLocked())
}

func (e *Engine) exitLocked() {
	e.countdown.Stop()
	e.status = StatusExited
	e.subs.publish(e.snapshotLocked())
	e.subs.close()
	close(e.done)
}

func (e *Engine) durationFor(phase domain.Phase) time.Duration {
	switch phase {
	case domain.PhaseCountdown:
		return e.opts.Durations.Countdown
	case domain.PhaseQuestion:
		return e.opts.Durations.Question
	case domain.PhaseExplanation:
		return e.opts.Durations.Explanation
	default:
		return e.opts.Durations.Final
	}
}

func (e *Engine) persistLocked(delta domain.Answers) {
	e.persister.Progress(domain.ProgressUpdate{
		UserID:       e.opts.UserID,
		Phase:        e.phase,
		Index:        e.index,
		AnswersDelta: delta,
		CorrectCount: e.tally.Correct(),
		WrongCount:   e.tally.Wrong(),
	})
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:       e.status,
		Variant:      e.opts.Variant.String(),
		Phase:        e.phase,
		Index:        e.index,
		Total:        e.opts.TotalQuestions,
		Remaining:    e.countdown.Remaining(),
		CorrectCount: e.tally.Correct(),
		WrongCount:   e.tally.Wrong(),
	}
	if e.marks != nil {
		snap.Marks = append([]Mark(nil), e.marks...)
	}
	if e.failure != nil {
		snap.Error = e.failure.Error()
	}
	if e.status != StatusRunning || e.index >= len(e.questions) {
		return snap
	}

	q := e.questions[e.index]
	switch e.phase {
	case domain.PhaseQuestion:
		snap.Question = &QuestionView{ID: q.ID, Text: q.Text, Options: q.Options}
	case domain.PhaseExplanation:
		snap.Question = &QuestionView{ID: q.ID, Text: q.Text, Options: q.Options}
		snap.CorrectOption = q.CorrectOption
		snap.Explanation = q.Explanation
		if rec, ok := e.tally.Get(e.index); ok {
			snap.Selected = rec.SelectedOption
			correct := rec.Correct
			snap.IsCorrect = &correct
		}
	}
	return snap
}
