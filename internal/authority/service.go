package authority

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quiz-session-engine/internal/domain"
)

// SessionRepository stores one session per (user, period).
type SessionRepository interface {
	Get(ctx context.Context, userID, periodKey string) (domain.Session, error)
	// Create stores s unless a session with the same key exists. It returns
	// the stored session and whether this call created it.
	Create(ctx context.Context, s domain.Session) (domain.Session, bool, error)
	// Update applies fn to the stored session atomically and returns the result.
	Update(ctx context.Context, userID, periodKey string, fn func(*domain.Session) error) (domain.Session, error)
	// SetActive records the period of the session the user last bootstrapped.
	SetActive(ctx context.Context, userID, periodKey string) error
	// Active returns the recorded period, or ErrSessionNotFound.
	Active(ctx context.Context, userID string) (string, error)
}

// QuestionBank returns every question available for drawing.
type QuestionBank interface {
	Questions(ctx context.Context) ([]domain.Question, error)
}

// RoundRepository knows the round schedule. Returned rounds carry only ID and
// ScheduledStart; status and timeUntilStart are derived by the service.
type RoundRepository interface {
	// Current returns the earliest round whose window has not ended at now, or nil.
	Current(ctx context.Context, now time.Time, window time.Duration) (*domain.Round, error)
	Get(ctx context.Context, roundID string) (domain.Round, error)
}

// CreditLedger holds round-entry credits. Debit is idempotent per (round, user).
type CreditLedger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Grant(ctx context.Context, userID string, amount int) (int, error)
	Debit(ctx context.Context, roundID, userID string) (domain.DebitOutcome, error)
	Joined(ctx context.Context, roundID, userID string) (bool, error)
}

// EventPublisher forwards domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type Repositories struct {
	Sessions  SessionRepository
	Questions QuestionBank
	Rounds    RoundRepository
	Credits   CreditLedger
	Events    EventPublisher
}

type Config struct {
	TotalQuestions int
	RoundWindow    time.Duration
	// SessionLength is how long one played session lasts. When it fits in
	// RoundWindow, joins are refused once less than a session is left.
	SessionLength time.Duration
	Clock         clockwork.Clock
}

const (
	defaultTotalQuestions = 20
	defaultRoundWindow    = 10 * time.Minute
)

// Service is the system of record for sessions, rounds and credits.
type Service struct {
	sessions SessionRepository
	bank     QuestionBank
	rounds   RoundRepository
	credits  CreditLedger
	events   EventPublisher
	clock    clockwork.Clock
	total    int
	window   time.Duration
	length   time.Duration
}

func NewService(repos Repositories, cfg Config) *Service {
	if cfg.TotalQuestions <= 0 {
		cfg.TotalQuestions = defaultTotalQuestions
	}
	if cfg.RoundWindow <= 0 {
		cfg.RoundWindow = defaultRoundWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Service{
		sessions: repos.Sessions,
		bank:     repos.Questions,
		rounds:   repos.Rounds,
		credits:  repos.Credits,
		events:   repos.Events,
		clock:    cfg.Clock,
		total:    cfg.TotalQuestions,
		window:   cfg.RoundWindow,
		length:   cfg.SessionLength,
	}
}

// BootstrapSession resolves the user's session for the current period,
// creating it when none exists. The resolved period stays the target of the
// user's progress, finalize and abort calls until the next bootstrap, even
// when the round that scoped it closes in between.
func (s *Service) BootstrapSession(ctx context.Context, userID string) (domain.Bootstrap, error) {
	if userID == "" {
		return domain.Bootstrap{}, domain.ErrInvalidUser
	}
	period, err := s.periodFor(ctx, userID)
	if err != nil {
		return domain.Bootstrap{}, err
	}

	sess, err := s.sessions.Get(ctx, userID, period)
	switch {
	case err == nil:
		if err := s.activate(ctx, userID, period); err != nil {
			return domain.Bootstrap{}, err
		}
		return s.existing(ctx, sess)
	case !errors.Is(err, domain.ErrSessionNotFound):
		return domain.Bootstrap{}, fmt.Errorf("load session: %w", err)
	}

	bank, err := s.bank.Questions(ctx)
	if err != nil {
		return domain.Bootstrap{}, fmt.Errorf("load question bank: %w", err)
	}
	seq, err := drawSequence(bank, period, s.total)
	if err != nil {
		return domain.Bootstrap{}, err
	}

	now := s.clock.Now()
	stored, created, err := s.sessions.Create(ctx, domain.Session{
		UserID:           userID,
		PeriodKey:        period,
		Phase:            domain.PhaseCountdown,
		CurrentIndex:     0,
		Answers:          domain.Answers{},
		QuestionSequence: seq,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return domain.Bootstrap{}, fmt.Errorf("create session: %w", err)
	}
	if err := s.activate(ctx, userID, period); err != nil {
		return domain.Bootstrap{}, err
	}
	if !created {
		// lost a race with a concurrent bootstrap for the same period
		return s.existing(ctx, stored)
	}

	questions, err := pick(bank, stored.QuestionSequence)
	if err != nil {
		return domain.Bootstrap{}, err
	}
	log.Info().Str("user_id", userID).Str("period", period).Msg("session created")
	return domain.Bootstrap{Status: domain.BootstrapNew, Session: &stored, Questions: questions}, nil
}

func (s *Service) activate(ctx context.Context, userID, period string) error {
	if err := s.sessions.SetActive(ctx, userID, period); err != nil {
		return fmt.Errorf("pin active session: %w", err)
	}
	return nil
}

func (s *Service) existing(ctx context.Context, sess domain.Session) (domain.Bootstrap, error) {
	if sess.Completed {
		return domain.Bootstrap{Status: domain.BootstrapAlreadyCompleted, Session: &sess}, nil
	}
	bank, err := s.bank.Questions(ctx)
	if err != nil {
		return domain.Bootstrap{}, fmt.Errorf("load question bank: %w", err)
	}
	questions, err := pick(bank, sess.QuestionSequence)
	if err != nil {
		return domain.Bootstrap{}, err
	}
	return domain.Bootstrap{Status: domain.BootstrapResume, Session: &sess, Questions: questions}, nil
}

// UpdateProgress merges an engine event into the stored session.
func (s *Service) UpdateProgress(ctx context.Context, update domain.ProgressUpdate) error {
	if update.UserID == "" {
		return domain.ErrInvalidUser
	}
	if !update.Phase.Valid() || update.Index < 0 {
		return fmt.Errorf("%w: phase %q index %d", domain.ErrInvalidProgress, update.Phase, update.Index)
	}
	period, err := s.sessions.Active(ctx, update.UserID)
	if err != nil {
		return err
	}
	sess, err := s.sessions.Get(ctx, update.UserID, period)
	if err != nil {
		return err
	}
	key, err := s.answerKey(ctx, sess.QuestionSequence)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	_, err = s.sessions.Update(ctx, update.UserID, period, func(sess *domain.Session) error {
		applyProgress(sess, update, key, now)
		return nil
	})
	return err
}

// FinalizeSession marks the session completed. Only the first call has an effect.
func (s *Service) FinalizeSession(ctx context.Context, userID string, score domain.Score) error {
	if userID == "" {
		return domain.ErrInvalidUser
	}
	period, err := s.sessions.Active(ctx, userID)
	if err != nil {
		return err
	}

	first := false
	now := s.clock.Now()
	sess, err := s.sessions.Update(ctx, userID, period, func(sess *domain.Session) error {
		if sess.Completed {
			return nil
		}
		first = true
		sess.Completed = true
		sess.Phase = domain.PhaseFinal
		sess.CorrectCount, sess.WrongCount = countAnswers(sess.Answers)
		sess.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	if sess.CorrectCount != score.CorrectCount || sess.WrongCount != score.WrongCount {
		// answer deltas may still be in flight; they are merged when they land
		log.Debug().
			Str("user_id", userID).
			Int("submitted_correct", score.CorrectCount).
			Int("stored_correct", sess.CorrectCount).
			Msg("final score ahead of stored answers")
	}
	log.Info().Str("user_id", userID).Str("period", period).Int("correct", score.CorrectCount).Int("wrong", score.WrongCount).Msg("session finalized")

	submitted := score
	s.publish(ctx, domain.Event{Type: domain.EventSessionFinalized, UserID: userID, PeriodKey: period, Score: &submitted})
	return nil
}

// AbortSession records that the user left mid-session. The session stays
// resumable and credits are untouched.
func (s *Service) AbortSession(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrInvalidUser
	}
	period, err := s.sessions.Active(ctx, userID)
	if err != nil {
		return err
	}

	aborted := false
	now := s.clock.Now()
	_, err = s.sessions.Update(ctx, userID, period, func(sess *domain.Session) error {
		if sess.Completed {
			return nil
		}
		aborted = true
		sess.AbortedAt = &now
		sess.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}
	if aborted {
		s.publish(ctx, domain.Event{Type: domain.EventSessionAborted, UserID: userID, PeriodKey: period})
	}
	return nil
}

// GetCurrentRound returns the next or running round, or nil when none is scheduled.
func (s *Service) GetCurrentRound(ctx context.Context) (*domain.Round, error) {
	now := s.clock.Now()
	round, err := s.rounds.Current(ctx, now, s.window)
	if err != nil {
		return nil, fmt.Errorf("load current round: %w", err)
	}
	if round == nil {
		return nil, nil
	}
	r := roundAt(*round, now, s.window)
	if r.Status == domain.RoundClosed {
		return nil, nil
	}
	return &r, nil
}

// JoinRound debits one credit for the round. Repeated joins by the same user
// succeed without a second debit.
func (s *Service) JoinRound(ctx context.Context, roundID, userID string) (domain.JoinResult, error) {
	if userID == "" {
		return domain.JoinResult{}, domain.ErrInvalidUser
	}
	round, err := s.rounds.Get(ctx, roundID)
	if err != nil {
		return domain.JoinResult{}, err
	}
	now := s.clock.Now()
	if roundAt(round, now, s.window).Status == domain.RoundClosed {
		return domain.JoinResult{Error: domain.JoinErrorRoundClosed}, nil
	}
	if s.tooLateToJoin(round, now) {
		joined, err := s.credits.Joined(ctx, roundID, userID)
		if err != nil {
			return domain.JoinResult{}, fmt.Errorf("check round membership: %w", err)
		}
		if !joined {
			log.Info().Str("user_id", userID).Str("round_id", roundID).Msg("join rejected, not enough of the window left")
			return domain.JoinResult{Error: domain.JoinErrorRoundClosed}, nil
		}
	}

	outcome, err := s.credits.Debit(ctx, roundID, userID)
	if err != nil {
		return domain.JoinResult{}, fmt.Errorf("debit credit: %w", err)
	}
	switch outcome {
	case domain.DebitInsufficient:
		log.Info().Str("user_id", userID).Str("round_id", roundID).Msg("join rejected, no credits")
		return domain.JoinResult{Error: domain.JoinErrorNoCredits}, nil
	case domain.DebitApplied:
		log.Info().Str("user_id", userID).Str("round_id", roundID).Msg("round joined")
		s.publish(ctx, domain.Event{Type: domain.EventRoundJoined, UserID: userID, RoundID: roundID})
	}
	return domain.JoinResult{Success: true}, nil
}

func (s *Service) GetCreditBalance(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, domain.ErrInvalidUser
	}
	return s.credits.Balance(ctx, userID)
}

// GrantCredits adds purchased credits and returns the new balance.
func (s *Service) GrantCredits(ctx context.Context, userID string, amount int) (int, error) {
	if userID == "" {
		return 0, domain.ErrInvalidUser
	}
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	return s.credits.Grant(ctx, userID, amount)
}

// tooLateToJoin reports whether a session started now would outlast the
// round's window. Users who already joined are let through so a reconnect can
// still resume the round.
func (s *Service) tooLateToJoin(round domain.Round, now time.Time) bool {
	if s.length <= 0 || s.length >= s.window {
		return false
	}
	return now.After(round.ScheduledStart.Add(s.window - s.length))
}

// periodFor scopes a user to the round they joined while it is open, and to
// the current week otherwise.
func (s *Service) periodFor(ctx context.Context, userID string) (string, error) {
	round, err := s.GetCurrentRound(ctx)
	if err != nil {
		return "", err
	}
	if round != nil {
		joined, err := s.credits.Joined(ctx, round.ID, userID)
		if err != nil {
			return "", fmt.Errorf("check round membership: %w", err)
		}
		if joined {
			return RoundPeriod(round.ID), nil
		}
	}
	return WeekPeriod(s.clock.Now()), nil
}

func (s *Service) answerKey(ctx context.Context, seq []string) ([]domain.OptionID, error) {
	bank, err := s.bank.Questions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	questions, err := pick(bank, seq)
	if err != nil {
		return nil, err
	}
	key := make([]domain.OptionID, len(questions))
	for i, q := range questions {
		key[i] = q.CorrectOption
	}
	return key, nil
}

func (s *Service) publish(ctx context.Context, ev domain.Event) {
	if s.events == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.OccurredAt = s.clock.Now()
	if err := s.events.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event", string(ev.Type)).Str("user_id", ev.UserID).Msg("event publish failed")
	}
}
