package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quiz-session-engine/internal/domain"
)

const defaultResync = 5 * time.Second

// LobbyPhase is the state of the live-round waiting room.
type LobbyPhase string

const (
	LobbyNoRound    LobbyPhase = "NO_ROUND"
	LobbyWait       LobbyPhase = "LOBBY_WAIT"
	LobbyJoinLocked LobbyPhase = "JOIN_LOCKED"
	LobbyJoined     LobbyPhase = "JOINED"
	LobbyNoCredits  LobbyPhase = "NO_CREDITS"
	LobbyJoinFailed LobbyPhase = "JOIN_FAILED"
)

type LobbyOptions struct {
	UserID     string
	Resync     time.Duration
	Clock      clockwork.Clock
	RPCTimeout time.Duration
}

// LobbySnapshot is the render model of the lobby.
type LobbySnapshot struct {
	Phase     LobbyPhase    `json:"phase"`
	Round     *domain.Round `json:"round,omitempty"`
	Remaining int           `json:"remaining"`
	Credits   int           `json:"credits"`
	Error     string        `json:"error,omitempty"`
}

// Lobby counts down to the next live round and joins it when the countdown
// reaches zero. The countdown ticks locally every second and is corrected
// from the authority's timeUntilStart on every resync.
type Lobby struct {
	authority Authority
	guard     *JoinGuard
	opts      LobbyOptions
	countdown *Countdown

	mu        sync.Mutex
	phase     LobbyPhase
	round     *domain.Round
	credits   int
	failure   error
	triggered string // round whose zero-crossing already fired the join
	closed    bool
	subs      *broadcaster[LobbySnapshot]
	joined    chan domain.Round
	wg        sync.WaitGroup
}

func NewLobby(authority Authority, opts LobbyOptions) *Lobby {
	if opts.Resync <= 0 {
		opts.Resync = defaultResync
	}
	if opts.RPCTimeout <= 0 {
		opts.RPCTimeout = defaultRPCTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Lobby{
		authority: authority,
		guard:     NewJoinGuard(authority),
		opts:      opts,
		countdown: NewCountdown(opts.Clock),
		phase:     LobbyNoRound,
		subs:      newBroadcaster[LobbySnapshot](),
		joined:    make(chan domain.Round, 1),
	}
}

// Enter checks the credit balance and loads the current round. The balance is
// advisory: the authority re-checks it when the join is made.
func (l *Lobby) Enter(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, l.opts.RPCTimeout)
	balance, err := l.authority.GetCreditBalance(cctx, l.opts.UserID)
	cancel()

	l.mu.Lock()
	if err != nil {
		log.Warn().Err(err).Str("user_id", l.opts.UserID).Msg("credit balance unavailable, deferring to join")
	} else {
		l.credits = balance
		if balance <= 0 {
			l.phase = LobbyNoCredits
			l.subs.publish(l.snapshotLocked())
			l.mu.Unlock()
			return
		}
	}
	l.mu.Unlock()

	l.resync(ctx)
}

// Run resynchronizes with the authority until ctx ends or the lobby settles.
func (l *Lobby) Run(ctx context.Context) {
	ticker := l.opts.Clock.NewTicker(l.opts.Resync)
	defer ticker.Stop()
	for {
		if l.settled() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			l.resync(ctx)
		}
	}
}

// Joined delivers the round once the join succeeded.
func (l *Lobby) Joined() <-chan domain.Round {
	return l.joined
}

// Close tears down the countdown and subscribers. A join already in flight is
// left to complete.
func (l *Lobby) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.countdown.Stop()
	l.subs.close()
}

// Wait blocks until an in-flight join has returned.
func (l *Lobby) Wait() {
	l.wg.Wait()
}

func (l *Lobby) Snapshot() LobbySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Lobby) Subscribe() (<-chan LobbySnapshot, func()) {
	l.mu.Lock()
	ch := l.subs.subscribe(l.snapshotLocked())
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		l.subs.unsubscribe(ch)
		l.mu.Unlock()
	}
	return ch, cancel
}

func (l *Lobby) settled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed || l.phase == LobbyJoined || l.phase == LobbyNoCredits
}

func (l *Lobby) resync(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, l.opts.RPCTimeout)
	round, err := l.authority.GetCurrentRound(rctx)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("user_id", l.opts.UserID).Msg("round resync failed, ticking locally")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyRoundLocked(round)
}

func (l *Lobby) applyRoundLocked(round *domain.Round) {
	if l.closed {
		return
	}
	switch l.phase {
	case LobbyJoinLocked, LobbyJoined, LobbyNoCredits:
		return
	}

	if round == nil || round.Status == domain.RoundClosed {
		if l.phase == LobbyJoinFailed {
			return
		}
		l.phase = LobbyNoRound
		l.round = nil
		l.countdown.Stop()
		l.subs.publish(l.snapshotLocked())
		return
	}

	same := l.round != nil && l.round.ID == round.ID
	if same && l.phase == LobbyJoinFailed {
		// dead countdown: the join for this round is never retried automatically
		return
	}

	r := *round
	l.round = &r
	remaining := max(round.TimeUntilStart, 0)
	if same && l.countdown.Running() {
		l.countdown.Set(remaining)
	} else {
		l.phase = LobbyWait
		l.failure = nil
		l.countdown.Start(remaining, l.tick)
		log.Info().Str("user_id", l.opts.UserID).Str("round_id", r.ID).Int("time_until_start", remaining).Msg("waiting for round")
	}

	if remaining == 0 {
		l.zeroLocked()
		return
	}
	l.subs.publish(l.snapshotLocked())
}

func (l *Lobby) tick(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.phase != LobbyWait {
		return
	}
	remaining, live := l.countdown.Decrement(gen)
	if !live {
		return
	}
	if remaining > 0 {
		l.subs.publish(l.snapshotLocked())
		return
	}
	l.zeroLocked()
}

// zeroLocked fires the join at most once per round's zero-crossing.
func (l *Lobby) zeroLocked() {
	if l.round == nil || l.triggered == l.round.ID {
		return
	}
	l.triggered = l.round.ID
	l.countdown.Stop()
	l.phase = LobbyJoinLocked
	l.subs.publish(l.snapshotLocked())

	round := *l.round
	l.wg.Add(1)
	go l.join(round)
}

func (l *Lobby) join(round domain.Round) {
	defer l.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), l.opts.RPCTimeout)
	defer cancel()
	outcome, err := l.guard.Join(ctx, round.ID, l.opts.UserID)

	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case err != nil:
		l.phase = LobbyJoinFailed
		l.failure = err
		log.Error().Err(err).Str("user_id", l.opts.UserID).Str("round_id", round.ID).Msg("round join failed")
	case outcome == JoinNoCredits:
		l.phase = LobbyNoCredits
		l.credits = 0
		log.Info().Str("user_id", l.opts.UserID).Str("round_id", round.ID).Msg("no credits, redirecting to purchase")
	case outcome == JoinJoined:
		l.phase = LobbyJoined
		if l.credits > 0 {
			l.credits--
		}
		log.Info().Str("user_id", l.opts.UserID).Str("round_id", round.ID).Msg("joined round")
		select {
		case l.joined <- round:
		default:
		}
	default:
		return
	}
	l.subs.publish(l.snapshotLocked())
}

func (l *Lobby) snapshotLocked() LobbySnapshot {
	snap := LobbySnapshot{
		Phase:     l.phase,
		Remaining: l.countdown.Remaining(),
		Credits:   l.credits,
	}
	if l.round != nil {
		r := *l.round
		snap.Round = &r
	}
	if l.failure != nil {
		snap.Error = l.failure.Error()
	}
	return snap
}
