package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/engine"
)

// NewPlayCmd runs a session in the terminal against a remote authority. The
// engine runs locally; only the authority calls cross the network.
func NewPlayCmd(configPath *string) *cobra.Command {
	var (
		userID string
		mode   string
		url    string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a practice session or join the live round from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if mode != "practice" && mode != "round" {
				return fmt.Errorf("unknown mode %q", mode)
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			p := &player{
				authority: authorityClient(cfg, url),
				cfg:       cfg,
				userID:    userID,
				out:       cmd.OutOrStdout(),
			}
			return p.run(ctx, mode, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&userID, "user", os.Getenv("QUIZ_USER"), "user id")
	cmd.Flags().StringVar(&mode, "mode", "practice", "practice or round")
	cmd.Flags().StringVar(&url, "authority", "", "authority base URL (overrides config)")
	return cmd
}

type player struct {
	authority engine.Authority
	cfg       config.Config
	userID    string
	out       io.Writer
}

func (p *player) run(ctx context.Context, mode string, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	variant := engine.VariantPractice
	if mode == "round" {
		if !p.lobby(ctx, lines) {
			return nil
		}
		variant = engine.VariantRound
	}
	return p.session(ctx, variant, lines)
}

// lobby waits for the live round and reports whether the join succeeded.
func (p *player) lobby(ctx context.Context, lines <-chan string) bool {
	opts := lobbyOptions(p.cfg)
	opts.UserID = p.userID
	l := engine.NewLobby(p.authority, opts)
	defer l.Wait()
	defer l.Close()

	updates, unsubscribe := l.Subscribe()
	defer unsubscribe()

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		l.Enter(lctx)
		l.Run(lctx)
	}()

	var last engine.LobbyPhase
	for {
		select {
		case <-ctx.Done():
			return false
		case round := <-l.Joined():
			fmt.Fprintf(p.out, "Joined round %s\n", round.ID)
			return true
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			p.renderLobby(snap, last)
			last = snap.Phase
			if snap.Phase == engine.LobbyNoCredits {
				return false
			}
		case line, ok := <-lines:
			if !ok || line == "q" {
				return false
			}
		}
	}
}

func (p *player) session(ctx context.Context, variant engine.Variant, lines <-chan string) error {
	opts := engineOptions(p.cfg)
	opts.UserID = p.userID
	opts.Variant = variant
	e := engine.New(p.authority, opts)
	defer e.Wait()
	defer e.Close()

	updates, unsubscribe := e.Subscribe()
	defer unsubscribe()

	go func() {
		if _, err := e.Start(ctx); err != nil && !errors.Is(err, engine.ErrClosed) {
			log.Debug().Err(err).Msg("bootstrap failed")
		}
	}()

	var (
		prev        engine.Snapshot
		inputClosed bool
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			renderSnapshot(p.out, prev, snap)
			prev = snap
			if inputClosed && waitsForInput(snap.Status) {
				e.Home()
			}
		case line, ok := <-lines:
			if !ok {
				// stdin closed: a running session plays out on timeouts alone
				lines = nil
				inputClosed = true
				if waitsForInput(prev.Status) {
					e.Home()
				}
				continue
			}
			p.handleInput(ctx, e, line)
		}
	}
}

// waitsForInput reports whether the engine stays put until the user acts.
func waitsForInput(status engine.Status) bool {
	return status == engine.StatusAlreadyCompleted || status == engine.StatusFailed
}

func (p *player) handleInput(ctx context.Context, e *engine.Engine, line string) {
	switch line {
	case "":
	case "q":
		e.Home()
	case "r":
		go func() {
			if _, err := e.Retry(ctx); err != nil && !errors.Is(err, engine.ErrClosed) {
				log.Debug().Err(err).Msg("retry not started")
			}
		}()
	default:
		if !e.Select(domain.OptionID(line)) {
			fmt.Fprintln(p.out, "not accepted")
		}
	}
}

func (p *player) renderLobby(snap engine.LobbySnapshot, last engine.LobbyPhase) {
	switch snap.Phase {
	case engine.LobbyNoRound:
		if last != snap.Phase {
			fmt.Fprintln(p.out, "No round scheduled, waiting... (q to leave)")
		}
	case engine.LobbyWait:
		fmt.Fprintf(p.out, "Round %s starts in %ds (credits: %d)\n", snap.Round.ID, snap.Remaining, snap.Credits)
	case engine.LobbyJoinLocked:
		fmt.Fprintln(p.out, "Joining...")
	case engine.LobbyNoCredits:
		fmt.Fprintln(p.out, "No credits left. Buy credits to join the live round.")
	case engine.LobbyJoinFailed:
		fmt.Fprintf(p.out, "Join failed: %s (waiting for the next round, q to leave)\n", snap.Error)
	}
}

// renderSnapshot prints what changed since prev.
func renderSnapshot(out io.Writer, prev, snap engine.Snapshot) {
	switch snap.Status {
	case engine.StatusLoading:
		if prev.Status != snap.Status {
			fmt.Fprintln(out, "Loading session...")
		}
		return
	case engine.StatusFailed:
		fmt.Fprintf(out, "Could not load the session: %s\nr to retry, q to go home\n", snap.Error)
		return
	case engine.StatusAlreadyCompleted:
		fmt.Fprintln(out, "You have already completed this period's quiz. q to go home")
		return
	case engine.StatusExited:
		fmt.Fprintln(out, "Bye.")
		return
	}

	entered := prev.Status != snap.Status || prev.Phase != snap.Phase || prev.Index != snap.Index
	if !entered {
		if snap.Remaining > 0 && snap.Remaining <= 3 {
			fmt.Fprintf(out, "  %d...\n", snap.Remaining)
		}
		return
	}

	switch snap.Phase {
	case domain.PhaseCountdown:
		fmt.Fprintf(out, "Starting in %d\n", snap.Remaining)
	case domain.PhaseQuestion:
		fmt.Fprintf(out, "\nQuestion %d/%d  %s\n", snap.Index+1, snap.Total, progressBar(snap.Marks))
		if snap.Question != nil {
			fmt.Fprintln(out, snap.Question.Text)
			for _, opt := range snap.Question.Options {
				fmt.Fprintf(out, "  %s) %s\n", opt.ID, opt.Text)
			}
		}
		fmt.Fprintf(out, "You have %ds\n", snap.Remaining)
	case domain.PhaseExplanation:
		switch {
		case snap.Selected == nil:
			fmt.Fprintf(out, "Time's up. The answer was %s.\n", snap.CorrectOption)
		case snap.IsCorrect != nil && *snap.IsCorrect:
			fmt.Fprintln(out, "Correct!")
		default:
			fmt.Fprintf(out, "Wrong. The answer was %s.\n", snap.CorrectOption)
		}
		if snap.Explanation != "" {
			fmt.Fprintln(out, snap.Explanation)
		}
	case domain.PhaseFinal:
		fmt.Fprintf(out, "\nFinished: %d correct, %d wrong out of %d\n", snap.CorrectCount, snap.WrongCount, snap.Total)
	}
}

func progressBar(marks []engine.Mark) string {
	var b strings.Builder
	for _, m := range marks {
		switch m {
		case engine.MarkCorrect:
			b.WriteByte('+')
		case engine.MarkWrong:
			b.WriteByte('x')
		default:
			b.WriteByte('.')
		}
	}
	return b.String()
}
