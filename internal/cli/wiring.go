package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	natsgo "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"quiz-session-engine/internal/authority"
	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/engine"
	"quiz-session-engine/internal/infra/memory"
	"quiz-session-engine/internal/infra/nats"
	"quiz-session-engine/internal/infra/postgres"
	redisinfra "quiz-session-engine/internal/infra/redis"
	transport "quiz-session-engine/internal/transport/http"
)

// backends holds the connections opened for the configured stores so they can
// be released on shutdown.
type backends struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	nats  *natsgo.Conn
}

func (b *backends) Close() {
	if b.nats != nil {
		if err := b.nats.Drain(); err != nil {
			log.Warn().Err(err).Msg("drain NATS connection")
		}
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// buildService wires the authority over Redis, Postgres and NATS when they are
// configured and falls back to the in-memory stores otherwise.
func buildService(ctx context.Context, cfg config.Config) (*authority.Service, *backends, error) {
	b := &backends{}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
	}
	if cfg.NATS.URL != "" {
		name := cfg.NATS.Name
		if name == "" {
			name = "quiz-session-engine"
		}
		nc, err := nats.Connect(cfg.NATS.URL, name)
		if err != nil {
			b.Close()
			return nil, nil, err
		}
		b.nats = nc
	}

	repos, err := buildRepositories(cfg, b)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	total := cfg.Quiz.TotalQuestions
	if total <= 0 {
		total = engine.DefaultTotalQuestions
	}
	service := authority.NewService(repos, authority.Config{
		TotalQuestions: total,
		RoundWindow:    config.TTLDuration(cfg.Round.Window, 10*time.Minute),
		SessionLength:  engineOptions(cfg).Durations.Session(total),
	})
	return service, b, nil
}

func buildRepositories(cfg config.Config, b *backends) (authority.Repositories, error) {
	var repos authority.Repositories
	bankTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if b.pool != nil {
		loader = postgres.NewQuestionLoader(b.pool)
	}

	if b.redis != nil {
		repos.Sessions = redisinfra.NewSessionStore(b.redis, config.TTLDuration(cfg.Redis.TTL, 14*24*time.Hour))
		repos.Questions = redisinfra.NewQuestionBank(b.redis, loader, bankTTL)
		repos.Credits = redisinfra.NewCreditLedger(b.redis)
	} else {
		repos.Sessions = memory.NewSessionStore()
		repos.Questions = memory.NewQuestionBank(loader, bankTTL)
		repos.Credits = memory.NewCreditLedger()
	}

	if b.pool != nil {
		repos.Rounds = postgres.NewRoundRepository(b.pool)
	} else {
		anchor := time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC)
		if cfg.Round.Anchor != "" {
			parsed, err := time.Parse(time.RFC3339, cfg.Round.Anchor)
			if err != nil {
				return repos, fmt.Errorf("parse round anchor: %w", err)
			}
			anchor = parsed
		}
		repos.Rounds = memory.NewRecurringRounds(anchor, config.TTLDuration(cfg.Round.Every, time.Hour))
	}

	if b.nats != nil {
		repos.Events = nats.NewPublisher(b.nats)
	} else {
		repos.Events = memory.NewEventSink()
	}
	return repos, nil
}

func engineOptions(cfg config.Config) engine.Options {
	defaults := engine.DefaultDurations()
	return engine.Options{
		TotalQuestions: cfg.Quiz.TotalQuestions,
		Durations: engine.Durations{
			Countdown:   config.TTLDuration(cfg.Engine.Countdown, defaults.Countdown),
			Question:    config.TTLDuration(cfg.Engine.Question, defaults.Question),
			Explanation: config.TTLDuration(cfg.Engine.Explanation, defaults.Explanation),
			Final:       config.TTLDuration(cfg.Engine.Final, defaults.Final),
		},
		RPCTimeout: config.TTLDuration(cfg.Engine.RPCTimeout, 5*time.Second),
	}
}

func lobbyOptions(cfg config.Config) engine.LobbyOptions {
	return engine.LobbyOptions{
		Resync:     config.TTLDuration(cfg.Lobby.Resync, 5*time.Second),
		RPCTimeout: config.TTLDuration(cfg.Engine.RPCTimeout, 5*time.Second),
	}
}

func authorityClient(cfg config.Config, url string) *transport.Client {
	if url == "" {
		url = cfg.Server.AuthorityURL
	}
	if url == "" {
		url = "http://localhost:8080"
	}
	c := transport.NewClient(url)
	c.SetTimeout(config.TTLDuration(cfg.Engine.RPCTimeout, 5*time.Second))
	return c
}
