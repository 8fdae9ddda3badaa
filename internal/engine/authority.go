package engine

import (
	"context"

	"quiz-session-engine/internal/domain"
)

// Authority is the system of record the engine talks to. Implementations are
// the in-process service (internal/authority) or the HTTP client
// (internal/transport/http).
type Authority interface {
	BootstrapSession(ctx context.Context, userID string) (domain.Bootstrap, error)
	UpdateProgress(ctx context.Context, update domain.ProgressUpdate) error
	FinalizeSession(ctx context.Context, userID string, score domain.Score) error
	AbortSession(ctx context.Context, userID string) error
	GetCurrentRound(ctx context.Context) (*domain.Round, error)
	JoinRound(ctx context.Context, roundID, userID string) (domain.JoinResult, error)
	GetCreditBalance(ctx context.Context, userID string) (int, error)
}
