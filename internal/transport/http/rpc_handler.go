package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/engine"
)

// AuthorityService is the authority as exposed over HTTP: the engine contract
// plus credit grants.
type AuthorityService interface {
	engine.Authority
	GrantCredits(ctx context.Context, userID string, amount int) (int, error)
}

// RPCHandler serves the authority operations as JSON endpoints.
type RPCHandler struct {
	service AuthorityService
}

func NewRPCHandler(service AuthorityService) *RPCHandler {
	return &RPCHandler{service: service}
}

// Routes mounts the authority endpoints on r.
func (h *RPCHandler) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions/{userID}/bootstrap", h.bootstrap)
		r.Post("/sessions/{userID}/progress", h.progress)
		r.Post("/sessions/{userID}/finalize", h.finalize)
		r.Post("/sessions/{userID}/abort", h.abort)
		r.Get("/rounds/current", h.currentRound)
		r.Post("/rounds/{roundID}/join", h.joinRound)
		r.Get("/credits/{userID}", h.balance)
		r.Post("/credits/{userID}/grant", h.grant)
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type roundResponse struct {
	Round *domain.Round `json:"round"`
}

type joinRequest struct {
	UserID string `json:"userId"`
}

type balanceResponse struct {
	Balance int `json:"balance"`
}

type grantRequest struct {
	Amount int `json:"amount"`
}

// errorCodes maps domain errors to wire codes and statuses. The client maps
// the codes back so errors.Is keeps working across the hop.
var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrSessionNotFound, "session_not_found", http.StatusNotFound},
	{domain.ErrRoundNotFound, "round_not_found", http.StatusNotFound},
	{domain.ErrRoundClosed, "round_closed", http.StatusConflict},
	{domain.ErrInvalidUser, "invalid_user", http.StatusBadRequest},
	{domain.ErrInvalidProgress, "invalid_progress", http.StatusBadRequest},
	{domain.ErrInvalidAmount, "invalid_amount", http.StatusBadRequest},
	{domain.ErrIncompletePayload, "incomplete_payload", http.StatusUnprocessableEntity},
	{domain.ErrMalformedQuestion, "malformed_question", http.StatusUnprocessableEntity},
	{domain.ErrQuestionNotFound, "question_not_found", http.StatusUnprocessableEntity},
	{domain.ErrNotEnoughQuestions, "not_enough_questions", http.StatusServiceUnavailable},
}

func (h *RPCHandler) bootstrap(w http.ResponseWriter, r *http.Request) {
	boot, err := h.service.BootstrapSession(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, boot)
}

func (h *RPCHandler) progress(w http.ResponseWriter, r *http.Request) {
	var update domain.ProgressUpdate
	if !decodeBody(w, r, &update) {
		return
	}
	update.UserID = chi.URLParam(r, "userID")
	if err := h.service.UpdateProgress(r.Context(), update); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RPCHandler) finalize(w http.ResponseWriter, r *http.Request) {
	var score domain.Score
	if !decodeBody(w, r, &score) {
		return
	}
	if err := h.service.FinalizeSession(r.Context(), chi.URLParam(r, "userID"), score); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RPCHandler) abort(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AbortSession(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RPCHandler) currentRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.service.GetCurrentRound(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roundResponse{Round: round})
}

func (h *RPCHandler) joinRound(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.service.JoinRound(r.Context(), chi.URLParam(r, "roundID"), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RPCHandler) balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.GetCreditBalance(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

func (h *RPCHandler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	balance, err := h.service.GrantCredits(r.Context(), chi.URLParam(r, "userID"), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Code: "bad_request"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			writeJSON(w, ec.status, errorResponse{Error: err.Error(), Code: ec.code})
			return
		}
	}
	log.Error().Err(err).Msg("authority request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}
