package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/engine"
)

// GatewayOptions are the per-connection engine and lobby settings. UserID and
// Variant are filled in from the request.
type GatewayOptions struct {
	Engine engine.Options
	Lobby  engine.LobbyOptions
}

// WSHandler hosts one engine per websocket connection. The server owns the
// timers and streams snapshots; the client only renders them and sends
// selections.
type WSHandler struct {
	authority engine.Authority
	opts      GatewayOptions
	upgrader  websocket.Upgrader
}

func NewWSHandler(authority engine.Authority, opts GatewayOptions) *WSHandler {
	return &WSHandler{
		authority: authority,
		opts:      opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	OptionID domain.OptionID `json:"optionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type connectedPayload struct {
	ConnectionID string `json:"connectionId"`
	Mode         string `json:"mode"`
}

// peer serializes writes to one connection through a single writer goroutine.
type peer struct {
	send       chan outboundMessage[any]
	writerDone chan struct{}
}

func (p *peer) emit(msgType string, payload any) bool {
	select {
	case p.send <- outboundMessage[any]{Type: msgType, Payload: payload}:
		return true
	case <-p.writerDone:
		return false
	}
}

// ServeWS upgrades the request and runs a practice session, or a live round
// lobby followed by the round session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "practice"
	}
	if userID == "" || (mode != "practice" && mode != "round") {
		http.Error(w, "missing userId or unknown mode", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := log.With().Str("conn_id", connID).Str("user_id", userID).Str("mode", mode).Logger()
	logger.Debug().Msg("ws connected")
	defer logger.Debug().Msg("ws disconnected")

	p := &peer{
		send:       make(chan outboundMessage[any], 16),
		writerDone: make(chan struct{}),
	}
	go func() {
		defer close(p.writerDone)
		for msg := range p.send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	stop := make(chan struct{})
	inbound := make(chan inboundMessage)
	go func() {
		defer close(inbound)
		for {
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case inbound <- msg:
			case <-stop:
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.serve(ctx, logger, userID, mode, connID, p, inbound)

	close(stop)
	close(p.send)
	<-p.writerDone
}

func (h *WSHandler) serve(ctx context.Context, logger zerolog.Logger, userID, mode, connID string, p *peer, inbound <-chan inboundMessage) {
	if !p.emit("connected", connectedPayload{ConnectionID: connID, Mode: mode}) {
		return
	}

	variant := engine.VariantPractice
	if mode == "round" {
		joined, connected := h.runLobby(ctx, userID, p, inbound)
		if !connected {
			return
		}
		if !joined {
			p.emit("exit", nil)
			return
		}
		variant = engine.VariantRound
	}

	h.runEngine(ctx, logger, userID, variant, p, inbound)
}

// runLobby streams lobby snapshots until the join lands. It reports whether
// the user joined and whether the connection is still open.
func (h *WSHandler) runLobby(ctx context.Context, userID string, p *peer, inbound <-chan inboundMessage) (joined, connected bool) {
	opts := h.opts.Lobby
	opts.UserID = userID
	lobby := engine.NewLobby(h.authority, opts)
	defer lobby.Close()

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, unsubscribe := lobby.Subscribe()
	defer unsubscribe()

	go func() {
		lobby.Enter(lctx)
		lobby.Run(lctx)
	}()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return false, true
			}
			if !p.emit("lobby", snap) {
				return false, false
			}
		case <-lobby.Joined():
			p.emit("lobby", lobby.Snapshot())
			return true, true
		case msg, ok := <-inbound:
			if !ok {
				return false, false
			}
			if msg.Type == "home" {
				return false, true
			}
			if !p.emit("error", errorPayload{Message: "unsupported message type in lobby"}) {
				return false, false
			}
		}
	}
}

func (h *WSHandler) runEngine(ctx context.Context, logger zerolog.Logger, userID string, variant engine.Variant, p *peer, inbound <-chan inboundMessage) {
	opts := h.opts.Engine
	opts.UserID = userID
	opts.Variant = variant
	e := engine.New(h.authority, opts)
	// leaving for any reason is navigation away
	defer e.Close()

	updates, unsubscribe := e.Subscribe()
	defer unsubscribe()

	go func() {
		if _, err := e.Start(ctx); err != nil && !errors.Is(err, engine.ErrClosed) {
			logger.Warn().Err(err).Msg("session bootstrap failed")
		}
	}()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				p.emit("exit", nil)
				return
			}
			if !p.emit("state", snap) {
				return
			}
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			if !h.dispatch(ctx, logger, e, msg, p) {
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, logger zerolog.Logger, e *engine.Engine, msg inboundMessage, p *peer) bool {
	switch msg.Type {
	case "select":
		var payload selectPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.OptionID == "" {
			return p.emit("error", errorPayload{Message: "invalid select payload"})
		}
		if !e.Select(payload.OptionID) {
			return p.emit("rejected", payload)
		}
		return true
	case "retry":
		go func() {
			if _, err := e.Retry(ctx); err != nil && !errors.Is(err, engine.ErrClosed) {
				logger.Debug().Err(err).Msg("retry did not start")
			}
		}()
		return true
	case "home":
		e.Home()
		return true
	default:
		return p.emit("error", errorPayload{Message: "unsupported message type"})
	}
}
