package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drone-bridge/drone-bridge-server/internal/config"
	"github.com/drone-bridge/drone-bridge-server/internal/models"
	"github.com/drone-bridge/drone-bridge-server/internal/vehicle"
)

// restartDelay is slept after a recovered hub loop panic
const restartDelay = 100 * time.Millisecond

// inboundMessage pairs a decoded client document with its session
type inboundMessage struct {
	session *Session
	message *models.ClientMessage
}

// Hub multiplexes all bridge work onto one goroutine: inbound client
// messages, the supervisor tick, listener fires, and reconnect results.
// It is the session registry and the broadcast fan-out; every touch of
// the shared provider happens here.
type Hub struct {
	cfg      config.BridgeConfig
	provider vehicle.Provider

	supervisor    *Supervisor
	authenticator *Authenticator

	sink EventSink
	pub  Publisher

	// All sessions, and the authenticated subset broadcasts go to
	sessions  map[*Session]bool
	validated map[*Session]bool

	register      chan *Session
	unregister    chan *Session
	inbound       chan inboundMessage
	listenerFired chan *Session

	// Advisory counters for the status API, maintained by the loop
	statSessions  atomic.Int64
	statValidated atomic.Int64
	statConnected atomic.Bool
}

// NewHub creates the bridge hub. sink and pub may be nil.
func NewHub(cfg config.BridgeConfig, provider vehicle.Provider, credentials CredentialSource, sink EventSink, pub Publisher) *Hub {
	return &Hub{
		cfg:           cfg,
		provider:      provider,
		supervisor:    NewSupervisor(provider, cfg.LivenessThreshold, cfg.ConnectTimeout),
		authenticator: NewAuthenticator(cfg.SaltBytes, credentials),
		sink:          sink,
		pub:           pub,
		sessions:      make(map[*Session]bool),
		validated:     make(map[*Session]bool),
		register:      make(chan *Session),
		unregister:    make(chan *Session),
		inbound:       make(chan inboundMessage, 256),
		listenerFired: make(chan *Session, 256),
	}
}

// NewSession creates a session with a freshly issued salt, ready to be
// registered. closeConn is invoked when the client requests close.
func (h *Hub) NewSession(remoteAddr string, closeConn func()) (*Session, error) {
	salt, err := h.authenticator.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("generate session salt: %w", err)
	}
	return NewSession(remoteAddr, salt, h.cfg.SendQueueSize, closeConn), nil
}

// Register hands a new session to the hub loop
func (h *Hub) Register(s *Session) {
	h.register <- s
}

// Unregister removes a session; safe to call more than once
func (h *Hub) Unregister(s *Session) {
	h.unregister <- s
}

// Inbound posts a decoded client message for sequential handling
func (h *Hub) Inbound(s *Session, msg *models.ClientMessage) {
	h.inbound <- inboundMessage{session: s, message: msg}
}

// Run drives the hub until ctx is cancelled, restarting after panics
func (h *Hub) Run(ctx context.Context) {
	log.Info().
		Dur("tick", h.cfg.SupervisorTick).
		Dur("liveness_threshold", h.cfg.LivenessThreshold).
		Msg("Bridge hub started")

	for {
		if err := h.runLoop(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Bridge hub shutting down")
				return
			}
			log.Error().Err(err).Msg("Hub loop crashed, restarting")
			time.Sleep(restartDelay)
		}
	}
}

// runLoop is one incarnation of the event loop with panic recovery
func (h *Hub) runLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hub panic: %v\n%s", r, debug.Stack())
		}
	}()

	ticker := time.NewTicker(h.cfg.SupervisorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case s := <-h.register:
			h.handleRegister(s)

		case s := <-h.unregister:
			h.handleUnregister(s)

		case in := <-h.inbound:
			h.handleInbound(ctx, in.session, in.message)

		case s := <-h.listenerFired:
			h.handleListenerFired(s)

		case <-ticker.C:
			h.handleTick(ctx)

		case connErr := <-h.supervisor.Results():
			h.handleReconnectResult(connErr)
		}
	}
}

// handleRegister adds a session and sends the hello challenge
func (h *Hub) handleRegister(s *Session) {
	h.sessions[s] = true
	h.syncStats()
	s.push(models.NewHelloMessage(s.Salt))

	log.Info().
		Str("session", s.ID.String()).
		Str("remote", s.RemoteAddr).
		Msg("Client connected")

	record(h.sink, &models.EventLog{
		SessionID:   &s.ID,
		Type:        models.EventTypeClientConnect,
		Level:       models.EventLevelInfo,
		Description: "client connected from " + s.RemoteAddr,
	})
}

// handleUnregister destroys a session: its listener stops, it leaves the
// fan-out set, and any channel overrides it applied are cleared.
func (h *Hub) handleUnregister(s *Session) {
	if !h.sessions[s] {
		return
	}

	h.cancelListener(s)

	wasValidated := h.validated[s]
	delete(h.sessions, s)
	delete(h.validated, s)
	h.syncStats()
	s.destroy()

	if wasValidated {
		h.provider.ClearOverrides()
	}

	log.Info().Str("session", s.ID.String()).Msg("Client disconnected")

	record(h.sink, &models.EventLog{
		SessionID:   &s.ID,
		Type:        models.EventTypeClientDisconnect,
		Level:       models.EventLevelInfo,
		Description: "client disconnected",
	})
}

// handleInbound routes one client message through the handshake gate
func (h *Hub) handleInbound(ctx context.Context, s *Session, msg *models.ClientMessage) {
	if !h.sessions[s] {
		return
	}

	if !s.authenticated {
		h.handleUnauthenticated(ctx, s, msg)
		return
	}

	h.processRequest(ctx, s, msg)
}

// handleUnauthenticated accepts only a well-formed validate message with
// a matching token; everything else is answered with status false.
func (h *Hub) handleUnauthenticated(ctx context.Context, s *Session, msg *models.ClientMessage) {
	if msg.Type != models.MessageTypeValidate || msg.Token == nil {
		s.push(models.NewValidateResultMessage(false))
		if msg.Type == models.MessageTypeValidate {
			h.recordAuthFailure(s, "validate without token")
		}
		return
	}

	cred, err := h.authenticator.Validate(ctx, s.Salt, *msg.Token)
	if err != nil {
		log.Error().Err(err).Msg("Credential lookup failed")
		s.push(models.NewValidateResultMessage(false))
		h.recordAuthFailure(s, "credential lookup failed")
		return
	}
	if cred == nil {
		s.push(models.NewValidateResultMessage(false))
		h.recordAuthFailure(s, "invalid token")
		return
	}

	s.authenticated = true
	h.validated[s] = true
	h.syncStats()
	s.push(models.NewValidateResultMessage(true))

	log.Info().Str("session", s.ID.String()).Msg("Client validated")

	record(h.sink, &models.EventLog{
		SessionID:   &s.ID,
		Type:        models.EventTypeAuthSuccess,
		Level:       models.EventLevelInfo,
		Description: "client validated",
	})
	publish(h.pub, SubjectAuth, map[string]interface{}{
		"sessionId": s.ID,
		"remote":    s.RemoteAddr,
		"status":    true,
		"time":      time.Now(),
	})
}

// recordAuthFailure counts and logs a failed handshake attempt. The
// counter is the hook for a future lockout policy.
func (h *Hub) recordAuthFailure(s *Session, reason string) {
	s.authFailures++

	log.Warn().
		Str("session", s.ID.String()).
		Int("failures", s.authFailures).
		Str("reason", reason).
		Msg("Client validation failed")

	record(h.sink, &models.EventLog{
		SessionID:   &s.ID,
		Type:        models.EventTypeAuthFailure,
		Level:       models.EventLevelWarning,
		Description: reason,
		Details:     models.Variables{"failures": s.authFailures},
	})
}

// handleTick runs one supervisor cycle: recompute liveness, broadcast
// status unconditionally, and kick a reconnect when the link is down.
func (h *Hub) handleTick(ctx context.Context) {
	prev := h.supervisor.Status()
	status := h.supervisor.Check()
	h.syncStats()

	h.broadcastStatus()

	if status != prev {
		h.recordLinkChange(status)
	}

	if status != StatusConnected {
		if h.supervisor.StartReconnect(ctx) {
			log.Info().Msg("Attempting reconnection to vehicle")
		}
	}
}

// handleReconnectResult folds a background connect outcome into state.
// Success produces a second status broadcast, as clients expect.
func (h *Hub) handleReconnectResult(err error) {
	prev := h.supervisor.Status()
	status := h.supervisor.FinishReconnect(err)
	h.syncStats()

	if status != prev {
		h.broadcastStatus()
		h.recordLinkChange(status)
	}
}

// recordLinkChange logs and publishes a connectivity transition
func (h *Hub) recordLinkChange(status Status) {
	eventType := models.EventTypeVehicleDown
	level := models.EventLevelWarning
	if status == StatusConnected {
		eventType = models.EventTypeVehicleUp
		level = models.EventLevelInfo
	}

	record(h.sink, &models.EventLog{
		Type:        eventType,
		Level:       level,
		Description: "vehicle link " + status.String(),
	})
	publish(h.pub, SubjectConnection, map[string]interface{}{
		"connected": status == StatusConnected,
		"time":      time.Now(),
	})
}

// broadcastStatus fans the current connection status out to every
// authenticated session.
func (h *Hub) broadcastStatus() {
	msg := models.NewConnectionMessage(h.supervisor.Connected())
	for s := range h.validated {
		s.push(msg)
	}
}

// pushSnapshot builds and sends a fresh snapshot to one session
func (h *Hub) pushSnapshot(s *Session, fromListener bool) {
	st, err := h.provider.State()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read vehicle state")
		h.broadcastStatus()
		return
	}
	s.push(models.NewReturnMessage(fromListener, vehicle.BuildSnapshot(st)))
}

// SessionCount returns the registry sizes, for the status API
func (h *Hub) SessionCount() (total, validated int) {
	return int(h.statSessions.Load()), int(h.statValidated.Load())
}

// VehicleConnected reports the supervisor status, for the status API
func (h *Hub) VehicleConnected() bool {
	return h.statConnected.Load()
}

// syncStats refreshes the advisory counters after any loop-side change
func (h *Hub) syncStats() {
	h.statSessions.Store(int64(len(h.sessions)))
	h.statValidated.Store(int64(len(h.validated)))
	h.statConnected.Store(h.supervisor.Connected())
}
