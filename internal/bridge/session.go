package bridge

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session is the server-side state for one connected client. The
// authentication flag and listener handle are owned by the hub loop and
// must never be touched from transport goroutines; the outbound queue and
// close handling are safe from any goroutine.
type Session struct {
	ID         uuid.UUID
	RemoteAddr string

	// Salt is issued once at connect time and drives token derivation
	Salt string

	send      chan []byte
	closeOnce sync.Once
	closed    atomic.Bool

	// closeConn asks the transport layer to close the underlying
	// connection. May be nil in tests.
	closeConn func()

	// Hub-loop-owned state
	authenticated bool
	authFailures  int
	listener      *listenerHandle
}

// NewSession creates a session around an issued salt. queueSize bounds the
// outbound buffer; closeConn is invoked on a client "close" request.
func NewSession(remoteAddr, salt string, queueSize int, closeConn func()) *Session {
	return &Session{
		ID:         uuid.New(),
		RemoteAddr: remoteAddr,
		Salt:       salt,
		send:       make(chan []byte, queueSize),
		closeConn:  closeConn,
	}
}

// Outbound returns the channel the transport write pump drains. It is
// closed when the session is destroyed.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Authenticated reports the handshake state
func (s *Session) Authenticated() bool {
	return s.authenticated
}

// push marshals v and queues it for delivery. A full queue drops the
// message rather than stalling the hub loop.
func (s *Session) push(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("session", s.ID.String()).Msg("Failed to marshal outbound message")
		return false
	}
	return s.enqueue(data)
}

// enqueue queues raw bytes without panicking on a concurrently closed
// channel. Returns false when the session is closed or the buffer is full.
func (s *Session) enqueue(data []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	if s.closed.Load() {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		log.Warn().Str("session", s.ID.String()).Msg("Outbound queue full, dropping message")
		return false
	}
}

// destroy closes the outbound channel exactly once
func (s *Session) destroy() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.send)
	})
}

// requestClose asks the transport to terminate the connection
func (s *Session) requestClose() {
	if s.closeConn != nil {
		s.closeConn()
	}
}
