package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drone-bridge/drone-bridge-server/internal/models"
	"github.com/drone-bridge/drone-bridge-server/internal/vehicle"
)

// listenerHandle is the per-session recurring snapshot push subscription.
// At most one exists per session; the hub loop owns it.
type listenerHandle struct {
	interval time.Duration
	cancel   context.CancelFunc
}

// setListener replaces any existing listener for s with a new one firing
// every interval. The ticker goroutine only posts fire events back into
// the hub loop; snapshot building and pushing stay on the loop.
func (h *Hub) setListener(ctx context.Context, s *Session, interval time.Duration) {
	if interval <= 0 {
		return
	}

	h.cancelListener(s)

	lctx, cancel := context.WithCancel(ctx)
	s.listener = &listenerHandle{interval: interval, cancel: cancel}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-lctx.Done():
				return
			case <-ticker.C:
				select {
				case h.listenerFired <- s:
				case <-lctx.Done():
					return
				}
			}
		}
	}()

	log.Debug().
		Str("session", s.ID.String()).
		Dur("interval", interval).
		Msg("Listener started")
}

// cancelListener stops the session's listener. Idempotent: cancelling a
// session without one is a no-op.
func (h *Hub) cancelListener(s *Session) {
	if s.listener == nil {
		return
	}
	s.listener.cancel()
	s.listener = nil
	log.Debug().Str("session", s.ID.String()).Msg("Listener cancelled")
}

// handleListenerFired pushes one listener-triggered snapshot. Fires for
// sessions that have since disconnected or cancelled are dropped, and
// fires while the vehicle link is down are silently skipped.
func (h *Hub) handleListenerFired(s *Session) {
	if !h.sessions[s] || s.listener == nil {
		return
	}
	if !h.supervisor.Connected() {
		return
	}

	st, err := h.provider.State()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read vehicle state for listener push")
		return
	}
	s.push(models.NewReturnMessage(true, vehicle.BuildSnapshot(st)))
}
