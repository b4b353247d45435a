package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drone-bridge/drone-bridge-server/internal/vehicle"
)

// Status is the supervisor's view of the vehicle link
type Status int

// Link states
const (
	StatusNeverConnected Status = iota
	StatusConnected
	StatusDisconnected
)

// String implements fmt.Stringer
func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "never_connected"
	}
}

// Supervisor owns the single provider connection and its liveness state.
// Check and FinishReconnect run on the hub loop; the reconnect attempt
// itself runs on a background goroutine so a hung dial never stalls
// message handling.
type Supervisor struct {
	provider       vehicle.Provider
	threshold      time.Duration
	connectTimeout time.Duration

	status       Status
	reconnecting bool
	results      chan error
}

// NewSupervisor creates a supervisor for the given provider. threshold is
// the maximum heartbeat age before the link counts as down.
func NewSupervisor(provider vehicle.Provider, threshold, connectTimeout time.Duration) *Supervisor {
	return &Supervisor{
		provider:       provider,
		threshold:      threshold,
		connectTimeout: connectTimeout,
		status:         StatusNeverConnected,
		results:        make(chan error, 1),
	}
}

// Status returns the current link status
func (sv *Supervisor) Status() Status {
	return sv.status
}

// Connected reports whether the vehicle link is up
func (sv *Supervisor) Connected() bool {
	return sv.status == StatusConnected
}

// Check recomputes the link status from the provider's heartbeat age
func (sv *Supervisor) Check() Status {
	age, err := sv.provider.HeartbeatAge()
	switch {
	case err != nil:
		// Initial connection never succeeded
		if sv.status != StatusNeverConnected {
			sv.status = StatusDisconnected
		}
	case age > sv.threshold:
		log.Warn().Dur("heartbeat_age", age).Msg("Vehicle heartbeat stale")
		sv.status = StatusDisconnected
	default:
		sv.status = StatusConnected
	}
	return sv.status
}

// StartReconnect launches one background (re)connect attempt, time-boxed
// by the connect timeout. Returns false when an attempt is already in
// flight. The result arrives on Results.
func (sv *Supervisor) StartReconnect(ctx context.Context) bool {
	if sv.reconnecting {
		return false
	}
	sv.reconnecting = true

	go func() {
		cctx, cancel := context.WithTimeout(ctx, sv.connectTimeout)
		defer cancel()

		err := sv.provider.Connect(cctx)
		select {
		case sv.results <- err:
		case <-ctx.Done():
		}
	}()
	return true
}

// Results delivers the outcome of background reconnect attempts
func (sv *Supervisor) Results() <-chan error {
	return sv.results
}

// FinishReconnect folds a reconnect outcome into the status. Failures are
// logged and retried on the next tick; they never propagate.
func (sv *Supervisor) FinishReconnect(err error) Status {
	sv.reconnecting = false
	if err != nil {
		log.Error().Err(err).Msg("Vehicle reconnect attempt failed")
		if sv.status != StatusNeverConnected {
			sv.status = StatusDisconnected
		}
		return sv.status
	}

	log.Info().Msg("Vehicle connection established")
	sv.status = StatusConnected
	return sv.status
}
