package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drone-bridge/drone-bridge-server/internal/vehicle"
)

func TestSupervisorNeverConnected(t *testing.T) {
	sim := vehicle.NewSim()
	sv := NewSupervisor(sim, 2*time.Second, time.Second)

	assert.Equal(t, StatusNeverConnected, sv.Status())
	assert.False(t, sv.Connected())

	// Heartbeat errors before the first connect keep the initial state
	assert.Equal(t, StatusNeverConnected, sv.Check())
}

func TestSupervisorLiveness(t *testing.T) {
	sim := vehicle.NewSim()
	require.NoError(t, sim.Connect(context.Background()))

	sv := NewSupervisor(sim, 2*time.Second, time.Second)

	assert.Equal(t, StatusConnected, sv.Check())
	assert.True(t, sv.Connected())

	// A stale heartbeat flips the link down on the next check
	sim.SetHeartbeatAge(3 * time.Second)
	assert.Equal(t, StatusDisconnected, sv.Check())
	assert.False(t, sv.Connected())

	// A fresh heartbeat brings it back
	sim.Beat()
	assert.Equal(t, StatusConnected, sv.Check())
}

func TestSupervisorReconnectSingleFlight(t *testing.T) {
	sim := vehicle.NewSim()
	sim.SetConnectDelay(50 * time.Millisecond)

	sv := NewSupervisor(sim, 2*time.Second, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.True(t, sv.StartReconnect(ctx))
	assert.False(t, sv.StartReconnect(ctx), "only one attempt may be in flight")

	select {
	case err := <-sv.Results():
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconnect result never arrived")
	}

	assert.Equal(t, StatusConnected, sv.FinishReconnect(nil))
	assert.True(t, sv.StartReconnect(ctx), "attempts allowed again after finish")
}

func TestSupervisorReconnectFailure(t *testing.T) {
	sim := vehicle.NewSim()
	sim.FailConnects(errors.New("link refused"))

	sv := NewSupervisor(sim, 2*time.Second, time.Second)

	ctx := context.Background()
	require.True(t, sv.StartReconnect(ctx))

	var result error
	select {
	case result = <-sv.Results():
	case <-time.After(time.Second):
		t.Fatal("reconnect result never arrived")
	}
	require.Error(t, result)

	// A failed first connect leaves the never-connected state intact
	assert.Equal(t, StatusNeverConnected, sv.FinishReconnect(result))

	// After a successful connect, later failures read as disconnected
	sim.FailConnects(nil)
	require.NoError(t, sim.Connect(ctx))
	assert.Equal(t, StatusConnected, sv.Check())

	sim.SetHeartbeatAge(5 * time.Second)
	assert.Equal(t, StatusDisconnected, sv.Check())
	assert.Equal(t, StatusDisconnected, sv.FinishReconnect(errors.New("still down")))
}
