package vehicle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drone-bridge/drone-bridge-server/internal/models"
)

func connectedSim(t *testing.T) *Sim {
	t.Helper()
	sim := NewSim()
	require.NoError(t, sim.Connect(context.Background()))
	return sim
}

func TestBuildSnapshotHomeNullUntilSet(t *testing.T) {
	sim := connectedSim(t)

	st, err := sim.State()
	require.NoError(t, err)

	snap := BuildSnapshot(st)
	assert.Nil(t, snap.Location.Home.Lat)
	assert.Nil(t, snap.Location.Home.Lon)
	assert.Nil(t, snap.Location.Home.Alt)
	assert.False(t, snap.Location.Home.IsSet())

	require.NoError(t, sim.SetHome(51.05, -1.44, 58.2))
	st, err = sim.State()
	require.NoError(t, err)

	snap = BuildSnapshot(st)
	require.True(t, snap.Location.Home.IsSet())
	assert.Equal(t, 51.05, *snap.Location.Home.Lat)
	assert.Equal(t, -1.44, *snap.Location.Home.Lon)
	assert.Equal(t, 58.2, *snap.Location.Home.Alt)
}

func TestBuildSnapshotEnumeratesChannelsAndParameters(t *testing.T) {
	sim := connectedSim(t)

	st, err := sim.State()
	require.NoError(t, err)

	snap := BuildSnapshot(st)
	assert.Len(t, snap.Channels.Values, 8)
	assert.Equal(t, 1500, snap.Channels.Values["1"])
	assert.NotEmpty(t, snap.Parameters)
	assert.Contains(t, snap.Parameters, "RTL_ALT")
}

func TestBuildSnapshotDoesNotAliasProviderState(t *testing.T) {
	sim := connectedSim(t)

	st, err := sim.State()
	require.NoError(t, err)

	snap := BuildSnapshot(st)
	snap.Parameters["RTL_ALT"] = -1
	snap.Channels.Values["1"] = -1

	st2, err := sim.State()
	require.NoError(t, err)
	assert.Equal(t, 1500.0, st2.Parameters["RTL_ALT"])
	assert.Equal(t, 1500, st2.Channels["1"])
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	sim := connectedSim(t)
	require.NoError(t, sim.SetHome(10, 20, 30))
	require.NoError(t, sim.SetOverrides(map[string]int{"3": 1600}))

	st, err := sim.State()
	require.NoError(t, err)
	snap := BuildSnapshot(st)

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded models.AttributeSnapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, snap, &decoded)
}

func TestSnapshotWireShape(t *testing.T) {
	sim := connectedSim(t)

	st, err := sim.State()
	require.NoError(t, err)

	data, err := json.Marshal(BuildSnapshot(st))
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))

	for _, key := range []string{
		"version", "capabilities", "location", "attitude", "velocity",
		"gps_0", "gimbal", "battery", "ekf_ok", "last_heartbeat",
		"rangefinder", "heading", "is_armable", "system_status",
		"groundspeed", "airspeed", "mode", "armed", "channels", "parameters",
	} {
		assert.Contains(t, doc, key)
	}

	// Channel map flattens overrides next to the channel values
	var channels map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc["channels"], &channels))
	assert.Contains(t, channels, "overrides")
	assert.Contains(t, channels, "1")
	assert.Contains(t, channels, "8")
}

func TestSimConnectFailureInjection(t *testing.T) {
	sim := NewSim()
	sim.FailConnects(assert.AnError)

	require.Error(t, sim.Connect(context.Background()))
	_, err := sim.HeartbeatAge()
	assert.ErrorIs(t, err, ErrNeverConnected)

	sim.FailConnects(nil)
	require.NoError(t, sim.Connect(context.Background()))
	age, err := sim.HeartbeatAge()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, age, time.Duration(0))
}
