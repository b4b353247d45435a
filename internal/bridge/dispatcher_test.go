package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drone-bridge/drone-bridge-server/internal/models"
	"github.com/drone-bridge/drone-bridge-server/internal/vehicle"
)

// errorCollector captures dispatch errors for assertions
type errorCollector struct {
	kinds    []string
	messages []string
}

func (c *errorCollector) collect(kind, message string) {
	c.kinds = append(c.kinds, kind)
	c.messages = append(c.messages, message)
}

func attrs(t *testing.T, doc string) map[string]json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(doc), &out))
	return out
}

func connectedSim(t *testing.T) *vehicle.Sim {
	t.Helper()
	sim := vehicle.NewSim()
	require.NoError(t, sim.Connect(context.Background()))
	return sim
}

func TestApplySetArmed(t *testing.T) {
	sim := connectedSim(t)
	var errs errorCollector

	applied := applySet(sim, attrs(t, `{"armed": true}`), errs.collect)
	assert.Equal(t, []string{"armed"}, applied)
	assert.Empty(t, errs.kinds)

	st, err := sim.State()
	require.NoError(t, err)
	assert.True(t, st.Armed)

	applied = applySet(sim, attrs(t, `{"armed": "yes"}`), errs.collect)
	assert.Empty(t, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, models.ErrorKindType, errs.kinds[0])
}

func TestApplySetMode(t *testing.T) {
	sim := connectedSim(t)
	var errs errorCollector

	// Mode matching is case-insensitive
	applied := applySet(sim, attrs(t, `{"mode": "guided"}`), errs.collect)
	assert.Equal(t, []string{"mode"}, applied)
	assert.Equal(t, "GUIDED", sim.Mode())

	// An unsupported mode is rejected and names the valid set
	applied = applySet(sim, attrs(t, `{"mode": "FLIP"}`), errs.collect)
	assert.Empty(t, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, models.ErrorKindType, errs.kinds[0])
	assert.Contains(t, errs.messages[0], "LOITER")
	assert.Equal(t, "GUIDED", sim.Mode(), "failed set must not change the mode")

	// A non-string mode is a type error
	errs = errorCollector{}
	applied = applySet(sim, attrs(t, `{"mode": 7}`), errs.collect)
	assert.Empty(t, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, models.ErrorKindType, errs.kinds[0])
}

func TestApplySetHomeLocation(t *testing.T) {
	sim := connectedSim(t)
	var errs errorCollector

	// All three components are mandatory
	applied := applySet(sim, attrs(t, `{"location": {"home": {"lat": 51.05, "lon": -1.44}}}`), errs.collect)
	assert.Empty(t, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, models.ErrorKindKey, errs.kinds[0])

	st, err := sim.State()
	require.NoError(t, err)
	assert.Nil(t, st.Home, "incomplete home must not be applied")

	// Only the home frame is settable
	errs = errorCollector{}
	applied = applySet(sim, attrs(t, `{"location": {"global_frame": {"lat": 1, "lon": 2, "alt": 3}}}`), errs.collect)
	assert.Empty(t, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, models.ErrorKindType, errs.kinds[0])

	errs = errorCollector{}
	applied = applySet(sim, attrs(t, `{"location": {"home": {"lat": 51.05, "lon": -1.44, "alt": 58}}}`), errs.collect)
	assert.Equal(t, []string{"location.home"}, applied)
	assert.Empty(t, errs.kinds)

	st, err = sim.State()
	require.NoError(t, err)
	require.NotNil(t, st.Home)
	assert.Equal(t, 51.05, st.Home.Lat)
	assert.Equal(t, 58.0, st.Home.Alt)
}

func TestApplySetSpeeds(t *testing.T) {
	sim := connectedSim(t)
	var errs errorCollector

	applied := applySet(sim, attrs(t, `{"groundspeed": 12.5, "airspeed": 9}`), errs.collect)
	assert.ElementsMatch(t, []string{"groundspeed", "airspeed"}, applied)
	assert.Empty(t, errs.kinds)

	st, err := sim.State()
	require.NoError(t, err)
	assert.Equal(t, 12.5, st.Groundspeed)
	assert.Equal(t, 9.0, st.Airspeed)

	applied = applySet(sim, attrs(t, `{"groundspeed": "fast"}`), errs.collect)
	assert.Empty(t, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, models.ErrorKindType, errs.kinds[0])
}

func TestApplySetParameters(t *testing.T) {
	sim := connectedSim(t)
	var errs errorCollector

	applied := applySet(sim, attrs(t, `{"parameters": {"THR_MIN": 150}}`), errs.collect)
	assert.Equal(t, []string{"parameters"}, applied)
	assert.Empty(t, errs.kinds)

	st, err := sim.State()
	require.NoError(t, err)
	assert.Equal(t, 150.0, st.Parameters["THR_MIN"])

	// Unknown parameter names are key errors
	errs = errorCollector{}
	applied = applySet(sim, attrs(t, `{"parameters": {"NOT_A_PARAM": 1}}`), errs.collect)
	assert.Empty(t, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, models.ErrorKindKey, errs.kinds[0])

	// Non-numeric values are type errors, checked before existence
	errs = errorCollector{}
	applied = applySet(sim, attrs(t, `{"parameters": {"THR_MIN": "high"}}`), errs.collect)
	assert.Empty(t, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, models.ErrorKindType, errs.kinds[0])
	assert.Equal(t, 150.0, mustState(t, sim).Parameters["THR_MIN"])

	// One bad pair does not block a good sibling
	errs = errorCollector{}
	applied = applySet(sim, attrs(t, `{"parameters": {"NOT_A_PARAM": 1, "RTL_ALT": 2000}}`), errs.collect)
	assert.Equal(t, []string{"parameters"}, applied)
	assert.Len(t, errs.kinds, 1)
	assert.Equal(t, 2000.0, mustState(t, sim).Parameters["RTL_ALT"])
}

func TestApplySetChannelOverrides(t *testing.T) {
	sim := connectedSim(t)
	var errs errorCollector

	applied := applySet(sim, attrs(t, `{"channels": {"overrides": {"3": 1600}}}`), errs.collect)
	assert.Equal(t, []string{"channels"}, applied)
	assert.Empty(t, errs.kinds)
	assert.Equal(t, map[string]int{"3": 1600}, sim.Overrides())

	// An unknown channel id rejects the whole batch
	errs = errorCollector{}
	applied = applySet(sim, attrs(t, `{"channels": {"overrides": {"1": 1700, "99": 1700}}}`), errs.collect)
	assert.Empty(t, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, models.ErrorKindKey, errs.kinds[0])
	assert.Equal(t, map[string]int{"3": 1600}, sim.Overrides(), "rejected batch must not partially apply")

	// A non-integer value rejects the whole batch
	errs = errorCollector{}
	applied = applySet(sim, attrs(t, `{"channels": {"overrides": {"1": "high"}}}`), errs.collect)
	assert.Empty(t, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, models.ErrorKindType, errs.kinds[0])
	assert.Equal(t, map[string]int{"3": 1600}, sim.Overrides())

	// Only the overrides object may be manipulated
	errs = errorCollector{}
	applied = applySet(sim, attrs(t, `{"channels": {"3": 1600}}`), errs.collect)
	assert.Empty(t, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, models.ErrorKindKey, errs.kinds[0])
}

func TestApplySetIgnoresUnrecognizedKeys(t *testing.T) {
	sim := connectedSim(t)
	var errs errorCollector

	applied := applySet(sim, attrs(t, `{"heading": 90, "battery": {"level": 100}}`), errs.collect)
	assert.Empty(t, applied)
	assert.Empty(t, errs.kinds)
}

func TestApplySetIndependentKeys(t *testing.T) {
	sim := connectedSim(t)
	var errs errorCollector

	// A failing key never aborts its siblings
	applied := applySet(sim, attrs(t, `{"armed": "broken", "groundspeed": 5}`), errs.collect)
	assert.Equal(t, []string{"groundspeed"}, applied)
	require.Len(t, errs.kinds, 1)
	assert.Equal(t, 5.0, mustState(t, sim).Groundspeed)
}

func mustState(t *testing.T, sim *vehicle.Sim) *vehicle.State {
	t.Helper()
	st, err := sim.State()
	require.NoError(t, err)
	return st
}
