package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drone-bridge/drone-bridge-server/internal/config"
	"github.com/drone-bridge/drone-bridge-server/internal/models"
	"github.com/drone-bridge/drone-bridge-server/internal/vehicle"
	"github.com/drone-bridge/drone-bridge-server/pkg/crypto"
)

const testSecret = "test-secret"

func testBridgeConfig() config.BridgeConfig {
	return config.BridgeConfig{
		SupervisorTick:    time.Second,
		LivenessThreshold: 2 * time.Second,
		ConnectTimeout:    time.Second,
		SaltBytes:         16,
		SendQueueSize:     16,
	}
}

func newTestHub(t *testing.T, provider vehicle.Provider) *Hub {
	t.Helper()
	creds := StaticFromHashes([]string{crypto.SecretHash(testSecret)})
	return NewHub(testBridgeConfig(), provider, creds, nil, nil)
}

// registerSession runs the registration handler directly and consumes
// the hello challenge
func registerSession(t *testing.T, h *Hub, closeConn func()) *Session {
	t.Helper()
	s, err := h.NewSession("test:1234", closeConn)
	require.NoError(t, err)
	h.handleRegister(s)

	hello := recvMessage(t, s)
	require.Equal(t, models.MessageTypeHello, hello["type"])
	require.Equal(t, s.Salt, hello["salt"])
	return s
}

// validateSession completes the handshake for s
func validateSession(t *testing.T, h *Hub, s *Session) {
	t.Helper()
	token := crypto.SaltedToken(crypto.SecretHash(testSecret), s.Salt)
	h.handleInbound(context.Background(), s, &models.ClientMessage{
		Type:  models.MessageTypeValidate,
		Token: &token,
	})

	result := recvMessage(t, s)
	require.Equal(t, models.MessageTypeValidate, result["type"])
	require.Equal(t, true, result["status"])
}

func recvMessage(t *testing.T, s *Session) map[string]interface{} {
	t.Helper()
	select {
	case data, ok := <-s.Outbound():
		require.True(t, ok, "session queue closed")
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("no message on session queue")
		return nil
	}
}

func assertNoMessage(t *testing.T, s *Session) {
	t.Helper()
	select {
	case data := <-s.Outbound():
		t.Fatalf("unexpected message: %s", data)
	default:
	}
}

func clientDoc(t *testing.T, doc string) *models.ClientMessage {
	t.Helper()
	var msg models.ClientMessage
	require.NoError(t, json.Unmarshal([]byte(doc), &msg))
	return &msg
}

func TestHubHandshake(t *testing.T) {
	h := newTestHub(t, vehicle.NewSim())
	s := registerSession(t, h, nil)
	ctx := context.Background()

	// A wrong token is answered with status false
	bad := crypto.SaltedToken(crypto.SecretHash("wrong"), s.Salt)
	h.handleInbound(ctx, s, &models.ClientMessage{Type: models.MessageTypeValidate, Token: &bad})
	result := recvMessage(t, s)
	assert.Equal(t, false, result["status"])
	assert.Equal(t, 1, s.authFailures)
	assert.False(t, s.Authenticated())

	// The session may retry with the right token
	validateSession(t, h, s)
	assert.True(t, s.Authenticated())
	assert.True(t, h.validated[s])

	total, validated := h.SessionCount()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, validated)
}

func TestHubRejectsRequestsBeforeValidation(t *testing.T) {
	h := newTestHub(t, vehicle.NewSim())
	s := registerSession(t, h, nil)

	// Any pre-handshake request is answered with a failed validation
	h.handleInbound(context.Background(), s, clientDoc(t, `{"type": "get"}`))
	result := recvMessage(t, s)
	assert.Equal(t, models.MessageTypeValidate, result["type"])
	assert.Equal(t, false, result["status"])
	assert.False(t, s.Authenticated())
}

func TestHubGetReturnsSnapshot(t *testing.T) {
	sim := vehicle.NewSim()
	require.NoError(t, sim.Connect(context.Background()))

	h := newTestHub(t, sim)
	s := registerSession(t, h, nil)
	validateSession(t, h, s)

	ctx := context.Background()
	h.handleTick(ctx)
	status := recvMessage(t, s)
	require.Equal(t, models.MessageTypeConnection, status["type"])

	h.handleInbound(ctx, s, clientDoc(t, `{"type": "get"}`))
	ret := recvMessage(t, s)
	assert.Equal(t, models.MessageTypeReturn, ret["type"])
	assert.Equal(t, false, ret["fromListener"])

	attrs, ok := ret["attributes"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "STABILIZE", attrs["mode"])
	assert.Contains(t, attrs, "location")
	assert.Contains(t, attrs, "battery")
}

func TestHubStatusBroadcastGoesToValidatedOnly(t *testing.T) {
	sim := vehicle.NewSim()
	require.NoError(t, sim.Connect(context.Background()))

	h := newTestHub(t, sim)
	validated := registerSession(t, h, nil)
	validateSession(t, h, validated)
	pending := registerSession(t, h, nil)

	h.handleTick(context.Background())

	status := recvMessage(t, validated)
	assert.Equal(t, models.MessageTypeConnection, status["type"])
	data, ok := status["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["connected"])

	assertNoMessage(t, pending)
}

func TestHubTickReportsLostLink(t *testing.T) {
	sim := vehicle.NewSim()
	require.NoError(t, sim.Connect(context.Background()))

	h := newTestHub(t, sim)
	s := registerSession(t, h, nil)
	validateSession(t, h, s)

	ctx := context.Background()
	h.handleTick(ctx)
	status := recvMessage(t, s)
	data := status["data"].(map[string]interface{})
	require.Equal(t, true, data["connected"])

	// A stale heartbeat flips the broadcast on the very next tick
	sim.SetHeartbeatAge(3 * time.Second)
	h.handleTick(ctx)
	status = recvMessage(t, s)
	data = status["data"].(map[string]interface{})
	assert.Equal(t, false, data["connected"])
	assert.False(t, h.VehicleConnected())
}

func TestHubDisconnectedDegradesToStatus(t *testing.T) {
	h := newTestHub(t, vehicle.NewSim())
	s := registerSession(t, h, nil)
	validateSession(t, h, s)

	ctx := context.Background()

	// With the link down, a get is answered with connectivity only
	h.handleInbound(ctx, s, clientDoc(t, `{"type": "get"}`))
	status := recvMessage(t, s)
	assert.Equal(t, models.MessageTypeConnection, status["type"])
	data := status["data"].(map[string]interface{})
	assert.Equal(t, false, data["connected"])

	// Listener scheduling still works while down
	h.handleInbound(ctx, s, clientDoc(t, `{"type": "get", "listener": 50}`))
	status = recvMessage(t, s)
	assert.Equal(t, models.MessageTypeConnection, status["type"])
	require.NotNil(t, s.listener)
	assert.Equal(t, 50*time.Millisecond, s.listener.interval)
	h.cancelListener(s)
}

func TestHubSetRecordsErrorsInBand(t *testing.T) {
	sim := vehicle.NewSim()
	require.NoError(t, sim.Connect(context.Background()))

	h := newTestHub(t, sim)
	s := registerSession(t, h, nil)
	validateSession(t, h, s)

	ctx := context.Background()
	h.handleTick(ctx)
	recvMessage(t, s) // status broadcast

	h.handleInbound(ctx, s, clientDoc(t, `{"type": "set", "attributes": {"mode": "FLIP"}}`))
	errMsg := recvMessage(t, s)
	require.Equal(t, models.MessageTypeError, errMsg["type"])
	detail := errMsg["error"].(map[string]interface{})
	assert.Equal(t, models.ErrorKindType, detail["type"])
	assert.Contains(t, detail["message"], "LOITER")
}

func TestHubCloseRequest(t *testing.T) {
	sim := vehicle.NewSim()
	require.NoError(t, sim.Connect(context.Background()))

	closed := false
	h := newTestHub(t, sim)
	s := registerSession(t, h, func() { closed = true })
	validateSession(t, h, s)

	ctx := context.Background()
	h.handleTick(ctx)
	recvMessage(t, s)

	h.handleInbound(ctx, s, clientDoc(t, `{"type": "close"}`))
	assert.True(t, closed, "close request must reach the transport")
}

func TestHubUnregisterClearsOverrides(t *testing.T) {
	sim := vehicle.NewSim()
	require.NoError(t, sim.Connect(context.Background()))

	h := newTestHub(t, sim)
	s := registerSession(t, h, nil)
	validateSession(t, h, s)

	ctx := context.Background()
	h.handleTick(ctx)
	recvMessage(t, s)

	h.handleInbound(ctx, s, clientDoc(t, `{"type": "set", "attributes": {"channels": {"overrides": {"3": 1600}}}}`))
	require.Equal(t, map[string]int{"3": 1600}, sim.Overrides())

	h.handleInbound(ctx, s, clientDoc(t, `{"type": "get", "listener": 100}`))
	require.NotNil(t, s.listener)

	h.handleUnregister(s)
	assert.Empty(t, sim.Overrides(), "disconnect must clear the session's overrides")
	assert.Nil(t, s.listener)

	total, validated := h.SessionCount()
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, validated)

	// A second unregister of the same session is a no-op
	h.handleUnregister(s)
}

func TestHubReconnectResultBroadcasts(t *testing.T) {
	sim := vehicle.NewSim()
	h := newTestHub(t, sim)
	s := registerSession(t, h, nil)
	validateSession(t, h, s)

	require.NoError(t, sim.Connect(context.Background()))
	h.handleReconnectResult(nil)

	status := recvMessage(t, s)
	require.Equal(t, models.MessageTypeConnection, status["type"])
	data := status["data"].(map[string]interface{})
	assert.Equal(t, true, data["connected"])
	assert.True(t, h.VehicleConnected())
}
