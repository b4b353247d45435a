package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/drone-bridge/drone-bridge-server/internal/bridge"
	"github.com/drone-bridge/drone-bridge-server/internal/models"
)

const (
	// Time allowed to write a message to the peer
	wsWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	wsPongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than wsPongWait
	wsPingPeriod = (wsPongWait * 9) / 10

	// Maximum message size allowed from peer
	wsMaxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The bridge protocol authenticates with its own challenge-response
	// handshake, so cross-origin browser clients are allowed through.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades the connection and attaches it to the hub
func (s *RESTServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	session, err := s.hub.NewSession(r.RemoteAddr, func() {
		conn.Close()
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		conn.Close()
		return
	}

	s.hub.Register(session)

	go s.writePump(conn, session)
	go s.readPump(conn, session)
}

// readPump decodes client messages and posts them to the hub loop. A
// document that is not a JSON object terminates the session with a
// protocol-violation close code.
func (s *RESTServer) readPump(conn *websocket.Conn, session *bridge.Session) {
	defer func() {
		s.hub.Unregister(session)
		conn.Close()
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session", session.ID.String()).Msg("Websocket read error")
			}
			return
		}

		var msg models.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Str("session", session.ID.String()).Msg("Malformed client message, closing")
			closeMsg := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "Invalid JSON object!")
			conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(wsWriteWait))
			return
		}

		s.hub.Inbound(session, &msg)
	}
}

// writePump drains the session's outbound queue onto the wire and keeps
// the connection alive with pings
func (s *RESTServer) writePump(conn *websocket.Conn, session *bridge.Session) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-session.Outbound():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				// Hub destroyed the session
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
