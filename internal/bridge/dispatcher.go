package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drone-bridge/drone-bridge-server/internal/models"
	"github.com/drone-bridge/drone-bridge-server/internal/vehicle"
)

// validModes is the fixed set of flight modes clients may request
var validModes = map[string]bool{
	"LOITER":    true,
	"STABILIZE": true,
	"ALT_HOLD":  true,
	"GUIDED":    true,
	"AUTO":      true,
	"RTL":       true,
	"BRAKE":     true,
}

// validModeList names the set in error messages
const validModeList = "LOITER, STABILIZE, ALT_HOLD, GUIDED, AUTO, RTL, and BRAKE"

// maxListenerIntervalMs is the largest interval, in milliseconds, that
// still converts to a valid time.Duration. Anything above overflows to a
// negative duration, which time.NewTicker rejects with a panic.
const maxListenerIntervalMs = float64(math.MaxInt64 / int64(time.Millisecond))

// processRequest dispatches one message from an authenticated session.
// While the vehicle link is down only listener scheduling is honored and
// the connectivity status is re-broadcast; everything else degrades.
func (h *Hub) processRequest(ctx context.Context, s *Session, msg *models.ClientMessage) {
	if !h.supervisor.Connected() {
		if msg.Type == models.MessageTypeGet && msg.HasListener() {
			h.handleListenerRequest(ctx, s, msg)
		}
		h.broadcastStatus()
		return
	}

	switch msg.Type {
	case models.MessageTypeGet:
		if msg.HasListener() {
			h.handleListenerRequest(ctx, s, msg)
			return
		}
		// A bare get returns the full attribute snapshot
		h.pushSnapshot(s, false)

	case models.MessageTypeSet:
		applied := applySet(h.provider, msg.Attributes, func(kind, message string) {
			h.sendError(s, kind, message)
		})
		if len(applied) > 0 {
			record(h.sink, &models.EventLog{
				SessionID:   &s.ID,
				Type:        models.EventTypeCommand,
				Level:       models.EventLevelInfo,
				Description: "set applied: " + strings.Join(applied, ", "),
			})
			publish(h.pub, SubjectCommand, map[string]interface{}{
				"sessionId":  s.ID,
				"attributes": applied,
				"time":       time.Now(),
			})
		}

	case models.MessageTypeClose:
		s.requestClose()

	default:
		// Unknown types from validated clients are ignored
	}
}

// handleListenerRequest applies the listener key of a get request: null
// cancels, a positive number (re)starts at that many milliseconds.
func (h *Hub) handleListenerRequest(ctx context.Context, s *Session, msg *models.ClientMessage) {
	if msg.ListenerIsNull() {
		h.cancelListener(s)
		return
	}

	interval, ok := msg.ListenerValue()
	if !ok {
		// Non-numeric, non-null listener values are ignored
		return
	}
	if interval <= 0 || interval > maxListenerIntervalMs {
		h.sendError(s, models.ErrorKindType, "Listener interval must be a positive number of milliseconds.")
		return
	}

	h.setListener(ctx, s, time.Duration(interval*float64(time.Millisecond)))
}

// sendError reports a dispatch-time error in-band; the session continues
func (h *Hub) sendError(s *Session, kind, message string) {
	s.push(models.NewErrorMessage(kind, message))

	log.Warn().
		Str("session", s.ID.String()).
		Str("kind", kind).
		Msg(message)

	record(h.sink, &models.EventLog{
		SessionID:   &s.ID,
		Type:        models.EventTypeError,
		Level:       models.EventLevelWarning,
		Code:        kind,
		Description: message,
	})
}

// applySet validates and applies a set request key by key. Each top-level
// key has an independent rule; an invalid key never aborts its siblings.
// Unrecognized keys are deliberately ignored. Returns the keys applied.
func applySet(p vehicle.Provider, attrs map[string]json.RawMessage, sendError func(kind, message string)) []string {
	var applied []string

	for rootKey, value := range attrs {
		switch rootKey {
		case "armed":
			var armed bool
			if err := json.Unmarshal(value, &armed); err != nil {
				sendError(models.ErrorKindType, "Requested 'armed' value is not a boolean.")
				continue
			}
			if err := p.SetArmed(armed); err != nil {
				sendError(models.ErrorKindType, "Failed to set 'armed': "+err.Error())
				continue
			}
			applied = append(applied, "armed")

		case "mode":
			var mode string
			if err := json.Unmarshal(value, &mode); err != nil {
				sendError(models.ErrorKindType, "Requested flight mode is not a string. Valid modes are "+validModeList+".")
				continue
			}
			mode = strings.ToUpper(mode)
			if !validModes[mode] {
				sendError(models.ErrorKindType, "Unsupported or invalid flight mode. Valid modes are "+validModeList+".")
				continue
			}
			if err := p.SetMode(mode); err != nil {
				sendError(models.ErrorKindType, "Failed to set flight mode: "+err.Error())
				continue
			}
			applied = append(applied, "mode")

		case "location":
			if key := applyLocation(p, value, sendError); key != "" {
				applied = append(applied, key)
			}

		case "groundspeed":
			var speed float64
			if err := json.Unmarshal(value, &speed); err != nil {
				sendError(models.ErrorKindType, "Requested groundspeed value is not a valid number.")
				continue
			}
			if err := p.SetGroundspeed(speed); err != nil {
				sendError(models.ErrorKindType, "Failed to set groundspeed: "+err.Error())
				continue
			}
			applied = append(applied, "groundspeed")

		case "airspeed":
			var speed float64
			if err := json.Unmarshal(value, &speed); err != nil {
				sendError(models.ErrorKindType, "Requested airspeed value is not a valid number.")
				continue
			}
			if err := p.SetAirspeed(speed); err != nil {
				sendError(models.ErrorKindType, "Failed to set airspeed: "+err.Error())
				continue
			}
			applied = append(applied, "airspeed")

		case "parameters":
			if applyParameters(p, value, sendError) {
				applied = append(applied, "parameters")
			}

		case "channels":
			if applyChannels(p, value, sendError) {
				applied = append(applied, "channels")
			}

		default:
			// Unrecognized top-level keys are silently ignored
		}
	}

	return applied
}

// applyLocation handles the location group; only home is settable
func applyLocation(p vehicle.Provider, value json.RawMessage, sendError func(kind, message string)) string {
	var frames map[string]json.RawMessage
	if err := json.Unmarshal(value, &frames); err != nil {
		sendError(models.ErrorKindType, "Location value must be an object.")
		return ""
	}

	applied := ""
	for frame, data := range frames {
		if frame != "home" {
			sendError(models.ErrorKindType, "Cannot set such location objects! Only home is settable.")
			continue
		}

		var home struct {
			Lat *float64 `json:"lat"`
			Lon *float64 `json:"lon"`
			Alt *float64 `json:"alt"`
		}
		if err := json.Unmarshal(data, &home); err != nil || home.Lat == nil || home.Lon == nil || home.Alt == nil {
			sendError(models.ErrorKindKey, "Location object is missing one or more mandatory components!")
			continue
		}

		if err := p.SetHome(*home.Lat, *home.Lon, *home.Alt); err != nil {
			sendError(models.ErrorKindType, "Failed to set home location: "+err.Error())
			continue
		}
		applied = "location.home"
	}
	return applied
}

// applyParameters applies each parameter name/value pair individually.
// Values must be numeric and names must exist on the vehicle.
func applyParameters(p vehicle.Provider, value json.RawMessage, sendError func(kind, message string)) bool {
	var params map[string]json.RawMessage
	if err := json.Unmarshal(value, &params); err != nil {
		sendError(models.ErrorKindType, "Parameters value must be an object of name/value pairs.")
		return false
	}

	anyApplied := false
	for name, raw := range params {
		var setting float64
		if err := json.Unmarshal(raw, &setting); err != nil {
			sendError(models.ErrorKindType, fmt.Sprintf("The requested value for %s was of the wrong type!", name))
			continue
		}
		if !p.HasParameter(name) {
			sendError(models.ErrorKindKey, fmt.Sprintf("You tried to set a parameter (%s) that is not available on this vehicle!", name))
			continue
		}
		if err := p.SetParameter(name, setting); err != nil {
			sendError(models.ErrorKindType, fmt.Sprintf("Failed to set parameter %s: %s", name, err.Error()))
			continue
		}
		anyApplied = true
	}
	return anyApplied
}

// applyChannels handles the channels group. The overrides batch is
// all-or-nothing: one unknown channel id rejects the whole batch.
func applyChannels(p vehicle.Provider, value json.RawMessage, sendError func(kind, message string)) bool {
	var group map[string]json.RawMessage
	if err := json.Unmarshal(value, &group); err != nil {
		sendError(models.ErrorKindType, "Channels value must be an object.")
		return false
	}

	applied := false
	for key, data := range group {
		if key != "overrides" {
			sendError(models.ErrorKindKey, "You are using improper syntax for setting channel overrides. You should only attempt to manipulate the overrides object.")
			continue
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			sendError(models.ErrorKindType, "Channel overrides must be an object of channel/value pairs.")
			continue
		}

		overrides := make(map[string]int, len(raw))
		valid := true
		for ch, v := range raw {
			if !p.HasChannel(ch) {
				sendError(models.ErrorKindKey, "You sent an invalid channel override!")
				valid = false
				break
			}
			var override int
			if err := json.Unmarshal(v, &override); err != nil {
				sendError(models.ErrorKindType, "You tried to set a channel override with the wrong type of variable!")
				valid = false
				break
			}
			overrides[ch] = override
		}
		if !valid {
			continue
		}

		if err := p.SetOverrides(overrides); err != nil {
			sendError(models.ErrorKindType, "You tried to set a channel override with the wrong type of variable!")
			continue
		}
		applied = true
	}
	return applied
}
