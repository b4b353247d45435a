package vehicle

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Sim is an in-process vehicle used by the "sim" driver and by tests.
// It carries eight RC channels and a small ArduPilot-style parameter set,
// keeps its own heartbeat clock, and lets tests inject connect failures
// and stale heartbeats.
type Sim struct {
	mu sync.Mutex

	everConnected bool
	lastHeartbeat time.Time
	connectErr    error
	connectDelay  time.Duration

	state State
}

// NewSim creates a simulated vehicle in a sane pre-arm state
func NewSim() *Sim {
	s := &Sim{}
	s.state = State{
		FirmwareVersion: Firmware{
			Raw:            "APM:Copter-3.3.0",
			Major:          3,
			Minor:          3,
			Patch:          0,
			ReleaseType:    "official",
			ReleaseVersion: "3.3.0",
			IsStable:       true,
		},
		Capabilities: CapabilityFlags{
			MissionFloat:      true,
			ParamFloat:        true,
			MissionInt:        true,
			CommandInt:        true,
			FTP:               true,
			SetAttitudeTarget: true,
			FlightTermination: true,
		},
		GlobalFrame:         Location{Lat: 51.0538, Lon: -1.4435, Alt: 58.0},
		GlobalRelativeFrame: Location{Lat: 51.0538, Lon: -1.4435, Alt: 0.0},
		GPSFixType:          3,
		GPSEph:              1.2,
		GPSEpv:              1.8,
		GPSSatellitesVisible: 10,
		BatteryVoltage:      12.6,
		BatteryCurrent:      4.2,
		BatteryLevel:        97,
		EKFOk:               true,
		Heading:             87,
		IsArmable:           true,
		SystemStatus:        "STANDBY",
		Mode:                "STABILIZE",
		Channels:            map[string]int{},
		Overrides:           map[string]int{},
		Parameters: map[string]float64{
			"THR_MIN":     130,
			"THR_MAX":     1000,
			"RTL_ALT":     1500,
			"FS_GCS_ENABLE": 1,
			"ARMING_CHECK": 1,
		},
	}
	for ch := 1; ch <= 8; ch++ {
		s.state.Channels[strconv.Itoa(ch)] = 1500
	}
	return s
}

// Connect establishes the simulated link
func (s *Sim) Connect(ctx context.Context) error {
	s.mu.Lock()
	delay := s.connectDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connectErr != nil {
		return s.connectErr
	}

	s.everConnected = true
	s.lastHeartbeat = time.Now()
	return nil
}

// HeartbeatAge returns the time since the last heartbeat
func (s *Sim) HeartbeatAge() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.everConnected {
		return 0, ErrNeverConnected
	}
	return time.Since(s.lastHeartbeat), nil
}

// State returns a deep copy of the current vehicle state
func (s *Sim) State() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.everConnected {
		return nil, ErrNeverConnected
	}

	st := s.state
	st.LastHeartbeatSeconds = time.Since(s.lastHeartbeat).Seconds()

	if s.state.Home != nil {
		home := *s.state.Home
		st.Home = &home
	}
	st.Channels = copyIntMap(s.state.Channels)
	st.Overrides = copyIntMap(s.state.Overrides)
	st.Parameters = make(map[string]float64, len(s.state.Parameters))
	for k, v := range s.state.Parameters {
		st.Parameters[k] = v
	}

	return &st, nil
}

// SetArmed arms or disarms the vehicle
func (s *Sim) SetArmed(armed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.everConnected {
		return ErrNotConnected
	}
	s.state.Armed = armed
	if armed {
		s.state.SystemStatus = "ACTIVE"
	} else {
		s.state.SystemStatus = "STANDBY"
	}
	return nil
}

// SetMode sets the flight mode
func (s *Sim) SetMode(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.everConnected {
		return ErrNotConnected
	}
	s.state.Mode = mode
	return nil
}

// SetHome sets the home location
func (s *Sim) SetHome(lat, lon, alt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.everConnected {
		return ErrNotConnected
	}
	s.state.Home = &Location{Lat: lat, Lon: lon, Alt: alt}
	return nil
}

// SetGroundspeed sets the target groundspeed
func (s *Sim) SetGroundspeed(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.everConnected {
		return ErrNotConnected
	}
	s.state.Groundspeed = v
	return nil
}

// SetAirspeed sets the target airspeed
func (s *Sim) SetAirspeed(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.everConnected {
		return ErrNotConnected
	}
	s.state.Airspeed = v
	return nil
}

// SetParameter sets a named parameter
func (s *Sim) SetParameter(name string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.everConnected {
		return ErrNotConnected
	}
	if _, ok := s.state.Parameters[name]; !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}
	s.state.Parameters[name] = value
	return nil
}

// HasParameter reports whether the vehicle exposes a parameter
func (s *Sim) HasParameter(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.state.Parameters[name]
	return ok
}

// HasChannel reports whether the vehicle exposes an RC channel
func (s *Sim) HasChannel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.state.Channels[id]
	return ok
}

// SetOverrides replaces the full override map
func (s *Sim) SetOverrides(overrides map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.everConnected {
		return ErrNotConnected
	}
	s.state.Overrides = copyIntMap(overrides)
	return nil
}

// ClearOverrides removes all channel overrides
func (s *Sim) ClearOverrides() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Overrides = map[string]int{}
}

// Overrides returns a copy of the current override map
func (s *Sim) Overrides() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyIntMap(s.state.Overrides)
}

// Beat refreshes the heartbeat clock, as a live vehicle would at 4 Hz
func (s *Sim) Beat() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastHeartbeat = time.Now()
}

// SetHeartbeatAge backdates the heartbeat clock
func (s *Sim) SetHeartbeatAge(age time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastHeartbeat = time.Now().Add(-age)
}

// FailConnects makes every subsequent Connect return err; pass nil to heal
func (s *Sim) FailConnects(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connectErr = err
}

// SetConnectDelay delays every subsequent Connect attempt
func (s *Sim) SetConnectDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connectDelay = d
}

// Mode returns the current flight mode
func (s *Sim) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Mode
}

func copyIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
