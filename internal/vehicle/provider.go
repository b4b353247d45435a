package vehicle

import (
	"context"
	"errors"
	"time"
)

// Common provider errors
var (
	// ErrNeverConnected is returned while no connection to the vehicle
	// has ever been established.
	ErrNeverConnected = errors.New("vehicle never connected")
	// ErrNotConnected is returned when an operation needs a live link.
	ErrNotConnected = errors.New("vehicle not connected")
)

// Provider is the vehicle telemetry/control endpoint. The bridge owns a
// single Provider instance and all mutation of it goes through the hub
// event loop; implementations only need to be safe for that one caller
// plus their own background machinery.
type Provider interface {
	// Connect establishes (or re-establishes) the vehicle link. It must
	// honor ctx cancellation; the supervisor time-boxes every attempt.
	Connect(ctx context.Context) error

	// HeartbeatAge returns the time since the last vehicle heartbeat.
	// Returns ErrNeverConnected before the first successful Connect.
	HeartbeatAge() (time.Duration, error)

	// State returns the current readable vehicle state for snapshot
	// building. The returned value is a copy; mutating it has no effect
	// on the vehicle.
	State() (*State, error)

	// Attribute setters. Each returns ErrNotConnected when the link is
	// down and the provider-native error on rejection.
	SetArmed(armed bool) error
	SetMode(mode string) error
	SetHome(lat, lon, alt float64) error
	SetGroundspeed(v float64) error
	SetAirspeed(v float64) error
	SetParameter(name string, value float64) error

	// HasParameter reports whether the vehicle exposes a parameter
	HasParameter(name string) bool
	// HasChannel reports whether the vehicle exposes an RC channel
	HasChannel(id string) bool

	// SetOverrides replaces the full channel override map atomically
	SetOverrides(overrides map[string]int) error
	// ClearOverrides removes all channel overrides
	ClearOverrides()
}

// State is a point-in-time copy of everything the vehicle exposes for
// reading. Home is nil until the autopilot has set a home location.
type State struct {
	FirmwareVersion Firmware
	Capabilities    CapabilityFlags

	GlobalFrame         Location
	GlobalRelativeFrame Location
	LocalFrame          LocalPosition
	Home                *Location

	Pitch, Yaw, Roll float64

	Velocity [3]float64

	GPSEph               float64
	GPSEpv               float64
	GPSFixType           int
	GPSSatellitesVisible int

	GimbalPitch, GimbalRoll, GimbalYaw float64

	BatteryVoltage float64
	BatteryCurrent float64
	BatteryLevel   int

	EKFOk                bool
	LastHeartbeatSeconds float64

	RangefinderDistance float64
	RangefinderVoltage  float64

	Heading      int
	IsArmable    bool
	SystemStatus string
	Groundspeed  float64
	Airspeed     float64
	Mode         string
	Armed        bool

	Channels   map[string]int
	Overrides  map[string]int
	Parameters map[string]float64
}

// Firmware identifies the autopilot firmware version
type Firmware struct {
	Raw            string
	Major          int
	Minor          int
	Patch          int
	ReleaseType    string
	ReleaseVersion string
	IsStable       bool
}

// CapabilityFlags lists autopilot capability bits
type CapabilityFlags struct {
	MissionFloat               bool
	ParamFloat                 bool
	MissionInt                 bool
	CommandInt                 bool
	ParamUnion                 bool
	FTP                        bool
	SetAttitudeTarget          bool
	SetAttitudeTargetLocalNED  bool
	SetAltitudeTargetGlobalInt bool
	Terrain                    bool
	SetActuatorTarget          bool
	FlightTermination          bool
	CompassCalibration         bool
}

// Location is a global lat/lon/alt position
type Location struct {
	Lat float64
	Lon float64
	Alt float64
}

// LocalPosition is a NED offset from home
type LocalPosition struct {
	North float64
	East  float64
	Down  float64
}
