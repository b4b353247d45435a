package models

import (
	"encoding/json"
)

// AttributeSnapshot is an immutable point-in-time document of all
// vehicle-exposed attributes. It is built fresh on every request and
// serializes to the wire shape expected by bridge clients.
type AttributeSnapshot struct {
	Version       VersionInfo        `json:"version"`
	Capabilities  Capabilities       `json:"capabilities"`
	Location      LocationFrames     `json:"location"`
	Attitude      Attitude           `json:"attitude"`
	Velocity      []float64          `json:"velocity"`
	GPS           GPSInfo            `json:"gps_0"`
	Gimbal        Gimbal             `json:"gimbal"`
	Battery       Battery            `json:"battery"`
	EKFOk         bool               `json:"ekf_ok"`
	LastHeartbeat float64            `json:"last_heartbeat"`
	Rangefinder   Rangefinder        `json:"rangefinder"`
	Heading       int                `json:"heading"`
	IsArmable     bool               `json:"is_armable"`
	SystemStatus  string             `json:"system_status"`
	Groundspeed   float64            `json:"groundspeed"`
	Airspeed      float64            `json:"airspeed"`
	Mode          string             `json:"mode"`
	Armed         bool               `json:"armed"`
	Channels      ChannelMap         `json:"channels"`
	Parameters    map[string]float64 `json:"parameters"`
}

// VersionInfo describes the autopilot firmware
type VersionInfo struct {
	Version        string `json:"version"`
	Major          string `json:"major"`
	Minor          string `json:"minor"`
	Patch          string `json:"patch"`
	ReleaseType    string `json:"release_type"`
	ReleaseVersion string `json:"release_version"`
	IsStable       string `json:"is_stable"`
}

// Capabilities lists autopilot capability flags
type Capabilities struct {
	MissionFloat               bool `json:"mission_float"`
	ParamFloat                 bool `json:"param_float"`
	MissionInt                 bool `json:"mission_int"`
	CommandInt                 bool `json:"command_int"`
	ParamUnion                 bool `json:"param_union"`
	FTP                        bool `json:"ftp"`
	SetAttitudeTarget          bool `json:"set_attitude_target"`
	SetAttitudeTargetLocalNED  bool `json:"set_attitude_target_local_ned"`
	SetAltitudeTargetGlobalInt bool `json:"set_altitude_target_global_int"`
	Terrain                    bool `json:"terrain"`
	SetActuatorTarget          bool `json:"set_actuator_target"`
	FlightTermination          bool `json:"flight_termination"`
	CompassCalibration         bool `json:"compass_calibration"`
}

// LocationFrames groups the location representations
type LocationFrames struct {
	GlobalFrame         GlobalLocation `json:"global_frame"`
	GlobalRelativeFrame GlobalLocation `json:"global_relative_frame"`
	LocalFrame          LocalLocation  `json:"local_frame"`
	Home                HomeLocation   `json:"home"`
}

// GlobalLocation is a lat/lon/alt triple
type GlobalLocation struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// LocalLocation is a NED offset from home
type LocalLocation struct {
	North float64 `json:"north"`
	East  float64 `json:"east"`
	Down  float64 `json:"down"`
}

// HomeLocation mirrors GlobalLocation but all three fields are explicit
// nulls until the autopilot has set a home location.
type HomeLocation struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
	Alt *float64 `json:"alt"`
}

// IsSet reports whether the home location has been populated
func (h HomeLocation) IsSet() bool {
	return h.Lat != nil && h.Lon != nil && h.Alt != nil
}

// Attitude is the vehicle orientation in radians
type Attitude struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// GPSInfo describes GPS fix quality
type GPSInfo struct {
	EPH               float64 `json:"eph"`
	EPV               float64 `json:"epv"`
	FixType           int     `json:"fix_type"`
	SatellitesVisible int     `json:"satellites_visible"`
}

// Gimbal is the gimbal orientation
type Gimbal struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// Battery describes battery state
type Battery struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	Level   int     `json:"level"`
}

// Rangefinder describes the rangefinder reading
type Rangefinder struct {
	Distance float64 `json:"distance"`
	Voltage  float64 `json:"voltage"`
}

// ChannelMap carries the RC channel values and the current overrides.
// On the wire the overrides object and the individual channel values
// share one JSON object: {"overrides":{...}, "1":1500, "2":1500, ...}.
type ChannelMap struct {
	Overrides map[string]int
	Values    map[string]int
}

// MarshalJSON implements json.Marshaler
func (c ChannelMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Values)+1)
	overrides := c.Overrides
	if overrides == nil {
		overrides = map[string]int{}
	}
	out["overrides"] = overrides
	for ch, v := range c.Values {
		out[ch] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (c *ChannelMap) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Overrides = map[string]int{}
	c.Values = map[string]int{}

	for key, val := range raw {
		if key == "overrides" {
			if err := json.Unmarshal(val, &c.Overrides); err != nil {
				return err
			}
			continue
		}
		var v int
		if err := json.Unmarshal(val, &v); err != nil {
			return err
		}
		c.Values[key] = v
	}
	return nil
}
