package vehicle

import (
	"strconv"

	"github.com/drone-bridge/drone-bridge-server/internal/models"
)

// BuildSnapshot transforms a provider State into the wire snapshot
// document. It is a pure read transform: the input is never mutated and
// the output shares no maps with it. Home fields stay explicit nulls
// until the autopilot reports a home location.
func BuildSnapshot(st *State) *models.AttributeSnapshot {
	snap := &models.AttributeSnapshot{
		Version: models.VersionInfo{
			Version:        st.FirmwareVersion.Raw,
			Major:          strconv.Itoa(st.FirmwareVersion.Major),
			Minor:          strconv.Itoa(st.FirmwareVersion.Minor),
			Patch:          strconv.Itoa(st.FirmwareVersion.Patch),
			ReleaseType:    st.FirmwareVersion.ReleaseType,
			ReleaseVersion: st.FirmwareVersion.ReleaseVersion,
			IsStable:       strconv.FormatBool(st.FirmwareVersion.IsStable),
		},
		Capabilities: models.Capabilities{
			MissionFloat:               st.Capabilities.MissionFloat,
			ParamFloat:                 st.Capabilities.ParamFloat,
			MissionInt:                 st.Capabilities.MissionInt,
			CommandInt:                 st.Capabilities.CommandInt,
			ParamUnion:                 st.Capabilities.ParamUnion,
			FTP:                        st.Capabilities.FTP,
			SetAttitudeTarget:          st.Capabilities.SetAttitudeTarget,
			SetAttitudeTargetLocalNED:  st.Capabilities.SetAttitudeTargetLocalNED,
			SetAltitudeTargetGlobalInt: st.Capabilities.SetAltitudeTargetGlobalInt,
			Terrain:                    st.Capabilities.Terrain,
			SetActuatorTarget:          st.Capabilities.SetActuatorTarget,
			FlightTermination:          st.Capabilities.FlightTermination,
			CompassCalibration:         st.Capabilities.CompassCalibration,
		},
		Location: models.LocationFrames{
			GlobalFrame: models.GlobalLocation{
				Lat: st.GlobalFrame.Lat,
				Lon: st.GlobalFrame.Lon,
				Alt: st.GlobalFrame.Alt,
			},
			GlobalRelativeFrame: models.GlobalLocation{
				Lat: st.GlobalRelativeFrame.Lat,
				Lon: st.GlobalRelativeFrame.Lon,
				Alt: st.GlobalRelativeFrame.Alt,
			},
			LocalFrame: models.LocalLocation{
				North: st.LocalFrame.North,
				East:  st.LocalFrame.East,
				Down:  st.LocalFrame.Down,
			},
		},
		Attitude: models.Attitude{
			Pitch: st.Pitch,
			Yaw:   st.Yaw,
			Roll:  st.Roll,
		},
		Velocity: []float64{st.Velocity[0], st.Velocity[1], st.Velocity[2]},
		GPS: models.GPSInfo{
			EPH:               st.GPSEph,
			EPV:               st.GPSEpv,
			FixType:           st.GPSFixType,
			SatellitesVisible: st.GPSSatellitesVisible,
		},
		Gimbal: models.Gimbal{
			Pitch: st.GimbalPitch,
			Roll:  st.GimbalRoll,
			Yaw:   st.GimbalYaw,
		},
		Battery: models.Battery{
			Voltage: st.BatteryVoltage,
			Current: st.BatteryCurrent,
			Level:   st.BatteryLevel,
		},
		EKFOk:         st.EKFOk,
		LastHeartbeat: st.LastHeartbeatSeconds,
		Rangefinder: models.Rangefinder{
			Distance: st.RangefinderDistance,
			Voltage:  st.RangefinderVoltage,
		},
		Heading:      st.Heading,
		IsArmable:    st.IsArmable,
		SystemStatus: st.SystemStatus,
		Groundspeed:  st.Groundspeed,
		Airspeed:     st.Airspeed,
		Mode:         st.Mode,
		Armed:        st.Armed,
		Channels: models.ChannelMap{
			Overrides: copyIntMap(st.Overrides),
			Values:    copyIntMap(st.Channels),
		},
		Parameters: make(map[string]float64, len(st.Parameters)),
	}

	if st.Home != nil {
		lat, lon, alt := st.Home.Lat, st.Home.Lon, st.Home.Alt
		snap.Location.Home = models.HomeLocation{Lat: &lat, Lon: &lon, Alt: &alt}
	}

	for name, val := range st.Parameters {
		snap.Parameters[name] = val
	}

	return snap
}
