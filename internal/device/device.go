// Package device provides the device registry, status cache, and command
// dispatch for Xiaomi smart lighting devices.
package device

import "time"

// Kind represents the type of a controllable device.
type Kind string

const (
	KindLight        Kind = "light"
	KindCeilingLight Kind = "ceiling_light"
	KindDeskLamp     Kind = "desk_lamp"
	KindBulb         Kind = "bulb"
	KindStrip        Kind = "strip"
	KindUnknown      Kind = "unknown"
)

// ParseKind maps a configuration type string to a Kind.
// Unrecognized values map to KindUnknown.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindLight, KindCeilingLight, KindDeskLamp, KindBulb, KindStrip:
		return Kind(s)
	case "":
		return KindLight
	default:
		return KindUnknown
	}
}

// State is a point-in-time snapshot of a device's controllable properties.
type State struct {
	Power      bool `json:"power"`
	Brightness int  `json:"brightness"` // 0-100
	ColorTemp  int  `json:"color_temp"` // Kelvin, 1700-6500 for Yeelight hardware
}

// Device identifies one configured device. The ID is the display name from
// the configuration file, which is unique within a run.
type Device struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Addr  string `json:"addr"`
	Token string `json:"-"`
	Model string `json:"model,omitempty"`
}

// Status is what cache readers see: the last known state plus freshness.
type Status struct {
	State         State     `json:"state"`
	Online        bool      `json:"online"`
	LastRefreshed time.Time `json:"last_refreshed"`
}

// Brightness bounds for clamping relative adjustments.
const (
	MinBrightness = 0
	MaxBrightness = 100
)

// Color temperature bounds supported by Yeelight hardware.
const (
	MinColorTemp = 1700
	MaxColorTemp = 6500
)

// ClampBrightness bounds a brightness value to [MinBrightness, MaxBrightness].
func ClampBrightness(v int) int {
	if v < MinBrightness {
		return MinBrightness
	}
	if v > MaxBrightness {
		return MaxBrightness
	}
	return v
}

// ClampColorTemp bounds a color temperature to [MinColorTemp, MaxColorTemp].
func ClampColorTemp(v int) int {
	if v < MinColorTemp {
		return MinColorTemp
	}
	if v > MaxColorTemp {
		return MaxColorTemp
	}
	return v
}
