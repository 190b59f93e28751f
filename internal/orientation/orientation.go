package orientation

import (
	"math"
	"time"

	"github.com/relabs-tech/ecompass/internal/imu"
)

// ApproxPi is the π used when converting angles to the integer degrees
// shown on the display. It is deliberately 3.14, not math.Pi, so the
// readouts match the values the device has always shown (about 0.05%
// larger than true degrees).
const ApproxPi = 3.14

// Orientation is the tilt-compensated attitude of the device, in radians.
// Pitch and Roll lie in (-π, π], Azimuth in [0, 2π).
type Orientation struct {
	Pitch   float64 `json:"pitch"`
	Roll    float64 `json:"roll"`
	Azimuth float64 `json:"azimuth"`
}

// NeedlePoint is the outer end of the compass needle in display pixels.
type NeedlePoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Dial is the geometry of the needle drawn on the display.
type Dial struct {
	CenterX int
	CenterY int
	Radius  int
}

// DefaultDial is the 64x64 rose on the left half of the screen.
var DefaultDial = Dial{CenterX: 32, CenterY: 32, Radius: 24}

// Compute derives pitch, roll and azimuth from one accelerometer and one
// magnetometer sample. Inputs are raw counts; only their ratios matter, so
// no unit conversion or calibration is applied.
func Compute(acc imu.AccelSample, mag imu.MagSample) Orientation {
	ax, ay, az := float64(acc.X), float64(acc.Y), float64(acc.Z)
	mx, my, mz := float64(mag.X), float64(mag.Y), float64(mag.Z)

	pitch := math.Atan2(-ax, math.Sqrt(az*az+ay*ay))
	roll := math.Atan2(ay, math.Sqrt(az*az+ax*ax))

	// Project the field onto the horizontal plane.
	sinP, cosP := math.Sincos(pitch)
	sinR, cosR := math.Sincos(roll)
	xh := mx*cosP + my*sinR*sinP + mz*cosR*sinP
	yh := my*cosR - mz*sinR

	azimuth := math.Atan2(yh, xh)
	if azimuth < 0 {
		azimuth += 2 * math.Pi
	}
	// A tiny negative angle plus 2π rounds to exactly 2π in float64.
	if azimuth >= 2*math.Pi {
		azimuth -= 2 * math.Pi
	}

	return Orientation{Pitch: pitch, Roll: roll, Azimuth: azimuth}
}

// Needle returns the needle end for an azimuth, truncating toward zero.
func (d Dial) Needle(azimuth float64) NeedlePoint {
	sin, cos := math.Sincos(azimuth)
	return NeedlePoint{
		X: int(float64(d.CenterX) + float64(d.Radius)*sin),
		Y: int(float64(d.CenterY) - float64(d.Radius)*cos),
	}
}

// Degrees converts radians to the integer degrees shown on the display,
// truncating toward zero and using ApproxPi.
func Degrees(rad float64) int {
	return int(rad * 180.0 / ApproxPi)
}

// PreciseDegrees converts radians to degrees with math.Pi. Used by the
// telemetry outputs, never by the display.
func PreciseDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// Reading is everything one cycle produced, as published to telemetry.
type Reading struct {
	Time time.Time `json:"time"`

	Orientation

	HeadingDeg int `json:"heading_deg"`
	PitchDeg   int `json:"pitch_deg"`
	RollDeg    int `json:"roll_deg"`

	// Heading in degrees computed with math.Pi.
	Heading float64 `json:"heading"`

	Needle NeedlePoint `json:"needle"`
	Raw    imu.IMURaw  `json:"raw"`
}

// NewReading assembles a Reading for one cycle.
func NewReading(t time.Time, o Orientation, needle NeedlePoint, raw imu.IMURaw) Reading {
	return Reading{
		Time:        t,
		Orientation: o,
		HeadingDeg:  Degrees(o.Azimuth),
		PitchDeg:    Degrees(o.Pitch),
		RollDeg:     Degrees(o.Roll),
		Heading:     PreciseDegrees(o.Azimuth),
		Needle:      needle,
		Raw:         raw,
	}
}

// Source is anything that can provide raw sensor pairs over time.
type Source interface {
	Next() (imu.Motion, imu.MagSample, error)
}
