package timecode

import (
	"fmt"
	"strings"
)

// Framerate is one of the supported timecode rates.
type Framerate uint8

const (
	// Fps24 is film rate.
	Fps24 Framerate = iota + 1

	// Fps25 is PAL rate.
	Fps25

	// Fps30 is NTSC non-drop rate.
	Fps30

	// Fps2997 is NTSC drop-frame labelled rate.
	Fps2997

	// Fps60 is high frame rate.
	Fps60
)

// DefaultFramerate is used when no master framerate is configured.
const DefaultFramerate = Fps30

// FPS returns the real-valued frame rate.
func (f Framerate) FPS() float64 {
	switch f {
	case Fps24:
		return 24
	case Fps25:
		return 25
	case Fps30:
		return 30
	case Fps2997:
		return 29.97
	case Fps60:
		return 60
	default:
		return 0
	}
}

// FramesPerSecond returns the integer frame-count divisor.
// The drop-frame label counts 30 frames per second.
func (f Framerate) FramesPerSecond() uint8 {
	switch f {
	case Fps24:
		return 24
	case Fps25:
		return 25
	case Fps30, Fps2997:
		return 30
	case Fps60:
		return 60
	default:
		return 0
	}
}

// IsDropFrame reports whether the rate carries the drop-frame label.
func (f Framerate) IsDropFrame() bool {
	return f == Fps2997
}

// Valid reports whether f is one of the supported rates.
func (f Framerate) Valid() bool {
	return f >= Fps24 && f <= Fps60
}

// String returns the rate as written in configuration ("24", "29.97", ...).
func (f Framerate) String() string {
	switch f {
	case Fps24:
		return "24"
	case Fps25:
		return "25"
	case Fps30:
		return "30"
	case Fps2997:
		return "29.97"
	case Fps60:
		return "60"
	default:
		return "UNKNOWN"
	}
}

// ParseFramerate parses a rate name. "29.97", "2997" and "29.97df" all
// select the drop-frame label.
func ParseFramerate(s string) (Framerate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "24":
		return Fps24, nil
	case "25":
		return Fps25, nil
	case "30":
		return Fps30, nil
	case "29.97", "2997", "29.97df":
		return Fps2997, nil
	case "60":
		return Fps60, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidFramerate, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Framerate) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFramerate, uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Framerate) UnmarshalText(text []byte) error {
	parsed, err := ParseFramerate(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
