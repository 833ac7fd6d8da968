package timecode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Timecode errors.
var (
	ErrInvalidFramerate = errors.New("invalid framerate")
	ErrInvalidTimecode  = errors.New("invalid timecode")
)

// MaxHours is the largest representable hour value.
const MaxHours = 99

// Timecode is an H:M:S:F position at a given framerate.
type Timecode struct {
	Hours     uint8     `json:"hours" yaml:"hours"`
	Minutes   uint8     `json:"minutes" yaml:"minutes"`
	Seconds   uint8     `json:"seconds" yaml:"seconds"`
	Frames    uint8     `json:"frames" yaml:"frames"`
	Framerate Framerate `json:"framerate" yaml:"framerate"`
}

// New creates a validated timecode.
func New(hours, minutes, seconds, frames uint8, framerate Framerate) (Timecode, error) {
	tc := Timecode{
		Hours:     hours,
		Minutes:   minutes,
		Seconds:   seconds,
		Frames:    frames,
		Framerate: framerate,
	}
	if err := tc.Validate(); err != nil {
		return Timecode{}, err
	}
	return tc, nil
}

// Zero returns 00:00:00:00 at the given framerate.
func Zero(framerate Framerate) Timecode {
	return Timecode{Framerate: framerate}
}

// Max returns the largest representable timecode at the given framerate.
func Max(framerate Framerate) Timecode {
	return FromTotalFrames(MaxTotalFrames(framerate), framerate)
}

// MaxTotalFrames returns the frame count of Max(framerate).
func MaxTotalFrames(framerate Framerate) uint64 {
	return uint64(MaxHours+1)*3600*uint64(framerate.FramesPerSecond()) - 1
}

// Validate checks field ranges against the framerate.
func (tc Timecode) Validate() error {
	if !tc.Framerate.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidFramerate, uint8(tc.Framerate))
	}
	if tc.Hours > MaxHours {
		return fmt.Errorf("%w: hours %d > %d", ErrInvalidTimecode, tc.Hours, MaxHours)
	}
	if tc.Minutes >= 60 {
		return fmt.Errorf("%w: minutes %d", ErrInvalidTimecode, tc.Minutes)
	}
	if tc.Seconds >= 60 {
		return fmt.Errorf("%w: seconds %d", ErrInvalidTimecode, tc.Seconds)
	}
	if tc.Frames >= tc.Framerate.FramesPerSecond() {
		return fmt.Errorf("%w: frames %d >= %d", ErrInvalidTimecode, tc.Frames, tc.Framerate.FramesPerSecond())
	}
	return nil
}

// FromMilliseconds converts a millisecond offset to a timecode.
// Hours, minutes and seconds come from integer division of ms/1000; frames
// are floor((ms mod 1000)/1000 * FPS). Offsets past the hour range saturate
// at Max(framerate).
func FromMilliseconds(ms uint64, framerate Framerate) Timecode {
	totalSeconds := ms / 1000
	remaining := ms % 1000

	if totalSeconds/3600 > MaxHours {
		return Max(framerate)
	}

	frames := uint8(float64(remaining) * framerate.FPS() / 1000)

	return Timecode{
		Hours:     uint8(totalSeconds / 3600),
		Minutes:   uint8((totalSeconds % 3600) / 60),
		Seconds:   uint8(totalSeconds % 60),
		Frames:    frames,
		Framerate: framerate,
	}
}

// ToMilliseconds converts the timecode back to milliseconds. The frame part
// is truncated, so a round trip through FromMilliseconds loses up to one
// frame duration.
func (tc Timecode) ToMilliseconds() uint64 {
	fps := tc.Framerate.FPS()
	if fps == 0 {
		return tc.totalSeconds() * 1000
	}
	frameMS := uint64(float64(tc.Frames) * 1000 / fps)
	return tc.totalSeconds()*1000 + frameMS
}

// TotalFrames returns (h*3600 + m*60 + s) * FramesPerSecond + frames.
func (tc Timecode) TotalFrames() uint64 {
	return tc.totalSeconds()*uint64(tc.Framerate.FramesPerSecond()) + uint64(tc.Frames)
}

// FromTotalFrames converts a frame count to a timecode, saturating at
// Max(framerate).
func FromTotalFrames(total uint64, framerate Framerate) Timecode {
	fps := uint64(framerate.FramesPerSecond())
	if fps == 0 {
		return Timecode{Framerate: framerate}
	}
	if max := MaxTotalFrames(framerate); total > max {
		total = max
	}

	totalSeconds := total / fps
	totalMinutes := totalSeconds / 60

	return Timecode{
		Hours:     uint8(totalMinutes / 60),
		Minutes:   uint8(totalMinutes % 60),
		Seconds:   uint8(totalSeconds % 60),
		Frames:    uint8(total % fps),
		Framerate: framerate,
	}
}

// AddFrames returns the timecode moved by delta frames. The result never
// goes below zero and saturates at Max.
func (tc Timecode) AddFrames(delta int64) Timecode {
	total := tc.TotalFrames()
	if delta < 0 {
		// -(delta+1)+1 avoids overflow for math.MinInt64.
		dec := uint64(-(delta + 1)) + 1
		if dec >= total {
			total = 0
		} else {
			total -= dec
		}
	} else {
		total += uint64(delta)
	}
	return FromTotalFrames(total, tc.Framerate)
}

// IsZero reports whether the position is 00:00:00:00.
func (tc Timecode) IsZero() bool {
	return tc.Hours == 0 && tc.Minutes == 0 && tc.Seconds == 0 && tc.Frames == 0
}

// String formats as HH:MM:SS:FF. The drop-frame label uses ';' before the
// frame field.
func (tc Timecode) String() string {
	sep := ":"
	if tc.Framerate.IsDropFrame() {
		sep = ";"
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%02d", tc.Hours, tc.Minutes, tc.Seconds, sep, tc.Frames)
}

// Parse parses HH:MM:SS:FF (or HH:MM:SS;FF) at the given framerate.
func Parse(s string, framerate Framerate) (Timecode, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), ";", ":")
	parts := strings.Split(normalized, ":")
	if len(parts) != 4 {
		return Timecode{}, fmt.Errorf("%w: %q", ErrInvalidTimecode, s)
	}

	var fields [4]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return Timecode{}, fmt.Errorf("%w: %q", ErrInvalidTimecode, s)
		}
		fields[i] = uint8(n)
	}

	return New(fields[0], fields[1], fields[2], fields[3], framerate)
}

func (tc Timecode) totalSeconds() uint64 {
	return uint64(tc.Hours)*3600 + uint64(tc.Minutes)*60 + uint64(tc.Seconds)
}
