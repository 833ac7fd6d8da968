package timestate

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by time state operations.
var (
	ErrStateNotFound       = errors.New("time state not found")
	ErrStateExists         = errors.New("time state already registered")
	ErrInvalidTransition   = errors.New("invalid run state transition")
	ErrInvalidRegistration = errors.New("invalid time state registration")
	ErrUnavailable         = errors.New("time state manager closed")
)

// SourceType is the kind of time-based source.
type SourceType uint8

const (
	SourceVideoPlayback SourceType = iota + 1
	SourceAudioPlayback
	SourceNdiStream
	SourceArtNetInput
	SourceSacnInput
	SourceDmxOutput
	SourceCueList
	SourceExecutor
)

var sourceTypeNames = map[SourceType]string{
	SourceVideoPlayback: "video_playback",
	SourceAudioPlayback: "audio_playback",
	SourceNdiStream:     "ndi_stream",
	SourceArtNetInput:   "art_net_input",
	SourceSacnInput:     "sacn_input",
	SourceDmxOutput:     "dmx_output",
	SourceCueList:       "cue_list",
	SourceExecutor:      "executor",
}

// String returns the snake_case name used on the wire.
func (s SourceType) String() string {
	if name, ok := sourceTypeNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSourceType parses a snake_case source type name.
func ParseSourceType(name string) (SourceType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for st, n := range sourceTypeNames {
		if n == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown source type %q", ErrInvalidRegistration, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s SourceType) MarshalText() ([]byte, error) {
	if _, ok := sourceTypeNames[s]; !ok {
		return nil, fmt.Errorf("%w: source type %d", ErrInvalidRegistration, uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SourceType) UnmarshalText(text []byte) error {
	parsed, err := ParseSourceType(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RunState is the playback status of a source. The zero value is Stopped.
type RunState uint8

const (
	Stopped RunState = iota
	Playing
	Paused
	Cueing
	Error
)

// String returns the lowercase state name.
func (r RunState) String() string {
	switch r {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Cueing:
		return "cueing"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r RunState) MarshalText() ([]byte, error) {
	if r > Error {
		return nil, fmt.Errorf("invalid run state %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RunState) UnmarshalText(text []byte) error {
	for s := Stopped; s <= Error; s++ {
		if s.String() == strings.ToLower(string(text)) {
			*r = s
			return nil
		}
	}
	return fmt.Errorf("invalid run state %q", string(text))
}

// DurationKind distinguishes finite media from open-ended sources.
type DurationKind uint8

const (
	Indefinite DurationKind = iota
	Finite
)

// String returns "finite" or "indefinite".
func (k DurationKind) String() string {
	if k == Finite {
		return "finite"
	}
	return "indefinite"
}

// MarshalText implements encoding.TextMarshaler.
func (k DurationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *DurationKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "finite":
		*k = Finite
	case "indefinite":
		*k = Indefinite
	default:
		return fmt.Errorf("%w: unknown duration type %q", ErrInvalidRegistration, string(text))
	}
	return nil
}

// DurationType is either Finite with a length in milliseconds or
// Indefinite. It encodes as {"type":"finite","duration_ms":N} or
// {"type":"indefinite"}.
type DurationType struct {
	Kind       DurationKind `json:"type" yaml:"type"`
	DurationMS uint64       `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

// FiniteDuration returns a finite duration of ms milliseconds.
func FiniteDuration(ms uint64) DurationType {
	return DurationType{Kind: Finite, DurationMS: ms}
}

// IndefiniteDuration returns the open-ended duration.
func IndefiniteDuration() DurationType {
	return DurationType{Kind: Indefinite}
}

// IsFinite reports whether the source has a known length.
func (d DurationType) IsFinite() bool {
	return d.Kind == Finite
}

// String formats the duration for display.
func (d DurationType) String() string {
	if d.IsFinite() {
		return fmt.Sprintf("finite(%dms)", d.DurationMS)
	}
	return "indefinite"
}

// Registration is the inbound request creating a time state.
type Registration struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	SourceType   SourceType   `json:"source_type" yaml:"source_type"`
	DurationType DurationType `json:"duration_type" yaml:"duration_type"`
}

// Validate checks the registration fields.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRegistration)
	}
	if _, ok := sourceTypeNames[r.SourceType]; !ok {
		return fmt.Errorf("%w: source type %d", ErrInvalidRegistration, uint8(r.SourceType))
	}
	if r.DurationType.Kind > Finite {
		return fmt.Errorf("%w: duration kind %d", ErrInvalidRegistration, uint8(r.DurationType.Kind))
	}
	return nil
}
