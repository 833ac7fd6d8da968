package timestate

import (
	"fmt"
	"maps"
	"time"

	"github.com/rocontrol/rocontrol-go/pkg/timecode"
)

// LivenessWindow is how long a state counts as alive after its last update.
const LivenessWindow = 5 * time.Second

// MetadataError is the metadata key holding the reason passed to Fail.
const MetadataError = "error"

// TimeState is the tracked run status and position of one source.
type TimeState struct {
	ID              string             `json:"id" yaml:"id"`
	Name            string             `json:"name" yaml:"name"`
	SourceType      SourceType         `json:"source_type" yaml:"source_type"`
	RunState        RunState           `json:"run_state" yaml:"run_state"`
	DurationType    DurationType       `json:"duration_type" yaml:"duration_type"`
	StartTime       *time.Time         `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	ElapsedMS       uint64             `json:"elapsed_ms" yaml:"elapsed_ms"`
	Timecode        *timecode.Timecode `json:"timecode,omitempty" yaml:"timecode,omitempty"`
	ProgressPercent float64            `json:"progress_percent" yaml:"progress_percent"`
	LastUpdate      time.Time          `json:"last_update" yaml:"last_update"`
	FrameCount      uint64             `json:"frame_count" yaml:"frame_count"`
	DroppedFrames   uint64             `json:"dropped_frames" yaml:"dropped_frames"`
	LatencyMS       float64            `json:"latency_ms" yaml:"latency_ms"`
	Metadata        map[string]string  `json:"metadata" yaml:"metadata"`

	now func() time.Time
}

// New creates a stopped state from a registration.
func New(reg Registration) *TimeState {
	return newWithClock(reg, time.Now)
}

func newWithClock(reg Registration, now func() time.Time) *TimeState {
	return &TimeState{
		ID:           reg.ID,
		Name:         reg.Name,
		SourceType:   reg.SourceType,
		RunState:     Stopped,
		DurationType: reg.DurationType,
		LastUpdate:   now(),
		Metadata:     make(map[string]string),
		now:          now,
	}
}

func (s *TimeState) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Start begins or resumes playback. From Stopped or Cueing playback starts
// at zero; from Paused it continues at the frozen elapsed time. A non-nil
// framerate resets the timecode to that rate.
func (s *TimeState) Start(framerate *timecode.Framerate) error {
	now := s.clock()

	switch s.RunState {
	case Stopped, Cueing:
		start := now
		s.StartTime = &start
		s.ElapsedMS = 0
		s.ProgressPercent = 0
		if framerate != nil {
			tc := timecode.Zero(*framerate)
			s.Timecode = &tc
		} else if s.Timecode != nil {
			*s.Timecode = timecode.Zero(s.Timecode.Framerate)
		}
	case Paused:
		start := now.Add(-time.Duration(s.ElapsedMS) * time.Millisecond)
		s.StartTime = &start
		if framerate != nil {
			tc := timecode.FromMilliseconds(s.ElapsedMS, *framerate)
			s.Timecode = &tc
		}
	default:
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.RunState)
	}

	s.RunState = Playing
	s.LastUpdate = now
	return nil
}

// Pause freezes playback at the current position. Pausing a paused state
// is a no-op.
func (s *TimeState) Pause() error {
	switch s.RunState {
	case Paused:
		return nil
	case Playing:
	default:
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, s.RunState)
	}

	now := s.clock()
	s.advance(now)
	s.RunState = Paused
	s.LastUpdate = now
	return nil
}

// Stop returns the state to Stopped and resets the position to zero.
// Stop is legal from every state.
func (s *TimeState) Stop() {
	s.RunState = Stopped
	s.StartTime = nil
	s.ElapsedMS = 0
	s.ProgressPercent = 0
	if s.Timecode != nil {
		*s.Timecode = timecode.Zero(s.Timecode.Framerate)
	}
	delete(s.Metadata, MetadataError)
	s.LastUpdate = s.clock()
}

// Cue moves a stopped source into pre-roll. Cueing an already cueing state
// is a no-op.
func (s *TimeState) Cue() error {
	switch s.RunState {
	case Cueing:
		return nil
	case Stopped:
	default:
		return fmt.Errorf("%w: cue from %s", ErrInvalidTransition, s.RunState)
	}
	s.RunState = Cueing
	s.LastUpdate = s.clock()
	return nil
}

// Fail moves the state to Error and records reason in the metadata. The
// position is frozen; only Stop leaves Error.
func (s *TimeState) Fail(reason string) {
	if s.RunState == Playing {
		s.advance(s.clock())
	}
	s.RunState = Error
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	s.Metadata[MetadataError] = reason
	s.LastUpdate = s.clock()
}

// Update refreshes LastUpdate in every run state and advances elapsed
// time, timecode and progress while Playing. A finite source whose elapsed
// time reaches its duration completes. It reports whether the state
// completed during this call.
func (s *TimeState) Update() bool {
	now := s.clock()
	s.LastUpdate = now
	if s.RunState != Playing || s.StartTime == nil {
		return false
	}

	s.advance(now)

	if s.DurationType.IsFinite() && s.ElapsedMS >= s.DurationType.DurationMS {
		s.complete(now)
		return true
	}
	return false
}

// advance recomputes the position from the start time. Elapsed time never
// moves backwards while playing.
func (s *TimeState) advance(now time.Time) {
	if s.StartTime == nil {
		return
	}
	if d := now.Sub(*s.StartTime); d > 0 {
		if ms := uint64(d.Milliseconds()); ms > s.ElapsedMS {
			s.ElapsedMS = ms
		}
	}
	if s.Timecode != nil {
		*s.Timecode = timecode.FromMilliseconds(s.ElapsedMS, s.Timecode.Framerate)
	}
	if s.DurationType.IsFinite() {
		s.ProgressPercent = progress(s.ElapsedMS, s.DurationType.DurationMS)
	}
}

// complete is the end-of-media transition: a Stop that leaves progress at
// 100.
func (s *TimeState) complete(now time.Time) {
	s.Stop()
	s.ProgressPercent = 100
	s.LastUpdate = now
}

func progress(elapsed, duration uint64) float64 {
	if duration == 0 || elapsed >= duration {
		return 100
	}
	return float64(elapsed) / float64(duration) * 100
}

// IsAlive reports whether the state was updated within LivenessWindow.
// It is independent of the run state.
func (s *TimeState) IsAlive() bool {
	return s.clock().Sub(s.LastUpdate) < LivenessWindow
}

// Remaining returns the milliseconds left for a finite source, clamped at
// zero. ok is false for indefinite sources.
func (s *TimeState) Remaining() (ms uint64, ok bool) {
	if !s.DurationType.IsFinite() {
		return 0, false
	}
	if s.ElapsedMS >= s.DurationType.DurationMS {
		return 0, true
	}
	return s.DurationType.DurationMS - s.ElapsedMS, true
}

// ReportFrame counts a frame produced by the source. FrameCount includes
// dropped frames; DroppedFrames counts only those.
func (s *TimeState) ReportFrame(dropped bool) {
	s.FrameCount++
	if dropped {
		s.DroppedFrames++
	}
	s.LastUpdate = s.clock()
}

// Clone returns a deep copy safe to hand out of the owning manager.
func (s *TimeState) Clone() TimeState {
	c := *s
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	if s.Timecode != nil {
		tc := *s.Timecode
		c.Timecode = &tc
	}
	c.Metadata = maps.Clone(s.Metadata)
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	return c
}
