// Package timecode implements positional H:M:S:F clocks tied to a framerate.
//
// # Framerates
//
// Five framerates are supported: 24, 25, 30, 29.97 and 60. Each has a
// real-valued rate (FPS) used when converting from and to milliseconds, and
// an integer frame-count divisor (FramesPerSecond) used for frame arithmetic.
// The 29.97 rate is labelled drop-frame and counts 30 frames per second.
//
// # Drop Frame
//
// Drop-frame is approximated: milliseconds are converted with the 29.97
// rate and truncated to whole frames. No SMPTE frame-number skipping is
// performed, so 29.97 timecodes drift from wall-clock drop-frame labels by
// about 3.6 seconds per hour. This is intentional.
//
// # Range
//
// The hour field is a two-digit counter. Values past 99:59:59 and the last
// frame saturate at that maximum instead of wrapping.
package timecode
