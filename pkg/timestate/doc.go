// Package timestate tracks the run status and position of time-based
// sources such as video and audio players, DMX outputs and cue lists.
//
// Each source is a TimeState with a small state machine:
//
//	Stopped --Start--> Playing --Pause--> Paused --Start--> Playing
//	Stopped --Cue----> Cueing  --Start--> Playing
//	any     --Stop---> Stopped
//	any     --Fail---> Error   --Stop---> Stopped
//
// Positions advance only when Update is called, normally by Manager.Run on
// a fixed tick. Pausing freezes the elapsed time; resuming continues from
// the frozen position. A finite source that reaches its duration completes:
// it returns to Stopped with progress held at 100 percent until the next
// explicit Stop or Start.
package timestate
