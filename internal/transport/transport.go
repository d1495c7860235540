// Package transport holds the playback state and turns input events into
// actions for the playback loop.
package transport

import (
	"strings"

	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/pacer"
	"github.com/NekoSaan/h264Player/internal/seek"
)

// State of the transport.
type State int

const (
	Playing State = iota
	Paused
	Terminated
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Event is a user command.
type Event int

const (
	Other Event = iota
	Quit
	SeekLeft
	SeekRight
	PauseToggle
	RateUp
	RateDown
)

var eventNames = map[Event]string{
	Other:       "other",
	Quit:        "quit",
	SeekLeft:    "left",
	SeekRight:   "right",
	PauseToggle: "pause",
	RateUp:      "faster",
	RateDown:    "slower",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "other"
}

// ParseEvent maps a command name ("pause", "left", "right", "quit",
// "faster", "slower") to its event.
func ParseEvent(name string) (Event, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for e, n := range eventNames {
		if e != Other && n == name {
			return e, true
		}
	}
	return Other, false
}

// ActionKind tells the loop what to do after an event.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionSeek
	ActionPause
	ActionResume
	ActionRate
	ActionQuit
)

func (k ActionKind) String() string {
	switch k {
	case ActionSeek:
		return "seek"
	case ActionPause:
		return "pause"
	case ActionResume:
		return "resume"
	case ActionRate:
		return "rate"
	case ActionQuit:
		return "quit"
	default:
		return "none"
	}
}

// Action is the outcome of a dispatched event. Seek is set for ActionSeek,
// Rate for ActionRate.
type Action struct {
	Kind ActionKind
	Seek seek.Request
	Rate float64
}

// PlaybackState is what the transport knows about the session.
type PlaybackState struct {
	// Timestamp of the last presented frame in stream ticks, or
	// media.NoTimestamp before the first one.
	Timestamp int64
	Paused    bool
	Rate      float64
}

// RateStep is the factor RateUp and RateDown apply.
const RateStep = 2.0

// Machine is the transport state machine. It is owned by the playback loop
// and not safe for concurrent use.
type Machine struct {
	state    State
	playback PlaybackState
}

// NewMachine starts in Playing at the given rate.
func NewMachine(rate float64) *Machine {
	return &Machine{
		state: Playing,
		playback: PlaybackState{
			Timestamp: media.NoTimestamp,
			Rate:      pacer.NormalizeRate(rate),
		},
	}
}

// Dispatch applies an event. Once terminated every event is ignored.
func (m *Machine) Dispatch(ev Event) Action {
	if m.state == Terminated {
		return Action{Kind: ActionNone}
	}

	switch ev {
	case Quit:
		m.state = Terminated
		return Action{Kind: ActionQuit}

	case PauseToggle:
		if m.state == Playing {
			m.state = Paused
			m.playback.Paused = true
			return Action{Kind: ActionPause}
		}
		m.state = Playing
		m.playback.Paused = false
		return Action{Kind: ActionResume}

	case SeekLeft, SeekRight:
		dir := seek.Backward
		if ev == SeekRight {
			dir = seek.Forward
		}
		return Action{
			Kind: ActionSeek,
			Seek: seek.Request{Direction: dir, Reference: m.playback.Timestamp},
		}

	case RateUp, RateDown:
		factor := RateStep
		if ev == RateDown {
			factor = 1 / RateStep
		}
		r := pacer.StepRate(m.playback.Rate, factor)
		if r == m.playback.Rate {
			return Action{Kind: ActionNone}
		}
		m.playback.Rate = r
		return Action{Kind: ActionRate, Rate: r}

	default:
		return Action{Kind: ActionNone}
	}
}

// Presented records the timestamp of the frame just shown.
func (m *Machine) Presented(ts int64) {
	m.playback.Timestamp = ts
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) Playback() PlaybackState {
	return m.playback
}

func (m *Machine) Paused() bool {
	return m.state == Paused
}

func (m *Machine) Terminated() bool {
	return m.state == Terminated
}
