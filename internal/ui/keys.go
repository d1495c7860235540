package ui

import (
	"strings"

	"github.com/NekoSaan/h264Player/internal/transport"
)

// EventSink accepts events from an input device. *input.Queue is one.
type EventSink interface {
	Push(ev transport.Event, origin string) error
}

// KeyEvent maps a key name as bubbletea reports it to a transport event.
func KeyEvent(key string) transport.Event {
	switch strings.ToLower(key) {
	case "q", "esc", "ctrl+c":
		return transport.Quit
	case "left", "h":
		return transport.SeekLeft
	case "right", "l":
		return transport.SeekRight
	case " ", "space", "p":
		return transport.PauseToggle
	case "+", "=", "up":
		return transport.RateUp
	case "-", "_", "down":
		return transport.RateDown
	default:
		return transport.Other
	}
}

const helpLine = "←/→ seek  space pause  +/- rate  q quit"
