package player

import (
	"time"

	"github.com/NekoSaan/h264Player/internal/media"
)

// Status is a snapshot of a playback session.
type Status struct {
	SessionID string        `json:"session_id"`
	Input     string        `json:"input"`
	State     string        `json:"state"`
	Rate      float64       `json:"rate"`
	Position  time.Duration `json:"position_ns"`
	Duration  time.Duration `json:"duration_ns"`
	Frame     FrameStatus   `json:"frame"`
	Presented int64         `json:"frames_presented"`
	Skipped   int64         `json:"frames_skipped"`
}

// FrameStatus describes the last presented frame.
type FrameStatus struct {
	Index    int64  `json:"index"`
	Type     string `json:"type"`
	Keyframe bool   `json:"keyframe"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int    `json:"size"`
}

// Progress returns the position as a fraction of the duration, or 0.
func (s Status) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	p := float64(s.Position) / float64(s.Duration)
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

// Observer receives a status after every presented frame and every
// transport change. Observers are called from the playback loop and must
// not block.
type Observer interface {
	ObserveStatus(Status)
}

func frameStatus(f *media.Frame) FrameStatus {
	return FrameStatus{
		Index:    f.Index,
		Type:     f.Type.String(),
		Keyframe: f.Keyframe,
		Width:    f.Width,
		Height:   f.Height,
		Size:     f.Size,
	}
}
