package logger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Per-frame log categories. Lines in these categories fire once per frame
// or packet and are sampled; anything else always logs.
const (
	CategoryPresentation = "presentation"
	CategoryPacketWrite  = "packet_write"
	CategoryDecode       = "decode"
	CategoryPacing       = "pacing"
	CategoryInput        = "input"
)

// SampledLogger rate limits high frequency categories. Lines that are
// dropped are counted and reported on the next line that gets through.
type SampledLogger struct {
	Logger
	samplers *samplerSet
}

type samplerSet struct {
	mu       sync.RWMutex
	samplers map[string]*sampler
}

type sampler struct {
	limiter *rate.Limiter
	seen    atomic.Int64
	dropped atomic.Int64
	pending atomic.Int64
}

// SamplerStats holds statistics for one category.
type SamplerStats struct {
	Category string `json:"category"`
	Seen     int64  `json:"seen"`
	Dropped  int64  `json:"dropped"`
}

// NewSampledLogger wraps base with no samplers configured.
func NewSampledLogger(base Logger) *SampledLogger {
	return &SampledLogger{
		Logger:   OrNull(base),
		samplers: &samplerSet{samplers: make(map[string]*sampler)},
	}
}

// WithSampler lets through at most one line per interval for category,
// after an initial burst.
func (s *SampledLogger) WithSampler(category string, interval time.Duration, burst int) *SampledLogger {
	s.samplers.mu.Lock()
	defer s.samplers.mu.Unlock()

	s.samplers.samplers[category] = &sampler{
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
	return s
}

// NewPlaybackLogger returns a SampledLogger tuned for the per-frame
// categories of playback and remuxing.
func NewPlaybackLogger(base Logger) *SampledLogger {
	return NewSampledLogger(base).
		WithSampler(CategoryPresentation, time.Second, 5).
		WithSampler(CategoryPacketWrite, time.Second, 5).
		WithSampler(CategoryDecode, 500*time.Millisecond, 3).
		WithSampler(CategoryPacing, 2*time.Second, 1).
		WithSampler(CategoryInput, 100*time.Millisecond, 10)
}

func (s *SampledLogger) allow(category string) (bool, int64) {
	s.samplers.mu.RLock()
	smp, ok := s.samplers.samplers[category]
	s.samplers.mu.RUnlock()
	if !ok {
		return true, 0
	}

	smp.seen.Add(1)
	if !smp.limiter.Allow() {
		smp.dropped.Add(1)
		smp.pending.Add(1)
		return false, 0
	}
	return true, smp.pending.Swap(0)
}

// Sampled logs msg in category at level if the category's sampler allows it.
func (s *SampledLogger) Sampled(level logrus.Level, category, msg string, fields map[string]interface{}) {
	ok, suppressed := s.allow(category)
	if !ok {
		return
	}

	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["category"] = category
	if suppressed > 0 {
		out["suppressed"] = suppressed
	}
	s.Logger.WithFields(out).Log(level, msg)
}

func (s *SampledLogger) DebugWithCategory(category, msg string, fields map[string]interface{}) {
	s.Sampled(logrus.DebugLevel, category, msg, fields)
}

func (s *SampledLogger) InfoWithCategory(category, msg string, fields map[string]interface{}) {
	s.Sampled(logrus.InfoLevel, category, msg, fields)
}

func (s *SampledLogger) WarnWithCategory(category, msg string, fields map[string]interface{}) {
	s.Sampled(logrus.WarnLevel, category, msg, fields)
}

// Stats returns per-category counters.
func (s *SampledLogger) Stats() map[string]SamplerStats {
	s.samplers.mu.RLock()
	defer s.samplers.mu.RUnlock()

	stats := make(map[string]SamplerStats, len(s.samplers.samplers))
	for name, smp := range s.samplers.samplers {
		stats[name] = SamplerStats{
			Category: name,
			Seen:     smp.seen.Load(),
			Dropped:  smp.dropped.Load(),
		}
	}
	return stats
}

// The With* methods keep the sampler state shared with the parent so a
// derived logger does not get a fresh burst.

func (s *SampledLogger) WithFields(fields map[string]interface{}) Logger {
	return &SampledLogger{Logger: s.Logger.WithFields(fields), samplers: s.samplers}
}

func (s *SampledLogger) WithField(key string, value interface{}) Logger {
	return &SampledLogger{Logger: s.Logger.WithField(key, value), samplers: s.samplers}
}

func (s *SampledLogger) WithError(err error) Logger {
	return &SampledLogger{Logger: s.Logger.WithError(err), samplers: s.samplers}
}
