package config

import (
	"fmt"
	"math"
	"net"

	"github.com/NekoSaan/h264Player/internal/timebase"
)

func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}

	if err := c.Remux.Validate(); err != nil {
		return fmt.Errorf("remux config: %w", err)
	}

	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control config: %w", err)
	}

	if err := c.Resume.Validate(); err != nil {
		return fmt.Errorf("resume config: %w", err)
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Path == "" {
		return fmt.Errorf("metrics path cannot be empty")
	}

	return nil
}

func (p *PlaybackConfig) Validate() error {
	if p.FrameDuration < 0 {
		return fmt.Errorf("frame_duration cannot be negative")
	}

	if p.SeekStep <= 0 {
		return fmt.Errorf("seek_step must be positive")
	}

	if p.PausePollInterval <= 0 {
		return fmt.Errorf("pause_poll_interval must be positive")
	}

	if p.Renderer != "tui" && p.Renderer != "log" {
		return fmt.Errorf("renderer must be 'tui' or 'log'")
	}

	if p.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max_consecutive_failures must be positive")
	}

	if p.InputQueueSize <= 0 {
		return fmt.Errorf("input_queue_size must be positive")
	}

	return nil
}

func (s *SourceConfig) Validate() error {
	if err := validateFrameRate(s.FrameRate); err != nil {
		return err
	}

	if s.ElementaryTimescale <= 0 {
		return fmt.Errorf("elementary_timescale must be positive")
	}

	return nil
}

func (r *RemuxConfig) Validate() error {
	if r.Timescale <= 0 || r.Timescale > math.MaxUint32 {
		return fmt.Errorf("timescale must be between 1 and %d", uint32(math.MaxUint32))
	}

	if err := validateFrameRate(r.FrameRate); err != nil {
		return err
	}

	if r.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max_consecutive_failures must be positive")
	}

	if r.FragmentDuration < 0 {
		return fmt.Errorf("fragment_duration cannot be negative")
	}

	return nil
}

func (c *ControlConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen_addr %q: %w", c.ListenAddr, err)
	}

	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("read_timeout and write_timeout must be positive")
	}

	return nil
}

func (r *ResumeConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required")
	}

	if r.RedisDB < 0 {
		return fmt.Errorf("redis_db cannot be negative")
	}

	if r.KeyPrefix == "" {
		return fmt.Errorf("key_prefix cannot be empty")
	}

	if r.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative")
	}

	return nil
}

func validateFrameRate(s string) error {
	if s == "" {
		return nil
	}

	fr, err := timebase.ParseRational(s)
	if err != nil {
		return fmt.Errorf("invalid frame_rate: %w", err)
	}
	if fr.Num <= 0 {
		return fmt.Errorf("frame_rate must be positive")
	}

	return nil
}
