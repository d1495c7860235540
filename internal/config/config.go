package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// H264PLAYER_PLAYBACK_RATE=2.
const EnvPrefix = "H264PLAYER"

type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Source   SourceConfig   `mapstructure:"source"`
	Remux    RemuxConfig    `mapstructure:"remux"`
	Control  ControlConfig  `mapstructure:"control"`
	Resume   ResumeConfig   `mapstructure:"resume"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type PlaybackConfig struct {
	// Nominal time between two presented frames at rate 1. Zero derives it
	// from the stream frame rate.
	FrameDuration          time.Duration `mapstructure:"frame_duration"`
	// Starting rate multiplier. Unset or not positive plays at 1.
	Rate                   float64       `mapstructure:"rate"`
	SeekStep               time.Duration `mapstructure:"seek_step"`
	PausePollInterval      time.Duration `mapstructure:"pause_poll_interval"`
	Renderer               string        `mapstructure:"renderer"` // tui or log
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	InputQueueSize         int           `mapstructure:"input_queue_size"`
}

type SourceConfig struct {
	// FrameRate overrides the stream frame rate ("25", "30000/1001").
	// Empty uses the SPS timing information.
	FrameRate string `mapstructure:"frame_rate"`
	// ElementaryTimescale is the tick rate assigned to raw elementary streams.
	ElementaryTimescale int64 `mapstructure:"elementary_timescale"`
}

type RemuxConfig struct {
	Timescale              int64         `mapstructure:"timescale"`
	FrameRate              string        `mapstructure:"frame_rate"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	FragmentDuration       time.Duration `mapstructure:"fragment_duration"`
}

type ControlConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ListenAddr   string        `mapstructure:"listen_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ResumeConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
}

// Load reads the configuration. An empty configPath uses defaults and
// environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")

	// Playback defaults
	v.SetDefault("playback.frame_duration", "0s")
	v.SetDefault("playback.rate", 1.0)
	v.SetDefault("playback.seek_step", "1s")
	v.SetDefault("playback.pause_poll_interval", "10ms")
	v.SetDefault("playback.renderer", "tui")
	v.SetDefault("playback.max_consecutive_failures", 3)
	v.SetDefault("playback.input_queue_size", 64)

	// Source defaults
	v.SetDefault("source.frame_rate", "")
	v.SetDefault("source.elementary_timescale", 90000)

	// Remux defaults
	v.SetDefault("remux.timescale", 90000)
	v.SetDefault("remux.frame_rate", "")
	v.SetDefault("remux.max_consecutive_failures", 3)
	v.SetDefault("remux.fragment_duration", "0s") // one fragment per keyframe

	// Control defaults
	v.SetDefault("control.enabled", false)
	v.SetDefault("control.listen_addr", "127.0.0.1:8085")
	v.SetDefault("control.read_timeout", "5s")
	v.SetDefault("control.write_timeout", "5s")

	// Resume defaults
	v.SetDefault("resume.enabled", false)
	v.SetDefault("resume.redis_addr", "localhost:6379")
	v.SetDefault("resume.redis_db", 0)
	v.SetDefault("resume.key_prefix", "h264player:resume:")
	v.SetDefault("resume.ttl", "720h")
	v.SetDefault("resume.dial_timeout", "2s")
}
