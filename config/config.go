package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	commonerrors "github.com/gruntwork-io/go-commons/errors"
	"github.com/robmorgan/loopstation/utils"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid looper config")

// LooperConfig represents options that configure the global behavior of the program
type LooperConfig struct {
	// LogLevel is parsed by logrus, e.g. "debug" or "info".
	LogLevel string `yaml:"log_level"`

	// Audio input format. Every chunk delivered to the looper has BufferSize frames.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BufferSize int `yaml:"buffer_size"`

	// MaxLoopDuration is the loop length used while the first layer is recorded.
	MaxLoopDuration time.Duration `yaml:"max_loop_duration"`

	// MinLoopDuration is the shortest loop length that can be locked; shorter first
	// loops are clamped up to it. It must be longer than GuardInterval.
	MinLoopDuration time.Duration `yaml:"min_loop_duration"`

	// GuardInterval is subtracted from the loop length to mask scheduling latency at loop boundaries.
	GuardInterval time.Duration `yaml:"guard_interval"`

	// MaxPlayCount is how many times a layer plays during an overdub before it is removed.
	MaxPlayCount int `yaml:"max_play_count"`

	// DecayFactor multiplies a layer's gain each time it plays during an overdub. Zero derives
	// a factor that fades the layer to silence over MaxPlayCount plays.
	DecayFactor float64 `yaml:"decay_factor"`

	// BeatsPerBar is used to report a tempo for the loop.
	BeatsPerBar int `yaml:"beats_per_bar"`

	// Scheduler polling
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`
	LateTolerance     time.Duration `yaml:"late_tolerance"`

	// OSCAddr is the UDP address the control surface listens on. Empty disables it.
	OSCAddr string `yaml:"osc_addr"`
}

// Create a new LooperConfig object with reasonable defaults for real usage
func NewLooperConfig() LooperConfig {
	return LooperConfig{
		LogLevel:          logrus.InfoLevel.String(),
		SampleRate:        44100,
		Channels:          2,
		BufferSize:        4096,
		MaxLoopDuration:   30 * time.Second,
		MinLoopDuration:   100 * time.Millisecond,
		GuardInterval:     25 * time.Millisecond,
		MaxPlayCount:      30,
		DecayFactor:       1 / 1.1,
		BeatsPerBar:       4,
		SchedulerInterval: 25 * time.Millisecond,
		LateTolerance:     50 * time.Millisecond,
		OSCAddr:           "127.0.0.1:8765",
	}
}

// LoadLooperConfig reads a YAML file over the defaults and validates the result.
func LoadLooperConfig(path string) (LooperConfig, error) {
	cfg := NewLooperConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, commonerrors.WithStackTrace(err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, commonerrors.WithStackTrace(fmt.Errorf("parsing %s: %w", path, err))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, commonerrors.WithStackTrace(err)
	}
	return cfg, nil
}

// Validate checks the config for settings the looper cannot run with and
// fills in a derived decay factor.
func (c *LooperConfig) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.SampleRate <= 0 || c.Channels <= 0 || c.BufferSize <= 0 {
		return fmt.Errorf("%w: sample_rate, channels and buffer_size must be positive", ErrInvalidConfig)
	}
	if c.GuardInterval < 0 {
		return fmt.Errorf("%w: guard_interval must not be negative", ErrInvalidConfig)
	}
	if c.MinLoopDuration <= c.GuardInterval {
		return fmt.Errorf("%w: min_loop_duration (%v) must be longer than guard_interval (%v)", ErrInvalidConfig, c.MinLoopDuration, c.GuardInterval)
	}
	if c.MaxLoopDuration < c.MinLoopDuration {
		return fmt.Errorf("%w: max_loop_duration (%v) is shorter than min_loop_duration (%v)", ErrInvalidConfig, c.MaxLoopDuration, c.MinLoopDuration)
	}
	if c.MaxPlayCount <= 0 {
		return fmt.Errorf("%w: max_play_count must be positive", ErrInvalidConfig)
	}
	if c.DecayFactor < 0 || c.DecayFactor > 1 {
		return fmt.Errorf("%w: decay_factor must be within [0, 1]", ErrInvalidConfig)
	}
	if c.DecayFactor == 0 {
		c.DecayFactor = utils.DecayFactorForBudget(c.MaxPlayCount, utils.SilenceGain)
	}
	if c.BeatsPerBar <= 0 {
		return fmt.Errorf("%w: beats_per_bar must be positive", ErrInvalidConfig)
	}
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("%w: scheduler_interval must be positive", ErrInvalidConfig)
	}
	return nil
}
