// Package config loads host-side settings for the steppilot CLI.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Serial SerialConfig `yaml:"serial"`
	Motor  MotorConfig  `yaml:"motor"`
}

type SerialConfig struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

// MotorConfig carries defaults the CLI applies right after connecting.
// Zero values mean "do not send the corresponding setup command".
type MotorConfig struct {
	RunCurrent          int `yaml:"run_current"`
	HoldCurrent         int `yaml:"hold_current"`
	MicrostepsPerStep   int `yaml:"microsteps_per_step"`
	StallGuardThreshold int `yaml:"stall_guard_threshold"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Serial.Device == "" {
		cfg.Serial.Device = "/dev/ttyACM0"
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.Serial.ReadTimeoutMs == 0 {
		cfg.Serial.ReadTimeoutMs = 2000
	}
}

// Validate checks configuration correctness. It does not mutate the config.
func Validate(cfg *Config) error {
	if cfg.Serial.Baud < 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", cfg.Serial.Baud)
	}
	if cfg.Serial.ReadTimeoutMs < 0 {
		return fmt.Errorf("serial.read_timeout_ms must be positive, got %d", cfg.Serial.ReadTimeoutMs)
	}
	if cfg.Motor.RunCurrent < 0 || cfg.Motor.RunCurrent > 100 {
		return fmt.Errorf("motor.run_current must be 0-100, got %d", cfg.Motor.RunCurrent)
	}
	if cfg.Motor.HoldCurrent < 0 || cfg.Motor.HoldCurrent > 100 {
		return fmt.Errorf("motor.hold_current must be 0-100, got %d", cfg.Motor.HoldCurrent)
	}
	if cfg.Motor.StallGuardThreshold < 0 || cfg.Motor.StallGuardThreshold > 255 {
		return fmt.Errorf("motor.stall_guard_threshold must be 0-255, got %d", cfg.Motor.StallGuardThreshold)
	}
	if ms := cfg.Motor.MicrostepsPerStep; ms != 0 && !isPowerOfTwo(ms) {
		return fmt.Errorf("motor.microsteps_per_step must be a power of two 1-64, got %d", ms)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n >= 1 && n <= 64 && n&(n-1) == 0
}

// ReadTimeout returns the serial read timeout as a duration.
func (c SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}
