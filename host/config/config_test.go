package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "steppilot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTemp(t, "motor:\n  run_current: 40\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Device != "/dev/ttyACM0" {
		t.Errorf("device = %q", cfg.Serial.Device)
	}
	if cfg.Serial.Baud != 115200 {
		t.Errorf("baud = %d", cfg.Serial.Baud)
	}
	if cfg.Serial.ReadTimeoutMs != 2000 {
		t.Errorf("read_timeout_ms = %d", cfg.Serial.ReadTimeoutMs)
	}
	if cfg.Motor.RunCurrent != 40 {
		t.Errorf("run_current = %d", cfg.Motor.RunCurrent)
	}
}

func TestLoadFullConfig(t *testing.T) {
	body := `
serial:
  device: /dev/ttyUSB1
  baud: 250000
  read_timeout_ms: 500
motor:
  run_current: 60
  hold_current: 25
  microsteps_per_step: 16
  stall_guard_threshold: 80
`
	cfg, err := Load(writeTemp(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Device != "/dev/ttyUSB1" || cfg.Serial.Baud != 250000 {
		t.Errorf("serial = %+v", cfg.Serial)
	}
	if cfg.Motor.MicrostepsPerStep != 16 || cfg.Motor.StallGuardThreshold != 80 {
		t.Errorf("motor = %+v", cfg.Motor)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"run current above 100", "motor:\n  run_current: 101\n"},
		{"negative hold current", "motor:\n  hold_current: -1\n"},
		{"threshold above 255", "motor:\n  stall_guard_threshold: 256\n"},
		{"microsteps not power of two", "motor:\n  microsteps_per_step: 48\n"},
		{"microsteps above 64", "motor:\n  microsteps_per_step: 128\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, tc.body)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
