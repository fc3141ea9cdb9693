package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/catwatch/internal/hw/camera"
	"github.com/cjeanneret/catwatch/internal/hw/gpio"
	"github.com/cjeanneret/catwatch/internal/logic/capture"
	"github.com/cjeanneret/catwatch/internal/logic/detect"
	"github.com/cjeanneret/catwatch/internal/notify"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
		"../configs/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// withToken sets the default token variable for the duration of the test.
func withToken(t *testing.T) {
	t.Helper()
	t.Setenv(DefaultTokenEnv, "test-token")
}

const validYAML = `
sensor:
  pin: 22
  trigger: "both"
  pull: "down"
  poll_interval_ms: 5
  led_pin: 26
camera:
  type: "libcamera"
  command: "rpicam-still"
  ev: 1.5
  shutter_us: 100000
  width: 1280
  height: 720
  brightness: 0.1
  timeout_ms: 5000
capture:
  dir: "/var/lib/catwatch"
notify:
  endpoint: "https://notify.example.com/api/notify"
  message: "Cat!"
  fallback_message: "Cat, no photo"
  timeout_ms: 2000
defaults:
  debug_level: 3
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	withToken(t)
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Sensor.Pin != 22 {
		t.Errorf("sensor.pin = %d, want 22", cfg.Sensor.Pin)
	}
	if cfg.Sensor.LedPin != 26 {
		t.Errorf("sensor.led_pin = %d, want 26", cfg.Sensor.LedPin)
	}
	if cfg.Camera.Command != "rpicam-still" {
		t.Errorf("camera.command = %q", cfg.Camera.Command)
	}
	if *cfg.Camera.EV != 1.5 {
		t.Errorf("camera.ev = %v, want 1.5", *cfg.Camera.EV)
	}
	if cfg.Camera.Brightness == nil || *cfg.Camera.Brightness != 0.1 {
		t.Errorf("camera.brightness = %v, want 0.1", cfg.Camera.Brightness)
	}
	if cfg.Capture.Dir != "/var/lib/catwatch" {
		t.Errorf("capture.dir = %q", cfg.Capture.Dir)
	}
	if cfg.Notify.Endpoint != "https://notify.example.com/api/notify" {
		t.Errorf("notify.endpoint = %q", cfg.Notify.Endpoint)
	}
	if cfg.Notify.Message != "Cat!" || cfg.Notify.FallbackMessage != "Cat, no photo" {
		t.Errorf("notify messages = %q / %q", cfg.Notify.Message, cfg.Notify.FallbackMessage)
	}
	if cfg.Notify.Token != "test-token" {
		t.Errorf("token = %q, want test-token", cfg.Notify.Token)
	}
	if cfg.Defaults.DebugLevel != 3 || !cfg.Defaults.MockGPIO {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
}

func TestLoad_DefaultsFromEmptyFile(t *testing.T) {
	withToken(t)
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Sensor.Pin != 17 {
		t.Errorf("sensor.pin default = %d, want 17", cfg.Sensor.Pin)
	}
	if cfg.Sensor.Trigger != "rising" {
		t.Errorf("sensor.trigger default = %q, want rising", cfg.Sensor.Trigger)
	}
	if cfg.Camera.Type != "libcamera" || cfg.Camera.Command != camera.DefaultCommand {
		t.Errorf("camera defaults = %+v", cfg.Camera)
	}
	if *cfg.Camera.EV != camera.DefaultEV {
		t.Errorf("camera.ev default = %v", *cfg.Camera.EV)
	}
	if cfg.Camera.Brightness != nil {
		t.Error("camera.brightness should stay unset")
	}
	if cfg.Capture.Dir != capture.DefaultDir {
		t.Errorf("capture.dir default = %q", cfg.Capture.Dir)
	}
	if cfg.Notify.Endpoint != notify.DefaultEndpoint {
		t.Errorf("notify.endpoint default = %q", cfg.Notify.Endpoint)
	}
	if cfg.Notify.Message != detect.DefaultMessage || cfg.Notify.FallbackMessage != detect.DefaultFallbackMessage {
		t.Errorf("notify message defaults = %q / %q", cfg.Notify.Message, cfg.Notify.FallbackMessage)
	}
	if cfg.PollInterval() != 10*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval())
	}
	if cfg.CameraTimeout() != camera.DefaultTimeout {
		t.Errorf("CameraTimeout = %v", cfg.CameraTimeout())
	}
	if cfg.NotifyTimeout() != notify.DefaultTimeout {
		t.Errorf("NotifyTimeout = %v", cfg.NotifyTimeout())
	}
}

func TestLoad_ExplicitZeroEVKept(t *testing.T) {
	withToken(t)
	cfg, err := Load(writeConfig(t, "camera:\n  ev: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *cfg.Camera.EV != 0 {
		t.Errorf("camera.ev = %v, want explicit 0", *cfg.Camera.EV)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	withToken(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sensor.Pin != 17 {
		t.Errorf("sensor.pin = %d, want 17", cfg.Sensor.Pin)
	}
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv(DefaultTokenEnv, "")
	_, err := Load(writeConfig(t, "{}"))
	if err == nil {
		t.Fatal("expected error for missing token, got nil")
	}
	if !strings.Contains(err.Error(), DefaultTokenEnv) {
		t.Errorf("error should name the variable, got %v", err)
	}
}

func TestLoad_CustomTokenEnv(t *testing.T) {
	t.Setenv("MY_NOTIFY_TOKEN", "custom")
	cfg, err := Load(writeConfig(t, "notify:\n  token_env: MY_NOTIFY_TOKEN\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Notify.Token != "custom" {
		t.Errorf("token = %q, want custom", cfg.Notify.Token)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	withToken(t)
	if _, err := Load(filepath.Join(t.TempDir(), "configs", "nope.yaml")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	withToken(t)
	if _, err := Load(writeConfig(t, "sensor: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"pin_too_large", "sensor:\n  pin: 40\n"},
		{"negative_pin", "sensor:\n  pin: -1\n"},
		{"led_same_as_sensor", "sensor:\n  pin: 17\n  led_pin: 17\n"},
		{"led_too_large", "sensor:\n  led_pin: 99\n"},
		{"bad_trigger", "sensor:\n  trigger: sideways\n"},
		{"bad_pull", "sensor:\n  pull: left\n"},
		{"brightness_out_of_range", "camera:\n  brightness: 2.0\n"},
		{"ev_out_of_range", "camera:\n  ev: 20\n"},
		{"debug_level_too_high", "defaults:\n  debug_level: 9\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withToken(t)
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Errorf("expected error for %s, got nil", tc.name)
			}
		})
	}
}

// ---------- environment overlay ----------

func TestLoad_EnvOverrides(t *testing.T) {
	withToken(t)
	t.Setenv("CATWATCH_CAPTURE_DIR", "/srv/captures")
	t.Setenv("CATWATCH_NOTIFY_ENDPOINT", "http://127.0.0.1:9999/notify")
	t.Setenv("CATWATCH_SENSOR_PIN", "4")
	t.Setenv("CATWATCH_SENSOR_TRIGGER", "falling")
	t.Setenv("CATWATCH_CAMERA_COMMAND", "rpicam-still")
	t.Setenv("CATWATCH_DEFAULTS_MOCK_GPIO", "true")
	t.Setenv("CATWATCH_DEFAULTS_DEBUG_LEVEL", "4")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.Dir != "/srv/captures" {
		t.Errorf("capture.dir = %q", cfg.Capture.Dir)
	}
	if cfg.Notify.Endpoint != "http://127.0.0.1:9999/notify" {
		t.Errorf("notify.endpoint = %q", cfg.Notify.Endpoint)
	}
	if cfg.Sensor.Pin != 4 {
		t.Errorf("sensor.pin = %d, want 4", cfg.Sensor.Pin)
	}
	if cfg.Sensor.Trigger != "falling" {
		t.Errorf("sensor.trigger = %q", cfg.Sensor.Trigger)
	}
	if cfg.Camera.Command != "rpicam-still" {
		t.Errorf("camera.command = %q", cfg.Camera.Command)
	}
	if !cfg.Defaults.MockGPIO || cfg.Defaults.DebugLevel != 4 {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
}

func TestLoad_EnvTokenVariableOverride(t *testing.T) {
	t.Setenv("CATWATCH_NOTIFY_TOKEN_ENV", "OTHER_TOKEN")
	t.Setenv("OTHER_TOKEN", "from-other")
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Notify.Token != "from-other" {
		t.Errorf("token = %q, want from-other", cfg.Notify.Token)
	}
}

func TestLoad_ZeroPinMeansDefault(t *testing.T) {
	withToken(t)
	cfg, err := Load(writeConfig(t, "sensor:\n  pin: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sensor.Pin != 17 {
		t.Errorf("sensor.pin = %d, want default 17", cfg.Sensor.Pin)
	}
}

func TestLoad_EnvZeroPinRejected(t *testing.T) {
	withToken(t)
	t.Setenv("CATWATCH_SENSOR_PIN", "0")
	_, err := Load(writeConfig(t, "{}"))
	if err == nil {
		t.Fatal("expected error for CATWATCH_SENSOR_PIN=0, got nil")
	}
	if !strings.Contains(err.Error(), "1-27") {
		t.Errorf("error should give the valid range, got %v", err)
	}
}

func TestValidate_PinRange(t *testing.T) {
	withToken(t)
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatal(err)
	}
	for _, pin := range []int{0, 28} {
		cfg.Sensor.Pin = pin
		if err := validate(cfg); err == nil {
			t.Errorf("validate accepted sensor.pin %d", pin)
		}
	}
	cfg.Sensor.Pin = 1
	if err := validate(cfg); err != nil {
		t.Errorf("validate rejected sensor.pin 1: %v", err)
	}
}

func TestLoad_EnvInvalidPin(t *testing.T) {
	withToken(t)
	t.Setenv("CATWATCH_SENSOR_PIN", "seventeen")
	if _, err := Load(writeConfig(t, "{}")); err == nil {
		t.Error("expected error for non-numeric CATWATCH_SENSOR_PIN, got nil")
	}
}

// ---------- conversions ----------

func TestConfig_CameraOptions(t *testing.T) {
	withToken(t)
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	opts := cfg.CameraOptions()
	if opts.Command != "rpicam-still" || opts.EV != 1.5 || opts.ShutterUs != 100000 {
		t.Errorf("CameraOptions = %+v", opts)
	}
	if opts.Width != 1280 || opts.Height != 720 {
		t.Errorf("resolution = %dx%d, want 1280x720", opts.Width, opts.Height)
	}
	if opts.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", opts.Timeout)
	}
}

func TestConfig_SensorOptions(t *testing.T) {
	withToken(t)
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	opts := cfg.SensorOptions()
	if opts.Pin != 22 || opts.Trigger != gpio.BothEdges || opts.Pull != gpio.PullDown {
		t.Errorf("SensorOptions = %+v", opts)
	}
	if opts.PollInterval != 5*time.Millisecond {
		t.Errorf("PollInterval = %v, want 5ms", opts.PollInterval)
	}
}
