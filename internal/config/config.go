package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/catwatch/internal/hw/camera"
	"github.com/cjeanneret/catwatch/internal/hw/sensor"
	"github.com/cjeanneret/catwatch/internal/logic/capture"
	"github.com/cjeanneret/catwatch/internal/logic/detect"
	"github.com/cjeanneret/catwatch/internal/notify"
)

// EnvPrefix prefixes every environment override (CATWATCH_CAPTURE_DIR, ...).
const EnvPrefix = "CATWATCH"

// DefaultTokenEnv names the variable holding the notification bearer token.
const DefaultTokenEnv = "LINE_TOKEN"

// SensorConfig describes the motion sensor wiring.
type SensorConfig struct {
	Pin            int    `yaml:"pin"`              // BCM pin of the PIR OUT line, 1-27 (0 = default 17)
	Trigger        string `yaml:"trigger"`          // rising, falling or both
	Pull           string `yaml:"pull"`             // off, down or up
	PollIntervalMs int    `yaml:"poll_interval_ms"` // edge-detect polling period
	LedPin         int    `yaml:"led_pin"`          // optional indicator LED (BCM). 0 = not used.
}

// CameraConfig describes how photos are taken.
// Type selects a concrete implementation (e.g., "libcamera").
type CameraConfig struct {
	Type       string   `yaml:"type"`       // e.g., "libcamera"
	Command    string   `yaml:"command"`    // libcamera-jpeg, libcamera-still, rpicam-still
	EV         *float64 `yaml:"ev"`         // exposure compensation; nil = default
	ShutterUs  int      `yaml:"shutter_us"` // shutter speed (µs)
	Width      int      `yaml:"width"`      // output width (px)
	Height     int      `yaml:"height"`     // output height (px)
	Brightness *float64 `yaml:"brightness"` // optional, -1.0 to 1.0
	TimeoutMs  int      `yaml:"timeout_ms"` // hard limit for one capture
}

// CaptureConfig describes where photos are stored.
type CaptureConfig struct {
	Dir string `yaml:"dir"`
}

// NotifyConfig describes the notification endpoint.
type NotifyConfig struct {
	Endpoint        string `yaml:"endpoint"`
	TokenEnv        string `yaml:"token_env"` // environment variable holding the bearer token
	Message         string `yaml:"message"`
	FallbackMessage string `yaml:"fallback_message"`
	TimeoutMs       int    `yaml:"timeout_ms"`

	// Token is read from the environment, never from the file.
	Token string `yaml:"-"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Sensor   SensorConfig   `yaml:"sensor"`
	Camera   CameraConfig   `yaml:"camera"`
	Capture  CaptureConfig  `yaml:"capture"`
	Notify   NotifyConfig   `yaml:"notify"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// "configs" directory and contains no traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path must not contain '..': %s", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config file must be in a configs/ directory: %s", path)
	}
	return nil
}

// Load reads a YAML file, applies defaults and environment overrides,
// reads the bearer token and returns the configuration.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	cfg.Notify.Token = strings.TrimSpace(os.Getenv(cfg.Notify.TokenEnv))
	if cfg.Notify.Token == "" {
		return nil, fmt.Errorf("%s is empty. Set the access token to %s", cfg.Notify.TokenEnv, cfg.Notify.TokenEnv)
	}

	return &cfg, nil
}

// applyEnv overlays CATWATCH_* environment variables on the file values.
func applyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.IsSet("capture.dir") {
		cfg.Capture.Dir = v.GetString("capture.dir")
	}
	if v.IsSet("notify.endpoint") {
		cfg.Notify.Endpoint = v.GetString("notify.endpoint")
	}
	if v.IsSet("notify.token_env") {
		cfg.Notify.TokenEnv = v.GetString("notify.token_env")
	}
	if v.IsSet("camera.command") {
		cfg.Camera.Command = v.GetString("camera.command")
	}
	if v.IsSet("sensor.trigger") {
		cfg.Sensor.Trigger = v.GetString("sensor.trigger")
	}
	if v.IsSet("sensor.pin") {
		pin, err := strictInt(v.GetString("sensor.pin"))
		if err != nil {
			return fmt.Errorf("%s_SENSOR_PIN: %w", EnvPrefix, err)
		}
		if pin == 0 {
			return fmt.Errorf("%s_SENSOR_PIN: BCM 0 is not supported, use 1-27", EnvPrefix)
		}
		cfg.Sensor.Pin = pin
	}
	if v.IsSet("defaults.debug_level") {
		lvl, err := strictInt(v.GetString("defaults.debug_level"))
		if err != nil {
			return fmt.Errorf("%s_DEFAULTS_DEBUG_LEVEL: %w", EnvPrefix, err)
		}
		cfg.Defaults.DebugLevel = lvl
	}
	if v.IsSet("defaults.mock_gpio") {
		cfg.Defaults.MockGPIO = v.GetBool("defaults.mock_gpio")
	}
	return nil
}

func strictInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return n, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sensor.Pin == 0 {
		cfg.Sensor.Pin = 17 // GPIO17
	}
	if cfg.Sensor.Trigger == "" {
		cfg.Sensor.Trigger = "rising"
	}
	if cfg.Sensor.Pull == "" {
		cfg.Sensor.Pull = "off"
	}
	if cfg.Sensor.PollIntervalMs <= 0 {
		cfg.Sensor.PollIntervalMs = int(sensor.DefaultPollInterval / time.Millisecond)
	}

	if cfg.Camera.Type == "" {
		cfg.Camera.Type = "libcamera"
	}
	if cfg.Camera.Command == "" {
		cfg.Camera.Command = camera.DefaultCommand
	}
	if cfg.Camera.EV == nil {
		ev := camera.DefaultEV
		cfg.Camera.EV = &ev
	}
	if cfg.Camera.ShutterUs <= 0 {
		cfg.Camera.ShutterUs = camera.DefaultShutterUs
	}
	if cfg.Camera.Width <= 0 {
		cfg.Camera.Width = camera.DefaultWidth
	}
	if cfg.Camera.Height <= 0 {
		cfg.Camera.Height = camera.DefaultHeight
	}
	if cfg.Camera.TimeoutMs <= 0 {
		cfg.Camera.TimeoutMs = int(camera.DefaultTimeout / time.Millisecond)
	}

	if cfg.Capture.Dir == "" {
		cfg.Capture.Dir = capture.DefaultDir
	}

	if cfg.Notify.Endpoint == "" {
		cfg.Notify.Endpoint = notify.DefaultEndpoint
	}
	if cfg.Notify.TokenEnv == "" {
		cfg.Notify.TokenEnv = DefaultTokenEnv
	}
	if cfg.Notify.Message == "" {
		cfg.Notify.Message = detect.DefaultMessage
	}
	if cfg.Notify.FallbackMessage == "" {
		cfg.Notify.FallbackMessage = detect.DefaultFallbackMessage
	}
	if cfg.Notify.TimeoutMs <= 0 {
		cfg.Notify.TimeoutMs = int(notify.DefaultTimeout / time.Millisecond)
	}
}

func validate(cfg *Config) error {
	if cfg.Sensor.Pin < 1 || cfg.Sensor.Pin > 27 {
		return fmt.Errorf("sensor.pin must be a BCM pin between 1 and 27, got %d", cfg.Sensor.Pin)
	}
	if cfg.Sensor.LedPin < 0 || cfg.Sensor.LedPin > 27 {
		return fmt.Errorf("sensor.led_pin must be between 0 and 27, got %d", cfg.Sensor.LedPin)
	}
	if cfg.Sensor.LedPin != 0 && cfg.Sensor.LedPin == cfg.Sensor.Pin {
		return fmt.Errorf("sensor.led_pin must differ from sensor.pin (%d)", cfg.Sensor.Pin)
	}
	if _, err := sensor.ParseTrigger(cfg.Sensor.Trigger); err != nil {
		return fmt.Errorf("sensor.trigger: %w", err)
	}
	if _, err := sensor.ParsePull(cfg.Sensor.Pull); err != nil {
		return fmt.Errorf("sensor.pull: %w", err)
	}
	if cfg.Camera.Brightness != nil && (*cfg.Camera.Brightness < -1 || *cfg.Camera.Brightness > 1) {
		return fmt.Errorf("camera.brightness must be between -1 and 1, got %.2f", *cfg.Camera.Brightness)
	}
	if *cfg.Camera.EV < -10 || *cfg.Camera.EV > 10 {
		return fmt.Errorf("camera.ev must be between -10 and 10, got %.2f", *cfg.Camera.EV)
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}
	return nil
}

// PollInterval returns the sensor edge-detect polling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sensor.PollIntervalMs) * time.Millisecond
}

// CameraTimeout returns the hard limit for one capture.
func (c *Config) CameraTimeout() time.Duration {
	return time.Duration(c.Camera.TimeoutMs) * time.Millisecond
}

// NotifyTimeout returns the HTTP timeout for one notification.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutMs) * time.Millisecond
}

// CameraOptions converts the camera section into capture parameters.
func (c *Config) CameraOptions() camera.Options {
	return camera.Options{
		Command:    c.Camera.Command,
		EV:         *c.Camera.EV,
		ShutterUs:  c.Camera.ShutterUs,
		Width:      c.Camera.Width,
		Height:     c.Camera.Height,
		Brightness: c.Camera.Brightness,
		Timeout:    c.CameraTimeout(),
	}
}

// SensorOptions converts the sensor section into hardware configuration.
// Load has already validated trigger and pull.
func (c *Config) SensorOptions() sensor.Config {
	trigger, _ := sensor.ParseTrigger(c.Sensor.Trigger)
	pull, _ := sensor.ParsePull(c.Sensor.Pull)
	return sensor.Config{
		Pin:          c.Sensor.Pin,
		Trigger:      trigger,
		Pull:         pull,
		PollInterval: c.PollInterval(),
	}
}
