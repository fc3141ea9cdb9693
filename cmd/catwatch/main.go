package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/catwatch/internal/config"
	"github.com/cjeanneret/catwatch/internal/debug"
	"github.com/cjeanneret/catwatch/internal/hw/camera"
	"github.com/cjeanneret/catwatch/internal/hw/gpio"
	"github.com/cjeanneret/catwatch/internal/hw/indicator"
	"github.com/cjeanneret/catwatch/internal/hw/sensor"
	"github.com/cjeanneret/catwatch/internal/logic/capture"
	"github.com/cjeanneret/catwatch/internal/logic/detect"
	"github.com/cjeanneret/catwatch/internal/notify"
	"github.com/cjeanneret/catwatch/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start status server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	flag.Parse()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		debug.Fatal("invalid config path: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		debug.Fatal("load config failed: %v", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)

	// Runs last, after the hardware is released.
	exitCode := 0
	defer func() { os.Exit(exitCode) }()
	defer debug.Sync()

	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", debug.Level())

	debug.Step(1, "Preparing capture directory")
	if err := capture.PrepareDir(cfg.Capture.Dir); err != nil {
		debug.Fatal("prepare capture dir failed: %v", err)
	}
	debug.Value("Capture dir", cfg.Capture.Dir)

	debug.Step(2, "Initializing GPIO driver")
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		debug.Fatal("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			debug.Warn("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(3, "Initializing motion sensor")
	pir, err := sensor.NewPIR(gpioDriver, cfg.SensorOptions())
	if err != nil {
		debug.Fatal("init sensor failed: %v", err)
	}
	defer func() {
		if err := pir.Close(); err != nil {
			debug.Warn("closing sensor failed: %v", err)
		}
	}()
	debug.PrintStruct("Sensor config", cfg.Sensor)

	debug.Step(4, "Initializing camera")
	cam, err := newCameraFromConfig(cfg)
	if err != nil {
		debug.Fatal("init camera failed: %v", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)
	debug.Value("Camera command", cfg.Camera.Command)

	debug.Step(5, "Initializing notifier")
	notifier, err := notify.New(cfg.Notify.Endpoint, cfg.Notify.Token, cfg.NotifyTimeout())
	if err != nil {
		debug.Fatal("init notifier failed: %v", err)
	}
	debug.Value("Endpoint", cfg.Notify.Endpoint)

	led, err := indicator.NewLED(gpioDriver, cfg.Sensor.LedPin)
	if err != nil {
		debug.Fatal("init indicator failed: %v", err)
	}
	opts := []detect.Option{detect.WithIndicator(led)}

	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		opts = append(opts, detect.WithObserver(broadcaster.PublishEvent))
	}

	loop := detect.New(pir, cam, notifier, detect.Config{
		Dir:             cfg.Capture.Dir,
		Message:         cfg.Notify.Message,
		FallbackMessage: cfg.Notify.FallbackMessage,
	}, opts...)

	if port := webPort.port(); port > 0 {
		srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, loop.Stats, triggerFunc(gpioDriver, pir.Pin()))
		go func() {
			if err := srv.Run(ctx); err != nil {
				debug.Warn("web server: %v", err)
			}
		}()
	}

	debug.Section("Detection loop")
	if err := loop.Run(ctx); err != nil {
		debug.Error(err)
		fmt.Fprintf(os.Stderr, "detection loop failed: %v\n", err)
		exitCode = 1
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(cfg *config.Config) (camera.Camera, error) {
	switch cfg.Camera.Type {
	case "libcamera":
		return camera.NewLibcamera(cfg.CameraOptions()), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// triggerFunc returns a web trigger that injects edges on the sensor pin,
// or nil when g drives real hardware.
func triggerFunc(g gpio.Driver, pin int) web.TriggerFunc {
	mock, ok := g.(*gpio.MockDriver)
	if !ok {
		return nil
	}
	return func(level gpio.Level) error {
		mock.InjectEdge(pin, level)
		return nil
	}
}
