// Package config loads the clock's settings.  Defaults are overridden by the YAML file, then by
// RINGCLOCK_* environment variables, then by command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/jrockway/ring-clock/control/brightness"
	"github.com/jrockway/ring-clock/control/clock"
	"github.com/jrockway/ring-clock/control/face"
	"github.com/jrockway/ring-clock/control/idle"
	"github.com/jrockway/ring-clock/control/screen"
	"github.com/jrockway/ring-clock/control/sensors"
	"github.com/jrockway/ring-clock/control/strip"
	"github.com/jrockway/ring-clock/control/timesource"
	"github.com/jrockway/ring-clock/control/timesync"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// DefaultFile is read when --config is not given.  It may be missing.
const DefaultFile = "ringclock.yaml"

// Time sync backends.
const (
	SyncNone   = "none"
	SyncNTP    = "ntp"
	SyncChrony = "chrony"
	SyncGpsd   = "gpsd"
)

// Ambient light sensors.
const (
	AmbientNone    = "none"
	AmbientTSL2591 = "tsl2591"
)

// Config is everything the binary needs to start.  Integer fields are plain ints because the env
// parser only handles the full-width kinds.
type Config struct {
	ConfigFile string `yaml:"-"`

	Listen   string        `yaml:"listen" env:"RINGCLOCK_LISTEN"`
	Interval time.Duration `yaml:"interval" env:"RINGCLOCK_INTERVAL"`
	LogLevel string        `yaml:"log_level" env:"RINGCLOCK_LOG_LEVEL"`

	ZoneOffset    time.Duration `yaml:"zone_offset" env:"RINGCLOCK_ZONE_OFFSET"`
	IdleThreshold int           `yaml:"idle_threshold" env:"RINGCLOCK_IDLE_THRESHOLD"`

	BrightnessMin   int     `yaml:"brightness_min" env:"RINGCLOCK_BRIGHTNESS_MIN"`
	BrightnessMax   int     `yaml:"brightness_max" env:"RINGCLOCK_BRIGHTNESS_MAX"`
	BrightnessAlpha float64 `yaml:"brightness_alpha" env:"RINGCLOCK_BRIGHTNESS_ALPHA"`
	AmbientRawMax   int     `yaml:"ambient_raw_max" env:"RINGCLOCK_AMBIENT_RAW_MAX"`
	AmbientSensor   string  `yaml:"ambient_sensor" env:"RINGCLOCK_AMBIENT_SENSOR"`
	FullScaleLux    float64 `yaml:"full_scale_lux" env:"RINGCLOCK_FULL_SCALE_LUX"`

	StripBackend string  `yaml:"strip_backend" env:"RINGCLOCK_STRIP_BACKEND"`
	StripDevice  string  `yaml:"strip_device" env:"RINGCLOCK_STRIP_DEVICE"`
	StripFreqKHz int     `yaml:"strip_freq_khz" env:"RINGCLOCK_STRIP_FREQ_KHZ"`
	StripOffset  int     `yaml:"strip_offset" env:"RINGCLOCK_STRIP_OFFSET"`
	StripReverse bool    `yaml:"strip_reverse" env:"RINGCLOCK_STRIP_REVERSE"`
	PowerMilliA  float64 `yaml:"power_milliamps" env:"RINGCLOCK_POWER_MILLIAMPS"`
	PowerVolts   float64 `yaml:"power_volts" env:"RINGCLOCK_POWER_VOLTS"`

	I2CBus string `yaml:"i2c_bus" env:"RINGCLOCK_I2C_BUS"`
	PIRPin string `yaml:"pir_pin" env:"RINGCLOCK_PIR_PIN"`
	RTC    bool   `yaml:"rtc" env:"RINGCLOCK_RTC"`

	SyncBackend  string        `yaml:"sync_backend" env:"RINGCLOCK_SYNC_BACKEND"`
	SyncServer   string        `yaml:"sync_server" env:"RINGCLOCK_SYNC_SERVER"`
	SyncInterval time.Duration `yaml:"sync_interval" env:"RINGCLOCK_SYNC_INTERVAL"`
	SyncTimeout  time.Duration `yaml:"sync_timeout" env:"RINGCLOCK_SYNC_TIMEOUT"`

	Mode          string `yaml:"mode" env:"RINGCLOCK_MODE"`
	Scheme        string `yaml:"scheme" env:"RINGCLOCK_SCHEME"`
	StateFile     string `yaml:"state_file" env:"RINGCLOCK_STATE_FILE"`
	BootAnimation bool   `yaml:"boot_animation" env:"RINGCLOCK_BOOT_ANIMATION"`
}

// Default returns the built-in settings: a simulated ring on :8080 with no sensors and no network
// sync.
func Default() *Config {
	return &Config{
		ConfigFile:      DefaultFile,
		Listen:          ":8080",
		Interval:        clock.DefaultInterval,
		LogLevel:        "info",
		ZoneOffset:      timesource.DefaultZoneOffset,
		IdleThreshold:   idle.DefaultThreshold,
		BrightnessMin:   int(brightness.DefaultConfig.Min),
		BrightnessMax:   int(brightness.DefaultConfig.Max),
		BrightnessAlpha: brightness.DefaultConfig.Alpha,
		AmbientRawMax:   sensors.RawMax,
		AmbientSensor:   AmbientNone,
		FullScaleLux:    sensors.DefaultFullScaleLux,
		StripBackend:    strip.BackendSim,
		StripFreqKHz:    2500,
		PowerMilliA:     screen.DefaultPowerLimit.Milliamps,
		PowerVolts:      screen.DefaultPowerLimit.Volts,
		SyncBackend:     SyncNone,
		SyncInterval:    timesync.DefaultInterval,
		SyncTimeout:     timesync.DefaultTimeout,
		Mode:            face.Classic.String(),
		Scheme:          face.DefaultScheme.Name,
		BootAnimation:   true,
	}
}

func (c *Config) flags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML config file; a missing default file is ignored")
	fs.StringVar(&c.Listen, "listen", c.Listen, "address for the HTTP server")
	fs.DurationVar(&c.Interval, "interval", c.Interval, "time between render cycles")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "minimum log level")
	fs.DurationVar(&c.ZoneOffset, "zone-offset", c.ZoneOffset, "standard time offset from UTC")
	fs.IntVar(&c.IdleThreshold, "idle-minutes", c.IdleThreshold, "minutes without motion before the ring turns off")
	fs.IntVar(&c.BrightnessMin, "brightness-min", c.BrightnessMin, "brightness in a dark room, 0-255")
	fs.IntVar(&c.BrightnessMax, "brightness-max", c.BrightnessMax, "brightness in daylight, 0-255")
	fs.Float64Var(&c.BrightnessAlpha, "brightness-alpha", c.BrightnessAlpha, "brightness smoothing factor; 1 disables smoothing")
	fs.IntVar(&c.AmbientRawMax, "ambient-raw-max", c.AmbientRawMax, "ambient reading that maps to full brightness")
	fs.StringVar(&c.AmbientSensor, "ambient-sensor", c.AmbientSensor, "ambient light sensor: none or tsl2591")
	fs.Float64Var(&c.FullScaleLux, "full-scale-lux", c.FullScaleLux, "lux that counts as full daylight for the tsl2591")
	fs.StringVar(&c.StripBackend, "strip", c.StripBackend, "LED strip backend: "+strings.Join(strip.Backends, ", "))
	fs.StringVar(&c.StripDevice, "strip-device", c.StripDevice, "SPI port or device for the strip")
	fs.IntVar(&c.StripFreqKHz, "strip-freq-khz", c.StripFreqKHz, "SPI clock for the ws2812 backend, in kHz")
	fs.IntVar(&c.StripOffset, "strip-offset", c.StripOffset, "strip index of the 12 o'clock LED")
	fs.BoolVar(&c.StripReverse, "strip-reverse", c.StripReverse, "the strip runs counterclockwise")
	fs.Float64Var(&c.PowerMilliA, "power-milliamps", c.PowerMilliA, "current budget of the LED supply")
	fs.Float64Var(&c.PowerVolts, "power-volts", c.PowerVolts, "LED supply voltage")
	fs.StringVar(&c.I2CBus, "i2c-bus", c.I2CBus, "I2C bus for the RTC and light sensor; empty picks the first")
	fs.StringVar(&c.PIRPin, "pir-pin", c.PIRPin, "GPIO pin of the motion sensor; empty means no sensor")
	fs.BoolVar(&c.RTC, "rtc", c.RTC, "read the time from a DS3231 on the I2C bus")
	fs.StringVar(&c.SyncBackend, "sync", c.SyncBackend, "time sync backend: none, ntp, chrony or gpsd")
	fs.StringVar(&c.SyncServer, "sync-server", c.SyncServer, "address of the time sync server; empty uses the backend default")
	fs.DurationVar(&c.SyncInterval, "sync-interval", c.SyncInterval, "time between successful syncs")
	fs.DurationVar(&c.SyncTimeout, "sync-timeout", c.SyncTimeout, "time limit for one sync attempt")
	fs.StringVar(&c.Mode, "mode", c.Mode, "initial face: classic, minarc or arc")
	fs.StringVar(&c.Scheme, "scheme", c.Scheme, "initial color scheme: "+strings.Join(face.SchemeNames(), ", "))
	fs.StringVar(&c.StateFile, "state-file", c.StateFile, "file that remembers the selected face; empty disables")
	fs.BoolVar(&c.BootAnimation, "boot-animation", c.BootAnimation, "play an animation at start-up")
}

// Load builds the config from args (without the program name) and the environment.
func Load(name string, args []string) (*Config, error) {
	// The first pass only finds the config file.
	first := Default()
	pfs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	first.flags(pfs)
	if err := pfs.Parse(args); err != nil {
		return nil, err
	}

	c := Default()
	c.ConfigFile = first.ConfigFile
	if err := c.ReadFile(c.ConfigFile, pfs.Changed("config")); err != nil {
		return nil, err
	}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	c.flags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ReadFile merges the YAML file at path into c.  A missing file is an error only if required.
func (c *Config) ReadFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ErrPowerBudget means the LED supply cannot even power a dark ring.
var ErrPowerBudget = errors.New("power budget at or below the idle draw of the ring")

// Validate checks values that would otherwise fail much later, or silently.
func (c *Config) Validate() error {
	var errs []error
	if _, err := face.ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := face.SchemeByName(c.Scheme); err != nil {
		errs = append(errs, err)
	}
	if !contains(strip.Backends, strings.ToLower(c.StripBackend)) {
		errs = append(errs, fmt.Errorf("%q: %w", c.StripBackend, strip.ErrUnknownBackend))
	}
	switch strings.ToLower(c.SyncBackend) {
	case SyncNone, SyncNTP, SyncChrony, SyncGpsd:
	default:
		errs = append(errs, fmt.Errorf("unknown sync backend %q", c.SyncBackend))
	}
	switch strings.ToLower(c.AmbientSensor) {
	case AmbientNone, AmbientTSL2591:
	default:
		errs = append(errs, fmt.Errorf("unknown ambient sensor %q", c.AmbientSensor))
	}
	for _, b := range []struct {
		name string
		v    int
	}{{"brightness_min", c.BrightnessMin}, {"brightness_max", c.BrightnessMax}} {
		if b.v < 0 || b.v > 255 {
			errs = append(errs, fmt.Errorf("%s %d is outside 0-255", b.name, b.v))
		}
	}
	if c.AmbientRawMax < 0 || c.AmbientRawMax > 65535 {
		errs = append(errs, fmt.Errorf("ambient_raw_max %d is outside 0-65535", c.AmbientRawMax))
	}
	if idle := screen.IdleMilliamps(); c.PowerMilliA <= idle {
		errs = append(errs, fmt.Errorf("power_milliamps %v (idle draw %vmA): %w", c.PowerMilliA, idle, ErrPowerBudget))
	}
	if c.Interval <= 0 || c.SyncTimeout <= 0 || c.SyncInterval <= 0 {
		errs = append(errs, errors.New("intervals and timeouts must be positive"))
	}
	return errors.Join(errs...)
}

func contains(xs []string, x string) bool {
	for _, y := range xs {
		if x == y {
			return true
		}
	}
	return false
}

// ModeValue returns the configured face.  Validate has already checked it.
func (c *Config) ModeValue() face.Mode {
	m, _ := face.ParseMode(c.Mode)
	return m
}

// SchemeValue returns the configured color scheme, or the default if it is unknown.
func (c *Config) SchemeValue() face.Scheme {
	s, err := face.SchemeByName(c.Scheme)
	if err != nil {
		return face.DefaultScheme
	}
	return s
}

func (c *Config) Brightness() brightness.Config {
	return brightness.Config{
		Min:    brightness.Level(c.BrightnessMin),
		Max:    brightness.Level(c.BrightnessMax),
		RawMax: uint16(c.AmbientRawMax),
		Alpha:  c.BrightnessAlpha,
	}
}

func (c *Config) Strip() strip.Config {
	return strip.Config{
		Backend: c.StripBackend,
		Device:  c.StripDevice,
		Pixels:  face.Pixels,
		Freq:    physic.Frequency(c.StripFreqKHz) * physic.KiloHertz,
	}
}

func (c *Config) Layout() screen.Layout {
	return screen.Layout{Offset: c.StripOffset, Reverse: c.StripReverse}
}

func (c *Config) PowerLimit() screen.PowerLimit {
	return screen.PowerLimit{Milliamps: c.PowerMilliA, Volts: c.PowerVolts}
}
