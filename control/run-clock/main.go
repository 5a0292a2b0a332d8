package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jrockway/ring-clock/control/brightness"
	"github.com/jrockway/ring-clock/control/clock"
	"github.com/jrockway/ring-clock/control/config"
	"github.com/jrockway/ring-clock/control/face"
	"github.com/jrockway/ring-clock/control/logging"
	"github.com/jrockway/ring-clock/control/rtc"
	"github.com/jrockway/ring-clock/control/screen"
	"github.com/jrockway/ring-clock/control/sensors"
	"github.com/jrockway/ring-clock/control/strip"
	"github.com/jrockway/ring-clock/control/timesource"
	"github.com/jrockway/ring-clock/control/timesync"
	"github.com/jrockway/ring-clock/control/web"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	log := logging.New("main")
	if err != nil {
		log.Fatalw("load config", "error", err)
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalw("parse log level", "error", err)
	}
	logging.GetLeveler().SetDefault(level)

	if _, err := host.Init(); err != nil {
		if needsHardware(cfg) {
			log.Fatalw("init periph.io", "error", err)
		}
		log.Infow("no periph.io host drivers; continuing without hardware", "error", err)
	}

	hw, err := openHardware(cfg, log)
	if err != nil {
		log.Fatalw("open hardware", "error", err)
	}
	defer hw.close()

	st, err := strip.Open(cfg.Strip())
	if err != nil {
		log.Fatalw("open strip", "error", err)
	}
	leds := screen.New(st, cfg.PowerLimit(), cfg.Layout(), logging.New("screen"))
	defer st.Close()

	var clk timesource.Clock = timesource.SystemClock{}
	if hw.rtc != nil {
		clk = hw.rtc
	}
	src := timesource.New(clk, cfg.ZoneOffset)

	mode, scheme := cfg.ModeValue(), cfg.SchemeValue()
	var persist clock.Persister
	if cfg.StateFile != "" {
		sf := &config.StateFile{Path: cfg.StateFile}
		sel, ok, err := sf.Load()
		switch {
		case err != nil:
			log.Warnw("ignoring saved face selection", "error", err)
		case ok:
			mode = sel.Mode
			scheme, _ = face.SchemeByName(sel.Scheme)
			log.Infow("restored face selection", "mode", mode, "scheme", scheme.Name)
		}
		persist = sf
	}

	opts := clock.Options{
		Source:        src,
		Display:       leds,
		Persist:       persist,
		Interval:      cfg.Interval,
		IdleThreshold: cfg.IdleThreshold,
		Brightness:    cfg.Brightness(),
		Mode:          mode,
		Scheme:        scheme,
		Logger:        logging.New("clock"),
	}
	if hw.ambient != nil {
		opts.Ambient = hw.ambient
	}
	if hw.motion != nil {
		opts.Motion = hw.motion
	}
	cl := clock.New(opts)

	hub := web.NewHub(logging.New("ws"))
	leds.Observe(hub.Publish)
	srv := &web.Server{
		Clock:  cl,
		Screen: leds,
		Hub:    hub,
		Levels: logging.GetLeveler(),
		Logger: logging.New("http"),
	}

	ctx, cancel := context.WithCancel(context.Background())

	httpDoneCh := make(chan error)
	httpServer := http.Server{Addr: cfg.Listen, Handler: srv.Handler()}
	go func() {
		log.Infow("http server listening", "addr", httpServer.Addr)
		err := httpServer.ListenAndServe()
		select {
		case httpDoneCh <- err:
		case <-ctx.Done():
		}
		close(httpDoneCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if syncer := newSyncer(cfg, src, hw.rtc); syncer != nil {
		go func() {
			if err := syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warnw("time sync stopped", "error", err)
			}
		}()
	}

	if cfg.BootAnimation {
		if err := bootAnimation(ctx, leds, brightness.Level(cfg.BrightnessMax)); err != nil {
			log.Warnw("boot animation", "error", err)
		}
	}

	loopDoneCh := make(chan error)
	go func() {
		err := cl.Run(ctx)
		select {
		case loopDoneCh <- err:
		case <-ctx.Done():
		}
		close(loopDoneCh)
	}()

	httpAlive := true
	select {
	case err := <-httpDoneCh:
		log.Errorw("http server died", "error", err)
		httpAlive = false
	case err := <-loopDoneCh:
		log.Errorw("clock loop died", "error", err)
	case <-sigCh:
		log.Info("interrupt")
	}
	signal.Stop(sigCh)
	cancel()
	if err := leds.Blank(); err != nil {
		log.Warnw("blank display", "error", err)
	}
	if httpAlive {
		tctx, c := context.WithTimeout(context.Background(), time.Second)
		httpServer.Shutdown(tctx)
		c()
	}
}

// bootAnimation spins a rainbow around the ring once, then wipes it away.
func bootAnimation(ctx context.Context, d *screen.Screen, level brightness.Level) error {
	rainbow := face.RainbowCycle(120)
	if err := clock.Play(ctx, d, rainbow, 10*time.Millisecond, level); err != nil {
		return err
	}
	return clock.Play(ctx, d, face.BlackWipe(rainbow[len(rainbow)-1]), 15*time.Millisecond, level)
}

func needsHardware(cfg *config.Config) bool {
	return cfg.RTC || cfg.PIRPin != "" || !strings.EqualFold(cfg.AmbientSensor, config.AmbientNone) ||
		!strings.EqualFold(cfg.StripBackend, strip.BackendSim)
}

type hardware struct {
	bus     i2c.BusCloser
	rtc     *rtc.DS3231
	ambient *sensors.TSL2591
	motion  *sensors.PIR
}

func (h *hardware) close() {
	if h.bus != nil {
		h.bus.Close()
	}
}

// openHardware opens the I2C bus and the devices on it, and the motion sensor pin.  A missing RTC
// or light sensor is logged and skipped; the clock runs without them.
func openHardware(cfg *config.Config, log *zap.SugaredLogger) (*hardware, error) {
	h := new(hardware)
	wantTSL := strings.EqualFold(cfg.AmbientSensor, config.AmbientTSL2591)
	if cfg.RTC || wantTSL {
		bus, err := i2creg.Open(cfg.I2CBus)
		if err != nil {
			return nil, err
		}
		h.bus = bus
	}
	if cfg.RTC {
		d, t, err := rtc.Open(h.bus, rtc.DefaultAddr)
		switch {
		case errors.Is(err, rtc.ErrOscillatorStopped):
			log.Warnw("rtc time not set; using the system clock until the next sync", "rtc", d)
		case err != nil:
			log.Warnw("rtc unusable; using the system clock", "error", err)
		default:
			log.Infow("rtc found", "rtc", d, "time", t)
		}
		h.rtc = d
	}
	if wantTSL {
		s, err := sensors.NewTSL2591(h.bus)
		if err != nil {
			log.Warnw("light sensor unusable; running at full brightness", "error", err)
		} else {
			s.FullScaleLux = cfg.FullScaleLux
			h.ambient = s
		}
	}
	if cfg.PIRPin != "" {
		p, err := sensors.NewPIR(gpioreg.ByName(cfg.PIRPin))
		if err != nil {
			log.Warnw("motion sensor unusable; the ring will turn off after the idle timeout", "pin", cfg.PIRPin, "error", err)
		} else {
			h.motion = p
		}
	}
	return h, nil
}

func newSyncer(cfg *config.Config, src *timesource.Source, r *rtc.DS3231) *timesync.Syncer {
	var b timesync.Backend
	switch strings.ToLower(cfg.SyncBackend) {
	case config.SyncNTP:
		b = &timesync.NTP{Server: orDefault(cfg.SyncServer, timesync.DefaultNTPServer)}
	case config.SyncChrony:
		b = &timesync.Chrony{Addr: orDefault(cfg.SyncServer, timesync.DefaultChronyAddr)}
	case config.SyncGpsd:
		b = &timesync.Gpsd{Addr: orDefault(cfg.SyncServer, timesync.DefaultGpsdAddr)}
	default:
		return nil
	}
	s := &timesync.Syncer{
		Backend:  b,
		Source:   src,
		Interval: cfg.SyncInterval,
		Timeout:  cfg.SyncTimeout,
		Logger:   logging.New("timesync"),
	}
	if r != nil {
		s.RTC = r
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
