// Package clock runs the render loop: read the time and the sensors, decide whether the ring is
// lit, draw the face and commit it to the display.
package clock

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/jrockway/ring-clock/control/brightness"
	"github.com/jrockway/ring-clock/control/face"
	"github.com/jrockway/ring-clock/control/sensors"
	"github.com/jrockway/ring-clock/control/timesource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	missedTicksCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "missed_ticks",
		Help: "count of ticks that were generated but never received by anything",
	})

	tickDelayMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tick_delay",
		Help:    "amount of time between the tick boundary and when it is sent to the channel, in nanoseconds",
		Buckets: prometheus.ExponentialBuckets(1000, 10, 20),
	})

	brightnessGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ringclock_brightness_level",
		Help: "The brightness level of the last frame, 0-255.",
	})
	displayStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ringclock_display_state",
		Help: "0 when the ring is on, 1 when off, 2 during the cycle it turns off.",
	})
	renderModeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ringclock_render_mode",
		Help: "0 classic, 1 minute arc, 2 full arc.",
	})
	sensorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ringclock_sensor_read_errors_total",
		Help: "Sensor reads that failed; the last good value was used instead.",
	}, []string{"sensor"})
	clockErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ringclock_clock_read_errors_total",
		Help: "Clock reads that failed; the system clock was used instead.",
	})
	commitErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ringclock_display_commit_errors_total",
		Help: "Frames that could not be written to the display.",
	})
)

// DefaultInterval is how often the ring is redrawn.
const DefaultInterval = 250 * time.Millisecond

// Tick sends the current time to the provided channel at the exact instant each interval begins;
// with an interval that divides a second, ticks line up with the seconds changing.  An absent
// listener will not receive an outdated time; the tick will be skipped and the
// missedTicksCounter incremented.  Cancelling the context causes this to return immediately.
func Tick(ctx context.Context, ch chan time.Time, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		next := time.Now().Add(interval).Truncate(interval)

		// Wait until the next interval starts.
		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			return fmt.Errorf("waiting for next tick: %w", ctx.Err())
		}

		// Send the time to the channel.
		select {
		case <-time.After(interval / 2):
			missedTicksCounter.Inc()
		case <-ctx.Done():
			return fmt.Errorf("waiting to send tick: %w", ctx.Err())
		case ch <- next:
			tickDelayMetric.Observe(float64(time.Since(next).Nanoseconds()))
		}
	}
}

// Display is where frames go.
type Display interface {
	Commit(buf face.PixelBuffer, level brightness.Level) error
}

// Persister saves the operator's face selection so it survives a restart.
type Persister interface {
	SaveSelection(mode face.Mode, scheme string) error
}

// Status is a snapshot of the render loop, updated every cycle.
type Status struct {
	Mode          face.Mode               `json:"mode"`
	Scheme        string                  `json:"scheme"`
	Override      Override                `json:"override"`
	State         DisplayState            `json:"state"`
	Brightness    brightness.Level        `json:"brightness"`
	Ambient       uint16                  `json:"ambient"`
	IdleRemaining int                     `json:"idle_minutes_remaining"`
	Time          string                  `json:"time"`
	Date          string                  `json:"date"`
	DST           bool                    `json:"dst"`
	Calibration   *timesource.Calibration `json:"calibration,omitempty"`
	Updated       time.Time               `json:"updated"`
}

// Options configures a Clock.  Source and Display are required.
type Options struct {
	Source        *timesource.Source
	Display       Display
	Ambient       sensors.Ambient
	Motion        sensors.Motion
	Persist       Persister
	Interval      time.Duration
	IdleThreshold int
	Brightness    brightness.Config
	Mode          face.Mode
	Scheme        face.Scheme
	Logger        *zap.SugaredLogger
}

// Clock runs the render loop.  Only the goroutine in Run touches the render Context; the
// Set methods queue changes for it.
type Clock struct {
	opts   Options
	rc     *Context
	cmds   chan func(*Context)
	status atomic.Pointer[Status]

	lastAmbient uint16
}

func New(opts Options) *Clock {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Scheme.Name == "" {
		opts.Scheme = face.DefaultScheme
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	rc := NewContext(opts.IdleThreshold, opts.Brightness)
	rc.Mode = opts.Mode
	rc.Scheme = opts.Scheme
	c := &Clock{opts: opts, rc: rc, cmds: make(chan func(*Context), 16)}
	c.status.Store(&Status{Mode: rc.Mode, Scheme: rc.Scheme.Name, IdleRemaining: rc.Idle.Remaining()})
	return c
}

func (c *Clock) enqueue(ctx context.Context, f func(*Context)) error {
	select {
	case c.cmds <- f:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue command: %w", ctx.Err())
	}
}

// SetMode switches the face.  An invalid mode is rejected and the current one stays.
func (c *Clock) SetMode(ctx context.Context, m face.Mode) error {
	if _, err := face.ForMode(m); err != nil {
		return err
	}
	return c.enqueue(ctx, func(rc *Context) {
		rc.Mode = m
		c.persist(rc)
	})
}

// SetScheme switches the color scheme by name.
func (c *Clock) SetScheme(ctx context.Context, name string) error {
	s, err := face.SchemeByName(name)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, func(rc *Context) {
		rc.Scheme = s
		c.persist(rc)
	})
}

// SetOverride changes the manual on/off switch.
func (c *Clock) SetOverride(ctx context.Context, o Override) error {
	if o < Auto || o > ForceOff {
		return fmt.Errorf("%v: %w", o, ErrInvalidOverride)
	}
	return c.enqueue(ctx, func(rc *Context) { rc.Override = o })
}

func (c *Clock) persist(rc *Context) {
	if c.opts.Persist == nil {
		return
	}
	if err := c.opts.Persist.SaveSelection(rc.Mode, rc.Scheme.Name); err != nil {
		c.opts.Logger.Warnw("failed to save face selection", "error", err)
	}
}

// Status returns the most recent snapshot.
func (c *Clock) Status() Status {
	return *c.status.Load()
}

type captioner interface {
	SetCaption(string)
}

// inputs gathers one cycle's worth of readings.  Failures fall back to the previous value so the
// cycle always produces a frame.
func (c *Clock) inputs() Inputs {
	var in Inputs
	now, err := c.opts.Source.Now()
	if err != nil {
		clockErrors.Inc()
		c.opts.Logger.Debugw("clock read failed; using system time", "error", err)
		now = time.Now()
	}
	in.Local = timesource.Split(now, c.opts.Source.ZoneOffset())
	if c.opts.Ambient != nil {
		in.Ambient, in.AmbientErr = c.opts.Ambient.Read()
		if in.AmbientErr != nil {
			sensorErrors.WithLabelValues("ambient").Inc()
			c.opts.Logger.Debugw("ambient light read failed", "error", in.AmbientErr)
		} else {
			c.lastAmbient = in.Ambient
		}
	} else {
		// No sensor: full brightness, clamped to Max by the controller.
		in.Ambient = math.MaxUint16
	}
	if c.opts.Motion != nil {
		in.Motion, in.MotionErr = c.opts.Motion.Poll()
		if in.MotionErr != nil {
			sensorErrors.WithLabelValues("motion").Inc()
			c.opts.Logger.Debugw("motion sensor read failed", "error", in.MotionErr)
		}
	}
	return in
}

// cycle runs one render cycle and commits the result.
func (c *Clock) cycle() {
	in := c.inputs()
	prev := c.rc.State()
	f := c.rc.Step(in)
	if f.State != prev {
		c.opts.Logger.Infow("display state changed", "from", prev, "to", f.State, "override", c.rc.Override)
	}

	brightnessGauge.Set(float64(f.Level))
	displayStateGauge.Set(float64(f.State))
	renderModeGauge.Set(float64(c.rc.Mode))

	if f.Commit {
		if cp, ok := c.opts.Display.(captioner); ok {
			cp.SetCaption(in.Local.Time.String())
		}
		if err := c.opts.Display.Commit(f.Pixels, f.Level); err != nil {
			commitErrors.Inc()
			c.opts.Logger.Warnw("commit frame", "error", err)
		}
	}

	st := &Status{
		Mode:          c.rc.Mode,
		Scheme:        c.rc.Scheme.Name,
		Override:      c.rc.Override,
		State:         f.State,
		Brightness:    f.Level,
		Ambient:       c.lastAmbient,
		IdleRemaining: c.rc.Idle.Remaining(),
		Time:          in.Local.Time.String(),
		Date:          fmt.Sprintf("%s, %d. %s", timesource.WeekdayName(in.Local.Date.Weekday), in.Local.Date.Day, timesource.MonthName(in.Local.Date.Month)),
		DST:           in.Local.DST,
		Updated:       time.Now(),
	}
	if cal, ok := c.opts.Source.Calibration(); ok {
		st.Calibration = &cal
	}
	c.status.Store(st)
}

// Run runs the clock until the context is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	tickErrCh := make(chan error)
	tickCh := make(chan time.Time)
	go func() {
		err := Tick(ctx, tickCh, c.opts.Interval)
		select {
		case tickErrCh <- err:
		case <-ctx.Done():
		}
		close(tickErrCh)
	}()
	c.cycle()
	for {
		select {
		case <-tickCh:
		case err := <-tickErrCh:
			return fmt.Errorf("ticker: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.cmds:
			cmd(c.rc)
		}
		c.cycle()
	}
}

// Play shows frames on d one after another, perFrame apart.  It is used for the start-up
// animation.
func Play(ctx context.Context, d Display, frames []face.PixelBuffer, perFrame time.Duration, level brightness.Level) error {
	for _, f := range frames {
		if err := d.Commit(f, level); err != nil {
			return fmt.Errorf("commit animation frame: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(perFrame):
		}
	}
	return nil
}
