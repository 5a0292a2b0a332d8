// Package timesync periodically compares the clock against a network time reference and hands
// the result to a timesource.Source.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jrockway/ring-clock/control/timesource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/net/trace"
)

var (
	syncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ringclock_time_sync_attempts_total",
		Help: "The number of times a network time reference was queried.",
	}, []string{"backend"})
	syncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ringclock_time_sync_failures_total",
		Help: "The number of time sync attempts that failed or timed out.",
	}, []string{"backend"})
	clockOffset = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ringclock_clock_offset_seconds",
		Help: "The difference between the reference and the clock at the last sync; positive means the clock was slow.",
	})
	rtcWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ringclock_rtc_writes_total",
		Help: "The number of times the RTC was set from the network reference.",
	})
)

// ErrNotSynchronized is returned by a backend whose reference is itself not synchronized.
var ErrNotSynchronized = errors.New("time reference not synchronized")

// Sample is one reading of a reference clock: at the local instant Local, the reference said it
// was Reference.
type Sample struct {
	Reference time.Time
	Local     time.Time
	Detail    string
}

// Offset is how far the local system clock was behind the reference.
func (s Sample) Offset() time.Duration {
	return s.Reference.Sub(s.Local)
}

// Backend is a network time reference.
type Backend interface {
	Name() string
	Query(ctx context.Context) (Sample, error)
}

// Syncer runs a Backend on an interval and calibrates a Source.
type Syncer struct {
	Backend  Backend
	Source   *timesource.Source
	RTC      timesource.Setter // Optional; set from the reference on every successful sync.
	Interval time.Duration
	Timeout  time.Duration
	Logger   *zap.SugaredLogger

	now func() time.Time
}

const (
	DefaultInterval = time.Hour
	DefaultTimeout  = 5 * time.Second
	retryInterval   = time.Minute
)

func (s *Syncer) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// SyncOnce queries the backend once, bounded by the timeout, and applies the result.  On error the
// previous calibration is left alone.
func (s *Syncer) SyncOnce(ctx context.Context, l trace.EventLog) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	name := s.Backend.Name()
	syncAttempts.WithLabelValues(name).Inc()
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sample, err := s.Backend.Query(qctx)
	if err != nil {
		syncFailures.WithLabelValues(name).Inc()
		return fmt.Errorf("query %s: %w", name, err)
	}
	l.Printf("sample: %s offset %v", sample.Detail, sample.Offset())

	// Where the reference says we are right now.
	ref := sample.Reference.Add(s.clock().Sub(sample.Local))
	raw, err := s.Source.Clock().Now()
	if err != nil {
		// An unreadable or unset RTC is exactly what the reference is for.
		l.Errorf("read clock before sync: %v", err)
		raw = ref
	}
	offset := ref.Sub(raw)
	clockOffset.Set(offset.Seconds())
	cal := timesource.Calibration{Offset: offset, Source: name, At: ref}

	if s.RTC != nil {
		if err := s.RTC.Set(ref); err != nil {
			l.Errorf("set rtc: %v", err)
			s.Logger.Warnw("failed to set rtc from reference; keeping software offset", "error", err)
		} else {
			rtcWrites.Inc()
			cal.Offset = 0
		}
	}
	s.Source.Calibrate(cal)
	s.Logger.Infow("time synchronized", "backend", name, "offset", offset, "detail", sample.Detail)
	return nil
}

// Run syncs immediately and then every Interval until the context is done.  Failed attempts are
// retried sooner than the normal interval.  A backend that is an io.Closer is closed on return.
func (s *Syncer) Run(ctx context.Context) error {
	l := trace.NewEventLog("timesync", s.Backend.Name())
	defer l.Finish()
	if c, ok := s.Backend.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				s.Logger.Warnw("close time sync backend", "backend", s.Backend.Name(), "error", err)
			}
		}()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	for {
		wait := interval
		if err := s.SyncOnce(ctx, l); err != nil {
			l.Errorf("sync: %v", err)
			s.Logger.Warnw("time sync failed; keeping previous calibration", "error", err)
			if retryInterval < interval {
				wait = retryInterval
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
