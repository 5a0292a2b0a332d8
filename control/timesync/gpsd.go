package timesync

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jrockway/go-gpsd"
)

// DefaultGpsdAddr is gpsd's default listening address.
const DefaultGpsdAddr = "localhost:2947"

const (
	// maxFixAge is how old the last TPV report may be before the reference is considered lost.
	maxFixAge = 10 * time.Second

	watchCommand = `?WATCH={"enable":true,"json":true};`
	redialDelay  = 10 * time.Second
)

// Gpsd takes time from the TPV reports of a gpsd daemon.  The watch is started on the first query
// and kept open until Close; each query returns the newest report.
type Gpsd struct {
	Addr string
	// Watchdog is how long gpsd may go without a TPV report before the connection is dropped
	// and redialed.  Zero means one minute.
	Watchdog time.Duration

	once    sync.Once
	cancel  context.CancelFunc
	stopped chan struct{}

	mu      sync.Mutex
	last    Sample
	haveFix bool
	err     error
}

func (g *Gpsd) Name() string { return "gpsd" }

func (g *Gpsd) start() {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.stopped = make(chan struct{})
	go func() {
		defer close(g.stopped)
		g.watch(ctx)
	}()
}

// Close stops the watcher and hangs up on gpsd.  The watcher is not restarted by later queries.
func (g *Gpsd) Close() error {
	g.once.Do(func() {})
	if g.cancel != nil {
		g.cancel()
		<-g.stopped
	}
	return nil
}

func (g *Gpsd) watch(ctx context.Context) {
	addr := g.Addr
	if addr == "" {
		addr = DefaultGpsdAddr
	}
	for {
		g.monitor(ctx, addr)
		select {
		case <-ctx.Done():
			return
		case <-time.After(redialDelay):
		}
	}
}

// monitor reads reports from one gpsd connection until it fails, goes quiet for longer than the
// watchdog, or ctx is done.  The connection is always closed on return.
func (g *Gpsd) monitor(ctx context.Context, addr string) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		g.setErr(fmt.Errorf("dial gpsd: %w", err))
		return
	}
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	watchdog := g.Watchdog
	if watchdog <= 0 {
		watchdog = time.Minute
	}
	if err := conn.SetReadDeadline(time.Now().Add(watchdog)); err != nil {
		g.setErr(fmt.Errorf("set deadline: %w", err))
		return
	}
	if _, err := fmt.Fprint(conn, watchCommand); err != nil {
		g.setErr(fmt.Errorf("start gpsd watch: %w", err))
		return
	}
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadBytes('\n')
		now := time.Now()
		if err != nil {
			var ne net.Error
			switch {
			case ctx.Err() != nil:
			case errors.As(err, &ne) && ne.Timeout():
				g.setErr(fmt.Errorf("gpsd hasn't sent a TPV report for %v", watchdog))
			default:
				g.setErr(fmt.Errorf("gpsd watch stopped: %w", err))
			}
			return
		}
		var tpv gpsd.TPVReport
		if err := json.Unmarshal(line, &tpv); err != nil || tpv.Class != "TPV" {
			continue
		}
		if err := conn.SetReadDeadline(now.Add(watchdog)); err != nil {
			g.setErr(fmt.Errorf("set deadline: %w", err))
			return
		}
		g.record(&tpv, now)
	}
}

func (g *Gpsd) record(tpv *gpsd.TPVReport, now time.Time) {
	if tpv.Time.IsZero() || tpv.Mode < gpsd.Mode2D {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = Sample{
		Reference: tpv.Time,
		Local:     now,
		Detail:    fmt.Sprintf("gpsd %s mode %d", tpv.Device, tpv.Mode),
	}
	g.haveFix = true
	g.err = nil
}

func (g *Gpsd) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Query returns the most recent fix, or an error if there is none fresh enough.
func (g *Gpsd) Query(ctx context.Context) (Sample, error) {
	g.once.Do(g.start)
	for {
		g.mu.Lock()
		s, ok, err := g.last, g.haveFix, g.err
		g.mu.Unlock()
		if ok && time.Since(s.Local) < maxFixAge {
			return s, nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return Sample{}, fmt.Errorf("%v: %w", err, ctx.Err())
			}
			return Sample{}, fmt.Errorf("no fresh fix: %w", ErrNotSynchronized)
		case <-time.After(100 * time.Millisecond):
		}
	}
}
