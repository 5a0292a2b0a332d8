package timesync

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/facebookincubator/ntp/protocol/chrony"
)

// DefaultChronyAddr is chronyd's command port.
const DefaultChronyAddr = "localhost:323"

// Chrony asks a local chronyd how far the system clock is from NTP time.  It is the backend to
// use when the machine's own clock is already disciplined.
type Chrony struct {
	Addr string
}

func (c *Chrony) Name() string { return "chrony" }

func (c *Chrony) Query(ctx context.Context) (Sample, error) {
	addr := c.Addr
	if addr == "" {
		addr = DefaultChronyAddr
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return Sample{}, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return Sample{}, fmt.Errorf("set read deadline: %w", err)
		}
	}

	client := chrony.Client{Sequence: 1, Connection: conn}
	res, err := client.Communicate(chrony.NewTrackingPacket())
	now := time.Now()
	if err != nil {
		return Sample{}, fmt.Errorf("get tracking info: communicate: %w", err)
	}
	tracking, ok := res.(*chrony.ReplyTracking)
	if !ok {
		return Sample{}, fmt.Errorf("tracking reply was of unexpected type: %#v", res)
	}
	return trackingSample(tracking.Tracking, now)
}

func trackingSample(t chrony.Tracking, now time.Time) (Sample, error) {
	if t.LeapStatus == leapUnsynced {
		return Sample{}, fmt.Errorf("chronyd reports %s: %w", formatLeap(t.LeapStatus), ErrNotSynchronized)
	}
	// A positive correction means the system clock is slow.
	correction := time.Duration(t.CurrentCorrection * float64(time.Second))
	return Sample{
		Reference: now.Add(correction),
		Local:     now,
		Detail:    fmt.Sprintf("ref %s stratum %d, %s", formatRefID(t.RefID), t.Stratum, formatCorrection(t.CurrentCorrection)),
	}, nil
}

func refID(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		last := len(v4)
		for i, b := range v4 {
			if b == 0 && i > 0 {
				last = i
				break
			}
			if b < '0' || b > 'z' {
				last = 0
				break
			}
		}
		if last > 0 {
			return string(v4[0:last])
		}
	}
	return ip.String()
}

func formatRefID(x uint32) string {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, x)
	return refID(ip)
}

func formatLeap(x uint16) string {
	// From chrony/client.c and chrony/ntp.h
	switch x {
	case 0:
		return "Normal"
	case 1:
		return "Insert second"
	case 2:
		return "Delete second"
	case 3:
		return "Unsynchronized"
	default:
		return fmt.Sprintf("Invalid (%v)", x)
	}
}

func formatCorrection(x float64) string {
	var fast string
	if x < 0 {
		x = -x
		fast = "fast"
	} else {
		fast = "slow"
	}
	return fmt.Sprintf("%s %s of NTP time", time.Duration(x*1e9).String(), fast)
}
