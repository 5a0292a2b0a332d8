package timesync

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/facebookincubator/ntp/protocol/ntp"
)

const (
	packetSize = 48

	// LI 0, version 4, mode 3 (client).
	clientSettings = 0x23
	modeServer     = 4
	leapUnsynced   = 3
)

// DefaultNTPServer is the German pool.
const DefaultNTPServer = "de.pool.ntp.org:123"

// NTP queries an SNTP server.
type NTP struct {
	Server string
}

func (n *NTP) Name() string { return "ntp" }

// Query does one client/server exchange and returns the server's time at the moment the reply
// arrived, using the usual four-timestamp offset calculation.
func (n *NTP) Query(ctx context.Context) (Sample, error) {
	server := n.Server
	if server == "" {
		server = DefaultNTPServer
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", server)
	if err != nil {
		return Sample{}, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return Sample{}, fmt.Errorf("set deadline: %w", err)
		}
	}

	t1 := time.Now()
	req := &ntp.Packet{Settings: clientSettings}
	req.TxTimeSec, req.TxTimeFrac = ntp.Time(t1)
	b, err := req.Bytes()
	if err != nil {
		return Sample{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := conn.Write(b); err != nil {
		return Sample{}, fmt.Errorf("write request: %w", err)
	}

	buf := make([]byte, packetSize)
	for {
		nr, err := conn.Read(buf)
		t4 := time.Now()
		if err != nil {
			return Sample{}, fmt.Errorf("read reply: %w", err)
		}
		if nr < packetSize {
			continue
		}
		resp, err := ntp.BytesToPacket(buf[:packetSize])
		if err != nil {
			return Sample{}, fmt.Errorf("unmarshal reply: %w", err)
		}
		if resp.OrigTimeSec != req.TxTimeSec || resp.OrigTimeFrac != req.TxTimeFrac {
			// Stale or spoofed; keep waiting for ours until the deadline.
			continue
		}
		if mode := resp.Settings & 0x7; mode != modeServer {
			return Sample{}, fmt.Errorf("reply has mode %d, not server", mode)
		}
		if resp.Stratum == 0 || resp.Settings>>6 == leapUnsynced {
			return Sample{}, fmt.Errorf("server stratum %d: %w", resp.Stratum, ErrNotSynchronized)
		}
		t2 := ntp.Unix(resp.RxTimeSec, resp.RxTimeFrac)
		t3 := ntp.Unix(resp.TxTimeSec, resp.TxTimeFrac)
		offset := (t2.Sub(t1) + t3.Sub(t4)) / 2
		delay := t4.Sub(t1) - t3.Sub(t2)
		return Sample{
			Reference: t4.Add(offset),
			Local:     t4,
			Detail:    fmt.Sprintf("%s stratum %d delay %v", server, resp.Stratum, delay),
		}, nil
	}
}
