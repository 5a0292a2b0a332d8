package timesync

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/facebookincubator/ntp/protocol/ntp"
)

// fakeServer answers each request with a clock that is skew ahead of ours.
func fakeServer(t *testing.T, skew time.Duration, mangle func(req, resp *ntp.Packet)) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	go func() {
		buf := make([]byte, 1500)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			rx := time.Now().Add(skew)
			req, err := ntp.BytesToPacket(buf[:n])
			if err != nil {
				continue
			}
			resp := &ntp.Packet{
				Settings:     0x24, // LI 0, version 4, server
				Stratum:      2,
				OrigTimeSec:  req.TxTimeSec,
				OrigTimeFrac: req.TxTimeFrac,
			}
			resp.RxTimeSec, resp.RxTimeFrac = ntp.Time(rx)
			resp.TxTimeSec, resp.TxTimeFrac = ntp.Time(time.Now().Add(skew))
			if mangle != nil {
				mangle(req, resp)
			}
			b, err := resp.Bytes()
			if err != nil {
				continue
			}
			pc.WriteTo(b, addr) // nolint:errcheck
		}
	}()
	return pc.LocalAddr().String()
}

func TestNTPQuery(t *testing.T) {
	skew := 10 * time.Second
	n := &NTP{Server: fakeServer(t, skew, nil)}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := n.Query(ctx)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if diff := s.Offset() - skew; diff > 100*time.Millisecond || diff < -100*time.Millisecond {
		t.Errorf("offset:\n  got: %v\n want: %v", s.Offset(), skew)
	}
}

func TestNTPUnsynchronized(t *testing.T) {
	n := &NTP{Server: fakeServer(t, 0, func(_, resp *ntp.Packet) { resp.Stratum = 0 })}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := n.Query(ctx); !errors.Is(err, ErrNotSynchronized) {
		t.Errorf("expected ErrNotSynchronized, got %v", err)
	}
}

func TestNTPIgnoresForeignReplies(t *testing.T) {
	n := &NTP{Server: fakeServer(t, 0, func(_, resp *ntp.Packet) { resp.OrigTimeSec++ })}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := n.Query(ctx); err == nil {
		t.Error("expected timeout when the reply does not match the request")
	}
}

func TestNTPRequestTimestamp(t *testing.T) {
	sent := make(chan time.Time, 1)
	n := &NTP{Server: fakeServer(t, 0, func(req, _ *ntp.Packet) {
		select {
		case sent <- ntp.Unix(req.TxTimeSec, req.TxTimeFrac):
		default:
		}
	})}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	before := time.Now()
	if _, err := n.Query(ctx); err != nil {
		t.Fatalf("query: %v", err)
	}
	got := <-sent
	if diff := got.Sub(before); diff > time.Second || diff < -time.Millisecond {
		t.Errorf("transmit timestamp:\n  got: %v\n want: about %v", got, before)
	}
}
