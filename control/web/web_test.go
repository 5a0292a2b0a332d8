package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/jrockway/ring-clock/control/clock"
	"github.com/jrockway/ring-clock/control/face"
	"github.com/jrockway/ring-clock/control/screen"
	"github.com/jrockway/ring-clock/control/strip"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// fakeClock applies commands immediately and validates like the real one.
type fakeClock struct {
	mu     sync.Mutex
	status clock.Status
	busy   bool
}

func (c *fakeClock) SetMode(ctx context.Context, m face.Mode) error {
	if _, err := face.ForMode(m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return context.DeadlineExceeded
	}
	c.status.Mode = m
	return nil
}

func (c *fakeClock) SetScheme(ctx context.Context, name string) error {
	s, err := face.SchemeByName(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Scheme = s.Name
	return nil
}

func (c *fakeClock) SetOverride(ctx context.Context, o clock.Override) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Override = o
	return nil
}

func (c *fakeClock) Status() clock.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

type fakeLevels struct {
	levels map[string]zapcore.Level
	def    zapcore.Level
}

func (l *fakeLevels) SetLevel(name string, level zapcore.Level) { l.levels[name] = level }
func (l *fakeLevels) GetLevel(name string) zapcore.Level { return l.levels[name] }
func (l *fakeLevels) SetDefault(level zapcore.Level) { l.def = level }
func (l *fakeLevels) Names() []string { return []string{"clock"} }

func newTestServer(t *testing.T) (*Server, *fakeClock, http.Handler) {
	t.Helper()
	fc := &fakeClock{status: clock.Status{Mode: face.Classic, Scheme: "default"}}
	logger := zaptest.NewLogger(t).Sugar()
	s := &Server{
		Clock:  fc,
		Screen: screen.New(strip.NewSim(face.Pixels), screen.DefaultPowerLimit, screen.Layout{}, logger),
		Hub:    NewHub(logger),
		Levels: &fakeLevels{levels: map[string]zapcore.Level{"clock": zapcore.InfoLevel}},
		Logger: logger,
	}
	return s, fc, s.Handler()
}

func do(h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCommands(t *testing.T) {
	testData := []struct {
		name        string
		path        string
		contentType string
		body        string
		wantCode    int
		want        clock.Status
	}{
		{"mode json", "/api/mode", "application/json", `{"mode":"arc"}`, http.StatusAccepted, clock.Status{Mode: face.FullArc, Scheme: "default"}},
		{"mode form", "/api/mode", "application/x-www-form-urlencoded", "mode=minarc", http.StatusAccepted, clock.Status{Mode: face.MinuteArc, Scheme: "default"}},
		{"invalid mode", "/api/mode", "application/json", `{"mode":"digital"}`, http.StatusBadRequest, clock.Status{Mode: face.Classic, Scheme: "default"}},
		{"missing mode", "/api/mode", "application/json", `{}`, http.StatusBadRequest, clock.Status{Mode: face.Classic, Scheme: "default"}},
		{"bad json", "/api/mode", "application/json", `{"mode":`, http.StatusBadRequest, clock.Status{Mode: face.Classic, Scheme: "default"}},
		{"scheme", "/api/scheme", "application/json", `{"scheme":"warm"}`, http.StatusAccepted, clock.Status{Mode: face.Classic, Scheme: "warm"}},
		{"invalid scheme", "/api/scheme", "application/json", `{"scheme":"plaid"}`, http.StatusBadRequest, clock.Status{Mode: face.Classic, Scheme: "default"}},
		{"override", "/api/override", "application/json", `{"override":"off"}`, http.StatusAccepted, clock.Status{Mode: face.Classic, Scheme: "default", Override: clock.ForceOff}},
		{"invalid override", "/api/override", "application/json", `{"override":"maybe"}`, http.StatusBadRequest, clock.Status{Mode: face.Classic, Scheme: "default"}},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			_, fc, h := newTestServer(t)
			rec := do(h, http.MethodPost, test.path, test.contentType, test.body)
			if got, want := rec.Code, test.wantCode; got != want {
				t.Errorf("code:\n  got: %v\n want: %v\n body: %s", got, want, rec.Body.String())
			}
			if diff := cmp.Diff(fc.Status(), test.want); diff != "" {
				t.Errorf("status:\n%s", diff)
			}
		})
	}
}

func TestCommandNotTaken(t *testing.T) {
	_, fc, h := newTestServer(t)
	fc.busy = true
	rec := do(h, http.MethodPost, "/api/mode", "application/json", `{"mode":"arc"}`)
	if got, want := rec.Code, http.StatusServiceUnavailable; got != want {
		t.Errorf("code:\n  got: %v\n want: %v", got, want)
	}
}

func TestStatus(t *testing.T) {
	_, fc, h := newTestServer(t)
	fc.status.State = clock.PendingOff
	fc.status.Brightness = 100
	rec := do(h, http.MethodGet, "/api/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code %d", rec.Code)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	for k, want := range map[string]interface{}{
		"mode":       "classic",
		"state":      "pending-off",
		"override":   "auto",
		"brightness": 100.0,
	} {
		if diff := cmp.Diff(got[k], want); diff != "" {
			t.Errorf("%s:\n%s", k, diff)
		}
	}
}

func TestStatusPage(t *testing.T) {
	s, _, h := newTestServer(t)
	if err := s.Screen.Commit(face.Render(mustRenderer(t, face.Classic), face.TimeOfDay{Hour: 3}, face.DefaultScheme), 255); err != nil {
		t.Fatal(err)
	}
	rec := do(h, http.MethodGet, "/", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{"data:image/png;base64,", `value="minarc"`, `value="warm"`, "#ff0000"} {
		if !strings.Contains(body, want) {
			t.Errorf("status page does not contain %q", want)
		}
	}

	rec = do(h, http.MethodGet, "/display.png", "", "")
	if got, want := rec.Header().Get("content-type"), "image/png"; got != want {
		t.Errorf("preview content type:\n  got: %v\n want: %v", got, want)
	}
}

func mustRenderer(t *testing.T, m face.Mode) face.Renderer {
	t.Helper()
	r, err := face.ForMode(m)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestLogLevel(t *testing.T) {
	s, _, h := newTestServer(t)
	levels := s.Levels.(*fakeLevels)
	if rec := do(h, http.MethodPost, "/api/loglevel", "application/json", `{"name":"clock","level":"debug"}`); rec.Code != http.StatusOK {
		t.Errorf("set level: %d %s", rec.Code, rec.Body.String())
	}
	if got, want := levels.levels["clock"], zapcore.DebugLevel; got != want {
		t.Errorf("clock level:\n  got: %v\n want: %v", got, want)
	}
	if rec := do(h, http.MethodPost, "/api/loglevel", "application/x-www-form-urlencoded", url.Values{"level": {"warn"}}.Encode()); rec.Code != http.StatusOK {
		t.Errorf("set default: %d %s", rec.Code, rec.Body.String())
	}
	if got, want := levels.def, zapcore.WarnLevel; got != want {
		t.Errorf("default level:\n  got: %v\n want: %v", got, want)
	}
	if rec := do(h, http.MethodPost, "/api/loglevel", "application/json", `{"level":"loud"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad level: expected 400, got %d", rec.Code)
	}
	rec := do(h, http.MethodGet, "/api/loglevel", "", "")
	if got, want := strings.TrimSpace(rec.Body.String()), `{"clock":"debug"}`; got != want {
		t.Errorf("levels:\n  got: %v\n want: %v", got, want)
	}
}

func TestFrameStream(t *testing.T) {
	s, _, h := newTestServer(t)
	// Connection teardown logs can outlive the test.
	s.Logger = zap.NewNop().Sugar()
	s.Hub.Logger = s.Logger
	s.Screen.Observe(s.Hub.Publish)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var buf face.PixelBuffer
	buf[7] = face.RGB{G: 255}
	if err := s.Screen.Commit(buf, 255); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		T      int64
		Pixels []string `json:"pixels"`
		Level  int      `json:"level"`
	}
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal %s: %v", msg, err)
	}
	if got.Level != 255 || len(got.Pixels) != face.Pixels || got.Pixels[7] != "#00ff00" {
		t.Errorf("frame: %s", msg)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for s.Hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCommandErrorCodes(t *testing.T) {
	if got, want := commandError(errors.New("boom")), http.StatusServiceUnavailable; got != want {
		t.Errorf("generic error:\n  got: %v\n want: %v", got, want)
	}
	if got, want := commandError(face.ErrInvalidMode), http.StatusBadRequest; got != want {
		t.Errorf("invalid mode:\n  got: %v\n want: %v", got, want)
	}
}
