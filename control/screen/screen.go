// Package screen puts frames on the ring, and retains them for debugging the rest of the program
// without the ring attached.
package screen

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"net/http"
	"sync"

	"github.com/jrockway/ring-clock/control/brightness"
	"github.com/jrockway/ring-clock/control/face"
	"github.com/jrockway/ring-clock/control/strip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	previewSize   = 400 // Width and height of the preview image.
	previewRadius = 170 // Distance from the center to each pixel.
	previewDot    = 12  // Radius of one pixel.

	// A WS2812 draws about 20mA per fully-on channel and 1mA when dark.
	channelMilliamps = 20.0
	idleMilliamps    = 1.0
)

var (
	currentGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ringclock_display_current_milliamps",
		Help: "Estimated current drawn by the last frame, after power limiting.",
	})
	limitedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ringclock_display_power_limited_frames_total",
		Help: "Frames that had to be dimmed to stay inside the power budget.",
	})
)

// PowerLimit is the supply budget for the ring.
type PowerLimit struct {
	Milliamps float64
	Volts     float64
}

// DefaultPowerLimit is a 2.4A supply at 4.5V.
var DefaultPowerLimit = PowerLimit{Milliamps: 2400, Volts: 4.5}

// Layout maps ring positions onto strip indices: Offset is the strip index of the LED at 12
// o'clock, and Reverse means the strip runs counterclockwise.
type Layout struct {
	Offset  int
	Reverse bool
}

func (l Layout) index(pos int) int {
	if l.Reverse {
		return face.Wrap(l.Offset - pos)
	}
	return face.Wrap(l.Offset + pos)
}

// Frame is what was last sent to the ring.
type Frame struct {
	Pixels    face.PixelBuffer `json:"pixels"` // Device colors, after brightness and power limiting.
	Level     brightness.Level `json:"level"`
	Milliamps float64          `json:"milliamps"`
	Caption   string           `json:"caption"`
}

// Screen is the ring of 60 LEDs.  Commit applies the brightness level, then scales the frame down
// if it would draw more current than the power limit allows.
type Screen struct {
	strip  strip.Strip
	limit  PowerLimit
	layout Layout
	logger *zap.SugaredLogger

	imageMu   sync.Mutex
	image     *image.RGBA // must hold imageMu to read or write.
	last      Frame       // must hold imageMu to read or write.
	caption   string      // must hold imageMu to read or write.
	observers []func(Frame)
}

// New returns a Screen writing to st.  A nil st just keeps the preview.
func New(st strip.Strip, limit PowerLimit, layout Layout, logger *zap.SugaredLogger) *Screen {
	if limit.Milliamps <= 0 {
		limit = DefaultPowerLimit
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Screen{
		strip:  st,
		limit:  limit,
		layout: layout,
		logger: logger,
		image:  image.NewRGBA(image.Rect(0, 0, previewSize, previewSize)),
	}
	s.updateCurrentImage(face.PixelBuffer{}, "")
	return s
}

// Observe registers f to be called with every committed frame.  Call before the first Commit.
func (s *Screen) Observe(f func(Frame)) {
	s.imageMu.Lock()
	defer s.imageMu.Unlock()
	s.observers = append(s.observers, f)
}

// SetCaption sets the text drawn in the middle of the preview.
func (s *Screen) SetCaption(c string) {
	s.imageMu.Lock()
	defer s.imageMu.Unlock()
	s.caption = c
}

// IdleMilliamps is what a completely dark ring draws.  No power limit can go below it.
func IdleMilliamps() float64 {
	return idleMilliamps * face.Pixels
}

// Milliamps estimates the current buf will draw.
func Milliamps(buf *face.PixelBuffer) float64 {
	ma := idleMilliamps * face.Pixels
	for _, c := range buf {
		ma += channelMilliamps * (float64(c.R) + float64(c.G) + float64(c.B)) / 0xff
	}
	return ma
}

// applyLimit scales buf so it stays within budget, returning the estimated current afterwards.
func (s *Screen) applyLimit(buf *face.PixelBuffer) float64 {
	ma := Milliamps(buf)
	if ma <= s.limit.Milliamps {
		return ma
	}
	limitedFrames.Inc()
	idle := IdleMilliamps()
	scale := math.Max(0, math.Min(1, (s.limit.Milliamps-idle)/(ma-idle)))
	for i, c := range buf {
		buf[i] = face.RGB{
			R: uint8(math.Floor(float64(c.R) * scale)),
			G: uint8(math.Floor(float64(c.G) * scale)),
			B: uint8(math.Floor(float64(c.B) * scale)),
		}
	}
	return Milliamps(buf)
}

// Commit displays buf at the given brightness.
func (s *Screen) Commit(buf face.PixelBuffer, level brightness.Level) error {
	var out face.PixelBuffer
	for i, c := range buf {
		out[i] = face.RGB{R: level.Scale(c.R), G: level.Scale(c.G), B: level.Scale(c.B)}
	}
	ma := s.applyLimit(&out)
	currentGauge.Set(ma)

	s.imageMu.Lock()
	caption := s.caption
	s.imageMu.Unlock()
	f := Frame{Pixels: out, Level: level, Milliamps: ma, Caption: caption}
	s.updateCurrentImage(out, caption)
	s.imageMu.Lock()
	s.last = f
	observers := s.observers
	s.imageMu.Unlock()
	for _, o := range observers {
		o(f)
	}

	if s.strip == nil {
		return nil
	}
	if err := s.strip.Write(s.toStrip(&out)); err != nil {
		return fmt.Errorf("write to strip: %w", err)
	}
	return nil
}

// Blank turns every LED off.
func (s *Screen) Blank() error {
	if err := s.Commit(face.PixelBuffer{}, 0); err != nil {
		return fmt.Errorf("blank display: %w", err)
	}
	return nil
}

// Last returns the last committed frame.
func (s *Screen) Last() Frame {
	s.imageMu.Lock()
	defer s.imageMu.Unlock()
	return s.last
}

// toStrip reorders buf for the physical strip.
func (s *Screen) toStrip(buf *face.PixelBuffer) []byte {
	result := make([]byte, 3*face.Pixels)
	for pos, c := range buf {
		i := 3 * s.layout.index(pos)
		result[i], result[i+1], result[i+2] = c.R, c.G, c.B
	}
	return result
}

// ServeHTTP serves the current image as a PNG.
func (s *Screen) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Add("content-type", "image/png")
	w.WriteHeader(http.StatusOK)
	s.imageMu.Lock()
	defer s.imageMu.Unlock()
	if err := png.Encode(w, s.image); err != nil {
		s.logger.Warnw("encoding image", "error", err)
	}
}

// Image returns a copy of the preview.
func (s *Screen) Image() *image.RGBA {
	s.imageMu.Lock()
	defer s.imageMu.Unlock()
	img := image.NewRGBA(s.image.Bounds())
	draw.Draw(img, img.Bounds(), s.image, image.Point{}, draw.Src)
	return img
}

// PreviewPoint returns the center of ring position pos in the preview image.
func PreviewPoint(pos int) image.Point {
	a := float64(face.Wrap(pos)) * 2 * math.Pi / face.Pixels
	c := previewSize / 2
	return image.Point{
		X: c + int(math.Round(previewRadius*math.Sin(a))),
		Y: c - int(math.Round(previewRadius*math.Cos(a))),
	}
}

// updateCurrentImage redraws the preview.
func (s *Screen) updateCurrentImage(buf face.PixelBuffer, caption string) {
	s.imageMu.Lock()
	defer s.imageMu.Unlock()
	draw.Draw(s.image, s.image.Bounds(), image.NewUniform(color.RGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xff}), image.Point{}, draw.Src)
	for pos, c := range buf {
		p := PreviewPoint(pos)
		// Unlit LEDs are drawn as a faint outline of the ring.
		col := color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
		if c.IsBlack() {
			col = color.RGBA{R: 0x28, G: 0x28, B: 0x28, A: 0xff}
		}
		for x := p.X - previewDot; x <= p.X+previewDot; x++ {
			for y := p.Y - previewDot; y <= p.Y+previewDot; y++ {
				dx, dy := x-p.X, y-p.Y
				if dx*dx+dy*dy <= previewDot*previewDot {
					s.image.SetRGBA(x, y, col)
				}
			}
		}
	}
	if caption == "" {
		return
	}
	d := &font.Drawer{
		Dst:  s.image,
		Src:  image.NewUniform(color.RGBA{R: 0x20, G: 0xa0, B: 0xff, A: 0xff}),
		Face: basicfont.Face7x13,
	}
	width := d.MeasureString(caption)
	d.Dot = fixed.Point26_6{
		X: fixed.I(previewSize/2) - width/2,
		Y: fixed.I(previewSize/2 + basicfont.Face7x13.Ascent/2),
	}
	d.DrawString(caption)
}
