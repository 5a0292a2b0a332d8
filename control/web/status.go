package web

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"net/http"
	"time"

	"github.com/jrockway/ring-clock/control/clock"
	"github.com/jrockway/ring-clock/control/face"
	"github.com/jrockway/ring-clock/control/screen"
)

var (
	//go:embed index.html.tmpl
	indexHTML string
	funcMap   = template.FuncMap{
		"unixtime": formatUnixTime,
		"offset":   formatOffset,
		"image":    formatImage,
		"color":    formatColor,
		"float1":   formatFloat1,
	}
	index = template.Must(template.New("index").Funcs(funcMap).Parse(indexHTML))
)

type statusPage struct {
	Status  clock.Status
	Frame   screen.Frame
	Image   *image.RGBA
	Modes   []face.Mode
	Schemes []string
}

func (s *Server) serveStatusPage(w http.ResponseWriter, req *http.Request) {
	page := statusPage{
		Status:  s.Clock.Status(),
		Modes:   face.Modes,
		Schemes: face.SchemeNames(),
	}
	if s.Screen != nil {
		page.Frame = s.Screen.Last()
		page.Image = s.Screen.Image()
	}
	buf := new(bytes.Buffer)
	if err := index.Execute(buf, page); err != nil {
		s.Logger.Warnw("execute template", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("content-type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func formatUnixTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.In(time.UTC).Format(time.UnixDate)
}

// formatOffset says which way the local clock was off.  A positive offset means the clock was
// behind the reference.
func formatOffset(d time.Duration) string {
	switch {
	case d > 0:
		return fmt.Sprintf("%s slow", d)
	case d < 0:
		return fmt.Sprintf("%s fast", -d)
	}
	return "exact"
}

func formatColor(c face.RGB) template.CSS {
	return template.CSS(c.String())
}

func formatFloat1(x float64) string { return fmt.Sprintf("%.1f", x) }

func formatImage(src *image.RGBA) template.URL {
	if src == nil {
		src = image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, src); err != nil {
		return template.URL("data:text/plain,error")
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()))
}
