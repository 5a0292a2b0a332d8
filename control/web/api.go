package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/jrockway/ring-clock/control/clock"
	"github.com/jrockway/ring-clock/control/face"
	"go.uber.org/zap/zapcore"
	"golang.org/x/net/trace"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, req *http.Request, code int, err error) {
	if tr, ok := trace.FromContext(req.Context()); ok {
		tr.LazyPrintf("error: %v", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

// readBody reads the string fields of a JSON object body, or the form when the body is not
// JSON.
func readBody(w http.ResponseWriter, req *http.Request) (map[string]string, error) {
	ct, _, _ := mime.ParseMediaType(req.Header.Get("content-type"))
	if ct == "application/json" {
		body := make(map[string]string)
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 4096)).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		return body, nil
	}
	if err := req.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	body := make(map[string]string)
	for k := range req.Form {
		body[k] = req.Form.Get(k)
	}
	return body, nil
}

// readField reads one required field.
func readField(w http.ResponseWriter, req *http.Request, name string) (string, error) {
	body, err := readBody(w, req)
	if err != nil {
		return "", err
	}
	v, ok := body[name]
	if !ok {
		return "", fmt.Errorf("missing field %q", name)
	}
	return v, nil
}

func (s *Server) getStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, s.Clock.Status())
}

func (s *Server) getSchemes(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"schemes": face.SchemeNames(),
		"modes":   face.Modes,
	})
}

// commandError maps an error from the clock to a response code.  Rejected values are the
// caller's fault; anything else means the render loop didn't take the command in time.
func commandError(err error) int {
	switch {
	case errors.Is(err, face.ErrInvalidMode), errors.Is(err, face.ErrUnknownScheme), errors.Is(err, clock.ErrInvalidOverride):
		return http.StatusBadRequest
	}
	return http.StatusServiceUnavailable
}

func (s *Server) postMode(w http.ResponseWriter, req *http.Request) {
	v, err := readField(w, req, "mode")
	if err != nil {
		writeError(w, req, http.StatusBadRequest, err)
		return
	}
	m, err := face.ParseMode(v)
	if err != nil {
		writeError(w, req, http.StatusBadRequest, err)
		return
	}
	if err := s.Clock.SetMode(req.Context(), m); err != nil {
		writeError(w, req, commandError(err), err)
		return
	}
	s.Logger.Infow("mode selected", "mode", m)
	writeJSON(w, http.StatusAccepted, map[string]face.Mode{"mode": m})
}

func (s *Server) postScheme(w http.ResponseWriter, req *http.Request) {
	v, err := readField(w, req, "scheme")
	if err != nil {
		writeError(w, req, http.StatusBadRequest, err)
		return
	}
	if err := s.Clock.SetScheme(req.Context(), v); err != nil {
		writeError(w, req, commandError(err), err)
		return
	}
	s.Logger.Infow("scheme selected", "scheme", v)
	writeJSON(w, http.StatusAccepted, map[string]string{"scheme": v})
}

func (s *Server) postOverride(w http.ResponseWriter, req *http.Request) {
	v, err := readField(w, req, "override")
	if err != nil {
		writeError(w, req, http.StatusBadRequest, err)
		return
	}
	o, err := clock.ParseOverride(v)
	if err != nil {
		writeError(w, req, http.StatusBadRequest, err)
		return
	}
	if err := s.Clock.SetOverride(req.Context(), o); err != nil {
		writeError(w, req, commandError(err), err)
		return
	}
	s.Logger.Infow("override set", "override", o)
	writeJSON(w, http.StatusAccepted, map[string]clock.Override{"override": o})
}

func (s *Server) getLogLevels(w http.ResponseWriter, req *http.Request) {
	levels := make(map[string]string)
	for _, n := range s.Levels.Names() {
		levels[n] = s.Levels.GetLevel(n).String()
	}
	writeJSON(w, http.StatusOK, levels)
}

// postLogLevel sets the level of one logger, or of all of them when name is empty.
func (s *Server) postLogLevel(w http.ResponseWriter, req *http.Request) {
	body, err := readBody(w, req)
	if err != nil {
		writeError(w, req, http.StatusBadRequest, err)
		return
	}
	lv, ok := body["level"]
	if !ok {
		writeError(w, req, http.StatusBadRequest, errors.New(`missing field "level"`))
		return
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(lv)); err != nil {
		writeError(w, req, http.StatusBadRequest, err)
		return
	}
	name := body["name"]
	if name == "" {
		s.Levels.SetDefault(l)
	} else {
		s.Levels.SetLevel(name, l)
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "level": l.String()})
}
