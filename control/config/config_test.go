package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrockway/ring-clock/control/face"
	"github.com/jrockway/ring-clock/control/strip"
	"github.com/spf13/pflag"
	"periph.io/x/conn/v3/physic"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ringclock.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	c, err := Load("test", []string{"--config", ""})
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.ConfigFile = ""
	if diff := cmp.Diff(c, want); diff != "" {
		t.Errorf("loaded config differs from defaults:\n%s", diff)
	}
}

func TestLayering(t *testing.T) {
	path := writeFile(t, `
listen: ":9000"
mode: minarc
scheme: warm
idle_threshold: 10
sync_backend: ntp
sync_interval: 30m
zone_offset: 2h
`)
	t.Setenv("RINGCLOCK_SCHEME", "ice")
	t.Setenv("RINGCLOCK_IDLE_THRESHOLD", "20")
	t.Setenv("RINGCLOCK_STRIP_REVERSE", "true")

	c, err := Load("test", []string{"--config", path, "--idle-minutes", "5", "--mode=arc"})
	if err != nil {
		t.Fatal(err)
	}
	testData := []struct {
		name      string
		got, want interface{}
	}{
		{"listen from file", c.Listen, ":9000"},
		{"scheme from env over file", c.Scheme, "ice"},
		{"idle from flag over env", c.IdleThreshold, 5},
		{"mode from flag over file", c.ModeValue(), face.FullArc},
		{"reverse from env", c.StripReverse, true},
		{"sync interval from file", c.SyncInterval, 30 * time.Minute},
		{"zone offset from file", c.ZoneOffset, 2 * time.Hour},
		{"sync backend from file", c.SyncBackend, SyncNTP},
		{"untouched default", c.BootAnimation, true},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			if diff := cmp.Diff(test.got, test.want); diff != "" {
				t.Errorf("%s:\n%s", test.name, diff)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	if _, err := Load("test", nil); err != nil {
		t.Errorf("missing default file: unexpected error %v", err)
	}
	if _, err := Load("test", []string{"--config", filepath.Join(dir, "nope.yaml")}); err == nil {
		t.Error("missing explicit file: expected error")
	}
}

func TestInvalid(t *testing.T) {
	testData := []struct {
		name string
		args []string
		want error
	}{
		{"mode", []string{"--mode", "digital"}, face.ErrInvalidMode},
		{"scheme", []string{"--scheme", "plaid"}, face.ErrUnknownScheme},
		{"strip", []string{"--strip", "neopixel"}, strip.ErrUnknownBackend},
		{"power below idle", []string{"--power-milliamps", "30"}, ErrPowerBudget},
		{"help", []string{"--help"}, pflag.ErrHelp},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load("test", append([]string{"--config", ""}, test.args...))
			if !errors.Is(err, test.want) {
				t.Errorf("error:\n  got: %v\n want: %v", err, test.want)
			}
		})
	}

	c := Default()
	c.BrightnessMax = 300
	c.SyncBackend = "sundial"
	if err := c.Validate(); err == nil {
		t.Error("expected validation errors")
	}
}

func TestDerived(t *testing.T) {
	c := Default()
	c.BrightnessMin, c.BrightnessMax, c.AmbientRawMax = 8, 200, 600
	b := c.Brightness()
	if b.Min != 8 || b.Max != 200 || b.RawMax != 600 {
		t.Errorf("brightness config: %+v", b)
	}
	if got, want := c.Strip().Freq, 2500*physic.KiloHertz; got != want {
		t.Errorf("strip frequency:\n  got: %v\n want: %v", got, want)
	}
	if got, want := c.Strip().Pixels, face.Pixels; got != want {
		t.Errorf("strip pixels:\n  got: %v\n want: %v", got, want)
	}
}

func TestStateFile(t *testing.T) {
	s := &StateFile{Path: filepath.Join(t.TempDir(), "state.yaml")}
	if _, ok, err := s.Load(); ok || err != nil {
		t.Fatalf("empty state: ok=%v err=%v", ok, err)
	}
	if err := s.SaveSelection(face.MinuteArc, "warm"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSelection(face.FullArc, "mono"); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(got, Selection{Mode: face.FullArc, Scheme: "mono"}); diff != "" {
		t.Errorf("selection:\n%s", diff)
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), "mode: arc\nscheme: mono\n"; got != want {
		t.Errorf("state file:\n  got: %q\n want: %q", got, want)
	}

	if err := os.WriteFile(s.Path, []byte("mode: sideways\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Load(); !errors.Is(err, face.ErrInvalidMode) {
		t.Errorf("corrupt state: expected ErrInvalidMode, got %v", err)
	}
}
