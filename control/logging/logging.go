// Package logging hands out named zap loggers whose levels can be changed at runtime.
package logging

import (
	"os"
	"sort"
	"sync"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfg = zap.Config{
		Level:       zap.NewAtomicLevelAt(zap.InfoLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder(),
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	leveler = &levelSetter{
		levelers: make(map[string]zap.AtomicLevel),
		base:     zap.InfoLevel,
	}
)

func levelEncoder() zapcore.LevelEncoder {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return zapcore.CapitalColorLevelEncoder
	}
	return zapcore.LowercaseLevelEncoder
}

// Leveler adjusts the level of named loggers.
type Leveler interface {
	SetLevel(name string, level zapcore.Level)
	GetLevel(name string) zapcore.Level
	SetDefault(level zapcore.Level)
	Names() []string
}

type levelSetter struct {
	mu       sync.RWMutex
	levelers map[string]zap.AtomicLevel
	base     zapcore.Level
}

var _ Leveler = (*levelSetter)(nil)

// GetLeveler returns the process-wide Leveler.
func GetLeveler() Leveler {
	return leveler
}

func (lw *levelSetter) SetLevel(name string, level zapcore.Level) {
	_ = lw.setLevel(name, level)
}

func (lw *levelSetter) GetLevel(name string) zapcore.Level {
	lw.mu.RLock()
	defer lw.mu.RUnlock()
	if l, ok := lw.levelers[name]; ok {
		return l.Level()
	}
	return lw.base
}

// SetDefault changes the level of every existing logger and of loggers created later.
func (lw *levelSetter) SetDefault(level zapcore.Level) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.base = level
	for _, l := range lw.levelers {
		l.SetLevel(level)
	}
}

func (lw *levelSetter) Names() []string {
	lw.mu.RLock()
	defer lw.mu.RUnlock()
	var names []string
	for n := range lw.levelers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (lw *levelSetter) setLevel(name string, level zapcore.Level) zap.AtomicLevel {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if _, ok := lw.levelers[name]; !ok {
		lw.levelers[name] = zap.NewAtomicLevelAt(level)
	}
	lw.levelers[name].SetLevel(level)
	return lw.levelers[name]
}

func (lw *levelSetter) atomic(name string) zap.AtomicLevel {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if l, ok := lw.levelers[name]; ok {
		return l
	}
	l := zap.NewAtomicLevelAt(lw.base)
	lw.levelers[name] = l
	return l
}

// New returns a sugared logger named name.  Loggers with the same name share a level.
func New(name string) *zap.SugaredLogger {
	c := cfg
	c.Level = leveler.atomic(name)
	return zap.Must(c.Build(zap.AddStacktrace(zapcore.PanicLevel))).Named(name).Sugar()
}
