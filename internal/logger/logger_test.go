package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	log, err := New(Config{Level: "shouting", Encoding: "xml"})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	if !log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info level to be enabled")
	}
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be disabled")
	}
}

func TestNewHonoursDebugLevel(t *testing.T) {
	log, err := New(Config{Level: "DEBUG", Encoding: "console"})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
}
