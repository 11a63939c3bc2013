package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_FileOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "inkwell.log")
	l, err := New(Config{Level: "warn", Format: "json", OutputPath: out})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Info("hidden")
	l.Warn("shown", zap.String("id", "a.txt"))
	l.Sync()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("info message written at warn level")
	}
	if !strings.Contains(string(data), `"id":"a.txt"`) {
		t.Errorf("log output = %s", data)
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNew_InvalidLevelDefaultsToInfo(t *testing.T) {
	l, err := New(Config{Level: "loud", OutputPath: filepath.Join(t.TempDir(), "x.log")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if l.Level() != "info" {
		t.Errorf("Level() = %q, want %q", l.Level(), "info")
	}
}

func TestLogger_SetLevel(t *testing.T) {
	l := Nop()
	if err := l.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	if l.Level() != "debug" {
		t.Errorf("Level() = %q, want %q", l.Level(), "debug")
	}
	if err := l.SetLevel("nope"); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestComponent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Component(zap.New(core), "autosave").Info("saved")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["component"]; got != "autosave" {
		t.Errorf("component = %v, want %q", got, "autosave")
	}

	// nil logger is safe
	Component(nil, "x").Info("dropped")
}
