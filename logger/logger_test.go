package logger

import (
	"os"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestWarnRecordsComponent(t *testing.T) {
	log := Logger()
	log.SetOutput(os.NewFile(0, os.DevNull))
	log.WithComponent("unit_warn").Warn("boom")

	v, ok := warnCounts.Load("unit_warn")
	if !ok {
		t.Fatalf("warn counter not recorded")
	}
	if *(v.(*int64)) < 1 {
		t.Fatalf("warn counter not incremented")
	}
}
