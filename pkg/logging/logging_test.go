package logging

import "testing"

func TestNewParsesLevel(t *testing.T) {
	l := New(Config{Level: "debug", Format: "json", Component: "graph"})
	if l.GetLevel().String() != "debug" {
		t.Fatalf("expected debug level, got %s", l.GetLevel())
	}
}

func TestNewDefaultsOnBadLevel(t *testing.T) {
	l := New(Config{Level: "not-a-level", Format: "text"})
	if l.GetLevel().String() != "info" {
		t.Fatalf("expected info fallback, got %s", l.GetLevel())
	}
}

func TestWithFieldAddsComponent(t *testing.T) {
	l := NewDefault("bus")
	entry := l.WithField("agent", "a1")
	if entry.Data["component"] != "bus" {
		t.Fatalf("expected component field, got %v", entry.Data)
	}
	if entry.Data["agent"] != "a1" {
		t.Fatalf("expected agent field, got %v", entry.Data)
	}
}
