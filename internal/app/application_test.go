package app

import (
	"testing"
)

func TestNewWithOptionsSetsRecalcSchedule(t *testing.T) {
	application, err := NewWithOptions(Stores{}, Options{TrustRecalcSchedule: "@hourly"}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}
	if got := application.recalc.Schedule(); got != "@hourly" {
		t.Fatalf("expected configured schedule, got %q", got)
	}
}

func TestNewDefaultsRecalcSchedule(t *testing.T) {
	application, err := New(Stores{}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}
	if got := application.recalc.Schedule(); got != "0 3 * * *" {
		t.Fatalf("expected nightly default schedule, got %q", got)
	}
}
