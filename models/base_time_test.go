package models

import (
	"testing"
	"time"
)

func TestSeveritySlaDays_Defaults(t *testing.T) {
	cases := []struct {
		severity CheckSeverity
		expected int
	}{
		{CheckSeverityCritical, 0},
		{CheckSeverityHigh, 1},
		{CheckSeverityMedium, 3},
		{CheckSeverityLow, 7},
		{CheckSeverity("??"), 7},
	}
	for _, tc := range cases {
		if got := severitySlaDays(tc.severity); got != tc.expected {
			t.Fatalf("severitySlaDays(%s) expected %d, got %d", tc.severity, tc.expected, got)
		}
	}
}

func TestSeveritySlaDays_EnvOverride(t *testing.T) {
	t.Setenv("CORRECTIVE_SLA_CRITICAL_DAYS", "2")
	if got := severitySlaDays(CheckSeverityCritical); got != 2 {
		t.Fatalf("critical override expected 2, got %d", got)
	}
	// garbage and negative values fall back to the defaults
	t.Setenv("CORRECTIVE_SLA_HIGH_DAYS", "not-a-number")
	if got := severitySlaDays(CheckSeverityHigh); got != 1 {
		t.Fatalf("invalid high override expected default 1, got %d", got)
	}
	t.Setenv("CORRECTIVE_SLA_MEDIUM_DAYS", "-1")
	if got := severitySlaDays(CheckSeverityMedium); got != 3 {
		t.Fatalf("negative medium override expected default 3, got %d", got)
	}
}

func TestCalculateDueDate_EndOfLocalDay(t *testing.T) {
	cases := []struct {
		name     string
		failedAt time.Time
		severity CheckSeverity
		timezone string
		expected time.Time
	}{
		{
			"critical is due the same local day",
			time.Date(2026, 8, 23, 15, 0, 0, 0, time.UTC),
			CheckSeverityCritical, "America/Chicago",
			time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC),
		},
		{
			"low rides across the DST end",
			time.Date(2026, 10, 31, 15, 0, 0, 0, time.UTC),
			CheckSeverityLow, "America/Chicago",
			// Oct 31 is still CDT; seven days later Chicago is back on CST
			time.Date(2026, 11, 8, 6, 0, 0, 0, time.UTC),
		},
		{
			"half-hour offset zone",
			time.Date(2026, 8, 23, 15, 0, 0, 0, time.UTC),
			CheckSeverityCritical, "Asia/Yangon",
			time.Date(2026, 8, 23, 17, 30, 0, 0, time.UTC),
		},
		{
			"failure after local midnight lands on the next local day",
			time.Date(2026, 8, 23, 19, 0, 0, 0, time.UTC),
			CheckSeverityCritical, "Asia/Yangon",
			time.Date(2026, 8, 24, 17, 30, 0, 0, time.UTC),
		},
		{
			"medium in UTC",
			time.Date(2026, 8, 23, 15, 0, 0, 0, time.UTC),
			CheckSeverityMedium, "UTC",
			time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		got, err := calculateDueDate(tc.failedAt, tc.severity, tc.timezone)
		if err != nil {
			t.Fatalf("%s: calculateDueDate error: %v", tc.name, err)
		}
		if !got.Equal(tc.expected) {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}

func TestHorizonFromCalendarDay(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		timezone  string
		extraDays int
		expected  time.Time
	}{
		{"one grace day in a half-hour zone", "Asia/Yangon", 1, time.Date(2026, 3, 11, 17, 30, 0, 0, time.UTC)},
		{"no grace in UTC", "UTC", 0, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"empty zone falls back to America/Chicago", "", 1, time.Date(2026, 3, 12, 5, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := horizonFromCalendarDay(day, tc.timezone, tc.extraDays)
		if err != nil {
			t.Fatalf("%s: horizonFromCalendarDay error: %v", tc.name, err)
		}
		if !got.Equal(tc.expected) {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}

	if _, err := horizonFromCalendarDay(day, "Mars/Olympus", 0); err == nil {
		t.Fatalf("unknown timezone must error, not guess")
	}
}

func TestRunGraceDays_EnvOverride(t *testing.T) {
	t.Setenv("RUN_GRACE_DAYS", "")
	if got := runGraceDays(); got != 1 {
		t.Fatalf("default grace expected 1, got %d", got)
	}
	t.Setenv("RUN_GRACE_DAYS", "0")
	if got := runGraceDays(); got != 0 {
		t.Fatalf("zero grace expected 0, got %d", got)
	}
	t.Setenv("RUN_GRACE_DAYS", "three")
	if got := runGraceDays(); got != 1 {
		t.Fatalf("invalid grace expected default 1, got %d", got)
	}
}
