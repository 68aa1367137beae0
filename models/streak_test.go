package models

import (
	"testing"
	"time"
)

func calendarDay(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestComputeStreak_ConsecutiveDaysExtendChain(t *testing.T) {
	fold := ComputeStreak([]time.Time{
		calendarDay(2026, 8, 20),
		calendarDay(2026, 8, 21),
		calendarDay(2026, 8, 22),
	})
	if fold.Current != 3 || fold.Longest != 3 {
		t.Fatalf("expected current=3 longest=3, got current=%d longest=%d", fold.Current, fold.Longest)
	}
	if fold.LastDate == nil || !fold.LastDate.Equal(calendarDay(2026, 8, 22)) {
		t.Fatalf("expected last date 2026-08-22, got %v", fold.LastDate)
	}
}

func TestComputeStreak_GapStartsNewChain(t *testing.T) {
	fold := ComputeStreak([]time.Time{
		calendarDay(2026, 8, 18),
		calendarDay(2026, 8, 19),
		calendarDay(2026, 8, 20),
		calendarDay(2026, 8, 22),
	})
	if fold.Current != 1 {
		t.Fatalf("the missed 21st should have reset the current chain, got %d", fold.Current)
	}
	if fold.Longest != 3 {
		t.Fatalf("the earlier three-day chain should survive as longest, got %d", fold.Longest)
	}
	if fold.LastDate == nil || !fold.LastDate.Equal(calendarDay(2026, 8, 22)) {
		t.Fatalf("expected last date 2026-08-22, got %v", fold.LastDate)
	}
}

func TestComputeStreak_UnsortedDuplicatesAndTimesCollapse(t *testing.T) {
	// two completions on the 22nd, input out of order, one with a wall-clock
	// time on it; a calendar day still counts once
	fold := ComputeStreak([]time.Time{
		time.Date(2026, 8, 22, 15, 4, 5, 0, time.UTC),
		calendarDay(2026, 8, 20),
		calendarDay(2026, 8, 21),
		calendarDay(2026, 8, 21),
		calendarDay(2026, 8, 22),
	})
	if fold.Current != 3 || fold.Longest != 3 {
		t.Fatalf("expected current=3 longest=3, got current=%d longest=%d", fold.Current, fold.Longest)
	}
}

func TestComputeStreak_Empty(t *testing.T) {
	fold := ComputeStreak(nil)
	if fold.Current != 0 || fold.Longest != 0 || fold.LastDate != nil {
		t.Fatalf("expected a zero fold, got %+v", fold)
	}
}

func TestComputeStreak_SingleDay(t *testing.T) {
	fold := ComputeStreak([]time.Time{calendarDay(2026, 8, 22)})
	if fold.Current != 1 || fold.Longest != 1 {
		t.Fatalf("expected current=1 longest=1, got current=%d longest=%d", fold.Current, fold.Longest)
	}
}
