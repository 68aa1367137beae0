package models

import "testing"

func TestFoldOutcomes_PassBreaksFailStreak(t *testing.T) {
	fold := FoldOutcomes([]ResponseStatus{ResponseStatusFail, ResponseStatusFail, ResponseStatusPass})
	if fold.PassCount != 1 || fold.FailCount != 2 {
		t.Fatalf("expected pass=1 fail=2, got pass=%d fail=%d", fold.PassCount, fold.FailCount)
	}
	if fold.ConsecutivePass != 1 || fold.ConsecutiveFail != 0 {
		t.Fatalf("expected cp=1 cf=0, got cp=%d cf=%d", fold.ConsecutivePass, fold.ConsecutiveFail)
	}
	if fold.LastOutcome == nil || *fold.LastOutcome != ResponseStatusPass {
		t.Fatalf("expected last outcome PASS, got %v", fold.LastOutcome)
	}
}

func TestFoldOutcomes_FailBreaksPassStreak(t *testing.T) {
	fold := FoldOutcomes([]ResponseStatus{ResponseStatusPass, ResponseStatusPass, ResponseStatusFail})
	if fold.PassCount != 2 || fold.FailCount != 1 {
		t.Fatalf("expected pass=2 fail=1, got pass=%d fail=%d", fold.PassCount, fold.FailCount)
	}
	if fold.ConsecutivePass != 0 || fold.ConsecutiveFail != 1 {
		t.Fatalf("expected cp=0 cf=1, got cp=%d cf=%d", fold.ConsecutivePass, fold.ConsecutiveFail)
	}
	if fold.LastOutcome == nil || *fold.LastOutcome != ResponseStatusFail {
		t.Fatalf("expected last outcome FAIL, got %v", fold.LastOutcome)
	}
}

func TestFoldOutcomes_SkipKeepsStreakCounters(t *testing.T) {
	// a skip moves the last outcome but neither breaks nor extends a streak
	fold := FoldOutcomes([]ResponseStatus{ResponseStatusFail, ResponseStatusSkipped})
	if fold.ConsecutiveFail != 1 || fold.SkipCount != 1 {
		t.Fatalf("expected cf=1 skip=1, got cf=%d skip=%d", fold.ConsecutiveFail, fold.SkipCount)
	}
	if fold.LastOutcome == nil || *fold.LastOutcome != ResponseStatusSkipped {
		t.Fatalf("expected last outcome SKIPPED, got %v", fold.LastOutcome)
	}

	fold = FoldOutcomes([]ResponseStatus{ResponseStatusPass, ResponseStatusSkipped, ResponseStatusPass})
	if fold.ConsecutivePass != 2 {
		t.Fatalf("a skip in the middle must not break the pass streak, got cp=%d", fold.ConsecutivePass)
	}
	if fold.PassCount != 2 || fold.SkipCount != 1 {
		t.Fatalf("expected pass=2 skip=1, got pass=%d skip=%d", fold.PassCount, fold.SkipCount)
	}
}

func TestFoldOutcomes_Empty(t *testing.T) {
	fold := FoldOutcomes(nil)
	if fold.PassCount != 0 || fold.FailCount != 0 || fold.SkipCount != 0 || fold.LastOutcome != nil {
		t.Fatalf("expected a zero fold, got %+v", fold)
	}
}
