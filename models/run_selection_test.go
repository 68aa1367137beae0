package models

import (
	"testing"
	"time"
)

func makeRotationCandidate(id int, category CheckCategory, priority int) *CheckTemplate {
	return &CheckTemplate{ID: id, RootId: id, Category: category, RotationPriority: priority}
}

func makeUsedCoverage(asOf time.Time, daysAgo int, consecutiveFail int) *CheckCoverage {
	last := asOf.AddDate(0, 0, -daysAgo)
	return &CheckCoverage{UseCount: 1, LastUsedDate: &last, ConsecutiveFail: consecutiveFail}
}

func pickedIds(picked []*CheckTemplate) []int {
	ids := make([]int, 0, len(picked))
	for _, template := range picked {
		ids = append(ids, template.ID)
	}
	return ids
}

func TestSelectionScore_RecencyAndFailBoostCaps(t *testing.T) {
	asOf := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		coverage *CheckCoverage
		expected int
	}{
		{"never used", nil, 30 + 1000},
		{"zero use count counts as never used", &CheckCoverage{UseCount: 0}, 30 + 1000},
		{"used yesterday", makeUsedCoverage(asOf, 1, 0), 30 + 1},
		{"recency capped at a year", makeUsedCoverage(asOf, 900, 0), 30 + 365},
		{"two fails boost", makeUsedCoverage(asOf, 10, 2), 30 + 10 + 50},
		{"fail boost capped", makeUsedCoverage(asOf, 10, 9), 30 + 10 + 100},
	}
	for _, tc := range cases {
		template := makeRotationCandidate(1, CheckCategoryFoodSafety, 3)
		got := selectionScore(template, tc.coverage, map[CheckCategory]int{}, nil, asOf)
		if got != tc.expected {
			t.Fatalf("%s: selectionScore expected %d, got %d", tc.name, tc.expected, got)
		}
	}
}

func TestSelectRunTemplates_NeverUsedWinsOverRecentlyUsed(t *testing.T) {
	asOf := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	candidates := []*CheckTemplate{
		makeRotationCandidate(1, CheckCategoryFoodSafety, 3),
		makeRotationCandidate(2, CheckCategoryCleaning, 3),
		makeRotationCandidate(3, CheckCategoryEquipment, 1),
	}
	coverage := map[int]*CheckCoverage{
		1: makeUsedCoverage(asOf, 2, 0),
		2: makeUsedCoverage(asOf, 10, 0),
	}
	picked := SelectRunTemplates(candidates, coverage, nil, asOf, 1)
	if len(picked) != 1 || picked[0].ID != 3 {
		t.Fatalf("expected the never-used lineage 3 to win despite its low priority, got %v", pickedIds(picked))
	}
}

func TestSelectRunTemplates_SpreadsAcrossCategories(t *testing.T) {
	asOf := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	candidates := []*CheckTemplate{
		makeRotationCandidate(1, CheckCategoryFoodSafety, 5),
		makeRotationCandidate(2, CheckCategoryFoodSafety, 5),
		makeRotationCandidate(3, CheckCategoryCleaning, 3),
	}
	// both food-safety candidates outscore cleaning, but once one is picked
	// the category penalty pushes the second pick to cleaning
	picked := SelectRunTemplates(candidates, nil, nil, asOf, 2)
	got := pickedIds(picked)
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("expected picks [1 3], got %v", got)
	}
}

func TestSelectRunTemplates_FailingLineageComesBackSooner(t *testing.T) {
	asOf := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	candidates := []*CheckTemplate{
		makeRotationCandidate(1, CheckCategoryFoodSafety, 3),
		makeRotationCandidate(2, CheckCategoryFoodSafety, 3),
	}
	coverage := map[int]*CheckCoverage{
		1: makeUsedCoverage(asOf, 3, 2),
		2: makeUsedCoverage(asOf, 3, 0),
	}
	picked := SelectRunTemplates(candidates, coverage, nil, asOf, 1)
	if len(picked) != 1 || picked[0].ID != 1 {
		t.Fatalf("expected the failing lineage 1 to be rescheduled first, got %v", pickedIds(picked))
	}
}

func TestSelectRunTemplates_PenalizesRepeatOfSingleCategoryRun(t *testing.T) {
	asOf := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	candidates := []*CheckTemplate{
		makeRotationCandidate(1, CheckCategoryFoodSafety, 3),
		makeRotationCandidate(2, CheckCategoryCleaning, 3),
	}

	// a mixed previous run carries no penalty; the tie falls to the lower id
	mixed := SelectRunTemplates(candidates, nil, []CheckCategory{CheckCategoryFoodSafety, CheckCategoryCleaning}, asOf, 1)
	if len(mixed) != 1 || mixed[0].ID != 1 {
		t.Fatalf("mixed previous run: expected pick 1, got %v", pickedIds(mixed))
	}

	// yesterday was all food safety, so today starts somewhere else
	repeated := SelectRunTemplates(candidates, nil, []CheckCategory{CheckCategoryFoodSafety, CheckCategoryFoodSafety}, asOf, 1)
	if len(repeated) != 1 || repeated[0].ID != 2 {
		t.Fatalf("single-category previous run: expected pick 2, got %v", pickedIds(repeated))
	}
}

func TestSelectRunTemplates_TieFallsToOlderUse(t *testing.T) {
	asOf := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	// priority 4 used 5 days ago and priority 3 used 15 days ago both score 45
	candidates := []*CheckTemplate{
		makeRotationCandidate(1, CheckCategoryFoodSafety, 4),
		makeRotationCandidate(2, CheckCategoryFoodSafety, 3),
	}
	coverage := map[int]*CheckCoverage{
		1: makeUsedCoverage(asOf, 5, 0),
		2: makeUsedCoverage(asOf, 15, 0),
	}
	picked := SelectRunTemplates(candidates, coverage, nil, asOf, 1)
	if len(picked) != 1 || picked[0].ID != 2 {
		t.Fatalf("expected the longer-unused lineage 2 to win the tie, got %v", pickedIds(picked))
	}
}

func TestSelectRunTemplates_InputOrderDoesNotMatter(t *testing.T) {
	asOf := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	coverage := map[int]*CheckCoverage{
		1: makeUsedCoverage(asOf, 40, 0),
		2: makeUsedCoverage(asOf, 2, 1),
		4: makeUsedCoverage(asOf, 12, 0),
	}
	forward := []*CheckTemplate{
		makeRotationCandidate(1, CheckCategoryFoodSafety, 3),
		makeRotationCandidate(2, CheckCategoryCleaning, 4),
		makeRotationCandidate(3, CheckCategoryEquipment, 2),
		makeRotationCandidate(4, CheckCategorySafety, 3),
		makeRotationCandidate(5, CheckCategoryFoodSafety, 5),
	}
	reversed := make([]*CheckTemplate, 0, len(forward))
	for i := len(forward) - 1; i >= 0; i-- {
		reversed = append(reversed, forward[i])
	}

	a := pickedIds(SelectRunTemplates(forward, coverage, nil, asOf, 3))
	b := pickedIds(SelectRunTemplates(reversed, coverage, nil, asOf, 3))
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("expected 3 picks from both orderings, got %v and %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("selection depends on input order: %v vs %v", a, b)
		}
	}
}

func TestSelectRunTemplates_BoundsN(t *testing.T) {
	asOf := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	candidates := []*CheckTemplate{
		makeRotationCandidate(1, CheckCategoryFoodSafety, 3),
		makeRotationCandidate(2, CheckCategoryCleaning, 3),
	}
	if picked := SelectRunTemplates(candidates, nil, nil, asOf, 0); picked != nil {
		t.Fatalf("n=0 expected no picks, got %v", pickedIds(picked))
	}
	if picked := SelectRunTemplates(nil, nil, nil, asOf, 3); picked != nil {
		t.Fatalf("no candidates expected no picks, got %v", pickedIds(picked))
	}
	if picked := SelectRunTemplates(candidates, nil, nil, asOf, 5); len(picked) != 2 {
		t.Fatalf("n beyond the pool expected every candidate, got %v", pickedIds(picked))
	}
}

func TestUsedBefore_NeverUsedSortsFirst(t *testing.T) {
	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	usedOld := &CheckCoverage{UseCount: 2, LastUsedDate: &older}
	usedNew := &CheckCoverage{UseCount: 2, LastUsedDate: &newer}
	// a row that has never actually been used reads as never, even with a
	// stale date on it
	unused := &CheckCoverage{UseCount: 0, LastUsedDate: &newer}

	cases := []struct {
		name     string
		a, b     *CheckCoverage
		expected bool
	}{
		{"both never used", nil, nil, false},
		{"never used before dated", nil, usedOld, true},
		{"dated after never used", usedOld, nil, false},
		{"older date wins", usedOld, usedNew, true},
		{"newer date loses", usedNew, usedOld, false},
		{"zero use count reads as never", unused, usedOld, true},
	}
	for _, tc := range cases {
		if got := usedBefore(tc.a, tc.b); got != tc.expected {
			t.Fatalf("%s: usedBefore expected %v, got %v", tc.name, tc.expected, got)
		}
	}
}
