package models

import (
	"testing"
	"time"
)

func TestDecideEvidence_PolicyMatrix(t *testing.T) {
	used := &CheckCoverage{UseCount: 4}
	failing := &CheckCoverage{UseCount: 4, ConsecutiveFail: 1}

	cases := []struct {
		name     string
		policy   EvidencePolicy
		coverage *CheckCoverage
		pct      int
		required bool
		reason   EvidenceReason
	}{
		{"always", EvidencePolicyAlways, used, 0, true, EvidenceReasonAlways},
		{"never", EvidencePolicyNever, failing, 100, false, EvidenceReasonNone},
		{"first time without coverage", EvidencePolicyFirstTime, nil, 0, true, EvidenceReasonFirstTime},
		{"first time with unused row", EvidencePolicyFirstTime, &CheckCoverage{}, 0, true, EvidenceReasonFirstTime},
		{"first time already used", EvidencePolicyFirstTime, used, 0, false, EvidenceReasonNone},
		{"after fail while failing", EvidencePolicyAfterFail, failing, 0, true, EvidenceReasonAfterFail},
		{"after fail while clean", EvidencePolicyAfterFail, used, 0, false, EvidenceReasonNone},
		{"after fail without coverage", EvidencePolicyAfterFail, nil, 0, false, EvidenceReasonNone},
		{"sample at 100", EvidencePolicyRandomSample, nil, 100, true, EvidenceReasonRandomSample},
		{"sample at 0", EvidencePolicyRandomSample, nil, 0, false, EvidenceReasonNone},
		{"unknown policy", EvidencePolicy("XX"), nil, 100, false, EvidenceReasonNone},
	}
	for _, tc := range cases {
		required, reason := DecideEvidence(tc.policy, tc.coverage, "seed", tc.pct)
		if required != tc.required || reason != tc.reason {
			t.Fatalf("%s: DecideEvidence expected (%v, %s), got (%v, %s)",
				tc.name, tc.required, tc.reason, required, reason)
		}
	}
}

func TestEvidenceSampleSeed_NamesTheRunSlot(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	seed := EvidenceSampleSeed("biz-1", 2, day, 0, 7)
	if seed != "biz-1|2|2026-03-10|0|7" {
		t.Fatalf("unexpected seed %q", seed)
	}
	if EvidenceSampleSeed("biz-1", 2, day, 0, 8) == seed {
		t.Fatalf("seeds for different lineages must differ")
	}
	if EvidenceSampleSeed("biz-1", 2, day, 1, 7) == seed {
		t.Fatalf("seeds for different sequences must differ")
	}
}

func TestSampledForEvidence_DeterministicPerSeed(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	seed := EvidenceSampleSeed("biz-1", 2, day, 0, 7)

	first := SampledForEvidence(seed, 20)
	for i := 0; i < 10; i++ {
		if SampledForEvidence(seed, 20) != first {
			t.Fatalf("regenerating the same run slot must sample the same item")
		}
	}
	if SampledForEvidence(seed, 0) {
		t.Fatalf("0%% must never sample")
	}
	if !SampledForEvidence(seed, 100) {
		t.Fatalf("100%% must always sample")
	}
}

func TestSampledForEvidence_SpreadsAcrossSeeds(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	sampled := 0
	for root := 1; root <= 500; root++ {
		if SampledForEvidence(EvidenceSampleSeed("biz-1", 2, day, 0, root), 20) {
			sampled++
		}
	}
	if sampled == 0 || sampled == 500 {
		t.Fatalf("20%% sampling over 500 lineages should be partial, got %d", sampled)
	}
	if sampled < 25 || sampled > 250 {
		t.Fatalf("20%% sampling over 500 lineages landed implausibly far from a fifth: %d", sampled)
	}
}
