package models

import "testing"

func TestCorrectiveActionTransitions(t *testing.T) {
	allowed := map[CorrectiveActionStatus]map[CorrectiveActionStatus]bool{
		CorrectiveActionStatusOpen: {
			CorrectiveActionStatusInProgress: true,
			CorrectiveActionStatusResolved:   true,
			CorrectiveActionStatusDismissed:  true,
		},
		CorrectiveActionStatusInProgress: {
			CorrectiveActionStatusResolved:  true,
			CorrectiveActionStatusDismissed: true,
		},
		CorrectiveActionStatusResolved: {
			CorrectiveActionStatusVerified: true,
		},
		// verified and dismissed are terminal
		CorrectiveActionStatusVerified:  {},
		CorrectiveActionStatusDismissed: {},
	}

	all := []CorrectiveActionStatus{
		CorrectiveActionStatusOpen,
		CorrectiveActionStatusInProgress,
		CorrectiveActionStatusResolved,
		CorrectiveActionStatusVerified,
		CorrectiveActionStatusDismissed,
	}

	for _, from := range all {
		for _, to := range all {
			action := CorrectiveAction{CurrentStatus: from}
			expected := allowed[from][to]
			if got := action.canTransition(to); got != expected {
				t.Fatalf("%s -> %s expected %v, got %v", from, to, expected, got)
			}
		}
	}
}
