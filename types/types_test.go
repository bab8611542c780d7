package types

import "testing"

func TestRunStatusTerminal(t *testing.T) {
	terminal := []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired}
	for _, status := range terminal {
		if !status.Terminal() {
			t.Errorf("expected %q to be terminal", status)
		}
	}
	live := []RunStatus{RunStatusQueued, RunStatusInProgress, RunStatusUnknown}
	for _, status := range live {
		if status.Terminal() {
			t.Errorf("expected %q to be non-terminal", status)
		}
	}
}

func TestParseRunStatus(t *testing.T) {
	if got := ParseRunStatus("in_progress"); got != RunStatusInProgress {
		t.Fatalf("ParseRunStatus(in_progress) = %q", got)
	}
	if got := ParseRunStatus("requires_action"); got != RunStatusUnknown {
		t.Fatalf("expected unknown for unrecognized status, got %q", got)
	}
	if got := ParseRunStatus(""); got != RunStatusUnknown {
		t.Fatalf("expected unknown for empty status, got %q", got)
	}
}
