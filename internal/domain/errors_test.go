package domain

import "testing"

func TestConflictErrorClassify(t *testing.T) {
	minor := (&ConflictError{AttemptedVersion: 5, CurrentVersion: 7}).Classify(3)
	if minor.Severity != ConflictMinor {
		t.Fatalf("gap 2 with minorGap 3 should be minor, got %s", minor.Severity)
	}
	if len(minor.Suggestions) == 0 || minor.Suggestions[0] != "refresh cart state" {
		t.Fatalf("expected retry suggestions, got %v", minor.Suggestions)
	}

	major := (&ConflictError{AttemptedVersion: 1, CurrentVersion: 9}).Classify(3)
	if major.Severity != ConflictMajor {
		t.Fatalf("gap 8 with minorGap 3 should be major, got %s", major.Severity)
	}

	boundary := (&ConflictError{AttemptedVersion: 4, CurrentVersion: 7}).Classify(3)
	if boundary.Severity != ConflictMinor {
		t.Fatalf("gap equal to minorGap should still be minor, got %s", boundary.Severity)
	}
}

func TestConflictErrorToMap(t *testing.T) {
	e := (&ConflictError{AttemptedVersion: 2, CurrentVersion: 3}).Classify(3)
	m := e.ToMap()
	if m["error"] != "version_conflict" {
		t.Fatalf("unexpected error key: %v", m["error"])
	}
	if m["attemptedVersion"] != int64(2) || m["currentVersion"] != int64(3) {
		t.Fatalf("unexpected versions: %v", m)
	}
	if m["severity"] != ConflictMinor {
		t.Fatalf("unexpected severity: %v", m["severity"])
	}
}
