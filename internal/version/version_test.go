package version

import "testing"

func TestVersionString(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}

	oldCommit, oldTime := GitCommit, BuildTime
	t.Cleanup(func() { GitCommit, BuildTime = oldCommit, oldTime })

	GitCommit = "unknown"
	if got := String(); got != Version {
		t.Errorf("String() = %q, want %q", got, Version)
	}

	GitCommit, BuildTime = "abc1234", "2026-01-02"
	if got, want := String(), Version+" (abc1234, built 2026-01-02)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
