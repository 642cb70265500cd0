package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	origVersion, origCommit := Version, Commit
	defer func() { Version, Commit = origVersion, origCommit }()

	tests := []struct {
		name        string
		version     string
		commit      string
		wantExact   string
		wantContain string
	}{
		{name: "unknown commit", version: "1.0.0", commit: "unknown", wantExact: "1.0.0"},
		{name: "short commit", version: "1.0.0", commit: "abc", wantExact: "1.0.0"},
		{name: "full commit hash", version: "1.0.0", commit: "abc1234567890", wantContain: "abc1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit = tt.version, tt.commit
			got := Info()
			if tt.wantExact != "" && got != tt.wantExact {
				t.Errorf("Info() = %q, want %q", got, tt.wantExact)
			}
			if tt.wantContain != "" && !strings.Contains(got, tt.wantContain) {
				t.Errorf("Info() = %q, want to contain %q", got, tt.wantContain)
			}
		})
	}
}

func TestFull(t *testing.T) {
	origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
	defer func() { Version, Commit, BuildDate = origVersion, origCommit, origBuildDate }()

	Version, Commit, BuildDate = "1.2.3", "abcdef123456", "2026-01-15"
	got := Full()
	for _, part := range []string{"obfuscator version 1.2.3", "Commit: abcdef123456", "Built: 2026-01-15"} {
		if !strings.Contains(got, part) {
			t.Errorf("Full() = %q, want to contain %q", got, part)
		}
	}
}
