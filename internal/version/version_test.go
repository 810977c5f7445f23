package version

import (
	"strings"
	"testing"
)

func TestInitPopulatesFallbacks(t *testing.T) {
	if Version == "" {
		t.Error("Version should never be empty after init")
	}
	if Commit == "" {
		t.Error("Commit should never be empty after init")
	}
}

func TestFull(t *testing.T) {
	full := Full()
	if !strings.Contains(full, Version) || !strings.Contains(full, Commit) {
		t.Errorf("Full() = %q, should contain version and commit", full)
	}
}
