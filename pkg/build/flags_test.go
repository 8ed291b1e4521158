// SPDX-License-Identifier: MIT
package build

import "testing"

func TestInitializeKeepsDefaultsWhenUnset(t *testing.T) {
	Initialize()
	flags := GetBuildFlags()

	if flags.Name != "clapsync" {
		t.Errorf("name: got %q, want %q", flags.Name, "clapsync")
	}
	if flags.Version != "dev" {
		t.Errorf("version: got %q, want %q", flags.Version, "dev")
	}
}

func TestInitializePicksUpLinkerValues(t *testing.T) {
	buildName = "clapsync"
	buildTime = "2026-08-26T00:00:00Z"
	buildCommit = "abc1234"
	buildVersion = "1.2.3"
	defer func() {
		buildName, buildTime, buildCommit, buildVersion = "", "", "", ""
		Initialize()
		buildFlags.Time, buildFlags.Commit, buildFlags.Version = "unknown", "unknown", "dev"
	}()

	Initialize()
	flags := GetBuildFlags()

	if flags.Time != "2026-08-26T00:00:00Z" {
		t.Errorf("time: got %q", flags.Time)
	}
	if flags.Commit != "abc1234" {
		t.Errorf("commit: got %q", flags.Commit)
	}
	if flags.Version != "1.2.3" {
		t.Errorf("version: got %q", flags.Version)
	}
}
