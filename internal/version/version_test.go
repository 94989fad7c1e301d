package version

import "testing"

func TestString(t *testing.T) {
	oldV, oldSHA, oldTime := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldV, oldSHA, oldTime })

	Version, GitSHA, BuildTime = "1.2.3", "abc1234", "2024-03-04T12:00:00Z"
	if got, want := String(), "camsync 1.2.3 (abc1234, built 2024-03-04T12:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
