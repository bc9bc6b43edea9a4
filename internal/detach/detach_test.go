package detach

import (
	"path/filepath"
	"testing"
)

func TestSpawnFailsOnUnwritableLogPath(t *testing.T) {
	err := Spawn([]string{"hook", "run-detached", "decay"}, filepath.Join("/nonexistent-dir", "detach.log"))
	if err == nil {
		t.Fatalf("expected error opening log file in a nonexistent directory")
	}
}

func TestSpawnStartsChildAndReturnsImmediately(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "detach.log")

	// Spawning re-execs the running test binary itself; it exits quickly
	// under "go test"'s flag parsing, which is enough to prove Spawn starts
	// a process and returns without blocking on it.
	if err := Spawn([]string{"-test.run", "^$"}, logPath); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}
