package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "nested", "tickroute.lock")
	l, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	pid, err := ReadPID(lockPath)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), pid)
	}
	if l.Path() != lockPath {
		t.Fatalf("Path() = %q, want %q", l.Path(), lockPath)
	}
}

func TestAcquirePIDLockIsExclusive(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "tickroute.lock")
	first, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("first AcquirePIDLock: %v", err)
	}

	// flock locks belong to the open file description, so a second open in
	// the same process conflicts too.
	if _, err := AcquirePIDLock(lockPath); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	second, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock after release: %v", err)
	}
	_ = second.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	l, err := AcquirePIDLock(filepath.Join(t.TempDir(), "tickroute.lock"))
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	var nilLock *PIDLock
	if err := nilLock.Release(); err != nil {
		t.Fatalf("nil Release: %v", err)
	}
}

func TestAcquirePIDLockEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := AcquirePIDLock(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
