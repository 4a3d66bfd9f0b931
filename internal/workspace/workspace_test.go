package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrepareCreatesFreshScratchDirs(t *testing.T) {
	root := t.TempDir()
	m, err := New(filepath.Join(root, "builds"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := m.Prepare("myapp")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	second, err := m.Prepare("myapp")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if first == second {
		t.Fatalf("two attempts got the same scratch dir %s", first)
	}
	for _, dir := range []string{first, second} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("scratch dir %s missing: %v", dir, err)
		}
		if !strings.HasSuffix(dir, "-myapp") {
			t.Fatalf("scratch dir %s not named after the project", dir)
		}
	}
}

func TestPrepareRejectsEmptyProject(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Prepare(""); err == nil {
		t.Fatalf("empty project name accepted")
	}
}

func TestCleanupRemovesScratchDir(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir, err := m.Prepare("myapp")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := m.Cleanup(dir); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("scratch dir survived cleanup: %v", err)
	}
}

func TestCleanupRefusesPathsOutsideRoot(t *testing.T) {
	outside := t.TempDir()
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Cleanup(outside); err == nil {
		t.Fatalf("cleanup outside the root must fail")
	}
	if _, statErr := os.Stat(outside); statErr != nil {
		t.Fatalf("outside dir was removed: %v", statErr)
	}
	if err := m.Cleanup(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}
