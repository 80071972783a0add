package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPathLayout(t *testing.T) {
	name := "main"
	dir := Dir(name)

	if !strings.HasSuffix(dir, filepath.Join(".pigeon", "profiles", "main")) {
		t.Errorf("Dir = %q, want it under .pigeon/profiles/main", dir)
	}
	if got := DBPath(name); got != filepath.Join(dir, "pigeon.db") {
		t.Errorf("DBPath = %q", got)
	}
	if got := LockPath(name); got != filepath.Join(dir, "LOCK") {
		t.Errorf("LockPath = %q", got)
	}
	if got := LogPath(name); got != filepath.Join(dir, "logs", "pigeond.log") {
		t.Errorf("LogPath = %q", got)
	}
}

func TestEnsureDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	if err := EnsureDir("main"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}

	for _, d := range []string{Dir("main"), LogDir("main")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("stat %s: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
		if perm := info.Mode().Perm(); perm != 0700 {
			t.Errorf("%s permission = %o, want 0700", d, perm)
		}
	}
}
