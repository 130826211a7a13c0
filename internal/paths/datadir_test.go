package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDataDirEnv(t *testing.T) {
	t.Setenv(EnvDataDir, "/tmp/bm//node/")
	if got := DefaultDataDir(); got != "/tmp/bm/node" {
		t.Fatalf("DefaultDataDir = %q", got)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	got, err := EnsureDir(dir + "/")
	if err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if got != dir {
		t.Fatalf("EnsureDir = %q, want %q", got, dir)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("dir not created: %v", err)
	}
}
