package i2c

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEnumeratorCandidates(t *testing.T) {
	root := t.TempDir()
	sysRoot := filepath.Join(root, "sys")
	devRoot := filepath.Join(root, "dev")

	// A DRM connector with its ddc attribute linked to bus 5.
	busDir := filepath.Join(root, "devices", "i2c-5")
	connDir := filepath.Join(sysRoot, "class", "drm", "card0-HDMI-A-1")
	for _, dir := range []string{busDir, connDir, devRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(busDir, filepath.Join(connDir, "ddc")); err != nil {
		t.Fatal(err)
	}

	touch(t, filepath.Join(devRoot, "i2c-0"))
	touch(t, filepath.Join(devRoot, "i2c-5"))
	touch(t, filepath.Join(devRoot, "i2c-10"))

	e := &Enumerator{SysRoot: sysRoot, DevRoot: devRoot}
	primary, secondary := e.Candidates()

	if len(primary) != 1 || primary[0] != filepath.Join(devRoot, "i2c-5") {
		t.Errorf("primary = %v, want [%s]", primary, filepath.Join(devRoot, "i2c-5"))
	}

	// Remaining nodes in bus number order, the DRM-bound one excluded.
	want := []string{
		filepath.Join(devRoot, "i2c-0"),
		filepath.Join(devRoot, "i2c-10"),
	}
	if len(secondary) != len(want) {
		t.Fatalf("secondary = %v, want %v", secondary, want)
	}
	for i := range want {
		if secondary[i] != want[i] {
			t.Errorf("secondary[%d] = %s, want %s", i, secondary[i], want[i])
		}
	}
}

func TestEnumeratorNoDRMBinding(t *testing.T) {
	root := t.TempDir()
	devRoot := filepath.Join(root, "dev")
	if err := os.MkdirAll(devRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(devRoot, "i2c-2"))

	e := &Enumerator{SysRoot: filepath.Join(root, "sys"), DevRoot: devRoot}
	primary, secondary := e.Candidates()

	if len(primary) != 0 {
		t.Errorf("primary = %v, want empty", primary)
	}
	if len(secondary) != 1 || secondary[0] != filepath.Join(devRoot, "i2c-2") {
		t.Errorf("secondary = %v, want the lone bus node", secondary)
	}
}

func TestEnumeratorFallback(t *testing.T) {
	e := &Enumerator{}
	if got := e.Fallback(); got != "/dev/i2c-1" {
		t.Errorf("Fallback() = %q, want /dev/i2c-1", got)
	}

	e.FallbackPath = "/dev/i2c-9"
	if got := e.Fallback(); got != "/dev/i2c-9" {
		t.Errorf("Fallback() = %q, want /dev/i2c-9", got)
	}
}
