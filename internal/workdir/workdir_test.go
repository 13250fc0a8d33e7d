package workdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewCreatesUniqueDirUnderBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "wandbox")
	if err := EnsureBase(base); err != nil {
		t.Fatalf("EnsureBase: %v", err)
	}

	d1, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d1.Remove()

	d2, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d2.Remove()

	if d1.Path == d2.Path {
		t.Errorf("two calls to New() returned the same path %q", d1.Path)
	}
	if !strings.HasPrefix(d1.Path, base+string(filepath.Separator)) {
		t.Errorf("Path %q not under base %q", d1.Path, base)
	}

	info, err := os.Stat(d1.Path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%q is not a directory", d1.Path)
	}
}

func TestNewUsesDefaultBaseDirWhenEmpty(t *testing.T) {
	if err := EnsureBase(""); err != nil {
		t.Fatalf("EnsureBase: %v", err)
	}
	d, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Remove()

	if !strings.HasPrefix(d.Path, DefaultBaseDir+string(filepath.Separator)) {
		t.Errorf("Path %q not under DefaultBaseDir %q", d.Path, DefaultBaseDir)
	}
}

func TestWriteFileAndRemove(t *testing.T) {
	base := filepath.Join(t.TempDir(), "wandbox")
	if err := EnsureBase(base); err != nil {
		t.Fatalf("EnsureBase: %v", err)
	}
	d, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := d.WriteFile("main.cc", []byte("int main(){}\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(d.Path, "main.cc"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "int main(){}\n" {
		t.Errorf("got %q", data)
	}

	if err := d.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(d.Path); !os.IsNotExist(err) {
		t.Errorf("Remove() did not delete %q: err=%v", d.Path, err)
	}
}
