package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisk_PutOpenDelete(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	n, err := d.Put("public/image/a.jpg", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if n != 5 {
		t.Errorf("Put() wrote %d bytes, want 5", n)
	}
	if !d.Exists("public/image/a.jpg") {
		t.Fatal("file should exist after Put")
	}

	f, err := d.Open("public/image/a.jpg")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}

	entries, _ := os.ReadDir(filepath.Join(d.Root(), "public", "image"))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}

	if err := d.Delete("public/image/a.jpg"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if d.Exists("public/image/a.jpg") {
		t.Error("file should be gone")
	}
	if err := d.Delete("public/image/a.jpg"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestDisk_PutFailureLeavesNothing(t *testing.T) {
	d, _ := NewDisk(t.TempDir())

	if _, err := d.Put("public/video/v.mp4", failingReader{}); err == nil {
		t.Fatal("Put() expected error")
	}
	entries, _ := os.ReadDir(filepath.Join(d.Root(), "public", "video"))
	if len(entries) != 0 {
		t.Errorf("partial upload left %d entries", len(entries))
	}
}

func TestDisk_RejectsTraversal(t *testing.T) {
	d, _ := NewDisk(t.TempDir())

	for _, p := range []string{"../escape.txt", "public/../../escape.txt", ""} {
		if _, err := d.AbsPath(p); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("AbsPath(%q) error = %v, want ErrOutsideRoot", p, err)
		}
		if _, err := d.Put(p, strings.NewReader("x")); err == nil {
			t.Errorf("Put(%q) expected error", p)
		}
	}
	if got := d.Resolve("../x"); got != "../x" {
		t.Errorf("Resolve() = %q", got)
	}
}

func TestDisk_Writable(t *testing.T) {
	d, _ := NewDisk(t.TempDir())
	if err := d.Writable(); err != nil {
		t.Errorf("Writable() error = %v", err)
	}
}
