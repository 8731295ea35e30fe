package fsio

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestDiskFSRoundTrip(t *testing.T) {
	fs := NewDiskFS()
	root := filepath.ToSlash(t.TempDir())
	p := Path{Protocol: ProtoFile, Path: root + "/nested/dir/file.conf"}

	if err := fs.WriteBytes(p, []byte("content")); err != nil {
		t.Fatalf("WriteBytes returned error: %v", err)
	}
	got, err := fs.ReadBytes(p)
	if err != nil {
		t.Fatalf("ReadBytes returned error: %v", err)
	}
	if string(got) != "content" {
		t.Errorf("unexpected content %q", got)
	}

	entries, err := fs.List(Path{Protocol: ProtoFile, Path: root + "/nested"})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "dir" || !entries[0].Dir {
		t.Errorf("unexpected listing %+v", entries)
	}
}

func TestDiskFSMissing(t *testing.T) {
	fs := NewDiskFS()
	root := filepath.ToSlash(t.TempDir())
	p := Path{Protocol: ProtoFile, Path: root + "/absent"}

	if _, err := fs.ReadBytes(p); !errors.Is(err, ErrNotExist) {
		t.Errorf("expected ErrNotExist, got: %v", err)
	}
	if ok, err := fs.Exists(p); err != nil || ok {
		t.Errorf("Exists = %v, %v; want false, nil", ok, err)
	}
}
