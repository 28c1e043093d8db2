package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempLibrary(t *testing.T, patterns ...string) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, patterns...)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempLibrary(t)
	content := []byte("@misc{k, title = {T}}\n")
	if err := s.Write("refs.bib", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("refs.bib")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempLibrary(t)
	if err := s.Write("a/b/c.bib", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.bib")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("del.bib", []byte("bye"))
	if err := s.Delete("del.bib"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err := s.Read("del.bib")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("read after delete = %v, want ErrNotExist", err)
	}
}

func TestList(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("a.bib", []byte("a"))
	_ = s.Write("sub/b.bib", []byte("b"))
	_ = s.Write("readme.txt", []byte("not bib"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	seen := map[string]bool{}
	for _, it := range items {
		seen[it.Path] = true
		if it.Checksum == "" {
			t.Errorf("%s: empty checksum", it.Path)
		}
	}
	if !seen["a.bib"] || !seen["sub/b.bib"] {
		t.Errorf("paths = %v", seen)
	}
}

func TestListPatterns(t *testing.T) {
	s := tempLibrary(t, "papers/**/*.bib")
	_ = s.Write("top.bib", []byte("x"))
	_ = s.Write("papers/2024/p.bib", []byte("y"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Path != "papers/2024/p.bib" {
		t.Errorf("items = %+v", items)
	}
}

func TestMatch(t *testing.T) {
	s := tempLibrary(t)
	cases := map[string]bool{
		"a.bib":              true,
		"x/y/z.bib":          true,
		"a.txt":              false,
		".bibtidy-tmp-1.bib": false,
		"dir/.hidden.bib":    false,
	}
	for p, want := range cases {
		if got := s.Match(p); got != want {
			t.Errorf("Match(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestNewFS_InvalidPattern(t *testing.T) {
	if _, err := NewFS(t.TempDir(), "[unclosed"); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempLibrary(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.bib",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("atomic.bib", []byte("original"))

	if err := s.Write("atomic.bib", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.bib")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, ".bibtidy-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestRel(t *testing.T) {
	s := tempLibrary(t)
	rel, err := s.Rel(filepath.Join(s.Root(), "sub", "x.bib"))
	if err != nil || rel != "sub/x.bib" {
		t.Errorf("Rel = %q, %v", rel, err)
	}
	if _, err := s.Rel(filepath.Dir(s.Root())); err == nil {
		t.Error("expected error for path outside root")
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/bibtidy-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "bibtidy-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
