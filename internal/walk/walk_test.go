package walk

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWalkOrderDirsBeforeContentsLexicographic(t *testing.T) {
	root := t.TempDir()
	mustMkdir(t, filepath.Join(root, "b"))
	mustMkdir(t, filepath.Join(root, "a"))
	mustWriteFile(t, filepath.Join(root, "a", "2.txt"), "x")
	mustWriteFile(t, filepath.Join(root, "a", "1.txt"), "y")
	mustWriteFile(t, filepath.Join(root, "top.txt"), "z")

	var got []string
	if err := Walk(root, func(e Entry) error {
		got = append(got, e.Path)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	want := []string{"a", "a/1.txt", "a/2.txt", "b", "top.txt"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWalkSkipDir(t *testing.T) {
	root := t.TempDir()
	mustMkdir(t, filepath.Join(root, "skip"))
	mustWriteFile(t, filepath.Join(root, "skip", "hidden.txt"), "x")
	mustWriteFile(t, filepath.Join(root, "keep.txt"), "y")

	var got []string
	err := Walk(root, func(e Entry) error {
		got = append(got, e.Path)
		if e.Path == "skip" {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"keep.txt", "skip"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestWalkSymlink(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "target.txt"), "x")
	if err := os.Symlink("target.txt", filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	var link Entry
	found := false
	if err := Walk(root, func(e Entry) error {
		if e.Path == "link" {
			link = e
			found = true
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("link entry not found")
	}
	if link.Symlink != "target.txt" {
		t.Errorf("Symlink = %q, want target.txt", link.Symlink)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
