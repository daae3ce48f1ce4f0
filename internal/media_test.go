package internal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeMeta serves canned tag maps keyed by file basename, so tests control
// metadata without an exiftool binary.
type fakeMeta struct {
	tags map[string]map[string]string
}

func (f *fakeMeta) Metadata(path string) (map[string]string, error) {
	if tags, ok := f.tags[filepath.Base(path)]; ok {
		return tags, nil
	}
	return map[string]string{}, nil
}

func (f *fakeMeta) Close() error { return nil }

func writeTestFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		want Kind
	}{
		{"IMG_1234.JPG", KindPhoto},
		{"photo.heic", KindPhoto},
		{"frame.CR2", KindPhoto},
		{"clip.mov", KindMovie},
		{"video.MP4", KindMovie},
		{"notes.txt", KindUnknown},
		{"archive.tar.gz", KindUnknown},
		{"noextension", KindUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.name); got != tc.want {
				t.Errorf("KindOf(%q) = %q, want %q", tc.name, got, tc.want)
			}
		})
	}
}

func TestHashEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jpg")
	writeTestFile(t, path, nil)

	f := NewFile(path, false, &fakeMeta{}, zap.NewNop())
	sum, err := f.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if sum != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("Expected MD5 of empty input, got %s", sum)
	}
}

func TestIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img1.jpg")
	writeTestFile(t, path, []byte("hello world"))

	meta := &fakeMeta{tags: map[string]map[string]string{
		"img1.jpg": {"DateTimeOriginal": "2013:08:24 13:05:52"},
	}}
	f := NewFile(path, false, meta, zap.NewNop())

	key, err := f.Identity()
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	want := "5eb63bbbe01eeed093cb22bb8f5acdc3 - 2013-08-24 13:05:52"
	if key != want {
		t.Errorf("Expected key %q, got %q", want, key)
	}
}

func TestIdentityComputedOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img1.jpg")
	writeTestFile(t, path, []byte("first bytes"))

	f := NewFile(path, false, &fakeMeta{}, zap.NewNop())
	key1, err := f.Identity()
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}

	// The file object caches hash and capture time; rewriting the bytes
	// must not change an already computed identity.
	writeTestFile(t, path, []byte("second bytes, different length"))

	key2, err := f.Identity()
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if key1 != key2 {
		t.Errorf("Identity changed between calls: %q then %q", key1, key2)
	}
}

func TestParseCaptureTime(t *testing.T) {
	testCases := []struct {
		raw     string
		ok      bool
		wantKey string
	}{
		{"2013:08:24 13:05:52", true, "2013-08-24 13:05:52"},
		{"2013:08:24 13:05:52+01:00", true, "2013-08-24 13:05:52+01:00"},
		{"2013:08:24 13:05:52+0100", true, "2013-08-24 13:05:52+01:00"},
		{"2013:08:24 13:05:52Z", true, "2013-08-24 13:05:52"},
		{"0000:00:00 00:00:00", false, ""},
		{"not a date", false, ""},
		{"", false, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			parsed, ok := parseCaptureTime(tc.raw)
			if ok != tc.ok {
				t.Fatalf("parseCaptureTime(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
			}
			if !ok {
				return
			}
			if got := keyTimestamp(parsed); got != tc.wantKey {
				t.Errorf("keyTimestamp = %q, want %q", got, tc.wantKey)
			}
		})
	}
}

func TestCaptureTimeFirstTagDecides(t *testing.T) {
	dir := t.TempDir()
	zeroed := filepath.Join(dir, "zeroed.jpg")
	second := filepath.Join(dir, "second.jpg")
	writeTestFile(t, zeroed, []byte("x"))
	writeTestFile(t, second, []byte("x"))

	meta := &fakeMeta{tags: map[string]map[string]string{
		// First tag present but unusable: later tags must not rescue it.
		"zeroed.jpg": {
			"DateTimeOriginal": "0000:00:00 00:00:00",
			"CreateDate":       "2020:01:01 10:00:00",
		},
		"second.jpg": {
			"CreateDate": "2020:01:01 10:00:00",
		},
	}}

	f := NewFile(zeroed, false, meta, zap.NewNop())
	if _, ok := f.CaptureTime(); ok {
		t.Errorf("Expected no capture time when the first present tag is the zero sentinel")
	}

	f = NewFile(second, false, meta, zap.NewNop())
	ct, ok := f.CaptureTime()
	if !ok {
		t.Fatalf("Expected capture time from CreateDate")
	}
	if ct.Year() != 2020 || ct.Month() != time.January {
		t.Errorf("Unexpected capture time: %v", ct)
	}
}

func TestCaptureTimeFileDateFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodate.jpg")
	writeTestFile(t, path, []byte("no tags here"))

	mtime := time.Date(2020, 5, 5, 12, 0, 0, 0, time.Local)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	f := NewFile(path, false, &fakeMeta{}, zap.NewNop())
	if _, ok := f.CaptureTime(); ok {
		t.Fatalf("Expected no capture time without fallback")
	}

	f = NewFile(path, true, &fakeMeta{}, zap.NewNop())
	ct, ok := f.CaptureTime()
	if !ok {
		t.Fatalf("Expected capture time from file date fallback")
	}
	if ct.Unix() != mtime.Unix() {
		t.Errorf("Expected mtime %v, got %v", mtime, ct)
	}
}

func TestEqualTo(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	same := filepath.Join(dir, "same.jpg")
	differ := filepath.Join(dir, "differ.jpg")
	shorter := filepath.Join(dir, "shorter.jpg")
	writeTestFile(t, a, []byte("identical content"))
	writeTestFile(t, same, []byte("identical content"))
	writeTestFile(t, differ, []byte("different content"))
	writeTestFile(t, shorter, []byte("short"))

	f := NewFile(a, false, &fakeMeta{}, zap.NewNop())
	if !f.EqualTo(same) {
		t.Errorf("Expected equal bytes to compare equal")
	}
	if f.EqualTo(differ) {
		t.Errorf("Expected different bytes to compare unequal")
	}
	if f.EqualTo(shorter) {
		t.Errorf("Expected different sizes to compare unequal")
	}
	if f.EqualTo(filepath.Join(dir, "missing.jpg")) {
		t.Errorf("Expected a missing file to compare unequal")
	}
}

func TestLocateOutputDir(t *testing.T) {
	captured := time.Date(2013, 8, 24, 13, 5, 52, 0, time.UTC)

	t.Run("default when nothing exists", func(t *testing.T) {
		root := t.TempDir()
		got, err := LocateOutputDir(root, captured, "%Y/%Y_%m_%d")
		if err != nil {
			t.Fatalf("LocateOutputDir failed: %v", err)
		}
		want := filepath.Join(root, "2013", "2013_08_24")
		if got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	})

	t.Run("tagged directory preferred", func(t *testing.T) {
		root := t.TempDir()
		tagged := filepath.Join(root, "2013", "2013_08_24_trip")
		if err := os.MkdirAll(tagged, 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
		got, err := LocateOutputDir(root, captured, "%Y/%Y_%m_%d")
		if err != nil {
			t.Fatalf("LocateOutputDir failed: %v", err)
		}
		if got != tagged {
			t.Errorf("Expected tagged dir %s, got %s", tagged, got)
		}
	})

	t.Run("file with matching prefix ignored", func(t *testing.T) {
		root := t.TempDir()
		parent := filepath.Join(root, "2013")
		if err := os.MkdirAll(parent, 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
		writeTestFile(t, filepath.Join(parent, "2013_08_24_notes.txt"), []byte("x"))

		got, err := LocateOutputDir(root, captured, "%Y/%Y_%m_%d")
		if err != nil {
			t.Fatalf("LocateOutputDir failed: %v", err)
		}
		want := filepath.Join(root, "2013", "2013_08_24")
		if got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	})

	t.Run("symlinked tagged directory followed", func(t *testing.T) {
		root := t.TempDir()
		target := filepath.Join(t.TempDir(), "vacation_on_other_volume")
		if err := os.MkdirAll(target, 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
		parent := filepath.Join(root, "2013")
		if err := os.MkdirAll(parent, 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
		link := filepath.Join(parent, "2013_08_24_vacation")
		if err := os.Symlink(target, link); err != nil {
			t.Fatalf("Symlink failed: %v", err)
		}

		got, err := LocateOutputDir(root, captured, "%Y/%Y_%m_%d")
		if err != nil {
			t.Fatalf("LocateOutputDir failed: %v", err)
		}
		if got != link {
			t.Errorf("Expected symlinked tagged dir %s, got %s", link, got)
		}
	})

	t.Run("dangling symlink ignored", func(t *testing.T) {
		root := t.TempDir()
		parent := filepath.Join(root, "2013")
		if err := os.MkdirAll(parent, 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
		link := filepath.Join(parent, "2013_08_24_gone")
		if err := os.Symlink(filepath.Join(parent, "no_such_target"), link); err != nil {
			t.Fatalf("Symlink failed: %v", err)
		}

		got, err := LocateOutputDir(root, captured, "%Y/%Y_%m_%d")
		if err != nil {
			t.Fatalf("LocateOutputDir failed: %v", err)
		}
		want := filepath.Join(root, "2013", "2013_08_24")
		if got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	})
}

func TestMoveToDatedDir(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "inbox", "img1.jpg")
	root := filepath.Join(dir, "archive")
	writeTestFile(t, src, []byte("photo bytes"))
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	meta := &fakeMeta{tags: map[string]map[string]string{
		"img1.jpg": {"DateTimeOriginal": "2013:08:24 13:05:52"},
	}}
	f := NewFile(src, false, meta, zap.NewNop())

	err := f.MoveToDatedDir(root, "%Y_%m_%d", "%Y%m%d%H%M%S_", 0644, 0755)
	if err != nil {
		t.Fatalf("MoveToDatedDir failed: %v", err)
	}

	want := filepath.Join(root, "2013_08_24", "20130824130552_img1.jpg")
	if f.Path() != want {
		t.Errorf("Expected path %s, got %s", want, f.Path())
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("Moved file not found: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("Source file still present after move")
	}
}

func TestMoveToDatedDirUnknownTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "inbox", "nodate.jpg")
	root := filepath.Join(dir, "archive")
	writeTestFile(t, src, []byte("photo bytes"))
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	f := NewFile(src, false, &fakeMeta{}, zap.NewNop())
	err := f.MoveToDatedDir(root, "%Y_%m_%d", "", 0644, 0755)
	if !errors.Is(err, ErrUnknownCaptureTime) {
		t.Fatalf("Expected ErrUnknownCaptureTime, got %v", err)
	}

	if _, err := os.Stat(src); err != nil {
		t.Errorf("Source file should be untouched: %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no directories created under root, found %d entries", len(entries))
	}
}

func TestRenameAs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	dest := filepath.Join(dir, "nested", "deeper", "b.jpg")
	writeTestFile(t, src, []byte("content"))

	f := NewFile(src, false, &fakeMeta{}, zap.NewNop())
	if err := f.RenameAs(dest, 0600, 0755); err != nil {
		t.Fatalf("RenameAs failed: %v", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %o", info.Mode().Perm())
	}
	if f.Path() != dest {
		t.Errorf("Expected path updated to %s, got %s", dest, f.Path())
	}
}

func TestMakeDirsModeExecBit(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "c")

	// A directory without the owner execute bit would be untraversable,
	// so 0644 must come out as 0744.
	if err := makeDirsMode(target, 0644); err != nil {
		t.Fatalf("makeDirsMode failed: %v", err)
	}

	for p := target; p != dir; p = filepath.Dir(p) {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("Stat %s failed: %v", p, err)
		}
		if info.Mode().Perm() != 0744 {
			t.Errorf("Expected mode 0744 on %s, got %o", p, info.Mode().Perm())
		}
	}
}
