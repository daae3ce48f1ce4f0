package internal

import (
	"bytes"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	"go.uber.org/zap"
)

// Kind classifies a media file by extension.
type Kind string

const (
	KindPhoto   Kind = "photo"
	KindMovie   Kind = "movie"
	KindUnknown Kind = "unknown"
)

var photoExtensions = map[string]bool{
	"heic": true, "jpeg": true, "jpg": true, "cr2": true,
	"raw": true, "png": true, "arw": true, "thm": true, "orf": true,
}

var movieExtensions = map[string]bool{
	"m4v": true, "mpeg": true, "mpg": true, "mov": true, "mp4": true, "avi": true,
}

// KindOf returns the media kind for a file name.
func KindOf(name string) Kind {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch {
	case photoExtensions[ext]:
		return KindPhoto
	case movieExtensions[ext]:
		return KindMovie
	default:
		return KindUnknown
	}
}

// Capture-time tag names in priority order, per kind. Names follow
// exiftool's default output, without group prefixes.
var (
	photoDateTags = []string{
		"DateTimeOriginal", "DateTimeDigitized", "CreateDate", "DateTime",
	}
	movieDateTags = []string{
		"ContentCreateDate", "CreationDate", "CreateDate",
		"MediaCreateDate", "TrackCreateDate",
	}
	allDateTags = []string{
		"DateTimeOriginal", "DateTimeDigitized", "CreateDate", "DateTime",
		"ContentCreateDate", "CreationDate", "MediaCreateDate",
		"TrackCreateDate",
	}
)

func captureDateTags(k Kind) []string {
	switch k {
	case KindPhoto:
		return photoDateTags
	case KindMovie:
		return movieDateTags
	default:
		return allDateTags
	}
}

// Cameras write this instead of omitting the tag.
const zeroTimestamp = "0000:00:00 00:00:00"

var captureLayouts = []string{
	"2006:01:02 15:04:05Z07:00",
	"2006:01:02 15:04:05-0700",
	"2006:01:02 15:04:05",
}

// parseCaptureTime parses an exiftool-style timestamp. The all-zero
// sentinel and malformed values mean "no capture time", never an error.
func parseCaptureTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == zeroTimestamp {
		return time.Time{}, false
	}
	for _, layout := range captureLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// keyTimestamp renders a capture time for the composite key. The offset is
// kept only when non-zero, so the colon and compact spellings of the same
// instant produce one key.
func keyTimestamp(t time.Time) string {
	if _, offset := t.Zone(); offset != 0 {
		return t.Format("2006-01-02 15:04:05-07:00")
	}
	return t.Format("2006-01-02 15:04:05")
}

// Media is the capability surface the duplicate index needs from a file.
type Media interface {
	Path() string
	Kind() Kind
	Identity() (string, error)
	EqualTo(path string) bool
}

// File is one media file moving through a run. The bytes on disk are
// assumed not to change for the object's lifetime: hash and capture time
// are computed once and cached.
type File struct {
	path string
	kind Kind
	meta MetadataSource
	log  *zap.Logger

	fallbackToFileDate bool

	hash        string
	captureTime time.Time
	captureOK   bool
	captureDone bool
}

func NewFile(path string, fallbackToFileDate bool, meta MetadataSource, log *zap.Logger) *File {
	return &File{
		path:               path,
		kind:               KindOf(path),
		meta:               meta,
		log:                log,
		fallbackToFileDate: fallbackToFileDate,
	}
}

func (f *File) Path() string { return f.path }

func (f *File) Name() string { return filepath.Base(f.path) }

func (f *File) Kind() Kind { return f.kind }

// Hash returns the hex MD5 of the file content, streaming and cached.
func (f *File) Hash() (string, error) {
	if f.hash != "" {
		return f.hash, nil
	}

	fh, err := os.Open(f.path)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", f.path, err)
	}
	defer fh.Close()

	h := md5.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", f.path, err)
	}
	f.hash = fmt.Sprintf("%x", h.Sum(nil))
	return f.hash, nil
}

// CaptureTime derives when the media was captured. The first tag present
// in the kind's priority list decides: if that value is the zero sentinel
// or unparseable the file has no capture time, later tags are not
// consulted. With the file-date fallback enabled, a file without metadata
// capture time uses its modification time.
func (f *File) CaptureTime() (time.Time, bool) {
	if f.captureDone {
		return f.captureTime, f.captureOK
	}
	f.captureDone = true

	tags, err := f.meta.Metadata(f.path)
	if err != nil {
		f.log.Debug("metadata lookup failed", zap.String("file", f.path), zap.Error(err))
	}
	for _, tag := range captureDateTags(f.kind) {
		raw, ok := tags[tag]
		if !ok {
			continue
		}
		f.captureTime, f.captureOK = parseCaptureTime(raw)
		break
	}

	if !f.captureOK && f.fallbackToFileDate {
		if fi, err := os.Stat(f.path); err == nil {
			f.captureTime, f.captureOK = fi.ModTime(), true
		}
	}

	return f.captureTime, f.captureOK
}

// Identity returns the composite key: the content hash, suffixed with the
// capture time when one is known. Hashing failures propagate; a missing
// capture time just omits the suffix.
func (f *File) Identity() (string, error) {
	sum, err := f.Hash()
	if err != nil {
		return "", err
	}
	if t, ok := f.CaptureTime(); ok {
		return sum + " - " + keyTimestamp(t), nil
	}
	return sum, nil
}

// EqualTo reports whether the file's bytes match the file at path. A
// missing or unreadable comparison target counts as not equal.
func (f *File) EqualTo(path string) bool {
	a, err := os.Open(f.path)
	if err != nil {
		return false
	}
	defer a.Close()

	b, err := os.Open(path)
	if err != nil {
		return false
	}
	defer b.Close()

	ai, err := a.Stat()
	if err != nil {
		return false
	}
	bi, err := b.Stat()
	if err != nil || ai.Size() != bi.Size() {
		return false
	}

	bufA := make([]byte, 64*1024)
	bufB := make([]byte, 64*1024)
	for {
		na, errA := io.ReadFull(a, bufA)
		nb, errB := io.ReadFull(b, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false
		}
		if errA != nil || errB != nil {
			return errors.Is(errA, io.EOF) && errors.Is(errB, io.EOF) ||
				errors.Is(errA, io.ErrUnexpectedEOF) && errors.Is(errB, io.ErrUnexpectedEOF)
		}
	}
}

// LocateOutputDir resolves the destination directory for a capture time:
// the pattern-derived path under root, unless a sibling whose name extends
// the pattern leaf already exists (a directory the user renamed, say
// 2013_08_24 to 2013_08_24_vacation). The first such sibling in listing
// order wins, and a symlink pointing at a directory counts. No caching: a
// tagged directory may appear between calls.
func LocateOutputDir(root string, t time.Time, pattern string) (string, error) {
	def := filepath.Join(root, strftime.Format(pattern, t))
	parent := filepath.Dir(def)
	leaf := filepath.Base(def)

	entries, err := os.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return def, nil
		}
		return "", fmt.Errorf("failed to list %s: %w", parent, err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), leaf) {
			continue
		}
		tagged := filepath.Join(parent, e.Name())
		if e.IsDir() {
			return tagged, nil
		}
		// ReadDir does not follow symlinks; a tagged directory may be one.
		if info, err := os.Stat(tagged); err == nil && info.IsDir() {
			return tagged, nil
		}
	}
	return def, nil
}

// RenameAs moves the file to dest, creating missing directories with
// dirMode first and normalizing the file's permission bits afterwards.
// On success the File tracks its new location. A chmod failure after the
// move reports failure but the move stands.
func (f *File) RenameAs(dest string, fileMode, dirMode os.FileMode) error {
	if err := makeDirsMode(filepath.Dir(dest), dirMode); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}
	if err := moveFile(f.path, dest); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", f.path, dest, err)
	}
	if err := os.Chmod(dest, fileMode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", dest, err)
	}
	f.path = dest
	return nil
}

// MoveToDatedDir places the file in its date-bucketed directory under
// root. Without a capture time it fails with ErrUnknownCaptureTime and
// touches nothing.
func (f *File) MoveToDatedDir(root, dirPattern, prefixPattern string, fileMode, dirMode os.FileMode) error {
	t, ok := f.CaptureTime()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCaptureTime, f.path)
	}

	outDir, err := LocateOutputDir(root, t, dirPattern)
	if err != nil {
		return err
	}

	name := f.Name()
	if prefixPattern != "" {
		name = strftime.Format(prefixPattern, t) + name
	}
	return f.RenameAs(filepath.Join(outDir, name), fileMode, dirMode)
}

// makeDirsMode creates every missing component of dir with mode. The owner
// execute bit is always added (a mode without it would make the directory
// untraversable), and each created component is chmodded explicitly so the
// umask cannot strip requested bits.
func makeDirsMode(dir string, mode os.FileMode) error {
	mode |= 0100

	var missing []string
	for p := dir; p != "" && p != "/" && p != "."; p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return err
		}
		missing = append(missing, p)
	}

	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], mode); err != nil && !os.IsExist(err) {
			return err
		}
		if err := os.Chmod(missing[i], mode); err != nil {
			return err
		}
	}
	return nil
}

// moveFile renames src to dest, degrading to copy+remove when the rename
// crosses filesystems. A failed copy leaves src in place.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := copyFileAtomic(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFileAtomic copies src to a temp file next to dest, then renames it
// into place.
func copyFileAtomic(src, dest string) error {
	tmp := dest + ".tmp"
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, dest)
}
