package internal

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// minModificationLapse is how long a file must sit unmodified before it is
// considered fully written.
const minModificationLapse = 30 * time.Second

// Candidate is a stable media file found under a source directory.
type Candidate struct {
	Dir  string
	Name string
	Kind Kind
}

// detectClockOffset estimates the skew between the local clock and the
// clock of the filesystem backing dir (network mounts drift), by timing a
// probe file written at the walk root. Probe failures mean no offset.
func detectClockOffset(dir string) time.Duration {
	probe := filepath.Join(dir, ".timesync")
	if err := os.WriteFile(probe, nil, 0644); err != nil {
		return 0
	}
	defer os.Remove(probe)

	fi, err := os.Stat(probe)
	if err != nil {
		return 0
	}
	return time.Since(fi.ModTime())
}

// ScanMedia scans a directory recursively for stable media files. Hidden
// files and directories (AppleDouble leftovers included), empty files and
// files modified too recently are withheld; unknown extensions are not
// media. ignore lists directory paths to prune, for when sources and the
// output tree nest inside each other.
func ScanMedia(root string, ignore []string, log *zap.Logger) ([]Candidate, error) {
	offset := detectClockOffset(root)

	skip := make(map[string]bool, len(ignore))
	for _, dir := range ignore {
		skip[filepath.Clean(dir)] = true
	}

	var found []Candidate
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warn("unreadable path during scan", zap.String("path", path), zap.Error(err))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if path != root && (strings.HasPrefix(info.Name(), ".") || skip[filepath.Clean(path)]) {
				return filepath.SkipDir
			}
			return nil
		}

		name := info.Name()
		if strings.HasPrefix(name, ".") {
			return nil
		}
		kind := KindOf(name)
		if kind == KindUnknown {
			return nil
		}
		if time.Since(info.ModTime())-offset < minModificationLapse {
			log.Debug("file still settling, withheld", zap.String("file", path))
			return nil
		}
		if info.Size() == 0 {
			log.Debug("skipping empty file", zap.String("file", path))
			return nil
		}
		if locked(path) {
			log.Debug("file locked by another process, withheld", zap.String("file", path))
			return nil
		}

		found = append(found, Candidate{Dir: filepath.Dir(path), Name: name, Kind: kind})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// locked probes path with a nonblocking flock. A held lock means some
// other process is still busy with the file.
func locked(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return true
	}
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return false
}
