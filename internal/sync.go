package internal

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// SyncStats tracks the counters of a single run.
type SyncStats struct {
	Scanned    int
	Placed     int
	Duplicates int
	Skipped    int
	Errors     int
}

// Sorter runs sync batches over the configured sources. It owns the
// duplicate index, the metadata oracle and the run counters. Files are
// processed strictly one at a time; the index mutates in memory and is
// persisted once per source batch.
type Sorter struct {
	cfg      *Config
	index    *Index
	meta     MetadataSource
	log      *zap.Logger
	progress *Progress
	session  *SyncSession
	stats    SyncStats
}

func NewSorter(cfg *Config, meta MetadataSource, quiet bool, log *zap.Logger) *Sorter {
	return &Sorter{
		cfg:      cfg,
		index:    NewIndex(cfg.DBPath(), cfg.Output.Dir, log),
		meta:     meta,
		log:      log,
		progress: NewProgress(quiet),
	}
}

// LoadIndex reads the persisted index before the first batch. A missing
// index file is not an error, a corrupt one is.
func (s *Sorter) LoadIndex() error {
	return s.index.Load(false)
}

func (s *Sorter) Index() *Index { return s.index }

func (s *Sorter) Stats() SyncStats { return s.stats }

// Sync processes every configured source once, in name order. Per-file
// errors are counted and isolated; a failed index write stops the run.
func (s *Sorter) Sync() error {
	s.stats = SyncStats{}
	defer s.progress.Done()

	session, err := NewSyncSession(s.cfg.Output.Dir, s.log)
	if err != nil {
		s.log.Warn("session manifest unavailable", zap.Error(err))
		session = nil
	}
	s.session = session
	defer func() {
		s.session.LogEnd(s.stats)
		s.session.Close()
		s.session = nil
	}()
	s.session.LogStart(len(s.cfg.Sources))

	for _, name := range s.cfg.SourceNames() {
		if err := s.syncSource(name, s.cfg.Sources[name]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sorter) syncSource(name string, src SourceConfig) error {
	s.log.Info("syncing source", zap.String("source", name), zap.String("dir", src.Dir))

	candidates, err := ScanMedia(src.Dir, []string{s.cfg.Output.Dir}, s.log)
	if err != nil {
		return fmt.Errorf("failed to scan source %s: %w", name, err)
	}

	changed := false
	for _, c := range candidates {
		s.stats.Scanned++
		path := filepath.Join(c.Dir, c.Name)
		s.progress.Update(s.stats, path)

		if s.processFile(path, src) {
			changed = true
		}
	}

	if changed {
		if err := s.index.Write(); err != nil {
			return err
		}
	}
	return nil
}

// processFile routes one candidate and reports whether the index changed.
// Dateless files stay in the source for a future run, duplicates are
// diverted without touching the index, everything else lands in a dated
// directory and gets indexed.
func (s *Sorter) processFile(path string, src SourceConfig) bool {
	file := NewFile(path, src.FallbackToFileDate, s.meta, s.log)

	if _, ok := file.CaptureTime(); !ok {
		s.stats.Skipped++
		s.log.Error("unknown capture time, leaving file in source", zap.String("file", path))
		s.session.LogSkipped(path, "unknown capture time")
		return false
	}

	dup, err := s.index.IsDuplicate(file)
	if err != nil {
		s.fileError(path, err)
		return false
	}

	if dup {
		key, _ := file.Identity()
		dest := filepath.Join(s.cfg.DuplicatesPath(), file.Name())
		if err := file.RenameAs(dest, s.cfg.Output.FileMode, s.cfg.Output.DirMode); err != nil {
			s.fileError(path, err)
			return false
		}
		s.stats.Duplicates++
		s.log.Info("duplicate diverted", zap.String("file", path), zap.String("dest", dest))
		s.session.LogDuplicate(path, dest, key)
		return false
	}

	if err := file.MoveToDatedDir(s.cfg.Output.Dir, s.cfg.Output.DirPattern, s.cfg.Output.FilePrefix,
		s.cfg.Output.FileMode, s.cfg.Output.DirMode); err != nil {
		s.fileError(path, err)
		return false
	}

	s.stats.Placed++
	s.log.Info("placed", zap.String("file", path), zap.String("dest", file.Path()))
	key, _ := file.Identity()
	s.session.LogPlaced(path, file.Path(), file.Kind(), key)
	return s.index.Add(filepath.Dir(file.Path()), file.Name(), file)
}

func (s *Sorter) fileError(path string, err error) {
	s.stats.Errors++
	syncErr := ClassifySyncError(path, err)
	s.log.Error("file processing failed",
		zap.String("file", path),
		zap.String("category", string(syncErr.Category)),
		zap.String("severity", string(syncErr.Severity)),
		zap.Error(err),
	)
	s.session.LogError(path, syncErr)
}

// Rebuild regenerates the index from the archive itself: fresh table,
// every media file under the output root re-added, one write at the end.
func (s *Sorter) Rebuild() error {
	s.stats = SyncStats{}
	defer s.progress.Done()

	s.index = NewIndex(s.cfg.DBPath(), s.cfg.Output.Dir, s.log)

	candidates, err := ScanMedia(s.cfg.Output.Dir, s.cfg.SourceDirs(), s.log)
	if err != nil {
		return fmt.Errorf("failed to scan output dir: %w", err)
	}

	for _, c := range candidates {
		s.stats.Scanned++
		path := filepath.Join(c.Dir, c.Name)
		s.progress.Update(s.stats, path)

		file := NewFile(path, false, s.meta, s.log)
		if s.index.Add(c.Dir, c.Name, file) {
			s.stats.Placed++
		} else {
			s.stats.Errors++
		}
	}

	return s.index.Write()
}

// Monitor syncs immediately, then on a fixed interval, with filesystem
// events on the source trees scheduling an earlier pass once the tree
// settles. Runs until stop closes.
func (s *Sorter) Monitor(stop <-chan struct{}) error {
	if err := s.Sync(); err != nil {
		return err
	}

	watcher, err := NewWatcher(s.cfg.SourceDirs())
	if err != nil {
		s.log.Warn("filesystem watcher unavailable, polling only", zap.Error(err))
		watcher = nil
	} else {
		defer watcher.Close()
	}

	var changes <-chan string
	var watchErrs <-chan error
	if watcher != nil {
		changes = watcher.Changes()
		watchErrs = watcher.Errors()
	}

	interval := s.cfg.Monitor.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	settleDelay := s.cfg.Monitor.Settle
	if settleDelay <= 0 {
		settleDelay = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var settle <-chan time.Time
	for {
		select {
		case <-stop:
			return nil
		case path := <-changes:
			s.log.Debug("source changed", zap.String("file", path))
			settle = time.After(settleDelay)
		case err := <-watchErrs:
			s.log.Warn("watcher error", zap.Error(err))
		case <-settle:
			settle = nil
			if err := s.Sync(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.Sync(); err != nil {
				return err
			}
		}
	}
}

// Status prints a short summary of the archive from the loaded index,
// plus the outcome of the most recent runs when recentRuns > 0.
func (s *Sorter) Status(recentRuns int) error {
	counts := s.index.CountByKind()

	fmt.Printf("📦 Archive %s\n", s.cfg.Output.Dir)
	fmt.Printf("   index   %s (%d entries)\n", s.index.Path(), s.index.Len())
	for _, kind := range []Kind{KindPhoto, KindMovie, KindUnknown} {
		if n := counts[kind]; n > 0 {
			fmt.Printf("   %-7s %d\n", kind, n)
		}
	}
	fmt.Printf("   sources %d\n", len(s.cfg.Sources))

	if recentRuns > 0 {
		runs, err := LoadRecentRuns(s.cfg.Output.Dir, recentRuns)
		if err != nil {
			s.log.Warn("failed to read session manifests", zap.Error(err))
			return nil
		}
		DisplayRuns(runs)
	}
	return nil
}
