package internal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RunSummary condenses one session manifest into its outcome.
type RunSummary struct {
	ID       string
	Start    time.Time
	End      time.Time
	Sources  int
	Stats    SyncStats
	Complete bool
}

// LoadRecentRuns parses the newest n session manifests under the archive.
// A missing sessions directory means no runs, not an error.
func LoadRecentRuns(outputDir string, n int) ([]RunSummary, error) {
	dir := filepath.Join(outputDir, ".mediasort", "sessions")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jsonl") {
			names = append(names, entry.Name())
		}
	}

	// Session IDs are yyyymmdd-hhmmss, so lexical order is chronological.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if n > 0 && len(names) > n {
		names = names[:n]
	}

	runs := make([]RunSummary, 0, len(names))
	for _, name := range names {
		run, err := parseRunManifest(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// parseRunManifest replays one JSONL manifest. Totals come from the
// session_end event when present; a run that died without one gets its
// counters reconstructed from the per-file events.
func parseRunManifest(path string) (RunSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return RunSummary{}, err
	}
	defer f.Close()

	run := RunSummary{ID: strings.TrimSuffix(filepath.Base(path), ".jsonl")}
	var tally SyncStats

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event SessionEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}

		switch event.Event {
		case "session_start":
			run.Start, _ = time.Parse(time.RFC3339, event.Ts)
			run.Sources = event.Sources
		case "placed":
			tally.Scanned++
			tally.Placed++
		case "duplicate":
			tally.Scanned++
			tally.Duplicates++
		case "skipped":
			tally.Scanned++
			tally.Skipped++
		case "error":
			tally.Scanned++
			tally.Errors++
		case "session_end":
			run.End, _ = time.Parse(time.RFC3339, event.Ts)
			run.Complete = true
			run.Stats = SyncStats{
				Scanned:    event.Scanned,
				Placed:     event.Placed,
				Duplicates: event.Duplicates,
				Skipped:    event.Skipped,
				Errors:     event.Errors,
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return RunSummary{}, err
	}

	if !run.Complete {
		run.Stats = tally
	}
	return run, nil
}

// DisplayRuns prints run summaries, newest first.
func DisplayRuns(runs []RunSummary) {
	if len(runs) == 0 {
		return
	}

	fmt.Printf("\n🕑 Recent runs:\n")
	for _, run := range runs {
		when := run.ID
		if !run.Start.IsZero() {
			when = run.Start.Local().Format("2006-01-02 15:04:05")
		}
		line := fmt.Sprintf("  - %s: %d placed, %d duplicates, %d skipped, %d errors",
			when, run.Stats.Placed, run.Stats.Duplicates, run.Stats.Skipped, run.Stats.Errors)
		if !run.Complete {
			line += " (incomplete)"
		}
		fmt.Println(line)
	}
}
