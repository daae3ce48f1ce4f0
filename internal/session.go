package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// SessionEvent represents a single event in the session manifest
type SessionEvent struct {
	Event string `json:"event"`
	Ts    string `json:"ts"`
	Src   string `json:"src,omitempty"`
	Dest  string `json:"dest,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Key   string `json:"key,omitempty"`
	Error string `json:"error,omitempty"`

	// Error details (for categorized errors)
	ErrorCategory   string `json:"error_category,omitempty"`
	ErrorSeverity   string `json:"error_severity,omitempty"`
	ErrorSuggestion string `json:"error_suggestion,omitempty"`

	// Session start/end fields
	Sources    int `json:"sources,omitempty"`
	Scanned    int `json:"scanned,omitempty"`
	Placed     int `json:"placed,omitempty"`
	Duplicates int `json:"duplicates,omitempty"`
	Skipped    int `json:"skipped,omitempty"`
	Errors     int `json:"errors,omitempty"`
}

// SyncSession appends one JSONL event per processed file to a manifest
// under <output>/.mediasort/sessions/. The manifest is an audit trail,
// never load-bearing: the first write failure disables the session with a
// warning and the run continues. Methods are safe on a nil session.
type SyncSession struct {
	ID       string
	manifest *os.File
	log      *zap.Logger
	disabled bool
}

// NewSyncSession creates a session manifest under the output directory.
func NewSyncSession(outputDir string, log *zap.Logger) (*SyncSession, error) {
	sessionID := time.Now().Format("20060102-150405")

	sessionsDir := filepath.Join(outputDir, ".mediasort", "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	manifestPath := filepath.Join(sessionsDir, sessionID+".jsonl")
	manifest, err := os.OpenFile(manifestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest file: %w", err)
	}

	return &SyncSession{ID: sessionID, manifest: manifest, log: log}, nil
}

// LogStart writes the session start event to the manifest
func (s *SyncSession) LogStart(sources int) {
	s.writeEvent(SessionEvent{
		Event:   "session_start",
		Ts:      time.Now().UTC().Format(time.RFC3339),
		Sources: sources,
	})
}

// LogPlaced logs a file moved into the archive
func (s *SyncSession) LogPlaced(src, dest string, kind Kind, key string) {
	s.writeEvent(SessionEvent{
		Event: "placed",
		Ts:    time.Now().UTC().Format(time.RFC3339),
		Src:   src,
		Dest:  dest,
		Kind:  string(kind),
		Key:   key,
	})
}

// LogDuplicate logs a file diverted to the duplicates directory
func (s *SyncSession) LogDuplicate(src, dest string, key string) {
	s.writeEvent(SessionEvent{
		Event: "duplicate",
		Ts:    time.Now().UTC().Format(time.RFC3339),
		Src:   src,
		Dest:  dest,
		Key:   key,
	})
}

// LogSkipped logs a file left in the source for a future run
func (s *SyncSession) LogSkipped(src, reason string) {
	s.writeEvent(SessionEvent{
		Event: "skipped",
		Ts:    time.Now().UTC().Format(time.RFC3339),
		Src:   src,
		Error: reason,
	})
}

// LogError logs a categorized per-file error
func (s *SyncSession) LogError(src string, syncErr *SyncError) {
	s.writeEvent(SessionEvent{
		Event:           "error",
		Ts:              time.Now().UTC().Format(time.RFC3339),
		Src:             src,
		Error:           syncErr.OriginalErr.Error(),
		ErrorCategory:   string(syncErr.Category),
		ErrorSeverity:   string(syncErr.Severity),
		ErrorSuggestion: syncErr.Suggestion,
	})
}

// LogEnd writes the session end event with the run totals
func (s *SyncSession) LogEnd(stats SyncStats) {
	s.writeEvent(SessionEvent{
		Event:      "session_end",
		Ts:         time.Now().UTC().Format(time.RFC3339),
		Scanned:    stats.Scanned,
		Placed:     stats.Placed,
		Duplicates: stats.Duplicates,
		Skipped:    stats.Skipped,
		Errors:     stats.Errors,
	})
}

// Close closes the manifest file
func (s *SyncSession) Close() error {
	if s == nil || s.manifest == nil {
		return nil
	}
	return s.manifest.Close()
}

// writeEvent writes a manifest event as a JSON line
func (s *SyncSession) writeEvent(event SessionEvent) {
	if s == nil || s.disabled {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.disable(err)
		return
	}

	if _, err := s.manifest.Write(append(data, '\n')); err != nil {
		s.disable(err)
		return
	}

	// Flush to ensure data is written
	if err := s.manifest.Sync(); err != nil {
		s.disable(err)
	}
}

func (s *SyncSession) disable(err error) {
	s.disabled = true
	s.log.Warn("session manifest disabled", zap.String("session", s.ID), zap.Error(err))
}
