package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildSorter(t *testing.T) {
	base := t.TempDir()
	out := filepath.Join(base, "archive")
	src := filepath.Join(base, "inbox")
	for _, dir := range []string{out, src} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
	}

	content := "output:\n" +
		"  dir: " + out + "\n" +
		"  db_file: mediasort.db\n" +
		"  dir_pattern: \"%Y_%m_%d\"\n" +
		"  log_to_stderr: false\n" +
		"sources:\n" +
		"  inbox:\n" +
		"    dir: " + src + "\n"
	configPath := filepath.Join(base, "mediasort.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	oldConfig := configFlag
	configFlag = configPath
	defer func() { configFlag = oldConfig }()

	sorter, cleanup, err := buildSorter()
	if err != nil {
		t.Fatalf("buildSorter failed: %v", err)
	}
	defer cleanup()

	if sorter == nil {
		t.Fatalf("Expected a sorter")
	}
	if err := sorter.LoadIndex(); err != nil {
		t.Errorf("LoadIndex on a fresh archive failed: %v", err)
	}
}

func TestBuildSorterMissingConfig(t *testing.T) {
	oldConfig := configFlag
	configFlag = filepath.Join(t.TempDir(), "absent.yml")
	defer func() { configFlag = oldConfig }()

	if _, _, err := buildSorter(); err == nil {
		t.Fatalf("Expected error for a missing config file")
	}
}
