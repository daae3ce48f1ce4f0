package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type OutputConfig struct {
	Dir           string `mapstructure:"dir"`
	DBFile        string `mapstructure:"db_file"`
	DuplicatesDir string `mapstructure:"duplicates_dir"`
	DirPattern    string `mapstructure:"dir_pattern"`
	Pattern       string `mapstructure:"pattern"` // deprecated, use dir_pattern
	FilePrefix    string `mapstructure:"file_prefix"`
	LogFile       string `mapstructure:"log_file"`
	LogToStderr   bool   `mapstructure:"log_to_stderr"`

	FileMode os.FileMode `mapstructure:"-"`
	DirMode  os.FileMode `mapstructure:"-"`
}

type SourceConfig struct {
	Dir                string `mapstructure:"dir"`
	FallbackToFileDate bool   `mapstructure:"fallback_to_file_date"`
}

type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Settle   time.Duration `mapstructure:"settle"`
}

type Config struct {
	Output  OutputConfig            `mapstructure:"output"`
	Sources map[string]SourceConfig `mapstructure:"sources"`
	Monitor MonitorConfig           `mapstructure:"monitor"`

	// Warnings collects deprecation notes found while loading, for the
	// caller to log once a logger exists.
	Warnings []string `mapstructure:"-"`
}

// LoadConfig reads and validates the YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults:
	v.SetDefault("output.duplicates_dir", "duplicates")
	v.SetDefault("output.chmod", "0644")
	v.SetDefault("output.log_to_stderr", true)
	v.SetDefault("monitor.interval", "10s")
	v.SetDefault("monitor.settle", "2s")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Output.DirPattern == "" && cfg.Output.Pattern != "" {
		cfg.Output.DirPattern = cfg.Output.Pattern
		cfg.Warnings = append(cfg.Warnings,
			"config key output.pattern is deprecated, use output.dir_pattern")
	}

	if cfg.Output.Dir == "" {
		return nil, fmt.Errorf("missing config key output.dir")
	}
	if cfg.Output.DBFile == "" {
		return nil, fmt.Errorf("missing config key output.db_file")
	}
	if cfg.Output.DirPattern == "" {
		return nil, fmt.Errorf("missing config key output.dir_pattern")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}
	for name, src := range cfg.Sources {
		if src.Dir == "" {
			return nil, fmt.Errorf("missing config key sources.%s.dir", name)
		}
	}

	// Permission values come as octal strings ("0644"); bare YAML ints are
	// read back through GetString so 644 means the same thing.
	fileMode, err := parseOctalMode(v.GetString("output.chmod"))
	if err != nil {
		return nil, fmt.Errorf("invalid output.chmod: %w", err)
	}
	cfg.Output.FileMode = fileMode

	if s := v.GetString("output.chmod_dirs"); s != "" {
		dirMode, err := parseOctalMode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid output.chmod_dirs: %w", err)
		}
		cfg.Output.DirMode = dirMode
	} else {
		cfg.Output.DirMode = fileMode | 0111
	}

	return &cfg, nil
}

func parseOctalMode(s string) (os.FileMode, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil {
		return 0, err
	}
	if n > 0777 {
		return 0, fmt.Errorf("mode %s out of range", s)
	}
	return os.FileMode(n), nil
}

// resolveUnderOutput keeps absolute paths as-is and anchors relative ones
// under the output directory.
func (c *Config) resolveUnderOutput(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Output.Dir, p)
}

func (c *Config) DBPath() string {
	return c.resolveUnderOutput(c.Output.DBFile)
}

func (c *Config) DuplicatesPath() string {
	return c.resolveUnderOutput(c.Output.DuplicatesDir)
}

func (c *Config) LogPath() string {
	return c.resolveUnderOutput(c.Output.LogFile)
}

// SourceNames returns the configured source names in stable order.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SourceDirs returns the configured source directories, for walks that must
// ignore them.
func (c *Config) SourceDirs() []string {
	dirs := make([]string, 0, len(c.Sources))
	for _, name := range c.SourceNames() {
		dirs = append(dirs, c.Sources[name].Dir)
	}
	return dirs
}
