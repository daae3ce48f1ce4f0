package internal

import (
	"fmt"
	"os"
	"os/exec"

	exiftool "github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
)

// MetadataSource is the metadata oracle. One instance is created at startup
// and handed to every File; tests substitute a map-backed fake.
type MetadataSource interface {
	Metadata(path string) (map[string]string, error)
	Close() error
}

// ExiftoolSource reads metadata through a single long-lived exiftool
// process (stay_open mode), shared for the whole run.
type ExiftoolSource struct {
	et *exiftool.Exiftool
}

func NewExiftoolSource() (*ExiftoolSource, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("failed to start exiftool: %w", err)
	}
	return &ExiftoolSource{et: et}, nil
}

func (s *ExiftoolSource) Metadata(path string) (map[string]string, error) {
	metas := s.et.ExtractMetadata(path)
	if len(metas) == 0 {
		return nil, fmt.Errorf("no metadata returned for %s", path)
	}
	meta := metas[0]
	if meta.Err != nil {
		return nil, fmt.Errorf("failed to read metadata for %s: %w", path, meta.Err)
	}

	out := make(map[string]string, len(meta.Fields))
	for k := range meta.Fields {
		if v, err := meta.GetString(k); err == nil {
			out[k] = v
		}
	}
	return out, nil
}

func (s *ExiftoolSource) Close() error {
	return s.et.Close()
}

// NativeSource decodes EXIF with the pure-Go reader. JPEG/TIFF photos only;
// anything else errors and the file counts as having no capture time.
type NativeSource struct{}

func (NativeSource) Metadata(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exif in %s: %w", path, err)
	}

	out := make(map[string]string)
	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		if v, err := tag.StringVal(); err == nil {
			out[string(name)] = v
		}
	}
	return out, nil
}

func (NativeSource) Close() error { return nil }

// NewMetadataSource prefers an exiftool session and falls back to the
// native reader when no exiftool binary is on PATH.
func NewMetadataSource(log *zap.Logger) MetadataSource {
	if _, err := exec.LookPath("exiftool"); err == nil {
		src, err := NewExiftoolSource()
		if err == nil {
			return src
		}
		log.Warn("exiftool session failed, falling back to native exif reader", zap.Error(err))
	} else {
		log.Debug("exiftool binary not found, using native exif reader")
	}
	return NativeSource{}
}
