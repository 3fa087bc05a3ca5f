package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"voice-bridge/internal/domain"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	processedSuffix     = ".processed"
)

var audioExtensions = map[string]bool{".wav": true, ".mp3": true, ".m4a": true, ".webm": true}

// FileSource watches a drop folder. Audio files are returned as-is, .txt
// files as text commands. Consumed files are renamed with a .processed
// suffix so they are not picked up again after a restart.
type FileSource struct {
	dir      string
	interval time.Duration
	logger   *slog.Logger

	// seen covers files whose rename failed.
	seen map[string]bool
}

func NewFileSource(dir string, logger *slog.Logger) *FileSource {
	return &FileSource{dir: dir, interval: defaultPollInterval, logger: logger, seen: make(map[string]bool)}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Start(_ context.Context) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("creating command dir: %w", err)
	}
	return nil
}

func (f *FileSource) Stop() error {
	return nil
}

func (f *FileSource) NextCommand(ctx context.Context) ([]byte, error) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		data, err := f.takeNext()
		if err != nil {
			return nil, err
		}
		if data != nil {
			return data, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// takeNext consumes the oldest-named pending file, or returns nil.
func (f *FileSource) takeNext() ([]byte, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("reading dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".txt" || audioExtensions[ext] {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(f.dir, name)
		if f.seen[path] {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", path, err)
		}
		if err := os.Rename(path, path+processedSuffix); err != nil {
			f.logger.Warn("marking command file processed", "path", path, "error", err)
			f.seen[path] = true
		}

		if strings.EqualFold(filepath.Ext(name), ".txt") {
			text := strings.TrimSpace(string(data))
			if text == "" {
				continue
			}
			return []byte(domain.TextCommandPrefix + text), nil
		}
		if len(data) > 0 {
			return data, nil
		}
	}

	return nil, nil
}
