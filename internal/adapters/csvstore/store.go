// Package csvstore keeps one CSV file per ticker or feed on the local filesystem.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stockSync/internal/domain"
	"stockSync/internal/ports"
)

// Store implements ports.SeriesStore with one CSV file per key.
// Records are read entirely into memory and rewritten entirely on save.
type Store[R domain.Record] struct {
	dir    string
	codec  Codec[R]
	logger ports.Logger
}

// Config holds configuration for a CSV store.
type Config[R domain.Record] struct {
	Dir    string
	Codec  Codec[R]
	Logger ports.Logger
}

// New creates a CSV store rooted at cfg.Dir, creating the directory if needed.
func New[R domain.Record](cfg Config[R]) (*Store[R], error) {
	if cfg.Logger == nil || cfg.Codec == nil {
		return nil, fmt.Errorf("logger and codec are required for CSV store")
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory '%s': %w", dir, err)
	}
	cfg.Logger.Info(context.Background(), "CSV store ready", map[string]interface{}{"dir": dir})
	return &Store[R]{dir: dir, codec: cfg.Codec, logger: cfg.Logger}, nil
}

// Path returns the file holding key's record.
func (s *Store[R]) Path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("key '%s': %w", key, ports.ErrUnsupportedKey)
	}
	return filepath.Join(s.dir, key+".csv"), nil
}

// Exists reports whether a file exists for key.
func (s *Store[R]) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat '%s': %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("'%s' is a directory: %w", path, ports.ErrCorruptRecord)
	}
	return true, nil
}

// Load reads and validates the whole record for key.
func (s *Store[R]) Load(ctx context.Context, key string) (*domain.Series[R], error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("record '%s': %w", path, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open '%s': %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("'%s' has no header row: %w", path, ports.ErrCorruptRecord)
		}
		return nil, fmt.Errorf("failed to read header of '%s': %w: %w", path, ports.ErrCorruptRecord, err)
	}
	reader.FieldsPerRecord = len(header)

	decode, err := s.codec.Decoder(header)
	if err != nil {
		return nil, fmt.Errorf("'%s': %w: %w", path, ports.ErrCorruptRecord, err)
	}

	records := make([]R, 0)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read '%s': %w: %w", path, ports.ErrCorruptRecord, err)
		}
		r, err := decode(row)
		if err != nil {
			return nil, fmt.Errorf("'%s' line %d: %w: %w", path, line, ports.ErrCorruptRecord, err)
		}
		records = append(records, r)
	}

	series, err := domain.NewSeries(key, records)
	if err != nil {
		return nil, fmt.Errorf("'%s': %w: %w", path, ports.ErrCorruptRecord, err)
	}
	s.logger.Debug(ctx, "Loaded CSV record", map[string]interface{}{"key": key, "rows": series.Len()})
	return series, nil
}

// Save writes the whole record to a temporary file and renames it over the old one, so a
// failed write never leaves a truncated record behind.
func (s *Store[R]) Save(ctx context.Context, key string, series *domain.Series[R]) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := series.Validate(); err != nil {
		return fmt.Errorf("refusing to save '%s': %w: %w", key, ports.ErrCorruptRecord, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for '%s': %w", path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	header := s.codec.Header(series.Records)
	writer := csv.NewWriter(tmp)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header for '%s': %w", path, err)
	}
	for _, r := range series.Records {
		row := s.codec.Encode(r)
		if len(row) > len(header) {
			return fmt.Errorf("row for %s in '%s' has %d columns, header has %d: %w",
				r.Day().Format(domain.DateLayout), path, len(row), len(header), ports.ErrCorruptRecord)
		}
		for len(row) < len(header) {
			row = append(row, "")
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for '%s': %w", path, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush '%s': %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync '%s': %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close '%s': %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace '%s': %w", path, err)
	}
	committed = true

	s.logger.Debug(ctx, "Saved CSV record", map[string]interface{}{"key": key, "rows": series.Len(), "path": path})
	return nil
}
