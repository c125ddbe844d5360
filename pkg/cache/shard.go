package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	errs "pixivrank/pkg/errors"
)

// ShardPath returns the file holding the given year
func ShardPath(dir, year string) string {
	return filepath.Join(dir, year+".json")
}

// ReadShard loads a year shard. A missing file is an empty shard. A file that
// fails to parse also yields an empty shard, together with a cache_corruption
// error for the caller to log.
func ReadShard(path string) (YearCache, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return YearCache{}, nil
	}
	if err != nil {
		return YearCache{}, fmt.Errorf("failed to read shard: %w", err)
	}

	yc := YearCache{}
	if len(data) == 0 {
		return yc, nil
	}
	if err := json.Unmarshal(data, &yc); err != nil {
		return YearCache{}, errs.Wrap(errs.ErrorTypeCacheCorruption, 0, err, "unreadable shard "+filepath.Base(path))
	}
	return yc, nil
}

// WriteShard atomically replaces the shard at path
func WriteShard(path string, yc YearCache) error {
	data, err := json.Marshal(yc)
	if err != nil {
		return fmt.Errorf("failed to marshal shard: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp shard: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp shard: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp shard: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp shard: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace shard: %w", err)
	}
	return nil
}
