package gtfsrt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// CacheEntry is the last feed body retrieved for a FeedKey
type CacheEntry struct {
	Bytes       []byte
	LastUpdated time.Time
}

type cacheMeta struct {
	LastUpdated int64 `json:"last_updated"`
}

// DiskCache persists the last good body of each feed so restarts and upstream failures still have data.
// Files are laid out as <dir>/<agency>/<kind>.pb with a <kind>.json holding the retrieval time.
type DiskCache struct {
	dir string
}

// NewDiskCache creates DiskCache rooted at dir, creating dir if needed
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create feed cache directory %s: %w", dir, err)
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) paths(key FeedKey) (string, string, error) {
	if key.AgencyId == "" || filepath.Base(key.AgencyId) != key.AgencyId || key.AgencyId == ".." {
		return "", "", fmt.Errorf("agency id %q can not be used as a cache directory", key.AgencyId)
	}
	agencyDir := filepath.Join(c.dir, key.AgencyId)
	return filepath.Join(agencyDir, string(key.Kind)+".pb"), filepath.Join(agencyDir, string(key.Kind)+".json"), nil
}

// Read returns the cached entry for key, or nil when nothing has been cached.
// A body without a readable timestamp is returned with a zero LastUpdated so it is always stale.
func (c *DiskCache) Read(key FeedKey) (*CacheEntry, error) {
	bodyPath, metaPath, err := c.paths(key)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(bodyPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read cached feed %s: %w", key, err)
	}

	entry := &CacheEntry{Bytes: body}
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return entry, nil
	}
	var meta cacheMeta
	if err = json.Unmarshal(metaBytes, &meta); err != nil {
		return entry, nil
	}
	entry.LastUpdated = time.UnixMilli(meta.LastUpdated)
	return entry, nil
}

// Write stores body for key, the body is written before the timestamp
func (c *DiskCache) Write(key FeedKey, body []byte, updated time.Time) error {
	bodyPath, metaPath, err := c.paths(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(bodyPath), 0o755); err != nil {
		return fmt.Errorf("unable to create cache directory for %s: %w", key, err)
	}
	if err = writeFileAtomic(bodyPath, body); err != nil {
		return fmt.Errorf("unable to cache feed %s: %w", key, err)
	}
	metaBytes, err := json.Marshal(cacheMeta{LastUpdated: updated.UnixMilli()})
	if err != nil {
		return err
	}
	if err = writeFileAtomic(metaPath, metaBytes); err != nil {
		return fmt.Errorf("unable to record cache time for %s: %w", key, err)
	}
	return nil
}

// writeFileAtomic writes to a temporary file in the same directory and renames it over path
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
