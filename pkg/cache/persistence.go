package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
	"github.com/devicelab-dev/adaptive-selector/pkg/logger"
)

// SchemaVersion is the on-disk format version. Files with any other
// version are not migrated; the cache starts empty instead.
const SchemaVersion = "1.0"

type snapshot struct {
	SchemaVersion string            `json:"schema_version"`
	SavedAt       time.Time         `json:"saved_at"`
	Entries       map[string]*Entry `json:"entries"`
	Stats         Stats             `json:"stats"`
}

// Load reads the cache file. A missing file is not an error. A corrupt
// or schema-mismatched file falls back to the newest backup, and
// failing that the cache simply starts empty.
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := readSnapshot(c.cfg.Path)
	if err == nil {
		c.entries = entries
		c.expireLocked(time.Now())
		if fi, serr := os.Stat(c.cfg.Path); serr == nil {
			c.stats.FileSize = fi.Size()
		}
		logger.Info("cache: loaded %d entries from %s", len(c.entries), c.cfg.Path)
		return nil
	}
	if os.IsNotExist(err) {
		return nil
	}

	logger.Warn("cache: %s unusable (%v), trying backups", c.cfg.Path, err)
	for _, backup := range c.backupsNewestFirst() {
		entries, berr := readSnapshot(backup)
		if berr != nil {
			continue
		}
		c.entries = entries
		c.dirty = true
		logger.Warn("cache: restored %d entries from backup %s", len(c.entries), backup)
		return nil
	}

	c.entries = map[string]*Entry{}
	logger.Warn("cache: starting empty")
	return nil
}

func readSnapshot(path string) (map[string]*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, core.ErrCacheCorrupt.WithCause(err)
	}
	if snap.SchemaVersion != SchemaVersion {
		return nil, core.ErrSchemaMismatch.WithDetails(map[string]interface{}{
			"file_version":      snap.SchemaVersion,
			"supported_version": SchemaVersion,
		})
	}
	if snap.Entries == nil {
		snap.Entries = map[string]*Entry{}
	}
	return snap.Entries, nil
}

// Save writes the cache atomically (temp file plus rename) and then
// rotates a timestamped backup. A clean cache is not rewritten.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	c.expireLocked(time.Now())

	snap := snapshot{
		SchemaVersion: SchemaVersion,
		SavedAt:       time.Now(),
		Entries:       c.entries,
		Stats:         c.stats,
	}
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return core.NewError(core.KindPersistence, "encode_failed", "could not encode cache").WithCause(err)
	}

	dir := filepath.Dir(c.cfg.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return core.NewError(core.KindPersistence, "mkdir_failed", "could not create cache directory").WithCause(err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".cache-*.json")
	if err != nil {
		return core.NewError(core.KindPersistence, "tempfile_failed", "could not create temp file").WithCause(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return core.NewError(core.KindPersistence, "write_failed", "could not write cache").WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return core.NewError(core.KindPersistence, "write_failed", "could not write cache").WithCause(err)
	}
	if err := os.Rename(tmpName, c.cfg.Path); err != nil {
		os.Remove(tmpName)
		return core.NewError(core.KindPersistence, "rename_failed", "could not replace cache file").WithCause(err)
	}

	c.dirty = false
	c.stats.FileSize = int64(len(data))
	c.rotateBackupLocked(data)
	logger.Debug("cache: saved %d entries to %s", len(c.entries), c.cfg.Path)
	return nil
}

func (c *Cache) backupDir() string {
	if c.cfg.BackupDir != "" {
		return c.cfg.BackupDir
	}
	return filepath.Join(filepath.Dir(c.cfg.Path), "backups")
}

func (c *Cache) rotateBackupLocked(data []byte) {
	dir := c.backupDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn("cache: backup dir unavailable: %v", err)
		return
	}

	name := fmt.Sprintf("cache_%s.json", time.Now().Format("20060102_150405.000000000"))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		logger.Warn("cache: backup write failed: %v", err)
		return
	}

	backups := c.backupsNewestFirst()
	for i := c.cfg.MaxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i]); err != nil {
			logger.Warn("cache: backup prune failed: %v", err)
		}
	}
}

func (c *Cache) backupsNewestFirst() []string {
	matches, err := filepath.Glob(filepath.Join(c.backupDir(), "cache_*.json"))
	if err != nil {
		return nil
	}
	// Timestamped names sort chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches
}
