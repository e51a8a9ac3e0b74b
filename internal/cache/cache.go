// Package cache keeps probed track metadata on disk so a playlist can show
// durations without opening every file again.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultExpiry is how long cached entries are valid (30 days).
	DefaultExpiry = 30 * 24 * time.Hour
	// TrackSubdir is the subdirectory for cached track entries.
	TrackSubdir = "tracks"
	// AppName is used for the cache directory name.
	AppName = "gapless"
)

// Entry is what the player learned about a track the last time it opened it.
type Entry struct {
	SampleRate  float64   `yaml:"sample_rate"`
	Channels    int       `yaml:"channels"`
	TotalFrames int64     `yaml:"total_frames"`
	Size        int64     `yaml:"size"`
	ModTime     time.Time `yaml:"mod_time"`
}

// Duration is the track length, or zero when it is unknown.
func (e Entry) Duration() time.Duration {
	if e.SampleRate <= 0 || e.TotalFrames <= 0 {
		return 0
	}
	return time.Duration(float64(e.TotalFrames) / e.SampleRate * float64(time.Second))
}

// matches reports whether e was recorded for the file described by info.
func (e Entry) matches(info os.FileInfo) bool {
	return e.Size == info.Size() && e.ModTime.Equal(info.ModTime())
}

// Cache manages disk-based caching of track metadata.
type Cache struct {
	baseDir string
	expiry  time.Duration
}

// NewCache creates a new Cache instance with the default expiry.
func NewCache() (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}

	return &Cache{
		baseDir: cacheDir,
		expiry:  DefaultExpiry,
	}, nil
}

// NewCacheAt creates a Cache rooted at dir.
func NewCacheAt(dir string, expiry time.Duration) *Cache {
	return &Cache{baseDir: dir, expiry: expiry}
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	cacheDir := filepath.Join(userCacheDir, AppName)
	return cacheDir, nil
}

func (c *Cache) ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

func hashPath(path string) string {
	hash := md5.Sum([]byte(path))
	return hex.EncodeToString(hash[:])
}

func (c *Cache) entryPath(path string) string {
	return filepath.Join(c.baseDir, TrackSubdir, hashPath(path)+".yml")
}

// Get returns the entry cached for the track at path. It misses when the
// entry has expired or the file changed since it was recorded.
func (c *Cache) Get(path string) (Entry, bool) {
	entryPath := c.entryPath(path)

	info, err := os.Stat(entryPath)
	if err != nil {
		return Entry{}, false
	}

	if time.Since(info.ModTime()) > c.expiry {
		if err := os.Remove(entryPath); err != nil {
			log.Debug().Err(err).Str("file", entryPath).Msg("Failed to remove expired cache file")
		}
		return Entry{}, false
	}

	source, err := os.Stat(path)
	if err != nil {
		return Entry{}, false
	}

	data, err := os.ReadFile(entryPath)
	if err != nil {
		return Entry{}, false
	}

	var e Entry
	if err := yaml.Unmarshal(data, &e); err != nil {
		log.Debug().Err(err).Str("file", entryPath).Msg("Failed to decode cached entry")
		return Entry{}, false
	}

	if !e.matches(source) {
		return Entry{}, false
	}
	return e, true
}

// Put stores e for the track at path, stamping it with the file's current
// size and modification time.
func (c *Cache) Put(path string, e Entry) error {
	source, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat track: %w", err)
	}
	e.Size = source.Size()
	e.ModTime = source.ModTime()

	trackDir := filepath.Join(c.baseDir, TrackSubdir)
	if err := c.ensureDir(trackDir); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := yaml.Marshal(&e)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	if err := os.WriteFile(c.entryPath(path), data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// CleanExpired removes cache files older than the expiry duration.
func (c *Cache) CleanExpired() error {
	trackDir := filepath.Join(c.baseDir, TrackSubdir)

	entries, err := os.ReadDir(trackDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
			continue
		}

		if now.Sub(info.ModTime()) > c.expiry {
			filePath := filepath.Join(trackDir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
				failed++
			} else {
				removed++
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return nil
}
