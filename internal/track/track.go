// Package track describes the audio files a playlist is built from.
package track

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Track is one playable file.
type Track struct {
	Path  string
	Title string
	Ext   string // Lowercase, without the dot (e.g., "flac")
	Album string // Name of the containing directory

	// Duration is zero until the track has been probed.
	Duration time.Duration
}

func New(path string) Track {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return Track{
		Path:  path,
		Title: strings.TrimSuffix(base, ext),
		Ext:   strings.ToLower(strings.TrimPrefix(ext, ".")),
		Album: filepath.Base(filepath.Dir(path)),
	}
}

// DisplayName returns the title, falling back to the path for odd names.
func (t Track) DisplayName() string {
	if t.Title == "" {
		return t.Path
	}
	return t.Title
}

// Scan turns the arguments into tracks. Files are taken as given; directories
// are walked and the audio files inside them with one of exts are added in
// path order.
func Scan(paths []string, exts []string) ([]Track, error) {
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	var tracks []Track
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}

		if !info.IsDir() {
			tracks = append(tracks, New(p))
			continue
		}

		var found []Track
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if t := New(path); allowed[t.Ext] {
				found = append(found, t)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", p, err)
		}

		slices.SortFunc(found, func(a, b Track) int { return strings.Compare(a.Path, b.Path) })
		tracks = append(tracks, found...)
	}
	return tracks, nil
}

// FormatDuration renders d as m:ss, or h:mm:ss past an hour. Negative
// durations mean unknown.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "--:--"
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
