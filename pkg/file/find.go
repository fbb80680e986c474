package file

import (
	"io/fs"
	"path/filepath"
	"sort"
	"time"
)

// FindRecentAfter walks dir and returns regular files modified after
// startTime for which keep returns true. A nil keep accepts every file.
// Results are sorted by path.
func FindRecentAfter(dir string, startTime time.Time, keep func(path string) bool) ([]string, error) {
	var recentFiles []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if keep != nil && !keep(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(startTime) {
			recentFiles = append(recentFiles, path)
		}
		return nil
	})

	sort.Strings(recentFiles)
	return recentFiles, err
}
