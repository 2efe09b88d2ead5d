package crawler

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Crawler scans a directory for Python source files.
type Crawler struct {
	ignored []string
}

// NewCrawler creates a new crawler instance.
func NewCrawler() *Crawler {
	return &Crawler{
		ignored: []string{".git", ".venv", "venv", "node_modules", "__pycache__"},
	}
}

// ScanProject walks the root directory and streams every Python file path
// through the callback, so callers can register files without buffering
// the whole tree.
func (c *Crawler) ScanProject(root string, onFile func(path string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip ignored directories
		if d.IsDir() {
			for _, ign := range c.ignored {
				if d.Name() == ign {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}

		onFile(filepath.ToSlash(path))
		return nil
	})
}
