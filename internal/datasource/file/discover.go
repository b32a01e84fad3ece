package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dataloader/internal/datasource"
	"dataloader/internal/schema"
)

// Defaults for Options.
const (
	DefaultUpdateableDir = "Updateable"
	DefaultExtension     = ".csv"
)

// Options controls directory discovery.
type Options struct {
	// UpdateableDir names the subdirectory whose files load in safe mode.
	UpdateableDir string
	// Extension selects input files; matched case-insensitively.
	Extension string
}

func (o Options) withDefaults() Options {
	if o.UpdateableDir == "" {
		o.UpdateableDir = DefaultUpdateableDir
	}
	if o.Extension == "" {
		o.Extension = DefaultExtension
	}
	if !strings.HasPrefix(o.Extension, ".") {
		o.Extension = "." + o.Extension
	}
	return o
}

// Discover lists the load jobs under baseDir. Every immediate subdirectory
// is a group; every matching file directly inside it becomes one job named
// after its table. Groups and files come back in lexical order.
func Discover(baseDir string, opt Options) ([]datasource.Job, error) {
	opt = opt.withDefaults()

	groups, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("read base directory: %w", err)
	}

	var jobs []datasource.Job
	for _, g := range groups {
		dir := filepath.Join(baseDir, g.Name())
		if !isDir(g, dir) {
			continue
		}
		safe := schema.EqualFold(g.Name(), opt.UpdateableDir)

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read group %s: %w", g.Name(), err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := filepath.Ext(e.Name())
			if !schema.EqualFold(ext, opt.Extension) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			jobs = append(jobs, datasource.Job{
				Group:  g.Name(),
				Name:   e.Name(),
				Table:  strings.TrimSuffix(e.Name(), ext),
				Safe:   safe,
				Source: NewLocal(path),
			})
		}
	}
	return jobs, nil
}

// isDir follows symlinks so linked group directories are included.
func isDir(e os.DirEntry, path string) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
