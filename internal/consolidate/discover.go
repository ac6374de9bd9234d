package consolidate

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/dashcsv/internal/identity"
	"github.com/nao1215/dashcsv/internal/model"
)

// Discover walks root in lexical order and groups every .csv file by report
// key. Groups appear in the order their first file was found, and files
// within a group keep discovery order. Directories listed in exclude are
// not descended into. The second return value is the number of files found.
func Discover(root string, exclude ...string) ([]model.ReportGroup, int, error) {
	return discover(root, slog.Default(), exclude)
}

func discover(root string, logger *slog.Logger, exclude []string) ([]model.ReportGroup, int, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInputRoot, err)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInputRoot, root)
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, dir := range exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			skip[abs] = struct{}{}
		}
	}

	var (
		groups []model.ReportGroup
		index  = make(map[string]int)
		found  int
	)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if abs, err := filepath.Abs(path); err == nil {
				if _, ok := skip[abs]; ok {
					return fs.SkipDir
				}
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}

		found++
		file := model.DownloadedFile{
			Path:           path,
			ReportKey:      identity.ReportKey(path),
			ProvenanceDate: filepath.Base(filepath.Dir(path)),
		}
		i, ok := index[file.ReportKey]
		if !ok {
			i = len(groups)
			index[file.ReportKey] = i
			groups = append(groups, model.ReportGroup{Key: file.ReportKey})
		}
		groups[i].Files = append(groups[i].Files, file)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInputRoot, err)
	}
	return groups, found, nil
}
