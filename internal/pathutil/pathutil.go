// Package pathutil assigns file paths that do not overwrite existing files.
package pathutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

// maxBaseRunes caps the name part of a suffixed path so that the suffix
// never pushes a long name past file system limits.
const maxBaseRunes = 160

// UniquePath returns desired if nothing exists there. Otherwise it returns
// "<base> (n)<ext>" in the same directory for the smallest n >= 1 that is
// free, with base cut to 160 runes.
func UniquePath(desired string) string {
	return unique(desired, exists)
}

// Namer hands out distinct paths for a batch of files that are written
// later. Only earlier reservations count as taken, not files already on
// disk, so a batch that is written again replaces its previous outputs.
// A Namer is safe for concurrent use.
type Namer struct {
	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewNamer creates an empty Namer.
func NewNamer() *Namer {
	return &Namer{reserved: make(map[string]struct{})}
}

// Reserve returns desired, or "<base> (n)<ext>" when desired was already
// reserved, and reserves the result.
func (n *Namer) Reserve(desired string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	p := unique(desired, func(p string) bool {
		_, ok := n.reserved[p]
		return ok
	})
	n.reserved[p] = struct{}{}
	return p
}

func unique(desired string, taken func(string) bool) string {
	if !taken(desired) {
		return desired
	}

	dir := filepath.Dir(desired)
	ext := filepath.Ext(desired)
	base := truncateRunes(strings.TrimSuffix(filepath.Base(desired), ext), maxBaseRunes)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
		if !taken(candidate) {
			return candidate
		}
	}
}

// exists treats anything but a definite "not exist" as taken, so that a
// permission error never leads to an overwrite.
func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Within reports whether path is dir or lies below it. Both are made
// absolute first; symbolic links are not resolved.
func Within(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
