package consolidate

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/dashcsv/internal/model"
)

// ctxCheckRows is how often, in rows, a merge looks at its context.
const ctxCheckRows = 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// header is one input file's column names and where they go in the output.
type header struct {
	file    model.DownloadedFile
	mapping []int // output column per input column, -1 when dropped
}

// mergeGroup merges the files of group into target. The first pass builds
// the union of the headers; the second streams rows into a temporary file
// in the target directory that is renamed into place when complete. A file
// that cannot be read is skipped and reported in the result. Nothing is
// written when the group has no data rows.
func mergeGroup(ctx context.Context, group model.ReportGroup, target string) model.GroupResult {
	res := model.GroupResult{Key: group.Key, Files: len(group.Files)}
	fail := func(path string, err error) {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", path, err))
	}

	columns, headers := unionHeaders(group.Files, fail)

	tmp, err := os.CreateTemp(filepath.Dir(target), ".dashcsv-*.tmp")
	if err != nil {
		fail(target, err)
		return res
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(columns); err != nil {
		fail(target, err)
		return res
	}

	for _, h := range headers {
		if err := ctx.Err(); err != nil {
			fail(target, err)
			return res
		}
		n, readErr, writeErr := copyRows(ctx, w, h, len(columns))
		res.Rows += n
		if writeErr != nil {
			fail(target, writeErr)
			return res
		}
		if readErr != nil {
			fail(h.file.Path, readErr)
		}
	}

	if err := ctx.Err(); err != nil {
		fail(target, err)
		return res
	}

	w.Flush()
	if err := w.Error(); err != nil {
		fail(target, err)
		return res
	}
	if err := tmp.Close(); err != nil {
		fail(target, err)
		return res
	}
	if res.Rows == 0 {
		return res
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		fail(target, err)
		return res
	}
	committed = true

	res.Output = target
	res.Columns = columns
	if info, err := os.Stat(target); err == nil {
		res.Bytes = info.Size()
	}
	return res
}

// unionHeaders reads the header of every file and returns the output
// columns: every name in order of first appearance, then DateColumn. A
// source column named DateColumn is dropped, as is any repeat of a name
// within one file.
func unionHeaders(files []model.DownloadedFile, fail func(string, error)) ([]string, []header) {
	var (
		columns []string
		index   = make(map[string]int)
		headers = make([]header, 0, len(files))
	)
	for _, f := range files {
		names, err := readHeader(f.Path)
		if err != nil {
			fail(f.Path, err)
			continue
		}
		h := header{file: f, mapping: make([]int, len(names))}
		used := make(map[int]bool, len(names))
		for i, name := range names {
			h.mapping[i] = -1
			if name == DateColumn {
				continue
			}
			col, ok := index[name]
			if !ok {
				col = len(columns)
				index[name] = col
				columns = append(columns, name)
			}
			if used[col] {
				continue
			}
			used[col] = true
			h.mapping[i] = col
		}
		headers = append(headers, h)
	}
	return append(columns, DateColumn), headers
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // paths come from walking the input root
	if err != nil {
		return nil, err
	}
	defer f.Close()

	record, err := newReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, len(record))
	for i, name := range record {
		names[i] = strings.TrimSpace(name)
	}
	return names, nil
}

// copyRows appends the data rows of h.file to w. Read errors stop the file
// but keep the rows already copied; write errors stop the group.
func copyRows(ctx context.Context, w *csv.Writer, h header, width int) (rows int, readErr, writeErr error) {
	f, err := os.Open(h.file.Path) //nolint:gosec // paths come from walking the input root
	if err != nil {
		return 0, err, nil
	}
	defer f.Close()

	r := newReader(f)
	r.ReuseRecord = true
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, nil
		}
		return 0, err, nil
	}

	out := make([]string, width)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil, nil
		}
		if err != nil {
			return rows, err, nil
		}

		for i := range out {
			out[i] = ""
		}
		for i, v := range record {
			if i < len(h.mapping) && h.mapping[i] >= 0 {
				out[h.mapping[i]] = normalize(v)
			}
		}
		out[width-1] = h.file.ProvenanceDate
		if err := w.Write(out); err != nil {
			return rows, nil, err
		}
		rows++

		if rows%ctxCheckRows == 0 {
			if err := ctx.Err(); err != nil {
				return rows, err, nil
			}
		}
	}
}

// newReader returns a lenient CSV reader over r with a leading UTF-8 BOM
// removed.
func newReader(r io.Reader) *csv.Reader {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && string(prefix) == string(utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// normalize trims v and removes every comma, so that "1,234" becomes "1234".
func normalize(v string) string {
	return strings.ReplaceAll(strings.TrimSpace(v), ",", "")
}
