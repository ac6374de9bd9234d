package consolidate

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/dashcsv/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path) //nolint:gosec // test file
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse %s: %v", path, err)
	}
	return records
}

func rows(n int, format string) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, format, i)
	}
	return b.String()
}

func newEngine(input, output string) *Engine {
	return New(input, output,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithConcurrency(2),
	)
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2024-05-01", "Sales - data.csv"), "a\n1\n")
	writeFile(t, filepath.Join(root, "2024-05-01", "Traffic - data.csv"), "a\n1\n")
	writeFile(t, filepath.Join(root, "2024-05-02", "Sales - data.csv"), "a\n1\n")
	writeFile(t, filepath.Join(root, "2024-05-02", "Sales - data (1).CSV"), "a\n1\n")
	writeFile(t, filepath.Join(root, "2024-05-02", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "analysis_output", "Sales.csv"), "a,date\n1,x\n")

	t.Run("groups by report key in discovery order", func(t *testing.T) {
		t.Parallel()

		groups, found, err := Discover(root, filepath.Join(root, "analysis_output"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found != 4 {
			t.Errorf("expected 4 files, got %d", found)
		}

		want := []model.ReportGroup{
			{Key: "Sales", Files: []model.DownloadedFile{
				{Path: filepath.Join(root, "2024-05-01", "Sales - data.csv"), ReportKey: "Sales", ProvenanceDate: "2024-05-01"},
				{Path: filepath.Join(root, "2024-05-02", "Sales - data (1).CSV"), ReportKey: "Sales", ProvenanceDate: "2024-05-02"},
				{Path: filepath.Join(root, "2024-05-02", "Sales - data.csv"), ReportKey: "Sales", ProvenanceDate: "2024-05-02"},
			}},
			{Key: "Traffic", Files: []model.DownloadedFile{
				{Path: filepath.Join(root, "2024-05-01", "Traffic - data.csv"), ReportKey: "Traffic", ProvenanceDate: "2024-05-01"},
			}},
		}
		if diff := cmp.Diff(want, groups); diff != "" {
			t.Errorf("groups mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()

		first, _, err := Discover(root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, _, err := Discover(root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("discovery is not stable (-first +second):\n%s", diff)
		}
	})

	t.Run("missing root", func(t *testing.T) {
		t.Parallel()

		_, _, err := Discover(filepath.Join(root, "missing"))
		if !errors.Is(err, ErrInputRoot) {
			t.Errorf("expected ErrInputRoot, got %v", err)
		}
	})

	t.Run("root is a file", func(t *testing.T) {
		t.Parallel()

		_, _, err := Discover(filepath.Join(root, "2024-05-02", "notes.txt"))
		if !errors.Is(err, ErrInputRoot) {
			t.Errorf("expected ErrInputRoot, got %v", err)
		}
	})
}

func TestRunMergesEveryRowTaggedByDate(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(root, "2024-05-01", "Sales - data.csv"), "region,amount\n"+rows(10, "r%d,%d\n"))
	writeFile(t, filepath.Join(root, "2024-05-02", "Sales - data.csv"), "region,amount\n"+rows(5, "s%d,%d\n"))

	run, err := newEngine(root, out).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.FilesFound != 2 || len(run.Groups) != 1 {
		t.Fatalf("expected 2 files in 1 group, got %d files in %d groups", run.FilesFound, len(run.Groups))
	}
	g := run.Groups[0]
	if g.Failed() || g.Rows != 15 || g.Output != filepath.Join(out, "Sales.csv") {
		t.Fatalf("unexpected group result: %+v", g)
	}
	if g.Bytes == 0 {
		t.Error("expected output size to be recorded")
	}

	records := readCSV(t, g.Output)
	if diff := cmp.Diff([]string{"region", "amount", "date"}, records[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	body := records[1:]
	if len(body) != 15 {
		t.Fatalf("expected 15 rows, got %d", len(body))
	}
	for i, r := range body {
		wantDate := "2024-05-01"
		if i >= 10 {
			wantDate = "2024-05-02"
		}
		if r[2] != wantDate {
			t.Errorf("row %d: expected date %s, got %s", i, wantDate, r[2])
		}
	}
	if body[0][0] != "r1" || body[10][0] != "s1" {
		t.Errorf("rows are out of order: %v, %v", body[0], body[10])
	}
}

func TestRunNormalizesValues(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := t.TempDir()
	content := "\ufeff Name , Revenue ,date\n  Alpha  ,\"1,234\",stale\n\"Beta, Inc\",\" 2,000,000 \",stale\n"
	writeFile(t, filepath.Join(root, "2024-05-01", "Revenue - export.csv"), content)

	run, err := newEngine(root, out).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{
		{"Name", "Revenue", "date"},
		{"Alpha", "1234", "2024-05-01"},
		{"Beta Inc", "2000000", "2024-05-01"},
	}
	if diff := cmp.Diff(want, readCSV(t, run.Groups[0].Output)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunUnionsDifferingHeaders(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(root, "d1", "Mix - a.csv"), "a,b\n1,2\n")
	writeFile(t, filepath.Join(root, "d2", "Mix - a.csv"), "b,c\n3,4\n")
	writeFile(t, filepath.Join(root, "d3", "Mix - a.csv"), "c,a,a\n5,6,7\n")

	run, err := newEngine(root, out).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{
		{"a", "b", "c", "date"},
		{"1", "2", "", "d1"},
		{"", "3", "4", "d2"},
		{"6", "", "5", "d3"},
	}
	if diff := cmp.Diff(want, readCSV(t, run.Groups[0].Output)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want[0], run.Groups[0].Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAssignsDistinctOutputNames(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(root, "d", "a:b - x.csv"), "v\n1\n")
	writeFile(t, filepath.Join(root, "d", "a?b - x.csv"), "v\n2\n")

	run, err := newEngine(root, out).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []string
	for _, g := range run.Groups {
		got = append(got, filepath.Base(g.Output))
	}
	if diff := cmp.Diff([]string{"a-b.csv", "a-b (1).csv"}, got); diff != "" {
		t.Errorf("output names mismatch (-want +got):\n%s", diff)
	}
}

func TestRunExcludesOutputUnderInput(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := filepath.Join(root, "analysis_output")
	writeFile(t, filepath.Join(root, "2024-05-01", "Sales - data.csv"), "v\n1\n2\n")

	for i := 0; i < 2; i++ {
		run, err := newEngine(root, out).Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
		if run.FilesFound != 1 || run.TotalRows() != 2 {
			t.Errorf("run %d: expected 1 file and 2 rows, got %d and %d", i, run.FilesFound, run.TotalRows())
		}
		if run.Groups[0].Output != filepath.Join(out, "Sales.csv") {
			t.Errorf("run %d: expected the previous output to be replaced, got %s", i, run.Groups[0].Output)
		}
	}
}

func TestRunRejectsOutputContainingInput(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	input := filepath.Join(root, "downloads")
	writeFile(t, filepath.Join(input, "Sales - a.csv"), "v\n1\n2\n")

	for _, out := range []string{input, root} {
		run, err := newEngine(input, out).Run(context.Background())
		if !errors.Is(err, ErrOutputContainsInput) {
			t.Errorf("output %s: expected ErrOutputContainsInput, got %v", out, err)
		}
		if run != nil {
			t.Errorf("output %s: expected no run", out)
		}
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected the input to be left alone, found %d entries", len(entries))
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(root, "d1", "Sales - data.csv"), "v\n1\n")
	writeFile(t, filepath.Join(root, "d1", "Traffic - data.csv"), "v\n9\n")
	if err := os.Symlink(filepath.Join(root, "gone.csv"), filepath.Join(root, "d1", "Sales - broken.csv")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	run, err := newEngine(root, out).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.FailedGroups() != 1 {
		t.Fatalf("expected 1 failed group, got %d", run.FailedGroups())
	}

	sales, traffic := run.Groups[0], run.Groups[1]
	if !sales.Failed() || len(sales.Errors) != 1 || !strings.Contains(sales.Errors[0], "Sales - broken.csv") {
		t.Errorf("expected the broken file to be reported, got %+v", sales.Errors)
	}
	if sales.Rows != 1 || sales.Output == "" {
		t.Errorf("expected readable files to still be merged, got %+v", sales)
	}
	if traffic.Failed() || traffic.Rows != 1 {
		t.Errorf("expected the other group to succeed, got %+v", traffic)
	}
}

func TestRunSkipsGroupsWithoutRows(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(root, "d1", "Empty - data.csv"), "a,b\n")
	writeFile(t, filepath.Join(root, "d1", "Blank - data.csv"), "")

	run, err := newEngine(root, out).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, g := range run.Groups {
		if g.Failed() || g.Output != "" || g.Rows != 0 {
			t.Errorf("expected %s to be skipped without error, got %+v", g.Key, g)
		}
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("failed to read output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no output files, found %d", len(entries))
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(root, "d1", "Sales - data.csv"), "v\n1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := newEngine(root, out).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if run == nil || run.FailedGroups() != 1 {
		t.Errorf("expected the unmerged group to be reported as failed, got %+v", run)
	}
	if _, err := os.Stat(filepath.Join(out, "Sales.csv")); !os.IsNotExist(err) {
		t.Errorf("expected no output, stat returned %v", err)
	}
}

func TestRunMissingInput(t *testing.T) {
	t.Parallel()

	_, err := newEngine(filepath.Join(t.TempDir(), "missing"), t.TempDir()).Run(context.Background())
	if !errors.Is(err, ErrInputRoot) {
		t.Errorf("expected ErrInputRoot, got %v", err)
	}
}
