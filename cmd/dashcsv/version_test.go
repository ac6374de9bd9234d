package main

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	t.Run("prints version information", func(t *testing.T) {
		t.Parallel()

		out, _, err := execute(t, "version")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"dashcsv version ", "commit:", "built:", runtime.Version()} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("prints JSON", func(t *testing.T) {
		t.Parallel()

		out, _, err := execute(t, "version", "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var info buildInfo
		if err := json.Unmarshal([]byte(out), &info); err != nil {
			t.Fatalf("invalid JSON %q: %v", out, err)
		}
		if info.Version != getVersion() || info.Go != runtime.Version() {
			t.Errorf("unexpected build info %+v", info)
		}
	})

	t.Run("rejects arguments", func(t *testing.T) {
		t.Parallel()

		if _, _, err := execute(t, "version", "extra"); err == nil {
			t.Error("expected an error for an extra argument")
		}
	})
}

func TestGetVersion(t *testing.T) {
	t.Parallel()

	// Tests are built without ldflags, so the version comes from build info.
	if getVersion() == "" {
		t.Error("expected a non-empty version")
	}
	info := currentBuild()
	if info.Commit == "" || info.Date == "" {
		t.Errorf("expected placeholders for missing VCS data, got %+v", info)
	}
}
