package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/layerview/pkg/errors"
)

// isolate points the user cache and config directories at temp dirs so
// commands never touch the real ones.
func isolate(t *testing.T) string {
	t.Helper()
	cacheHome := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cacheHome)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return cacheHome
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func genProject(t *testing.T, layers string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "part.json")
	_, err := execute(t, "gen", "-o", path, "-n", layers, "--parts", "1", "--size", "4", "--hatch", "1", "--name", "part")
	require.NoError(t, err)
	return path
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	var got []string
	for _, cmd := range root.Commands() {
		got = append(got, cmd.Name())
	}
	for _, want := range []string{"cache", "completion", "export", "gen", "inspect", "preview", "scrub", "serve", "warm"} {
		require.Contains(t, got, want)
	}
}

func TestGenInspectExport(t *testing.T) {
	isolate(t)
	path := genProject(t, "12")

	_, err := execute(t, "inspect", path)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "part.obj")
	_, err = execute(t, "export", path, "--layer", "5", "-o", out)
	require.NoError(t, err)

	first, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(first), "# layerview cumulative mesh, layers 1-5\n"))

	// The second export is served from the artifact cache and must match.
	require.NoError(t, os.Remove(out))
	_, err = execute(t, "export", path, "--layer", "5", "-o", out)
	require.NoError(t, err)
	second, err := os.ReadFile(out)
	require.NoError(t, err)
	if diff := cmp.Diff(string(first), string(second)); diff != "" {
		t.Errorf("cached export differs (-first +second):\n%s", diff)
	}
}

func TestExportErrors(t *testing.T) {
	isolate(t)
	path := genProject(t, "4")

	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"bad format", []string{"export", path, "-f", "stl"}, errors.ErrCodeInvalidFormat},
		{"layer too high", []string{"export", path, "-l", "5", "-o", filepath.Join(t.TempDir(), "x.obj")}, errors.ErrCodeInvalidLayer},
		{"missing file", []string{"export", filepath.Join(t.TempDir(), "nope.json")}, errors.ErrCodeFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestExplicitConfig(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "layerview.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[artifacts]\ndir = \""+filepath.ToSlash(dir)+"/artifacts\"\n"), 0o644))

	out, err := execute(t, "--config", cfgPath, "cache", "path")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "artifacts")+"\n", out)

	_, err = execute(t, "--config", filepath.Join(dir, "missing.toml"), "cache", "path")
	require.True(t, errors.Is(err, errors.ErrCodeFileNotFound), "got %v", err)
}

func TestCachePathDefault(t *testing.T) {
	cacheHome := isolate(t)
	out, err := execute(t, "cache", "path")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cacheHome, appName)+"\n", out)
}

func TestCacheClear(t *testing.T) {
	cacheHome := isolate(t)
	path := genProject(t, "3")

	_, err := execute(t, "export", path, "-o", filepath.Join(t.TempDir(), "a.obj"))
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(cacheHome, appName))
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	_, err = execute(t, "cache", "clear")
	require.NoError(t, err)
	entries, err = os.ReadDir(filepath.Join(cacheHome, appName))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPreview(t *testing.T) {
	isolate(t)
	path := genProject(t, "20")

	_, err := execute(t, "preview", path, "--layer", "7", "--wait")
	require.NoError(t, err)

	_, err = execute(t, "preview", path, "--layer", "21")
	require.True(t, errors.Is(err, errors.ErrCodeInvalidLayer), "got %v", err)
}

func TestWarm(t *testing.T) {
	cacheHome := isolate(t)
	a := genProject(t, "6")
	b := genProject(t, "9")

	_, err := execute(t, "warm", a, b, "--format", "obj,json", "--step", "3", "-j", "2")
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(cacheHome, appName))
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	_, err = execute(t, "warm", a, "--format", "stl")
	require.True(t, errors.Is(err, errors.ErrCodeInvalidFormat), "got %v", err)
}

func TestWarmTops(t *testing.T) {
	tests := []struct {
		count, step int
		want        []int
	}{
		{0, 0, nil},
		{1, 0, []int{0}},
		{10, 0, []int{9}},
		{10, 3, []int{2, 5, 8, 9}},
		{9, 3, []int{2, 5, 8}},
		{5, 10, []int{4}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, warmTops(tt.count, tt.step)); diff != "" {
			t.Errorf("warmTops(%d, %d) mismatch (-want +got):\n%s", tt.count, tt.step, diff)
		}
	}
}

func TestExportPath(t *testing.T) {
	tests := []struct {
		input  string
		layer  int
		format string
		want   string
	}{
		{"part.json", 12, "obj", "part-L12.obj"},
		{"/builds/job 7/part.v2.json", 1, "json", "part.v2-L1.json"},
		{"plain", 3, "obj", "plain-L3.obj"},
	}
	for _, tt := range tests {
		if got := exportPath(tt.input, tt.layer, tt.format); got != tt.want {
			t.Errorf("exportPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
