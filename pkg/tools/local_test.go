package tools

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func localRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := NewDefaultRegistry(dir, nil)
	require.NoError(t, err)
	return r, dir
}

func TestDefaultRegistryTools(t *testing.T) {
	r, _ := localRegistry(t)
	assert.Equal(t, []string{"read_file", "write_file", "glob", "grep", "bash"}, r.Names())

	d, ok := r.Get("read_file")
	require.True(t, ok)
	assert.Equal(t, []string{"file_path"}, d.Required)
	assert.Contains(t, d.Parameters, "offset")
	assert.Contains(t, d.Parameters, "limit")
}

func TestReadFile(t *testing.T) {
	r, dir := localRegistry(t)
	writeTree(t, dir, map[string]string{"notes.txt": "alpha  \nbeta\ngamma\n"})
	ctx := context.Background()

	out := r.Execute(ctx, "read_file", map[string]any{"file_path": "notes.txt"})
	assert.Equal(t, "     1\talpha\n     2\tbeta\n     3\tgamma", out)

	out = r.Execute(ctx, "read_file", map[string]any{"file_path": "notes.txt", "offset": 2, "limit": 1})
	assert.Equal(t, "     2\tbeta", out)

	out = r.Execute(ctx, "read_file", map[string]any{"file_path": "missing.txt"})
	assert.Equal(t, "Error executing tool 'read_file': File not found: missing.txt", out)
}

func TestWriteFileCreatesParents(t *testing.T) {
	r, dir := localRegistry(t)
	out := r.Execute(context.Background(), "write_file", map[string]any{"file_path": "a/b/c.txt", "content": "hello"})
	assert.Equal(t, "File written: a/b/c.txt", out)

	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestGlob(t *testing.T) {
	r, dir := localRegistry(t)
	writeTree(t, dir, map[string]string{
		"main.go":         "",
		"pkg/a/a.go":      "",
		"pkg/a/a_test.go": "",
		"pkg/b/readme.md": "",
		"docs/guide.md":   "",
	})
	ctx := context.Background()

	assert.Equal(t, "main.go", r.Execute(ctx, "glob", map[string]any{"pattern": "*.go"}))
	assert.Equal(t, "main.go\npkg/a/a.go\npkg/a/a_test.go", r.Execute(ctx, "glob", map[string]any{"pattern": "**/*.go"}))
	assert.Equal(t, "pkg/b/readme.md", r.Execute(ctx, "glob", map[string]any{"pattern": "**/*.md", "path": "pkg"}))
	assert.Equal(t, "Error executing tool 'glob': Directory not found: nowhere",
		r.Execute(ctx, "glob", map[string]any{"pattern": "*", "path": "nowhere"}))
}

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "pkg/main.go", false},
		{"**/*.go", "main.go", true},
		{"**/*.go", "a/b/c.go", true},
		{"pkg/**", "pkg/a/b", true},
		{"pkg/**/x.txt", "pkg/x.txt", true},
		{"pkg/?.txt", "pkg/ab.txt", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchGlob(tc.pattern, tc.name), "%s ~ %s", tc.pattern, tc.name)
	}
}

func TestGrep(t *testing.T) {
	r, dir := localRegistry(t)
	writeTree(t, dir, map[string]string{
		"a.go":      "package a\n// TODO: one\n",
		"sub/b.go":  "package b\nfunc f() {} // TODO two\n",
		"sub/c.txt": "TODO three\n",
		"bin/blob":  string([]byte{0xff, 0xfe, 'T', 'O', 'D', 'O'}),
	})
	ctx := context.Background()

	out := r.Execute(ctx, "grep", map[string]any{"pattern": "TODO"})
	assert.Equal(t, "a.go:2:// TODO: one\nsub/b.go:2:func f() {} // TODO two\nsub/c.txt:1:TODO three", out)

	out = r.Execute(ctx, "grep", map[string]any{"pattern": "TODO", "glob": "**/*.go"})
	assert.Equal(t, "a.go:2:// TODO: one\nsub/b.go:2:func f() {} // TODO two", out)

	out = r.Execute(ctx, "grep", map[string]any{"pattern": "package", "path": "sub/b.go"})
	assert.Equal(t, "sub/b.go:1:package b", out)

	out = r.Execute(ctx, "grep", map[string]any{"pattern": "("})
	assert.True(t, strings.HasPrefix(out, "Error executing tool 'grep': Invalid regex:"), out)
}

func TestBash(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	r, dir := localRegistry(t)
	writeTree(t, dir, map[string]string{"here.txt": ""})
	ctx := context.Background()

	assert.Equal(t, "here.txt", r.Execute(ctx, "bash", map[string]any{"command": "ls"}))
	assert.Equal(t, "Error executing tool 'bash': bad\npartial",
		r.Execute(ctx, "bash", map[string]any{"command": "echo partial; echo bad >&2; exit 1"}))
	assert.Equal(t, "Error executing tool 'bash': Command timed out after 1s",
		r.Execute(ctx, "bash", map[string]any{"command": "sleep 5", "timeout": 1}))
}
