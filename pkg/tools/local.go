package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ormasoftchile/skillrun/pkg/executor"
)

// Local tool limits.
const (
	DefaultReadLimit   = 2000
	MaxGlobResults     = 1000
	MaxGrepResults     = 100
	DefaultBashTimeout = 120
)

// Local implements the file and shell tools available to prompt steps.
// Relative paths resolve against WorkDir.
type Local struct {
	WorkDir string
	Exec    executor.CommandExecutor
}

// NewLocal returns local tools rooted at workDir. exec runs the bash tool;
// a nil exec uses a plain shell in workDir.
func NewLocal(workDir string, exec executor.CommandExecutor) *Local {
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	if exec == nil {
		exec = &executor.Shell{Dir: workDir}
	}
	return &Local{WorkDir: workDir, Exec: exec}
}

type readFileArgs struct {
	FilePath string `json:"file_path" jsonschema:"required,description=Path to the file to read"`
	Offset   int    `json:"offset,omitempty" jsonschema:"description=Line number to start from (1-based),default=0"`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read,default=2000"`
}

type writeFileArgs struct {
	FilePath string `json:"file_path" jsonschema:"required,description=Path to the file to write"`
	Content  string `json:"content" jsonschema:"required,description=Content to write to the file"`
}

type globArgs struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Glob pattern to match (e.g. '**/*.go')"`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory to search in (default: current directory)"`
}

type grepArgs struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Regex pattern to search for"`
	Path    string `json:"path,omitempty" jsonschema:"description=File or directory to search in"`
	Glob    string `json:"glob,omitempty" jsonschema:"description=Glob pattern to filter files (e.g. '*.go')"`
}

type bashArgs struct {
	Command string `json:"command" jsonschema:"required,description=The bash command to execute"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"description=Command timeout in seconds (default: 120),default=120"`
}

// Register adds read_file, write_file, glob, grep and bash to r.
func (l *Local) Register(r *Registry) error {
	var defs []Definition
	add := func(d Definition, err error) error {
		if err != nil {
			return err
		}
		defs = append(defs, d)
		return nil
	}
	if err := add(Define("read_file", "Read the contents of a file. Returns the file content with line numbers.", l.readFile)); err != nil {
		return err
	}
	if err := add(Define("write_file", "Write content to a file. Creates parent directories if needed.", l.writeFile)); err != nil {
		return err
	}
	if err := add(Define("glob", "Find files matching a glob pattern. Returns matching file paths.", l.glob)); err != nil {
		return err
	}
	if err := add(Define("grep", "Search for a regex pattern in files. Returns matching lines with file paths and line numbers.", l.grep)); err != nil {
		return err
	}
	if err := add(Define("bash", "Execute a bash command and return its output.", l.bash)); err != nil {
		return err
	}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultRegistry returns a registry holding the local tools.
func NewDefaultRegistry(workDir string, exec executor.CommandExecutor) (*Registry, error) {
	r := NewRegistry()
	if err := NewLocal(workDir, exec).Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (l *Local) resolve(p string) string {
	if p == "" {
		return l.WorkDir
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.WorkDir, p)
}

func (l *Local) rel(p string) string {
	if r, err := filepath.Rel(l.WorkDir, p); err == nil {
		return filepath.ToSlash(r)
	}
	return p
}

func (l *Local) readFile(_ context.Context, args readFileArgs) (string, error) {
	data, err := os.ReadFile(l.resolve(args.FilePath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("File not found: %s", args.FilePath)
		}
		return "", err
	}

	lines := splitLines(string(data))
	start := 0
	if args.Offset > 0 {
		start = args.Offset - 1
	}
	limit := args.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	if start > len(lines) {
		start = len(lines)
	}
	end := min(start+limit, len(lines))

	out := make([]string, 0, end-start)
	for i, line := range lines[start:end] {
		out = append(out, fmt.Sprintf("%6d\t%s", start+i+1, strings.TrimRight(line, " \t\r\n")))
	}
	return strings.Join(out, "\n"), nil
}

func (l *Local) writeFile(_ context.Context, args writeFileArgs) (string, error) {
	target := l.resolve(args.FilePath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, []byte(args.Content), 0o644); err != nil {
		return "", err
	}
	return "File written: " + args.FilePath, nil
}

func (l *Local) glob(_ context.Context, args globArgs) (string, error) {
	root := l.resolve(args.Path)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return "", fmt.Errorf("Directory not found: %s", args.Path)
	}

	var matches []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil || !MatchGlob(args.Pattern, filepath.ToSlash(rel)) {
			return nil
		}
		matches = append(matches, l.rel(p))
		if len(matches) >= MaxGlobResults {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(matches, "\n"), nil
}

func (l *Local) grep(_ context.Context, args grepArgs) (string, error) {
	re, err := regexp.Compile(args.Pattern)
	if err != nil {
		return "", fmt.Errorf("Invalid regex: %v", err)
	}

	root := l.resolve(args.Path)
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}

	var files []string
	if !info.IsDir() {
		files = []string{root}
	} else {
		_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if args.Glob != "" {
				rel, relErr := filepath.Rel(root, p)
				if relErr != nil || !MatchGlob(args.Glob, filepath.ToSlash(rel)) {
					return nil
				}
			}
			files = append(files, p)
			return nil
		})
	}

	var matches []string
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil || !utf8.Valid(data) {
			continue
		}
		for i, line := range splitLines(string(data)) {
			if !re.MatchString(line) {
				continue
			}
			matches = append(matches, fmt.Sprintf("%s:%d:%s", l.rel(f), i+1, strings.TrimRight(line, " \t\r\n")))
			if len(matches) >= MaxGrepResults {
				return strings.Join(matches, "\n"), nil
			}
		}
	}
	return strings.Join(matches, "\n"), nil
}

func (l *Local) bash(ctx context.Context, args bashArgs) (string, error) {
	timeout := args.Timeout
	if timeout <= 0 {
		timeout = DefaultBashTimeout
	}
	res, err := l.Exec.Run(ctx, args.Command, time.Duration(timeout)*time.Second)
	if err != nil {
		if errors.Is(err, executor.ErrTimeout) {
			return "", fmt.Errorf("Command timed out after %ds", timeout)
		}
		return "", err
	}
	output := strings.TrimSpace(res.Stdout)
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s\n%s", strings.TrimSpace(res.Stderr), output)
	}
	return output, nil
}

// splitLines splits text into lines; a trailing newline does not yield an
// extra empty line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// MatchGlob reports whether the slash-separated relative path name matches
// pattern. A "**" segment matches zero or more path segments.
func MatchGlob(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}
