package governance

import (
	"errors"
	"strings"
	"testing"

	"github.com/ormasoftchile/skillrun/pkg/schema"
)

// TestAllowlistAcceptsAllowedCommand verifies allowed commands pass.
func TestAllowlistAcceptsAllowedCommand(t *testing.T) {
	g := &Rules{
		AllowedCommands: []string{"git", "make", "go"},
	}
	if err := g.CheckCommand("git"); err != nil {
		t.Errorf("expected allowed, got: %v", err)
	}
	if err := g.CheckCommand("/usr/bin/make"); err != nil {
		t.Errorf("expected path to allowed binary to pass, got: %v", err)
	}
}

// TestAllowlistRejectsUnlistedCommand verifies non-allowed commands are blocked.
func TestAllowlistRejectsUnlistedCommand(t *testing.T) {
	g := &Rules{
		AllowedCommands: []string{"git", "make"},
	}
	err := g.CheckCommand("rm")
	if err == nil {
		t.Fatal("expected rejection for unlisted command 'rm'")
	}
	if !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied, got: %v", err)
	}
}

// TestDenylistTakesPrecedence verifies deny wins over allow.
func TestDenylistTakesPrecedence(t *testing.T) {
	g := &Rules{
		AllowedCommands: []string{"rm", "ls"},
		DeniedCommands:  []string{"rm"},
	}
	if err := g.CheckCommand("rm"); err == nil {
		t.Error("expected deny to take precedence over allow")
	}
	if err := g.CheckCommand("ls"); err != nil {
		t.Errorf("expected ls allowed, got: %v", err)
	}
}

// TestCheckShellCommandInspectsEverySegment verifies pipelines and chains
// are checked program by program.
func TestCheckShellCommandInspectsEverySegment(t *testing.T) {
	g := &Rules{DeniedCommands: []string{"rm", "curl"}}

	cases := map[string]bool{
		"git status --short":        true,
		"git diff | grep foo":       true,
		"make test && rm -rf build": false,
		"echo hi; curl http://x":    false,
		"FOO=bar git log":           true,
		"FOO=bar rm x":              false,
		"ls || (rm -rf /tmp/x)":     false,
		"grep -r 'rm' .":            true,
	}
	for line, wantOK := range cases {
		err := g.CheckShellCommand(line)
		if wantOK && err != nil {
			t.Errorf("%q: expected allowed, got: %v", line, err)
		}
		if !wantOK && err == nil {
			t.Errorf("%q: expected denial", line)
		}
	}
}

// TestCommandNames verifies program extraction from a command line.
func TestCommandNames(t *testing.T) {
	got := CommandNames("A=1 B=2 go test ./... | tee out.txt && echo done")
	want := []string{"go", "tee", "echo"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// TestFilterEnvVars verifies denied variables are removed.
func TestFilterEnvVars(t *testing.T) {
	g := &Rules{DenyEnvVars: []string{"AWS_*", "*_TOKEN"}}
	env := []string{"PATH=/bin", "AWS_SECRET_ACCESS_KEY=x", "GITHUB_TOKEN=y", "HOME=/root"}

	filtered, blocked := g.FilterEnvVars(env)
	if len(filtered) != 2 || filtered[0] != "PATH=/bin" || filtered[1] != "HOME=/root" {
		t.Errorf("unexpected filtered env: %v", filtered)
	}
	if len(blocked) != 2 {
		t.Errorf("expected 2 blocked vars, got: %v", blocked)
	}
}

// TestPolicyRedaction verifies compiled rules are applied to output.
func TestPolicyRedaction(t *testing.T) {
	pol, err := NewPolicy(&schema.GovernancePolicy{
		Redact: []schema.RedactionRule{
			{Pattern: `sk-[A-Za-z0-9]+`, Replace: "[REDACTED]"},
		},
	})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	got := pol.Redacted("key=sk-abc123 done")
	if got != "key=[REDACTED] done" {
		t.Errorf("unexpected redaction: %q", got)
	}

	var nilPolicy *Policy
	if nilPolicy.Redacted("x") != "x" {
		t.Error("nil policy must not alter output")
	}
}

// TestPolicyRejectsInvalidPattern verifies bad regexes surface at compile time.
func TestPolicyRejectsInvalidPattern(t *testing.T) {
	_, err := NewPolicy(&schema.GovernancePolicy{
		Redact: []schema.RedactionRule{{Pattern: "([", Replace: ""}},
	})
	if err == nil {
		t.Fatal("expected error for invalid redaction pattern")
	}
}
