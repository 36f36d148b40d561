package providers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// InputCollector is the human side of interactive steps.
type InputCollector interface {
	// Show displays text followed by a newline.
	Show(text string)
	// Prompt displays prompt and reads one line. Interrupts and closed
	// input return ErrInputCancelled.
	Prompt(prompt string) (string, error)
}

// InteractiveCollector reads answers from a terminal with line editing.
type InteractiveCollector struct {
	Stdin  io.ReadCloser
	Stdout io.Writer

	once sync.Once
	rl   *readline.Instance
	err  error
}

// NewInteractiveCollector returns a collector bound to stdin and stdout.
func NewInteractiveCollector() *InteractiveCollector {
	return &InteractiveCollector{Stdin: os.Stdin, Stdout: os.Stdout}
}

func (ic *InteractiveCollector) Show(text string) {
	fmt.Fprintln(ic.Stdout, text)
}

func (ic *InteractiveCollector) Prompt(prompt string) (string, error) {
	ic.once.Do(func() {
		ic.rl, ic.err = readline.NewEx(&readline.Config{
			Prompt:          prompt,
			Stdin:           ic.Stdin,
			Stdout:          ic.Stdout,
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
	})
	if ic.err != nil {
		return "", fmt.Errorf("open terminal: %w", ic.err)
	}

	ic.rl.SetPrompt(prompt)
	line, err := ic.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", ErrInputCancelled
		}
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Close releases the terminal.
func (ic *InteractiveCollector) Close() error {
	if ic.rl != nil {
		return ic.rl.Close()
	}
	return nil
}

// ScriptedCollector answers prompts from a fixed list. Once the answers
// run out, prompts return ErrInputCancelled.
type ScriptedCollector struct {
	Answers []string

	mu      sync.Mutex
	shown   []string
	prompts []string
}

// NewScriptedCollector returns a collector replaying answers.
func NewScriptedCollector(answers ...string) *ScriptedCollector {
	return &ScriptedCollector{Answers: answers}
}

func (sc *ScriptedCollector) Show(text string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.shown = append(sc.shown, text)
}

func (sc *ScriptedCollector) Prompt(prompt string) (string, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.prompts = append(sc.prompts, prompt)
	if len(sc.Answers) == 0 {
		return "", ErrInputCancelled
	}
	answer := sc.Answers[0]
	sc.Answers = sc.Answers[1:]
	return strings.TrimSpace(answer), nil
}

// Shown returns everything displayed so far.
func (sc *ScriptedCollector) Shown() []string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]string(nil), sc.shown...)
}

// Prompts returns every prompt asked so far.
func (sc *ScriptedCollector) Prompts() []string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]string(nil), sc.prompts...)
}

// DryRunCollector never blocks: it discards output and answers every prompt
// with an empty line.
type DryRunCollector struct{}

func (DryRunCollector) Show(string) {}

func (DryRunCollector) Prompt(string) (string, error) { return "", nil }
