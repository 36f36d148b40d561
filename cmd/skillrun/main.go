package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ormasoftchile/skillrun/pkg/config"
	"github.com/ormasoftchile/skillrun/pkg/ecosystem/mcp"
	"github.com/ormasoftchile/skillrun/pkg/llm"
	"github.com/ormasoftchile/skillrun/pkg/output"
	"github.com/ormasoftchile/skillrun/pkg/providers"
	"github.com/ormasoftchile/skillrun/pkg/runtime"
	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var version = "dev"

func main() {
	loadDotEnv(".env") // load .env file if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	configPath string
	logLevel   string
	skillsDir  string
	jsonOut    bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "skillrun",
	Short:             "Skill workflow runner",
	Long:              "skillrun executes skill workflows: shell commands, gate checks, user choices and LLM prompts with tool calling.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// setup loads the configuration and builds the logger shared by every
// subcommand. Flags override the configuration file.
func setup(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if skillsDir != "" {
		c.SkillsDir = skillsDir
	}
	level, err := config.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	cfg = c
	logger = newLogger(cmd.ErrOrStderr(), level, !isTTY(cmd.ErrOrStderr()))
	if c.Path != "" {
		logger.Debug("config loaded", "path", c.Path)
	}
	return nil
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the skills in the skills directory",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	var entries []output.SkillEntry
	for _, sk := range schema.Discover(cfg.SkillsDir, logger) {
		entries = append(entries, output.SkillEntry{
			Name:        sk.Name,
			Version:     sk.Version,
			Description: sk.Description,
			Path:        sk.Source,
		})
	}
	output.New(cmd.OutOrStdout(), false, jsonOut).SkillList(entries)
	return nil
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <skill>",
	Short: "Show a skill's steps and prompts",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	sk, err := schema.Resolve(args[0], cfg.SkillsDir)
	if err != nil {
		return err
	}
	p := output.New(cmd.OutOrStdout(), false, jsonOut)
	if jsonOut {
		return p.JSON(sk)
	}

	p.Field("Skill", sk.Name)
	p.Field("Version", sk.Version)
	if sk.Description != "" {
		p.Field("Description", sk.Description)
	}
	if len(sk.Triggers.Commands) > 0 {
		p.Field("Commands", strings.Join(sk.Triggers.Commands, ", "))
	}

	var lines []string
	for i, step := range sk.Steps {
		line := fmt.Sprintf("%d. %s [%s] (%s)", i+1, step.Name, step.ID, step.Type)
		if len(step.Dependencies) > 0 {
			line += " after " + strings.Join(step.Dependencies, ", ")
		}
		lines = append(lines, line)
	}
	p.Panel("Steps", strings.Join(lines, "\n"))

	if len(sk.Prompts) > 0 {
		names := make([]string, 0, len(sk.Prompts))
		for name := range sk.Prompts {
			names = append(names, "#"+name)
		}
		slices.Sort(names)
		p.Field("Prompts", strings.Join(names, ", "))
	}
	return nil
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <skill>",
	Short: "Validate a skill document against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	sk, errs := schema.ValidateFile(args[0], cfg.SkillsDir)
	stderr := cmd.ErrOrStderr()

	var failures []*schema.ValidationError
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(stderr, "    at: %s\n", e.Path)
			}
			continue
		}
		failures = append(failures, e)
	}
	if len(failures) > 0 {
		fmt.Fprintf(stderr, "Validation failed: %d error(s)\n\n", len(failures))
		for i, e := range failures {
			fmt.Fprintf(stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d steps)\n", sk.Name, len(sk.Steps))
	return nil
}

// --- schema ---

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of skill documents",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return err
	}
	if schemaOut == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	if err := os.MkdirAll(filepath.Dir(schemaOut), 0755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	if err := os.WriteFile(schemaOut, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ wrote %s\n", schemaOut)
	return nil
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status <state-file>",
	Short: "Show the progress of a persisted run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	run, err := state.Load(args[0])
	if err != nil {
		return err
	}
	report := output.StatusReport{Summary: run.Summary()}

	if sk, err := schema.Resolve(run.SkillName, cfg.SkillsDir); err == nil {
		ids := sk.StepIDs()
		report.StepsTotal = len(ids)
		report.StepsCompleted = len(run.CompletedSteps(ids))
		report.Pending = run.PendingSteps(ids)
	} else {
		logger.Debug("skill not resolved, showing recorded steps only", "skill", run.SkillName, "error", err)
	}

	events, err := runtime.ReadTrace(runtime.TracePath(args[0]))
	switch {
	case err == nil:
		report.History = events
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	output.New(cmd.OutOrStdout(), false, jsonOut).RunStatus(report)
	return nil
}

// --- instruction ---

var instructionTask string

var instructionCmd = &cobra.Command{
	Use:   "instruction <skill> <step>",
	Short: "Print the agent instruction for one step as JSON",
	Args:  cobra.ExactArgs(2),
	RunE:  runInstruction,
}

func runInstruction(cmd *cobra.Command, args []string) error {
	sk, err := schema.Resolve(args[0], cfg.SkillsDir)
	if err != nil {
		return err
	}
	step := sk.Step(args[1])
	if step == nil {
		return fmt.Errorf("step not found: %s", args[1])
	}
	d := providers.NewDispatcher(providers.Deps{Logger: logger})
	eng, err := runtime.NewEngine(sk, d, runtime.Options{Task: instructionTask, DryRun: true})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(d.Instruction(*step, eng.State, sk))
}

// --- providers ---

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List LLM providers and whether a credential is configured",
	Args:  cobra.NoArgs,
	RunE:  runProviders,
}

func runProviders(cmd *cobra.Command, args []string) error {
	available := map[string]bool{}
	for _, name := range llm.Available(llm.Options{File: cfg.Providers}) {
		available[name] = true
	}
	p := output.New(cmd.OutOrStdout(), false, jsonOut)
	if jsonOut {
		return p.JSON(available)
	}
	for _, name := range llm.Names {
		if available[name] {
			p.Success(name)
		} else {
			p.Info(name + " (no API key)")
		}
	}
	return nil
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the skillrun tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := mcp.NewServer(version, &mcp.Handlers{SkillsDir: cfg.SkillsDir, Logger: logger})
		return server.ServeStdio(s)
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "skillrun %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/skillrun/config.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&skillsDir, "skills-dir", "", "directory searched for skills")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit JSON instead of formatted text")

	schemaCmd.Flags().StringVar(&schemaOut, "out", "", "write the schema to a file instead of stdout")
	instructionCmd.Flags().StringVar(&instructionTask, "task", "", "task description used for interpolation")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(instructionCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}
