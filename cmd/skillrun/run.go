package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/ormasoftchile/skillrun/pkg/config"
	"github.com/ormasoftchile/skillrun/pkg/conversation"
	"github.com/ormasoftchile/skillrun/pkg/executor"
	"github.com/ormasoftchile/skillrun/pkg/gate"
	"github.com/ormasoftchile/skillrun/pkg/governance"
	"github.com/ormasoftchile/skillrun/pkg/llm"
	"github.com/ormasoftchile/skillrun/pkg/output"
	"github.com/ormasoftchile/skillrun/pkg/providers"
	"github.com/ormasoftchile/skillrun/pkg/runtime"
	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/tools"
	"github.com/spf13/cobra"
)

var (
	runTask       string
	runDryRun     bool
	runStepByStep bool
	runProvider   string
	runModel      string
	runResume     string
	runVerbose    bool
	runMaxTurns   int
	runNoTools    bool
)

var runCmd = &cobra.Command{
	Use:   "run <skill> [task]",
	Short: "Execute a skill",
	Long: `Execute a skill's steps in order.

The skill is a name under the skills directory, a directory holding a
SKILL.md, a SKILL.md path or a skill YAML file. State is saved after every
step so an interrupted run can be continued with --resume.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runTask, "task", "t", "", "task description, available as ${task}")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "show what would run without executing anything")
	runCmd.Flags().BoolVar(&runStepByStep, "step-by-step", false, "confirm before each step")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "LLM provider: "+strings.Join(llm.Names, ", "))
	runCmd.Flags().StringVar(&runModel, "model", "", "model override for the selected provider")
	runCmd.Flags().StringVar(&runResume, "resume", "", "continue the run saved in this state file")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "show step output")
	runCmd.Flags().IntVar(&runMaxTurns, "max-turns", 0, "maximum LLM turns per prompt step")
	runCmd.Flags().BoolVar(&runNoTools, "no-tools", false, "do not offer tools to prompt steps")
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 2 && runTask == "" {
		runTask = args[1]
	}
	sk, err := schema.Resolve(args[0], cfg.SkillsDir)
	if err != nil {
		return err
	}
	printer := output.New(cmd.OutOrStdout(), runVerbose, jsonOut)

	// Only `validate` rejects a skill. Steps with unknown dependencies are
	// skipped by the engine.
	if issues := schema.Validate(sk); len(issues) > 0 {
		logger.Warn("skill has validation issues", "skill", sk.Name, "issues", len(issues))
		printer.Warn(fmt.Sprintf("Skill %s has validation issues:", sk.Name))
		for _, issue := range issues {
			printer.Warn("  " + issue)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	pol, err := governance.NewPolicy(sk.Governance)
	if err != nil {
		return err
	}
	exec, blocked := executor.New(root, pol)
	if len(blocked) > 0 {
		logger.Info("environment variables withheld from commands", "names", blocked)
	}

	collector := providers.NewInteractiveCollector()
	defer collector.Close()

	deps := providers.Deps{
		Exec:         exec,
		Collector:    collector,
		Conversation: conversationConfig(cfg, runMaxTurns),
		Logger:       logger,
	}
	if cfg.NotificationsEnabled() && !runDryRun {
		deps.Notify = gate.DesktopNotifier()
	}

	if !runDryRun && hasPromptSteps(sk) {
		provider, err := selectProvider(runProvider, runModel, cfg, os.LookupEnv, logger)
		if err != nil {
			return err
		}
		if provider == nil {
			printer.Warn(providers.NoProviderMessage)
		} else {
			logger.Info("using LLM provider", "provider", provider.Name(), "model", provider.DefaultModel())
			deps.Provider = provider
		}

		if !runNoTools {
			registry, closeTools, err := buildTools(ctx, root, exec, cfg.MCPServers, logger)
			if err != nil {
				return err
			}
			defer closeTools()
			deps.Tools = registry
		}
	}

	eng, err := runtime.NewEngine(sk, providers.NewDispatcher(deps), runtime.Options{
		Task:        runTask,
		DryRun:      runDryRun,
		StepByStep:  runStepByStep,
		ResumePath:  runResume,
		StateDir:    cfg.StateDir,
		ProjectRoot: root,
	})
	if err != nil {
		return err
	}
	eng.Collector = collector
	eng.Reporter = printer
	eng.Logger = logger

	if !jsonOut {
		printer.Info(fmt.Sprintf("Running skill: %s v%s", sk.Name, sk.Version))
		if runDryRun {
			printer.Warn("[DRY RUN] No commands will be executed")
		}
		if runResume != "" {
			printer.Info("Resuming from " + runResume)
		}
	}

	sum, err := eng.Run(ctx)
	if err != nil {
		if errors.Is(err, runtime.ErrStopped) || errors.Is(err, context.Canceled) {
			printer.Warn("Run stopped. Resume with --resume " + eng.StatePath())
		}
		return err
	}
	if !sum.OK() {
		return fmt.Errorf("%d step(s) failed", sum.Failed)
	}
	return nil
}

func hasPromptSteps(sk *schema.Skill) bool {
	for _, s := range sk.Steps {
		if s.Type == schema.StepPrompt {
			return true
		}
	}
	return false
}

// selectProvider picks the LLM provider for prompt steps. An explicit name
// wins, then the configured default, then the first provider with a
// credential. It returns nil when nothing is configured.
func selectProvider(name, model string, c *config.Config, env func(string) (string, bool), logger *slog.Logger) (llm.Provider, error) {
	opts := llm.Options{
		Explicit:   llm.Config{Model: model},
		File:       c.Providers,
		Env:        env,
		HTTPClient: &http.Client{Timeout: c.Timeout()},
		Logger:     logger,
	}
	name = firstNonEmpty(name, c.Provider)
	if name == "" {
		available := llm.Available(opts)
		if len(available) == 0 {
			return nil, nil
		}
		name = available[0]
	}
	p, err := llm.New(name, opts)
	if err != nil {
		return nil, err
	}
	if !p.IsAvailable() {
		logger.Warn("provider has no API key", "provider", name)
		return nil, nil
	}
	return p, nil
}

// conversationConfig applies the configured and flag turn limits to the
// default conversation bounds.
func conversationConfig(c *config.Config, maxTurns int) conversation.Config {
	conv := conversation.DefaultConfig()
	if c.MaxTurns > 0 {
		conv.MaxTurns = c.MaxTurns
	}
	if maxTurns > 0 {
		conv.MaxTurns = maxTurns
	}
	return conv
}

// buildTools registers the local file and shell tools plus the tools of
// every configured MCP server, prefixed with the server name. A server
// that fails to start is logged and skipped.
func buildTools(ctx context.Context, root string, exec executor.CommandExecutor, servers []config.MCPServer, logger *slog.Logger) (*tools.Registry, func(), error) {
	registry, err := tools.NewDefaultRegistry(root, exec)
	if err != nil {
		return nil, nil, fmt.Errorf("register local tools: %w", err)
	}

	var connected []*tools.MCPServer
	closeAll := func() {
		for _, s := range connected {
			if err := s.Close(); err != nil {
				logger.Debug("close MCP server", "error", err)
			}
		}
	}

	for _, srv := range servers {
		conn, err := tools.ConnectStdio(ctx, srv.Name, srv.Command, srv.Args, envList(srv.Env))
		if err != nil {
			logger.Warn("MCP server unavailable", "server", srv.Name, "error", err)
			continue
		}
		connected = append(connected, conn)
		if err := conn.Register(registry, srv.Name+"_"); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("register tools of %s: %w", srv.Name, err)
		}
		logger.Info("MCP tools registered", "server", srv.Name, "tools", len(conn.ToolNames()))
	}
	return registry, closeAll, nil
}

// envList turns a variable map into sorted KEY=VALUE pairs.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
