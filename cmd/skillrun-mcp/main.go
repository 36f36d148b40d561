// Package main provides the skillrun-mcp binary, an MCP server for AI agents.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ormasoftchile/skillrun/pkg/config"
	smcp "github.com/ormasoftchile/skillrun/pkg/ecosystem/mcp"
)

var version = "dev"

func main() {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if dir := os.Getenv("SKILLRUN_SKILLS_DIR"); dir != "" {
		cfg.SkillsDir = dir
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	// stdout carries the protocol; logs go to stderr.
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, NoColor: true}))

	s := smcp.NewServer(version, &smcp.Handlers{SkillsDir: cfg.SkillsDir, Logger: logger})
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
