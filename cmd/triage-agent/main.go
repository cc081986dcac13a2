package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/xiy/triage-agent/internal/admin"
	"github.com/xiy/triage-agent/internal/agent"
	"github.com/xiy/triage-agent/internal/chat"
	"github.com/xiy/triage-agent/internal/config"
	"github.com/xiy/triage-agent/internal/embeddings"
	"github.com/xiy/triage-agent/internal/kb"
	"github.com/xiy/triage-agent/internal/llm"
	"github.com/xiy/triage-agent/internal/memory"
	"github.com/xiy/triage-agent/internal/oracle"
	"github.com/xiy/triage-agent/internal/recall"
	"github.com/xiy/triage-agent/internal/store"
)

func main() {
	// Missing .env is fine; real env vars win either way.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	sub := os.Args[1]
	switch sub {
	case "chat":
		if err := runSession(os.Args[2:], chat.ModeSimple); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	case "triage":
		if err := runSession(os.Args[2:], chat.ModeTriage); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	case "admin":
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	case "version", "--version", "-v":
		fmt.Println("triage-agent v0.1.0")
	default:
		usage()
		os.Exit(2)
	}
}

func runSession(args []string, mode chat.Mode) error {
	name := "chat"
	if mode == chat.ModeTriage {
		name = "triage"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "config/triage-agent.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportCaller: false, Prefix: cfg.AgentName})
	setLogLevel(logger, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Configuration and credential problems are fatal before the
	// session starts; once interactive, every failure degrades.
	client, err := llm.NewAnthropicClient(cfg.Model, cfg.MaxTokens, logger)
	if err != nil {
		return err
	}
	embed, err := embeddings.Func(cfg.EmbeddingProvider, cfg.EmbeddingModel)
	if err != nil {
		return err
	}

	st, err := store.OpenSQLite(ctx, cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	knowledge, err := kb.Load(ctx, cfg.KnowledgeDir, embed)
	if err != nil {
		return err
	}
	logger.Info("knowledge base loaded", "chunks", knowledge.Size(), "dir", cfg.KnowledgeDir)

	index := recall.New(embed)
	archived, err := st.ListArchived(ctx, 0)
	if err != nil {
		return err
	}
	if err := index.Rebuild(ctx, archived); err != nil {
		logger.Warn("recall index unavailable until next consolidation", "error", err)
	}

	o := oracle.New(client)
	svc := memory.NewService(st, o, index, cfg, logger)
	graph := agent.New(client, svc, knowledge, cfg, logger)

	repl := chat.New(graph, mode, svc, st, knowledge, cfg, logger, os.Stdin, os.Stdout)
	return repl.Run(ctx)
}

func runAdmin(args []string) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	configPath := fs.String("config", "config/triage-agent.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := log.New(os.Stderr)
	st, err := store.OpenSQLite(context.Background(), cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return admin.Run(ctx, st)
}

func setLogLevel(logger *log.Logger, level string) {
	switch level {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
}

func usage() {
	fmt.Print(`triage-agent

Usage:
  triage-agent chat [--config path]     free-form Q&A session
  triage-agent triage [--config path]   structured ticket-triage session
  triage-agent admin [--config path]    local dashboard over the memory store
  triage-agent version
`)
}
