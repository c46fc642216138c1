// ABOUTME: Entry point for the improv stage CLI.
// ABOUTME: Runs interactive multi-agent chat sessions and exports saved transcripts.

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/agent"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/chatlog"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/config"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/director"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/orchestrator"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/session"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/store"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/transcript"
)

// Version is set at build time.
var version = "dev"

// getConfigPath returns the service config location.
// Priority: IMPROV_CONFIG env var > ./improv.yaml
func getConfigPath() string {
	if envPath := os.Getenv("IMPROV_CONFIG"); envPath != "" {
		return envPath
	}
	return "improv.yaml"
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: improv-stage <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  chat <scenario.toml>          Run an interactive stage session")
		fmt.Println("  export <session-id> <out>     Export a saved session as HTML")
		fmt.Println("  sessions                      List saved sessions")
		fmt.Println("  init                          Write a default config and sample scenario")
		fmt.Println("  version                       Print the version")
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "chat":
		err = runChat(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "sessions":
		err = runSessions()
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the service config, falling back to defaults when no
// file exists.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// setupLogging installs the slog default handler per config.
func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runChat(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: improv-stage chat <scenario.toml>")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)

	scenario, err := config.LoadScenario(args[0])
	if err != nil {
		return err
	}

	policyName := cfg.Session.Policy
	if scenario.Policy != "" {
		policyName = scenario.Policy
	}
	policy, err := orchestrator.ParsePolicy(policyName)
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	notify := chatlog.NewBroadcaster(nil)
	log := chatlog.New(notify)
	client := agent.NewScriptedClient(nil)
	events := make(chan orchestrator.TurnEvent, 64)

	coord := orchestrator.New(log, client,
		orchestrator.WithPolicy(policy),
		orchestrator.WithStreaming(cfg.Session.Streaming),
		orchestrator.WithEvents(events))
	defer coord.Close()

	for _, d := range scenario.Agents {
		coord.AddAgent(d)
	}
	coord.Select(scenario.SelectionOrDefault())

	snapshotter := session.NewSnapshotter("", coord)
	saver := session.NewAutosaver(snapshotter, db, notify, nil)
	go saver.Run(ctx)

	stage := director.New(coord, nil)

	title := scenario.Title
	if title == "" {
		title = "Improv Stage"
	}
	color.New(color.Bold).Printf("%s (session %s)\n", title, snapshotter.SessionID())
	fmt.Println(`Type a line to speak. Commands: /direct <id,id> <text>  /narrate <text>  /policy <name>  /quit`)

	turnDone := make(chan struct{}, 1)
	go printEvents(coord, events, turnDone)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		color.New(color.FgGreen).Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return nil

		case strings.HasPrefix(line, "/policy "):
			p, err := orchestrator.ParsePolicy(strings.TrimSpace(strings.TrimPrefix(line, "/policy ")))
			if err != nil {
				fmt.Println(err)
				continue
			}
			coord.SetPolicy(p)
			fmt.Println("policy set to", p)
			continue

		case strings.HasPrefix(line, "/narrate "):
			stage.Narrate(ctx, strings.TrimPrefix(line, "/narrate "))
			continue

		case strings.HasPrefix(line, "/direct "):
			rest := strings.TrimPrefix(line, "/direct ")
			parts := strings.SplitN(rest, " ", 2)
			if len(parts) != 2 {
				fmt.Println("usage: /direct <id,id> <text>")
				continue
			}
			stage.Command(ctx, parts[1], strings.Split(parts[0], ","))

		default:
			coord.UserMessage(ctx, line)
		}

		select {
		case <-turnDone:
		case <-ctx.Done():
			return nil
		}
	}
	return scanner.Err()
}

// printEvents renders turn events as they arrive and signals turn completion.
func printEvents(coord *orchestrator.Coordinator, events <-chan orchestrator.TurnEvent, turnDone chan<- struct{}) {
	agentColor := color.New(color.FgCyan)
	errColor := color.New(color.FgRed)

	for ev := range events {
		switch ev.Kind {
		case orchestrator.EventAgentCompleted:
			if msg, ok := coord.Log().Get(ev.MessageID); ok {
				agentColor.Printf("%s> ", msg.AgentName)
				fmt.Println(msg.Content)
			}
		case orchestrator.EventAgentFailed:
			errColor.Printf("%s failed: %v\n", ev.AgentID, ev.Err)
		case orchestrator.EventTurnFinished:
			select {
			case turnDone <- struct{}{}:
			default:
			}
		}
	}
}

func runExport(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: improv-stage export <session-id> <out.html>")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := db.Load(context.Background(), args[0])
	if err != nil {
		return err
	}

	out, err := os.Create(args[1])
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	if err := transcript.Export(out, "Session "+snap.SessionID, snap.Messages); err != nil {
		return err
	}
	fmt.Printf("exported %d messages to %s\n", len(snap.Messages), args[1])
	return nil
}

func runSessions() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ids, err := db.ListSessions(context.Background())
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

const defaultConfigFile = `# Improv stage configuration
session:
  policy: sequential
  streaming: true

database:
  path: improv.db

logging:
  level: info
  format: text
`

const sampleScenarioFile = `title = "Two hander"
policy = "sequential"

[[agents]]
id = "alice"
name = "Alice"
provider = "local"
model = "improv-1"
system_prompt = "You are Alice, an optimist."

[[agents]]
id = "bob"
name = "Bob"
provider = "local"
model = "improv-1"
system_prompt = "You are Bob, a skeptic."
`

func runInit() error {
	for name, content := range map[string]string{
		"improv.yaml":   defaultConfigFile,
		"scenario.toml": sampleScenarioFile,
	} {
		if _, err := os.Stat(name); err == nil {
			fmt.Printf("%s already exists, skipping\n", name)
			continue
		}
		if err := os.WriteFile(name, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		fmt.Println("wrote", name)
	}
	return nil
}
