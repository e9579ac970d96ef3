// cmd/switchboard/main.go
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"switchboard/internal/adapter"
	"switchboard/internal/bridge"
	"switchboard/internal/bus"
	"switchboard/internal/commands"
	"switchboard/internal/config"
	"switchboard/internal/db"
	"switchboard/internal/debate"
	"switchboard/internal/guardian"
	"switchboard/internal/journal"
	"switchboard/internal/retry"
	"switchboard/internal/telemetry"
	"switchboard/internal/ui"
)

func main() {
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage: %s\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(out, "Drives claude, gemini, codex and opencode side by side.\n")
		fmt.Fprintf(out, "Config file: %s\n\n", config.ConfigPath())
		fmt.Fprintln(out, commands.HelpText())
	}
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := os.MkdirAll(config.DataDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// The TUI owns the terminal; send the standard logger to a file.
	logFile, err := tea.LogToFile(filepath.Join(config.DataDir(), "switchboard.log"), "")
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	opts := cfg.AdapterOptions()
	if len(opts) == 0 {
		return fmt.Errorf("no agents enabled; edit %s", config.ConfigPath())
	}

	b := bus.NewWithCapacity(cfg.Bus.History)
	reg := adapter.NewRegistry(adapter.NewExecRunner(), opts)
	defer reg.DisposeAll()

	store, err := db.Open(cfg.Storage.Database)
	if err != nil {
		// Run without history rather than refusing to start.
		log.Printf("history database unavailable: %v", err)
		store = nil
	} else {
		defer store.Close()
	}

	tel := telemetry.New(cfg.Telemetry.Endpoint)
	if tel.Enabled() {
		tel.Attach(b)
		defer tel.Detach()
	}

	msgStore := ui.NewStore(store, guardian.New())
	msgStore.OnGuardianAlert = tel.GuardianAlert
	msgStore.Attach(b)
	defer msgStore.Close()

	bridge.New(b, msgStore).ConnectAll(reg)

	rm := retry.NewManager(b, func(agentID string) bool {
		a := reg.Get(agentID)
		if a == nil {
			return false
		}
		return a.ResendLastMessage()
	}, retry.Config{
		MaxRetries:       cfg.Retry.MaxRetries,
		BreakerThreshold: cfg.Retry.BreakerThreshold,
		BaseDelay:        time.Duration(cfg.Retry.BaseDelay) * time.Millisecond,
		MaxDelay:         time.Duration(cfg.Retry.MaxDelay) * time.Millisecond,
	})
	defer rm.Dispose()

	debates := debate.NewWithTimeout(b, func(agentID string) debate.Agent {
		// Return an untyped nil for unknown agents so the orchestrator's
		// nil check works.
		if a := reg.Get(agentID); a != nil {
			return a
		}
		return nil
	}, time.Duration(cfg.Debate.WaitTimeout)*time.Second)
	defer debates.Dispose()

	if cfg.Journal.Enabled {
		j, err := journal.New(cfg.Journal.Dir)
		if err != nil {
			log.Printf("journal unavailable: %v", err)
		} else {
			j.Attach(b)
			defer j.Close()
		}
	}

	m := ui.New(ui.Deps{
		Bus:          b,
		Registry:     reg,
		Retry:        rm,
		Debates:      debates,
		DB:           store,
		Store:        msgStore,
		Telemetry:    tel,
		ExportDir:    config.DataDir(),
		DebateRounds: cfg.Debate.DefaultRounds,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run program: %w", err)
	}
	return nil
}
