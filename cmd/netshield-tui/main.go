package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"netshield/internal/app"
	"netshield/internal/config"
	"netshield/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "config file (default ./netshield.yaml if present)")
	pcapPath := flag.String("pcap", "", "replay this capture file instead of the configured dataset")
	logFile := flag.String("log", "", "write logs to this file (discarded by default)")
	flag.Parse()

	if err := run(*configPath, *pcapPath, *logFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, pcapPath, logFile string) error {
	log.SetOutput(io.Discard)
	if logFile != "" {
		f, err := tea.LogToFile(logFile, "netshield")
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		defer f.Close()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if pcapPath != "" {
		cfg.DatasetKind = config.DatasetPcap
		cfg.DatasetPcap = pcapPath
	}

	eng, cleanup, err := app.NewEngine(context.Background(), cfg)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}

	sess, err := eng.NewSession()
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	defer eng.CloseSession(sess.ID)

	p := tea.NewProgram(tui.NewModel(sess), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
