// Package app wires configuration to a dataset and an engine for the
// server and the terminal dashboard.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"netshield/internal/config"
	"netshield/internal/dataset"
	"netshield/internal/engine"
	"netshield/internal/remote"
	"netshield/internal/session"
)

// LogPollInterval is how often the remote log store is re-read.
const LogPollInterval = 5 * time.Second

// OpenDataset builds the source named by cfg.DatasetKind. The returned
// cleanup stops any remote feeds and must always be called.
func OpenDataset(ctx context.Context, cfg config.Config) (dataset.Source, func(), error) {
	switch cfg.DatasetKind {
	case config.DatasetPcap:
		f, err := os.Open(cfg.DatasetPcap)
		if err != nil {
			return nil, func() {}, fmt.Errorf("open dataset: %w", err)
		}
		defer f.Close()
		src, err := dataset.LoadPcap(f)
		if err != nil {
			return nil, func() {}, fmt.Errorf("load %s: %w", cfg.DatasetPcap, err)
		}
		log.Printf("Dataset: %d records from %s (truncated: %t)", src.Len(), cfg.DatasetPcap, src.Truncated())
		return src, func() {}, nil

	case config.DatasetRemote:
		return openRemote(ctx, cfg)
	}
	src := dataset.Builtin()
	log.Printf("Dataset: %d built-in records", src.Len())
	return src, func() {}, nil
}

func openRemote(ctx context.Context, cfg config.Config) (dataset.Source, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	live := dataset.NewLive()
	done := make(chan struct{})

	if cfg.LogsURL != "" {
		logs := remote.NewLogClient(cfg.LogsURL, nil)
		go func() {
			defer close(done)
			logs.Poll(ctx, nil, LogPollInterval, live)
		}()
	} else {
		close(done)
	}

	var scans *remote.ScanClient
	if cfg.ScanURL != "" {
		scans = remote.NewScanClient(cfg.ScanURL)
		if _, err := scans.FeedLive(ctx, cfg.ScanTopic, live); err != nil {
			// The log store alone still makes a usable dataset.
			log.Printf("Scan feed %s unavailable: %v", cfg.ScanURL, err)
		}
	}

	cleanup := func() {
		cancel()
		if scans != nil {
			scans.Close()
		}
		<-done
	}
	log.Printf("Dataset: remote (logs=%q scan=%q)", cfg.LogsURL, cfg.ScanURL)
	return live, cleanup, nil
}

// SessionOptions maps the timing settings of cfg.
func SessionOptions(cfg config.Config) session.Options {
	return session.Options{
		Interval:      cfg.CaptureInterval,
		DebounceDelay: cfg.FilterDebounce,
	}
}

// NewEngine opens the dataset and builds an engine over it.
func NewEngine(ctx context.Context, cfg config.Config) (*engine.Engine, func(), error) {
	src, cleanup, err := OpenDataset(ctx, cfg)
	if err != nil {
		return nil, cleanup, err
	}
	eng := engine.New(src, SessionOptions(cfg))
	return eng, func() {
		eng.Close()
		cleanup()
	}, nil
}
