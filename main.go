package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netshield/internal/app"
	"netshield/internal/config"
	"netshield/internal/handlers"
)

func main() {
	configPath := flag.String("config", "", "config file (default ./netshield.yaml if present)")
	port := flag.Int("port", 0, "HTTP server port (overrides addr)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if *port != 0 {
		cfg.Addr = fmt.Sprintf(":%d", *port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		log.Fatal(err)
	}
}

// run serves until ctx is cancelled. Remote feeds and sessions are torn
// down before it returns, whatever the outcome.
func run(ctx context.Context, cfg config.Config) error {
	eng, cleanup, err := app.NewEngine(ctx, cfg)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("dataset error: %w", err)
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, eng, cfg.SendBuffer)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	srv := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("NetShield listening on http://localhost%s", cfg.Addr)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
