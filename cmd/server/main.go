package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiranojhanp/ai-agents/pkg/config"
	"github.com/kiranojhanp/ai-agents/pkg/server"
)

func main() {
	addr := flag.String("addr", ":3000", "address to listen on")
	flag.Parse()

	cfg, cleanup, err := config.Default()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &http.Server{
		Addr:    *addr,
		Handler: server.New(cfg).Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cfg.Logger.Info("chat server listening", "addr", *addr, "model", cfg.Model)

		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return s.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		cfg.Logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
