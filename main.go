package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/kiranojhanp/ai-agents/pkg/agent"
	"github.com/kiranojhanp/ai-agents/pkg/app"
	"github.com/kiranojhanp/ai-agents/pkg/config"
	"github.com/kiranojhanp/ai-agents/pkg/ledger"
	"github.com/kiranojhanp/ai-agents/pkg/markdown"
	"github.com/kiranojhanp/ai-agents/pkg/tool/task"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "asana-agent",
		Usage: "chat with a project manager that creates Asana tasks",

		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stream",
				Usage: "print replies while they are generated",
			},
		},

		Action: chat,

		Commands: []*cli.Command{
			{
				Name:  "catalog",
				Usage: "print the capabilities offered to the model",

				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Value: "json",
						Usage: "output format (json, yaml)",
					},
				},

				Action: catalog,
			},
			{
				Name:  "history",
				Usage: "list recorded invocations (requires LEDGER_PATH)",

				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
					},
				},

				Action: history,
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func chat(ctx context.Context, cmd *cli.Command) error {
	cfg, cleanup, err := config.Default()

	if err != nil {
		return err
	}

	defer cleanup()

	agent := agent.New(cfg)

	app := app.New(ctx, agent, app.Options{
		Stream: cmd.Bool("stream"),

		Renderer: markdown.NewRenderer(markdown.DefaultWidth),
	})

	return app.Run()
}

func catalog(ctx context.Context, cmd *cli.Command) error {
	var result []map[string]any

	for _, t := range task.Tools(nil, task.Options{}) {
		result = append(result, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters(),
		})
	}

	switch cmd.String("format") {
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)

		defer enc.Close()

		return enc.Encode(result)

	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(result)

	default:
		return fmt.Errorf("unsupported format %q", cmd.String("format"))
	}
}

func history(ctx context.Context, cmd *cli.Command) error {
	_ = godotenv.Load()

	path := os.Getenv("LEDGER_PATH")

	if path == "" {
		return errors.New("LEDGER_PATH is not set")
	}

	l, err := ledger.Open(path)

	if err != nil {
		return err
	}

	defer l.Close()

	entries, err := l.List(ctx, int(cmd.Int("limit")))

	if err != nil {
		return err
	}

	for _, e := range entries {
		status := "ok"

		if e.Failed() {
			status = e.Kind
		}

		fmt.Printf("%s  %-18s  %-20s  %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Tool, status, string(e.Args))
	}

	return nil
}
