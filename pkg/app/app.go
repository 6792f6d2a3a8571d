package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kiranojhanp/ai-agents/pkg/agent"
	"github.com/kiranojhanp/ai-agents/pkg/markdown"
)

const (
	Prompt = "Chat with AI (type 'q' to quit): "

	// QuitSentinel ends the session, compared case-insensitively.
	QuitSentinel = "q"
)

type Options struct {
	// Stream prints replies chunk by chunk instead of rendering them once
	// complete.
	Stream bool

	Input  io.Reader
	Output io.Writer

	Renderer *markdown.Renderer
}

// App is the terminal session driver: a line-oriented read loop around one
// agent session.
type App struct {
	ctx   context.Context
	agent *agent.Agent

	in  io.Reader
	out io.Writer

	stream   bool
	renderer *markdown.Renderer
}

func New(ctx context.Context, ag *agent.Agent, opts Options) *App {
	a := &App{
		ctx:   ctx,
		agent: ag,

		in:  opts.Input,
		out: opts.Output,

		stream:   opts.Stream,
		renderer: opts.Renderer,
	}

	if a.in == nil {
		a.in = os.Stdin
	}

	if a.out == nil {
		a.out = os.Stdout
	}

	return a
}

// Run reads user input until the quit sentinel, end of input or context
// cancellation (Ctrl+C). Turn failures are reported and the loop continues;
// Run itself only fails if reading input fails.
func (a *App) Run() error {
	lines, errc := readLines(a.ctx, a.in)

	for {
		fmt.Fprint(a.out, Prompt)

		select {
		case <-a.ctx.Done():
			fmt.Fprintln(a.out)
			return nil

		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(a.out)
				return <-errc
			}

			input := strings.TrimSpace(line)

			if input == "" {
				continue
			}

			if strings.EqualFold(input, QuitSentinel) {
				return nil
			}

			a.turn(input)
		}
	}
}

func (a *App) turn(input string) {
	var err error

	if a.stream {
		err = a.streamResponse(input)
	} else {
		err = a.completeResponse(input)
	}

	if err == nil {
		return
	}

	if errors.Is(err, context.Canceled) {
		fmt.Fprint(a.out, "\nCancelled\n\n")
		return
	}

	fmt.Fprintf(a.out, "\nError: %v\n\n", err)
}

func readLines(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		defer close(errc)

		scanner := bufio.NewScanner(r)

		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			errc <- err
		}
	}()

	return lines, errc
}
