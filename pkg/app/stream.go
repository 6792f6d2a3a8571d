package app

import (
	"fmt"
	"strings"
)

func (a *App) completeResponse(input string) error {
	msg, err := a.agent.Complete(a.ctx, input)

	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "\nAI Response:\n%s\n", a.renderer.Render(msg.Content))

	return nil
}

// streamResponse prints text as it arrives. Tool requests are announced by
// name when their first fragment shows up.
func (a *App) streamResponse(input string) error {
	fmt.Fprint(a.out, "\nAI Response:\n")

	var content strings.Builder

	for chunk, err := range a.agent.Send(a.ctx, input) {
		if err != nil {
			return err
		}

		for _, tc := range chunk.ToolCalls {
			if tc.Name == "" {
				continue
			}

			if content.Len() > 0 && !strings.HasSuffix(content.String(), "\n") {
				fmt.Fprintln(a.out)
			}

			fmt.Fprintf(a.out, "[running %s]\n", tc.Name)
			content.Reset()
		}

		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			fmt.Fprint(a.out, chunk.Content)
		}
	}

	fmt.Fprint(a.out, "\n\n")

	return nil
}
