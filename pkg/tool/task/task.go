package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranojhanp/ai-agents/pkg/asana"
	"github.com/kiranojhanp/ai-agents/pkg/tool"
)

const (
	Name = "create_asana_task"

	// Today is the due_on sentinel for the current local date.
	Today = "today"

	dateLayout = "2006-01-02"
)

// Creator is the task-tracking API the tool writes to.
type Creator interface {
	CreateTask(ctx context.Context, task asana.TaskRequest) (*asana.Task, error)
}

type Options struct {
	// Project every task is added to.
	Project string

	// Now defaults to time.Now.
	Now func() time.Time
}

func CreateTool(creator Creator, opts Options) tool.Tool {
	now := opts.Now

	if now == nil {
		now = time.Now
	}

	return tool.Tool{
		Name:        Name,
		Description: "Creates a task in Asana given the name of the task and when it is due",

		Schema: &tool.Schema{
			Type: "object",

			Properties: map[string]*tool.Schema{
				"task_name": {
					Type:        "string",
					Description: "The name of the task in Asana",
				},

				"due_on": {
					Type:        "string",
					Description: "The date the task is due in the format YYYY-MM-DD. If not given, the current day is used",
				},
			},

			Required: []string{"task_name"},
		},

		Validate: func(args map[string]any) (map[string]any, error) {
			return validate(args, now)
		},

		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			name, _ := args["task_name"].(string)
			dueOn, _ := args["due_on"].(string)

			task, err := creator.CreateTask(ctx, asana.TaskRequest{
				Name:  name,
				DueOn: dueOn,

				Projects: []string{opts.Project},
			})

			if err != nil {
				var apiErr *asana.APIError

				if errors.As(err, &apiErr) {
					return "", tool.ExternalAPI(apiErr)
				}

				return "", err
			}

			return format(task), nil
		},
	}
}

func Tools(creator Creator, opts Options) []tool.Tool {
	return []tool.Tool{
		CreateTool(creator, opts),
	}
}

func validate(args map[string]any, now func() time.Time) (map[string]any, error) {
	name, ok := args["task_name"].(string)

	if !ok || strings.TrimSpace(name) == "" {
		return nil, tool.InvalidArgument("task_name must be a non-empty string")
	}

	dueOn := Today

	if v, ok := args["due_on"]; ok && v != nil {
		s, ok := v.(string)

		if !ok {
			return nil, tool.InvalidArgument("due_on must be a string, got %T", v)
		}

		dueOn = s
	}

	resolved, err := ResolveDueOn(dueOn, now())

	if err != nil {
		return nil, err
	}

	return map[string]any{
		"task_name": strings.TrimSpace(name),
		"due_on":    resolved,
	}, nil
}

// ResolveDueOn maps the "today" sentinel (any casing) to the local date of
// now and checks every other value is a strict YYYY-MM-DD date.
func ResolveDueOn(value string, now time.Time) (string, error) {
	value = strings.TrimSpace(value)

	if strings.EqualFold(value, Today) {
		return now.Format(dateLayout), nil
	}

	if len(value) != len(dateLayout) {
		return "", tool.InvalidArgument("invalid date format for due_on: %q, expected YYYY-MM-DD", value)
	}

	if _, err := time.ParseInLocation(dateLayout, value, now.Location()); err != nil {
		return "", tool.InvalidArgument("invalid date format for due_on: %q, expected YYYY-MM-DD", value)
	}

	return value, nil
}

func format(task *asana.Task) string {
	var buf bytes.Buffer

	if err := json.Indent(&buf, task.Data, "", "  "); err != nil {
		return fmt.Sprintf("created task %s (%s)", task.GID, task.Name)
	}

	return buf.String()
}
