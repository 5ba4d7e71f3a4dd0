package audit

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"litassist/internal/logging"
)

// Task event names. Every stage emits at minimum start and end; expensive
// calls also emit llm_call and llm_response.
const (
	EventStart       = "start"
	EventEnd         = "end"
	EventProgress    = "progress"
	EventLLMCall     = "llm_call"
	EventLLMResponse = "llm_response"
	EventError       = "error"
)

// TaskEvent is a structured progress event for one command stage.
type TaskEvent struct {
	ID        string
	Command   string
	Stage     string
	Event     string
	Message   string
	Timestamp time.Time
	Details   map[string]interface{}
}

var consoleOut io.Writer = os.Stdout

// SetConsole redirects task-event console echo. Intended for tests.
func SetConsole(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	consoleOut = w
}

// EmitTaskEvent persists the event as task_event_<command>_<stage>_<event>
// and echoes start/end/progress to the console, with a [model: X] suffix
// when the details carry a model name.
func EmitTaskEvent(ev TaskEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	tag := fmt.Sprintf("task_event_%s_%s_%s", ev.Command, ev.Stage, ev.Event)
	payload := map[string]interface{}{
		"event_id":  ev.ID,
		"command":   ev.Command,
		"stage":     ev.Stage,
		"event":     ev.Event,
		"message":   ev.Message,
		"timestamp": ev.Timestamp.Format(time.RFC3339),
	}
	if len(ev.Details) > 0 {
		payload["details"] = ev.Details
	}

	if _, err := SaveLog(tag, payload); err != nil {
		logging.AuditWarn("Failed to persist task event %s: %v", tag, err)
	}

	switch ev.Event {
	case EventStart, EventEnd, EventProgress:
		suffix := ""
		if model, ok := ev.Details["model"].(string); ok && model != "" {
			suffix = fmt.Sprintf(" [model: %s]", model)
		}
		fmt.Fprintf(consoleOut, "[%s] %s: %s%s\n", ev.Command, ev.Stage, ev.Message, suffix)
	}
}

// EmitStage is a shorthand for the common start/end pair fields.
func EmitStage(command, stage, event, message string, details map[string]interface{}) {
	EmitTaskEvent(TaskEvent{
		Command: command,
		Stage:   stage,
		Event:   event,
		Message: message,
		Details: details,
	})
}
