// Package terminal renders task output as plain lines for headless runs.
// It supports human-readable output (ANSI emphasis passed through) and JSON
// Lines for machine consumption.
package terminal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/pengelbrecht/runtask/internal/api"
	"github.com/pengelbrecht/runtask/internal/poller"
)

// Writer is a poller.Display writing one line per output record.
type Writer struct {
	mu     sync.Mutex
	jsonl  bool
	color  bool
	writer io.Writer
	taskID api.ID
}

// NewWriter creates a writer on stdout.
// If jsonl is true, outputs JSON Lines; otherwise human-readable lines.
func NewWriter(jsonl bool) *Writer {
	return &Writer{
		jsonl:  jsonl,
		color:  true,
		writer: os.Stdout,
	}
}

// SetWriter sets a custom writer (mainly for testing).
func (w *Writer) SetWriter(out io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer = out
}

// SetColor controls whether ANSI escapes survive in human mode.
func (w *Writer) SetColor(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.color = enabled
}

// SetTask tags JSON Lines events with a task id.
func (w *Writer) SetTask(taskID api.ID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.taskID = taskID
}

// Clear marks the start of a new session. Human mode has nothing to erase.
func (w *Writer) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.jsonl {
		w.writeJSON(map[string]interface{}{"type": "clear"})
	}
}

// WriteLine outputs one display line.
func (w *Writer) WriteLine(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.jsonl {
		w.writeJSON(map[string]interface{}{
			"type": "output",
			"text": ansi.Strip(text),
		})
		return
	}
	if !w.color {
		text = ansi.Strip(text)
	}
	fmt.Fprintln(w.writer, text)
}

// Created reports a freshly created task.
func (w *Writer) Created(taskID api.ID, taskType string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.jsonl {
		w.writeJSON(map[string]interface{}{
			"type":      "created",
			"task_id":   taskID.String(),
			"task_type": taskType,
		})
		return
	}
	fmt.Fprintf(w.writer, "[CREATED] task %s (%s)\n", taskID, taskType)
}

// Outcome outputs the final result of a session.
func (w *Writer) Outcome(o poller.Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.jsonl {
		data := map[string]interface{}{
			"type":    "complete",
			"task_id": o.TaskID.String(),
			"status":  o.Status,
			"stopped": o.Stopped,
		}
		if o.Result != "" {
			data["result"] = o.Result
		}
		if o.Message != "" {
			data["message"] = o.Message
		}
		w.writeJSON(data)
		return
	}
	if o.Stopped {
		fmt.Fprintf(w.writer, "[INTERRUPTED] task %s (last status: %s)\n", o.TaskID, o.Status)
		return
	}
	fmt.Fprintf(w.writer, "[COMPLETE] task %s: %s\n", o.TaskID, o.Status)
}

// writeJSON writes a JSON object as a single line. Must hold w.mu.
func (w *Writer) writeJSON(data map[string]interface{}) {
	if w.taskID != "" {
		if _, ok := data["task_id"]; !ok {
			data["task_id"] = w.taskID.String()
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintln(w.writer, string(b))
}
