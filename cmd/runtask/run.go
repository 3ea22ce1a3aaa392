package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pengelbrecht/runtask/internal/api"
	"github.com/pengelbrecht/runtask/internal/config"
	"github.com/pengelbrecht/runtask/internal/poller"
	"github.com/pengelbrecht/runtask/internal/terminal"
	"github.com/pengelbrecht/runtask/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run [task_type]",
	Short: "Create a task and follow its output",
	Long: `Run submits a new task for a tool and follows its output until the task
finishes. Input comes from a YAML or JSON file (--file) and key=value pairs
(--param), which override the file. Without a task type a picker lists the
registered tools.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		headless, _ := cmd.Flags().GetBool("headless")
		jsonl, _ := cmd.Flags().GetBool("jsonl")
		detach, _ := cmd.Flags().GetBool("detach")

		tool, err := resolveTool(ctx, args, headless || jsonl || detach)
		if err != nil {
			return err
		}

		file, _ := cmd.Flags().GetString("file")
		params, _ := cmd.Flags().GetStringArray("param")
		input, err := buildInput(cmd.InOrStdin(), file, params)
		if err != nil {
			return err
		}
		return submit(cmd, tool, input)
	},
}

var rerunCmd = &cobra.Command{
	Use:   "rerun <task_id>",
	Short: "Create a new task with the type and input of an earlier one",
	Long: `Rerun reads an earlier task and submits a new task with the same tool and
input, then follows it. --param overrides individual input values.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		task, err := lookupTask(ctx, api.ID(args[0]))
		if err != nil {
			return err
		}

		input := map[string]any{}
		if task.Input != "" {
			if err := json.Unmarshal([]byte(task.Input), &input); err != nil {
				return fmt.Errorf("task %s: parse input: %w", task.ID, err)
			}
		}
		params, _ := cmd.Flags().GetStringArray("param")
		if err := applyParams(input, params); err != nil {
			return err
		}

		tool, err := client.FindTool(ctx, task.TaskType)
		if err != nil {
			return err
		}
		if tool == nil {
			// The tool was unregistered; fall back to what the task recorded.
			tool = &api.Tool{TaskType: task.TaskType, RunEndpoint: task.RunEndpoint}
		}
		return submit(cmd, tool, input)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <task_id>",
	Short: "Follow the output of an existing task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		headless, _ := cmd.Flags().GetBool("headless")
		jsonl, _ := cmd.Flags().GetBool("jsonl")
		return watchTask(cmd, api.ID(args[0]), "", headless || jsonl, jsonl)
	},
}

// resolveTool finds the named tool, or lets the user pick one when no name
// is given and the terminal is available.
func resolveTool(ctx context.Context, args []string, noTUI bool) (*api.Tool, error) {
	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	if len(tools) == 0 {
		return nil, errors.New("the task runner has no tools registered")
	}

	state := config.LoadState()
	var tool *api.Tool
	if len(args) > 0 {
		for i := range tools {
			if tools[i].TaskType == args[0] {
				tool = &tools[i]
				break
			}
		}
		if tool == nil {
			return nil, fmt.Errorf("unknown tool %q (see: runtask tools)", args[0])
		}
	} else {
		if noTUI {
			return nil, errors.New("a task type is required with --headless or --detach")
		}
		final, err := tea.NewProgram(tui.NewPicker(tools, state.LastTool), tea.WithContext(ctx)).Run()
		if err != nil {
			return nil, fmt.Errorf("run picker: %w", err)
		}
		tool = final.(tui.Picker).Selected()
		if tool == nil {
			return nil, errors.New("no tool selected")
		}
	}

	if tool.TaskType != state.LastTool {
		state.LastTool = tool.TaskType
		if err := config.SaveState(state); err != nil {
			appLog.Warnw("state_save_failed", "error", err)
		}
	}
	return tool, nil
}

// submit creates a task for tool and, unless --detach is set, follows it.
func submit(cmd *cobra.Command, tool *api.Tool, input map[string]any) error {
	encoded, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}

	endpoint := tool.RunEndpoint
	if override, _ := cmd.Flags().GetString("run-endpoint"); override != "" {
		endpoint = override
	}

	resp, err := client.CreateTask(cmd.Context(), api.CreateTaskRequest{
		TaskType:    tool.TaskType,
		Input:       string(encoded),
		RunEndpoint: endpoint,
	})
	if err != nil {
		return err
	}
	appLog.Infow("task_created", "task_id", resp.TaskID.String(), "task_type", tool.TaskType)
	if resp.Error != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "task %s was created but failed to start: %s\n", resp.TaskID, resp.Error)
	}

	headless, _ := cmd.Flags().GetBool("headless")
	jsonl, _ := cmd.Flags().GetBool("jsonl")
	detach, _ := cmd.Flags().GetBool("detach")

	if headless || jsonl || detach {
		w := terminal.NewWriter(jsonl)
		w.SetWriter(cmd.OutOrStdout())
		w.Created(resp.TaskID, tool.TaskType)
	}
	if detach {
		return nil
	}
	return watchTask(cmd, resp.TaskID, tool.DisplayTitle(), headless || jsonl, jsonl)
}

// watchTask polls taskID into the terminal until it finishes and converts a
// non-success outcome into an error.
func watchTask(cmd *cobra.Command, taskID api.ID, title string, headless, jsonl bool) error {
	ctx := cmd.Context()
	opts := poller.Options{
		Interval: cfg.Poll.Interval,
		PageSize: cfg.Poll.PageSize,
		Host:     cfg.DisplayHost(),
		Logger:   appLog.Zap(),
	}

	if headless {
		w := terminal.NewWriter(jsonl)
		w.SetWriter(cmd.OutOrStdout())
		w.SetColor(colorEnabled(cmd.OutOrStdout()))
		w.SetTask(taskID)

		p := poller.New(client, w, opts)
		s, err := p.Start(ctx, taskID)
		if err != nil {
			return err
		}
		<-s.Done()
		outcome := s.Outcome()
		w.Outcome(outcome)
		return outcomeError(outcome)
	}

	display := &tui.ProgramDisplay{}
	opts.OnStatus = display.Status
	p := poller.New(client, display, opts)

	final, err := runViewer(ctx, p, func(viewCtx context.Context) (tea.Model, error) {
		model := tui.New(tui.Config{
			TaskID:     taskID,
			Title:      title,
			Controller: p,
			Context:    viewCtx,
		})
		prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		display.Attach(prog)
		defer display.Detach()
		return prog.Run()
	})
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run viewer: %w", err)
	}

	s := p.Current()
	if s == nil {
		if m, ok := final.(tui.Model); ok && m.Err() != nil {
			return m.Err()
		}
		return fmt.Errorf("task %s: polling never started", taskID)
	}
	<-s.Done()
	return outcomeError(s.Outcome())
}

// runViewer runs the viewer and stops polling once it exits. Sessions the
// viewer starts are bound to a context cancelled on exit, so a start that
// lands after the viewer quit ends immediately.
func runViewer(ctx context.Context, p *poller.Poller, run func(context.Context) (tea.Model, error)) (tea.Model, error) {
	viewCtx, cancel := context.WithCancel(ctx)
	final, err := run(viewCtx)
	cancel()
	p.Stop()
	return final, err
}

// outcomeError returns nil only for a task that finished with success.
func outcomeError(o poller.Outcome) error {
	switch {
	case o.Success():
		return nil
	case o.Stopped:
		status := o.Status
		if status == "" {
			status = "none"
		}
		return fmt.Errorf("task %s: polling stopped before the task finished (last status: %s)", o.TaskID, status)
	case o.Message != "":
		return fmt.Errorf("task %s ended with status %s: %s", o.TaskID, o.Status, o.Message)
	default:
		return fmt.Errorf("task %s ended with status %s", o.TaskID, o.Status)
	}
}

// lookupTask fetches a task and turns the not-found placeholder into an error.
func lookupTask(ctx context.Context, taskID api.ID) (*api.Task, error) {
	task, err := client.TaskDetail(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == api.StatusUnknown && task.Message == api.MessageTaskNotFound {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return task, nil
}

// buildInput assembles the task input from an optional YAML/JSON file ("-"
// reads stdin) and key=value overrides.
func buildInput(stdin io.Reader, file string, params []string) (map[string]any, error) {
	input := map[string]any{}
	if file != "" {
		var data []byte
		var err error
		if file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		if err := yaml.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("parse input file %s: %w", file, err)
		}
		if input == nil {
			input = map[string]any{}
		}
	}
	if err := applyParams(input, params); err != nil {
		return nil, err
	}
	return input, nil
}

// applyParams sets each key=value pair on input. Values are read as YAML
// scalars or flow collections, so count=3 is a number and tags=[a,b] a list;
// anything that does not parse stays a string.
func applyParams(input map[string]any, params []string) error {
	for _, p := range params {
		key, raw, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid parameter %q: expected key=value", p)
		}
		input[key] = parseValue(raw)
	}
	return nil
}

// parseValue types a -p value only when the typed form prints back as the
// same text. Anything else, such as 01234 or 1.10, stays a string.
func parseValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(raw); err == nil && strconv.Itoa(n) == raw {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) &&
		strconv.FormatFloat(f, 'f', -1, 64) == raw {
		return f
	}
	if strings.HasPrefix(raw, "[") || strings.HasPrefix(raw, "{") {
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err == nil {
			switch v.(type) {
			case []any, map[string]any:
				return v
			}
		}
	}
	return raw
}

func init() {
	for _, c := range []*cobra.Command{runCmd, rerunCmd} {
		c.Flags().StringArrayP("param", "p", nil, "Input value as key=value (repeatable)")
		c.Flags().String("run-endpoint", "", "Override the tool's run endpoint")
		c.Flags().Bool("detach", false, "Create the task and exit without following it")
		c.Flags().Bool("headless", false, "Print output to stdout instead of the viewer")
		c.Flags().Bool("jsonl", false, "Print output as JSON Lines (implies --headless)")
	}
	runCmd.Flags().StringP("file", "f", "", "YAML or JSON input file (- for stdin)")

	watchCmd.Flags().Bool("headless", false, "Print output to stdout instead of the viewer")
	watchCmd.Flags().Bool("jsonl", false, "Print output as JSON Lines (implies --headless)")
}
