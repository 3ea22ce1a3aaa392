package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pengelbrecht/runtask/internal/api"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Browse and manage the task history",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		taskType, _ := cmd.Flags().GetString("type")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		result, err := client.ListTasks(cmd.Context(), api.ListTasksOptions{
			TaskType: taskType,
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(result.Tasks) == 0 {
			fmt.Fprintln(out, "No tasks.")
			return nil
		}
		rows := make([][]string, 0, len(result.Tasks))
		for _, t := range result.Tasks {
			rows = append(rows, []string{
				t.ID.String(),
				t.TaskType,
				styleStatus(t.Status),
				formatTime(t.CreateTime),
				orDash(t.RunEndpoint),
			})
		}
		renderTable(out, []string{"ID", "TASK TYPE", "STATUS", "CREATED", "RUN ENDPOINT"}, rows)
		fmt.Fprintf(out, "page %d, %d of %d tasks\n", max(page, 1), len(result.Tasks), result.Total)
		return nil
	},
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task_id>",
	Short: "Show a task's status, result and input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := lookupTask(cmd.Context(), api.ID(args[0]))
		if err != nil {
			return err
		}
		fields := [][2]string{
			{"ID", task.ID.String()},
			{"Task type", task.TaskType},
			{"Status", styleStatus(task.Status)},
			{"Created", formatTime(task.CreateTime)},
			{"Run endpoint", orDash(task.RunEndpoint)},
			{"Input", orDash(task.Input)},
		}
		if task.Result != "" {
			fields = append(fields, [2]string{"Result", task.Result})
		}
		if task.Message != "" {
			fields = append(fields, [2]string{"Message", task.Message})
		}
		renderFields(cmd.OutOrStdout(), fields)
		return nil
	},
}

var tasksInputCmd = &cobra.Command{
	Use:   "input <task_id>",
	Short: "Print the input a task was created with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := client.TaskInput(cmd.Context(), api.ID(args[0]))
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("output")
		var data []byte
		switch format {
		case "json":
			data, err = json.MarshalIndent(input, "", "  ")
			data = append(data, '\n')
		case "yaml":
			data, err = yaml.Marshal(input)
		default:
			return fmt.Errorf("unknown output format %q (want json or yaml)", format)
		}
		if err != nil {
			return fmt.Errorf("encode input: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <task_id>...",
	Short: "Delete tasks and their output",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range args {
			if err := client.DeleteTask(cmd.Context(), api.ID(id)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted task %s\n", id)
		}
		return nil
	},
}

func init() {
	tasksListCmd.Flags().String("type", "", "Only list tasks of this task type")
	tasksListCmd.Flags().Int("page", 1, "Page number")
	tasksListCmd.Flags().Int("page-size", 10, "Tasks per page")
	tasksInputCmd.Flags().StringP("output", "o", "json", "Output format: json or yaml")

	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksShowCmd)
	tasksCmd.AddCommand(tasksInputCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
}
