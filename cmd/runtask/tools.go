package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools registered on the task runner",
	Args:  cobra.NoArgs,
	RunE:  listTools,
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools registered on the task runner",
	Args:  cobra.NoArgs,
	RunE:  listTools,
}

var toolsShowCmd = &cobra.Command{
	Use:   "show <task_type>",
	Short: "Show a tool and its input form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := client.FindTool(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if tool == nil {
			return fmt.Errorf("unknown tool %q", args[0])
		}

		out := cmd.OutOrStdout()
		renderFields(out, [][2]string{
			{"Task type", tool.TaskType},
			{"Title", tool.DisplayTitle()},
			{"Run endpoint", orDash(tool.RunEndpoint)},
		})
		if tool.Form != "" {
			fmt.Fprintln(out)
			fmt.Fprintln(out, labelStyle.Render("Form"))
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, []byte(tool.Form), "", "  "); err != nil {
				fmt.Fprintln(out, tool.Form)
			} else {
				fmt.Fprintln(out, pretty.String())
			}
		}
		return nil
	},
}

func listTools(cmd *cobra.Command, args []string) error {
	tools, err := client.ListTools(cmd.Context())
	if err != nil {
		return err
	}
	if len(tools) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tools registered.")
		return nil
	}

	rows := make([][]string, 0, len(tools))
	for _, t := range tools {
		rows = append(rows, []string{t.TaskType, t.DisplayTitle(), orDash(t.RunEndpoint)})
	}
	renderTable(cmd.OutOrStdout(), []string{"TASK TYPE", "TITLE", "RUN ENDPOINT"}, rows)
	return nil
}

func init() {
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsShowCmd)
}
