package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewEditorCmd создаёт группу команд для сессий визуального редактора.
func NewEditorCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "editor",
		Short: "Work with editor recordings",
	}

	cmd.AddCommand(
		newEditorSessionsCmd(clientFn, outputFn),
		newEditorExportCmd(clientFn, outputFn),
		newEditorConvertCmd(clientFn, outputFn),
	)

	return cmd
}

func newEditorSessionsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List editor sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := clientFn().ListEditorSessions()
			if err != nil {
				return err
			}

			headers := []string{"SESSION_ID", "USER", "TASK_ID", "URL", "STEPS", "LAST_ACTIVITY"}
			rows := make([][]string, len(sessions))
			for i, s := range sessions {
				taskID := "-"
				if s.TaskID != nil {
					taskID = strconv.FormatInt(*s.TaskID, 10)
				}
				rows[i] = []string{
					s.SessionID,
					s.Username,
					taskID,
					s.CurrentURL,
					strconv.Itoa(len(s.RecordedSteps)),
					s.LastActivity,
				}
			}
			outputFn().Print(headers, rows, sessions)
			return nil
		},
	}
}

func newEditorExportCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export SESSION_ID",
		Short: "Export a recording as json or automation steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := clientFn().ExportRecording(args[0], format)
			if err != nil {
				return err
			}

			// Экспорт всегда печатается как JSON: в нём лежит готовый код.
			outputFn().JSON(raw)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Export format: json, automation")

	return cmd
}

func newEditorConvertCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var taskID int64

	cmd := &cobra.Command{
		Use:   "convert SESSION_ID",
		Short: "Turn a recording into steps of an existing task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := clientFn().ConvertRecording(args[0], taskID)
			if err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Created %d steps in task %d", n, taskID))
			return nil
		},
	}

	cmd.Flags().Int64Var(&taskID, "task", 0, "Target task ID (required)")
	cmd.MarkFlagRequired("task")

	return cmd
}
