package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для записей о выполнениях.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"exec"},
		Short:   "Inspect task executions",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
		newExecutionStopCmd(clientFn, outputFn),
	)

	return cmd
}

var executionHeaders = []string{"EXECUTION_ID", "KIND", "TASKS", "STATUS", "PROGRESS", "STARTED", "ERROR"}

func executionRow(e *ExecutionResponse) []string {
	ids := make([]string, len(e.TaskIDs))
	for i, id := range e.TaskIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	progress := fmt.Sprintf("%d/%d", e.CurrentStep, e.TotalSteps)
	if e.Kind == "batch" {
		progress = fmt.Sprintf("%d+%d/%d", e.CompletedTasks, e.FailedTasks, e.TotalTasks)
	}

	return []string{
		e.ExecutionID,
		e.Kind,
		strings.Join(ids, ","),
		e.Status,
		progress,
		e.StartedAt,
		e.Error,
	}
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := clientFn().ListExecutions(limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(recs))
			for i := range recs {
				rows[i] = executionRow(&recs[i])
			}
			outputFn().Print(executionHeaders, rows, recs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show EXECUTION_ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := clientFn().GetExecution(args[0])
			if err != nil {
				return err
			}

			outputFn().Print(executionHeaders, [][]string{executionRow(rec)}, rec)
			return nil
		},
	}
}

func newExecutionStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop EXECUTION_ID",
		Short: "Stop a running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().StopExecution(args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Execution stopped: %s", args[0]))
			return nil
		},
	}
}
