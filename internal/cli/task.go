package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для управления задачами.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage automation tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskCreateCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskUpdateCmd(clientFn, outputFn),
		newTaskDeleteCmd(clientFn, outputFn),
		newTaskRunCmd(clientFn, outputFn),
		newTaskBatchCmd(clientFn, outputFn),
		newTaskStatusCmd(clientFn, outputFn),
		newTaskStopCmd(clientFn, outputFn),
		newTaskPreviewCmd(clientFn, outputFn),
		newTaskStatsCmd(clientFn, outputFn),
		newTaskLogsCmd(clientFn, outputFn),
	)

	return cmd
}

var taskHeaders = []string{"ID", "NAME", "STATUS", "PRIORITY", "RUNS", "OK", "FAILED", "URL"}

func taskRow(t *TaskResponse) []string {
	return []string{
		strconv.FormatInt(t.ID, 10),
		t.Name,
		t.Status,
		strconv.Itoa(t.Priority),
		strconv.Itoa(t.ExecutionCount),
		strconv.Itoa(t.SuccessCount),
		strconv.Itoa(t.FailureCount),
		t.URL,
	}
}

// parseID разбирает числовой идентификатор из аргумента.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListTasksOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListTasks(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(tasks))
			for i := range tasks {
				rows[i] = taskRow(&tasks[i])
			}
			outputFn().Print(taskHeaders, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of tasks to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newTaskCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateTaskRequest
	var params []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			p, err := parseKeyValues(params)
			if err != nil {
				return err
			}
			req.Parameters = p

			task, err := clientFn().CreateTask(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task created: %d", task.ID))
			out.Print(taskHeaders, [][]string{taskRow(task)}, task)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Task name (required)")
	cmd.Flags().StringVar(&req.URL, "url", "", "Target URL (required)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Task description")
	cmd.Flags().IntVar(&req.Priority, "priority", 0, "Task priority")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Task parameter as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("url")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			task, err := clientFn().GetTask(id)
			if err != nil {
				return err
			}

			outputFn().Print(taskHeaders, [][]string{taskRow(task)}, task)
			return nil
		},
	}
}

func newTaskUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, url, description string
	var priority int

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out := outputFn()

			req := UpdateTaskRequest{}
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("url") {
				req.URL = &url
			}
			if cmd.Flags().Changed("description") {
				req.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				req.Priority = &priority
			}

			task, err := clientFn().UpdateTask(id, req)
			if err != nil {
				return err
			}

			out.Success("Task updated")
			out.Print(taskHeaders, [][]string{taskRow(task)}, task)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New task name")
	cmd.Flags().StringVar(&url, "url", "", "New target URL")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().IntVar(&priority, "priority", 0, "New priority")

	return cmd
}

func newTaskDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a task with its steps and logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := clientFn().DeleteTask(id); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Task deleted: %d", id))
			return nil
		},
	}
}

func newTaskRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var force, wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run ID",
		Short: "Execute a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			client := clientFn()
			out := outputFn()

			res, err := client.ExecuteTask(id, force)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Execution started: %s", res.ExecutionID))

			if !wait {
				out.Print([]string{"EXECUTION_ID", "STATUS"}, [][]string{{res.ExecutionID, res.Status}}, res)
				return nil
			}

			status, err := waitForTask(cmd, client, id, interval)
			if err != nil {
				return err
			}
			out.Print(statusHeaders, [][]string{statusRow(status)}, status)
			if status.Status != "completed" {
				return fmt.Errorf("task %d finished with status %s", id, status.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Restart a task left in running state")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the task to finish")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Status polling interval with --wait")

	return cmd
}

// waitForTask опрашивает статус задачи до финального.
func waitForTask(cmd *cobra.Command, client *Client, id int64, interval time.Duration) (*StatusResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := client.TaskStatus(id)
		if err != nil {
			return nil, err
		}
		if status.IsTerminal() {
			return status, nil
		}

		select {
		case <-cmd.Context().Done():
			return nil, cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

func newTaskBatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "batch ID [ID...]",
		Short: "Execute several tasks as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			out := outputFn()

			res, err := clientFn().BatchExecute(ids)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Batch started: %s", res.ExecutionID))
			out.Print(
				[]string{"EXECUTION_ID", "STATUS", "TASKS"},
				[][]string{{res.ExecutionID, res.Status, strconv.Itoa(res.TotalTasks)}},
				res,
			)
			return nil
		},
	}
}

var statusHeaders = []string{"TASK_ID", "STATUS", "PROGRESS", "STEP", "EXECUTION_ID", "ERROR"}

func statusRow(s *StatusResponse) []string {
	step := s.CurrentStep
	if s.TotalSteps > 0 {
		step = fmt.Sprintf("%d/%d %s", s.CurrentStepIndex+1, s.TotalSteps, s.CurrentStep)
	}
	return []string{
		strconv.FormatInt(s.TaskID, 10),
		s.Status,
		fmt.Sprintf("%.0f%%", s.Progress),
		strings.TrimSpace(step),
		s.ExecutionID,
		s.ErrorMessage,
	}
}

func newTaskStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID",
		Short: "Show task execution status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			status, err := clientFn().TaskStatus(id)
			if err != nil {
				return err
			}

			outputFn().Print(statusHeaders, [][]string{statusRow(status)}, status)
			return nil
		},
	}
}

func newTaskStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop ID",
		Short: "Stop a running or pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := clientFn().StopTask(id); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Task stopped: %d", id))
			return nil
		},
	}
}

func newTaskPreviewCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "preview ID",
		Short: "Dry-run task steps in a throwaway browser session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out := outputFn()

			res, err := clientFn().PreviewTask(id)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Preview started: %s", res.PreviewID))
			out.Print([]string{"PREVIEW_ID", "STATUS"}, [][]string{{res.PreviewID, res.Status}}, res)
			return nil
		},
	}
}

func newTaskStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := clientFn().TaskStats()
			if err != nil {
				return err
			}

			rows := [][]string{
				{"total", strconv.Itoa(stats.TotalTasks)},
				{"active", strconv.Itoa(stats.ActiveTasks)},
				{"last 7 days", strconv.Itoa(stats.RecentTasks7d)},
				{"success rate", fmt.Sprintf("%.2f%%", stats.SuccessRate)},
			}
			for _, status := range []string{"pending", "running", "completed", "failed", "cancelled"} {
				rows = append(rows, []string{status, strconv.Itoa(stats.StatusBreakdown[status])})
			}

			outputFn().Print([]string{"METRIC", "VALUE"}, rows, stats)
			return nil
		},
	}
}

func newTaskLogsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var level string
	var limit int

	cmd := &cobra.Command{
		Use:   "logs ID",
		Short: "Show task execution log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			logs, err := clientFn().TaskLogs(id, strings.ToUpper(level), limit)
			if err != nil {
				return err
			}

			headers := []string{"TIME", "LEVEL", "STEP", "MESSAGE"}
			rows := make([][]string, len(logs))
			for i, l := range logs {
				rows[i] = []string{l.Timestamp, l.Level, l.StepName, l.Message}
			}
			outputFn().Print(headers, rows, logs)
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "Filter by level (DEBUG, INFO, WARNING, ERROR)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of entries")

	return cmd
}

// parseKeyValues разбирает список KEY=VALUE.
func parseKeyValues(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid format %q, expected KEY=VALUE", kv)
		}
		out[k] = v
	}
	return out, nil
}
