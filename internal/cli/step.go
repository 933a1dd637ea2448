package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewStepCmd создаёт группу команд для управления шагами задачи.
func NewStepCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Manage task steps",
	}

	cmd.AddCommand(
		newStepListCmd(clientFn, outputFn),
		newStepAddCmd(clientFn, outputFn),
		newStepImportCmd(clientFn, outputFn),
		newStepDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

var stepHeaders = []string{"ID", "ORDER", "NAME", "ACTION", "TARGET", "WAIT", "TIMEOUT"}

func stepRow(s *StepResponse) []string {
	target := s.TargetSelector
	if target == "" {
		target = s.TargetURL
	}
	return []string{
		strconv.FormatInt(s.ID, 10),
		strconv.Itoa(s.StepOrder),
		s.StepName,
		s.ActionType,
		target,
		strconv.Itoa(s.WaitTime),
		strconv.Itoa(s.Timeout),
	}
}

func newStepListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list TASK_ID",
		Short: "List steps of a task in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}

			steps, err := clientFn().ListSteps(taskID)
			if err != nil {
				return err
			}

			rows := make([][]string, len(steps))
			for i := range steps {
				rows[i] = stepRow(&steps[i])
			}
			outputFn().Print(stepHeaders, rows, steps)
			return nil
		},
	}
}

func newStepAddCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateStepRequest
	var timeout int
	var params []string

	cmd := &cobra.Command{
		Use:   "add TASK_ID",
		Short: "Add a step to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			out := outputFn()

			req.TaskID = taskID
			if cmd.Flags().Changed("timeout") {
				req.Timeout = &timeout
			}
			if req.Parameters, err = parseKeyValues(params); err != nil {
				return err
			}

			step, err := clientFn().CreateStep(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Step added: %d", step.ID))
			out.Print(stepHeaders, [][]string{stepRow(step)}, step)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.StepName, "name", "", "Step name (required)")
	cmd.Flags().StringVar(&req.ActionType, "action", "", "Action: navigate, click, type, wait, scroll, select, hover, screenshot, extract, upload (required)")
	cmd.Flags().IntVar(&req.StepOrder, "order", 0, "Position of the step in the task")
	cmd.Flags().StringVar(&req.TargetSelector, "selector", "", "Target element selector")
	cmd.Flags().StringVar(&req.TargetText, "text", "", "Text value for type, select and upload")
	cmd.Flags().StringVar(&req.TargetURL, "url", "", "Target URL for navigate")
	cmd.Flags().IntVar(&req.WaitTime, "wait", 0, "Pause after the step, seconds")
	cmd.Flags().IntVar(&timeout, "timeout", 30, "Step timeout, seconds")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Action parameter as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("action")

	return cmd
}

func newStepImportCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import TASK_ID",
		Short: "Add steps to a task from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			client := clientFn()
			out := outputFn()

			reqs, err := readStepsFile(file)
			if err != nil {
				return err
			}

			created := make([]StepResponse, 0, len(reqs))
			for i := range reqs {
				reqs[i].TaskID = taskID
				if reqs[i].StepOrder == 0 {
					reqs[i].StepOrder = i + 1
				}
				step, err := client.CreateStep(reqs[i])
				if err != nil {
					return fmt.Errorf("step %d (%s): %w", i+1, reqs[i].StepName, err)
				}
				created = append(created, *step)
			}

			rows := make([][]string, len(created))
			for i := range created {
				rows[i] = stepRow(&created[i])
			}
			out.Success(fmt.Sprintf("Imported %d steps into task %d", len(created), taskID))
			out.Print(stepHeaders, rows, created)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to a JSON or YAML list of steps (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

// readStepsFile читает список шагов. Файлы .yaml и .yml разбираются как YAML,
// остальные как JSON.
func readStepsFile(path string) ([]CreateStepRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read steps file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var raw []map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("steps file is not valid YAML: %w", err)
		}
		if data, err = json.Marshal(raw); err != nil {
			return nil, fmt.Errorf("failed to convert steps file: %w", err)
		}
	}

	var reqs []CreateStepRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("steps file is not a valid list of steps: %w", err)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("steps file contains no steps")
	}
	return reqs, nil
}

func newStepDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete STEP_ID",
		Short: "Delete a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := clientFn().DeleteStep(id); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Step deleted: %d", id))
			return nil
		},
	}
}
