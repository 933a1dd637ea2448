package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewSessionCmd создаёт группу команд для браузерных сессий.
func NewSessionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage browser sessions",
	}

	cmd.AddCommand(
		newSessionListCmd(clientFn, outputFn),
		newSessionLaunchCmd(clientFn, outputFn),
		newSessionCloseCmd(clientFn, outputFn),
	)

	return cmd
}

func newSessionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open browser sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := clientFn().ListSessions()
			if err != nil {
				return err
			}

			headers := []string{"SESSION_ID", "BROWSER", "ACTIVE", "CREATED", "LAST_ACTIVITY"}
			rows := make([][]string, len(sessions))
			for i, s := range sessions {
				rows[i] = []string{s.SessionID, s.BrowserType, strconv.FormatBool(s.IsActive), s.CreatedAt, s.LastActivity}
			}
			outputFn().Print(headers, rows, sessions)
			return nil
		},
	}
}

func newSessionLaunchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req LaunchRequest
	var headless bool

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch a browser session",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			if cmd.Flags().Changed("headless") {
				req.Headless = &headless
			}

			res, err := clientFn().LaunchBrowser(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Browser launched: %s", res.SessionID))
			out.Print(
				[]string{"SESSION_ID", "BROWSER", "STATUS", "CONTROL_URL"},
				[][]string{{res.SessionID, res.BrowserType, res.Status, res.ControlURL}},
				res,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.BrowserType, "browser", "", "Browser type: chromium, firefox, webkit")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run without a visible window")
	cmd.Flags().StringVar(&req.WindowSize, "window-size", "", "Window size as WIDTH,HEIGHT")

	return cmd
}

func newSessionCloseCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "close SESSION_ID",
		Short: "Close a browser session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().CloseSession(args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Session closed: %s", args[0]))
			return nil
		},
	}
}
